// eraview-synth generates a synthetic annual-means dataset as a local zarr
// store, so the dashboard can be exercised without network access to a real
// reanalysis archive. The mesh is a Gaussian grid flattened to scattered
// samples, the way the reduced-grid archives publish theirs.
package main

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/arcfield/eraview/pkg/grid"
)

const (
	defaultResolution = 32 // Gaussian N: 2N latitude rows
	defaultYears      = 84
	defaultBaseYear   = 1940
)

func main() {
	out := flag.String("out", "synthetic.zarr", "output store directory")
	resolution := flag.Int("n", defaultResolution, "Gaussian grid resolution N (2N latitude rows, 4N longitudes)")
	years := flag.Int("years", defaultYears, "number of annual time steps")
	baseYear := flag.Int("base-year", defaultBaseYear, "calendar year of the first time step")
	seed := flag.Int64("seed", 1, "random seed for weather noise")
	flag.Parse()

	if err := run(*out, *resolution, *years, *baseYear, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "eraview-synth: %v\n", err)
		os.Exit(1)
	}
}

func run(out string, n, years, baseYear int, seed int64) error {
	if years < 2 {
		return fmt.Errorf("need at least 2 time steps, got %d", years)
	}

	rows, err := grid.GaussianLatitudes(2 * n)
	if err != nil {
		return err
	}
	nLon := 4 * n

	var lats, lons []float64
	for _, lat := range rows {
		for j := 0; j < nLon; j++ {
			lats = append(lats, lat)
			lons = append(lons, 360*float64(j)/float64(nLon))
		}
	}
	samples := len(lats)

	// Zonal climatology with a slow warming trend and per-sample noise. The
	// numbers are loosely 2 m temperature in kelvin.
	rng := rand.New(rand.NewSource(seed))
	offsets := make([]float64, samples)
	for i := range offsets {
		offsets[i] = rng.NormFloat64() * 1.5
	}

	values := make([]float64, years*samples)
	for t := 0; t < years; t++ {
		trend := 0.015 * float64(t)
		for i := 0; i < samples; i++ {
			rad := lats[i] * math.Pi / 180
			clim := 288 - 35*math.Pow(math.Sin(rad), 2)
			values[t*samples+i] = clim + trend + offsets[i] + rng.NormFloat64()*0.3
		}
	}

	if err := writeStore(out, lats, lons, values, years, samples); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d samples x %d years starting %d\n", out, samples, years, baseYear)
	return nil
}

// writeStore lays the dataset out as a consolidated zarr-v2 store: 1-D
// coordinate arrays plus a time x samples variable chunked one year per chunk.
func writeStore(dir string, lats, lons, values []float64, years, samples int) error {
	coordMeta := func(n int) json.RawMessage {
		raw, _ := json.Marshal(map[string]interface{}{
			"shape": []int{n}, "chunks": []int{n}, "dtype": "<f8",
			"compressor": map[string]string{"id": "zlib"},
			"fill_value": "NaN", "order": "C", "zarr_format": 2,
		})
		return raw
	}
	dataMeta, _ := json.Marshal(map[string]interface{}{
		"shape": []int{years, samples}, "chunks": []int{1, samples}, "dtype": "<f8",
		"compressor": map[string]string{"id": "zlib"},
		"fill_value": "NaN", "order": "C", "zarr_format": 2,
	})

	meta := map[string]json.RawMessage{
		"latitude/.zarray":  coordMeta(samples),
		"longitude/.zarray": coordMeta(samples),
		"VAR_2T/.zarray":    dataMeta,
		"VAR_2T/.zattrs":    json.RawMessage(`{"units": "K", "long_name": "2 metre temperature"}`),
	}
	doc, err := json.Marshal(map[string]interface{}{
		"zarr_consolidated_format": 1,
		"metadata":                 meta,
	})
	if err != nil {
		return fmt.Errorf("building consolidated metadata: %v", err)
	}

	if err := writeObject(dir, ".zmetadata", doc); err != nil {
		return err
	}
	if err := writeObject(dir, "latitude/0", encodeChunk(lats)); err != nil {
		return err
	}
	if err := writeObject(dir, "longitude/0", encodeChunk(lons)); err != nil {
		return err
	}
	for t := 0; t < years; t++ {
		key := fmt.Sprintf("VAR_2T/%d.0", t)
		chunk := encodeChunk(values[t*samples : (t+1)*samples])
		if err := writeObject(dir, key, chunk); err != nil {
			return err
		}
	}
	return nil
}

// encodeChunk packs float64s little-endian and zlib-compresses them.
func encodeChunk(vals []float64) []byte {
	raw := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(raw)
	w.Close()
	return buf.Bytes()
}

func writeObject(dir, key string, body []byte) error {
	path := filepath.Join(dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %v", path, err)
	}
	return nil
}
