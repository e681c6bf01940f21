package dataset

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/arcfield/eraview/internal/cache"
	"github.com/arcfield/eraview/pkg/config"
)

// testProvider serves a fixed configuration.
type testProvider struct {
	cfg config.ConfigData
}

func (p *testProvider) LoadConfig() (*config.ConfigData, error)  { return &p.cfg, nil }
func (p *testProvider) GetDataset() (*config.DatasetData, error) { return &p.cfg.Dataset, nil }
func (p *testProvider) GetControllers() ([]config.ControllerData, error) {
	return p.cfg.Controllers, nil
}
func (p *testProvider) Close() error { return nil }

// writeTestStore lays out a small zarr store on disk: a scattered mesh of
// samples every 20 degrees between latitudes -80 and 80, carrying a constant
// field per time step (280 at step 0, 283 at step 1).
func writeTestStore(t *testing.T) (dir string, nSamples int) {
	t.Helper()
	dir = t.TempDir()

	var lats, lons []float64
	for lat := -80.0; lat <= 80.0; lat += 20 {
		for lon := 0.0; lon < 360.0; lon += 20 {
			lats = append(lats, lat)
			lons = append(lons, lon)
		}
	}
	n := len(lats)

	values := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		values[i] = 280
		values[n+i] = 283
	}

	coordMeta := func(n int) json.RawMessage {
		raw, _ := json.Marshal(map[string]interface{}{
			"shape": []int{n}, "chunks": []int{n}, "dtype": "<f8",
			"fill_value": "NaN", "order": "C", "zarr_format": 2,
		})
		return raw
	}
	dataMeta, _ := json.Marshal(map[string]interface{}{
		"shape": []int{2, n}, "chunks": []int{1, n}, "dtype": "<f8",
		"fill_value": "NaN", "order": "C", "zarr_format": 2,
	})

	meta := map[string]json.RawMessage{
		"latitude/.zarray":  coordMeta(n),
		"longitude/.zarray": coordMeta(n),
		"VAR_2T/.zarray":    dataMeta,
		"VAR_2T/.zattrs":    json.RawMessage(`{"units": "K"}`),
	}
	doc, err := json.Marshal(map[string]interface{}{"zarr_consolidated_format": 1, "metadata": meta})
	if err != nil {
		t.Fatal(err)
	}

	writeObject := func(key string, body []byte) {
		path := filepath.Join(dir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	encode := func(vals []float64) []byte {
		buf := make([]byte, 8*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		return buf
	}

	writeObject(".zmetadata", doc)
	writeObject("latitude/0", encode(lats))
	writeObject("longitude/0", encode(lons))
	writeObject("VAR_2T/0.0", encode(values[:n]))
	writeObject("VAR_2T/1.0", encode(values[n:]))

	return dir, n
}

func newTestService(t *testing.T, fieldCache *cache.Cache) *Service {
	t.Helper()
	dir, _ := writeTestStore(t)
	provider := &testProvider{cfg: config.ConfigData{
		Dataset: config.DatasetData{
			Name:      "test-era5",
			StoreURL:  dir,
			Variables: []string{"VAR_2T"},
			Anomaly:   true,
		},
		// A coarse target keeps every cell inside the source hull.
		Regrid: config.RegridData{StepDegrees: 30, Workers: 2},
	}}

	svc, err := New(context.Background(), provider, fieldCache, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestMeta(t *testing.T) {
	svc := newTestService(t, nil)
	m := svc.Meta()

	if m.Name != "test-era5" {
		t.Errorf("name = %q", m.Name)
	}
	if m.TimeSteps != 2 {
		t.Errorf("time steps = %d, want 2", m.TimeSteps)
	}
	if m.BaseYear != 1940 {
		t.Errorf("base year = %d, want default 1940", m.BaseYear)
	}
	if len(m.Variables) != 2 {
		t.Fatalf("got %d variables, want native + anomaly", len(m.Variables))
	}
	if m.Variables[0].Name != "VAR_2T" || m.Variables[1].Name != "VAR_2T_anom" {
		t.Errorf("variables = %v", m.Variables)
	}
	if m.Variables[0].Units != "K" {
		t.Errorf("units = %q", m.Variables[0].Units)
	}
	if m.Variables[0].Stats.Min != 280 || m.Variables[0].Stats.Max != 283 {
		t.Errorf("stats = %+v", m.Variables[0].Stats)
	}
	if len(m.Lats) != 6 || len(m.Lons) != 12 {
		t.Errorf("target grid %dx%d, want 6x12", len(m.Lats), len(m.Lons))
	}
}

func TestFieldConstant(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	// A constant source field regrids to the same constant everywhere the
	// target lies inside the source hull, which is the whole coarse grid.
	for step, want := range map[int]float64{0: 280, 1: 283} {
		vals, nlat, nlon, err := svc.Field(ctx, "VAR_2T", step)
		if err != nil {
			t.Fatal(err)
		}
		if nlat != 6 || nlon != 12 || len(vals) != 72 {
			t.Fatalf("field shape %dx%d (%d values)", nlat, nlon, len(vals))
		}
		for i, v := range vals {
			if math.Abs(v-want) > 1e-9 {
				t.Fatalf("step %d: vals[%d] = %v, want %v", step, i, v, want)
			}
		}
	}
}

func TestFieldAnomaly(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	vals, _, _, err := svc.Field(ctx, "VAR_2T_anom", 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vals {
		if math.Abs(v-3) > 1e-9 {
			t.Fatalf("anomaly[%d] = %v, want 3", i, v)
		}
	}
}

func TestFieldErrors(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if _, _, _, err := svc.Field(ctx, "VAR_MSL", 0); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
	if _, _, _, err := svc.Field(ctx, "VAR_2T", 2); err == nil {
		t.Error("expected error for out-of-range time index")
	}
	if _, _, _, err := svc.Field(ctx, "VAR_2T", -1); err == nil {
		t.Error("expected error for negative time index")
	}
}

func TestFieldCacheRoundTrip(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "fields.db"), zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	svc := newTestService(t, c)
	ctx := context.Background()

	first, _, _, err := svc.Field(ctx, "VAR_2T", 0)
	if err != nil {
		t.Fatal(err)
	}
	// The entry written above must satisfy the second call.
	second, _, _, err := svc.Field(ctx, "VAR_2T", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("cached[%d] = %v, want %v", i, second[i], first[i])
		}
	}
}
