package zarr

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Array is a handle to one array inside a store.
type Array struct {
	store *Store
	name  string
	meta  ArrayMeta
	attrs map[string]interface{}
}

// Meta returns the array metadata.
func (a *Array) Meta() ArrayMeta { return a.meta }

// Attr returns a string attribute, or "" when absent or not a string.
func (a *Array) Attr(key string) string {
	if v, ok := a.attrs[key].(string); ok {
		return v
	}
	return ""
}

// Size returns the total element count.
func (a *Array) Size() int {
	n := 1
	for _, s := range a.meta.Shape {
		n *= s
	}
	return n
}

// Read materializes the whole array into a flat C-order []float64. Missing
// chunks are filled with the array's fill value; elements equal to the fill
// value come back as NaN.
func (a *Array) Read(ctx context.Context) ([]float64, error) {
	return a.read(ctx, 0, a.meta.Shape[0])
}

// ReadSlice materializes the half-open range [t0, t1) along the leading
// dimension. For a time × cells array this pulls only the chunks that overlap
// the requested time steps.
func (a *Array) ReadSlice(ctx context.Context, t0, t1 int) ([]float64, error) {
	if t0 < 0 || t1 > a.meta.Shape[0] || t0 >= t1 {
		return nil, fmt.Errorf("array %q: slice [%d,%d) out of range [0,%d)", a.name, t0, t1, a.meta.Shape[0])
	}
	return a.read(ctx, t0, t1)
}

func (a *Array) read(ctx context.Context, t0, t1 int) ([]float64, error) {
	shape := a.meta.Shape
	chunks := a.meta.Chunks

	stride := 1
	for _, s := range shape[1:] {
		stride *= s
	}
	out := make([]float64, (t1-t0)*stride)
	fill := a.fillValue()
	for i := range out {
		out[i] = fill
	}

	// Chunk-grid extents per dimension.
	nChunks := make([]int, len(shape))
	for d := range shape {
		nChunks[d] = (shape[d] + chunks[d] - 1) / chunks[d]
	}
	c0 := t0 / chunks[0]
	c1 := (t1 - 1) / chunks[0]

	// Walk every chunk whose leading index overlaps [t0,t1).
	coord := make([]int, len(shape))
	for leading := c0; leading <= c1; leading++ {
		coord[0] = leading
		for d := 1; d < len(coord); d++ {
			coord[d] = 0
		}
		for {
			if err := a.readChunk(ctx, coord, t0, t1, stride, out); err != nil {
				return nil, err
			}
			// Odometer over trailing dims.
			d := len(coord) - 1
			for d >= 1 {
				coord[d]++
				if coord[d] < nChunks[d] {
					break
				}
				coord[d] = 0
				d--
			}
			if d < 1 {
				break
			}
		}
	}

	a.maskFill(out)
	return out, nil
}

// readChunk fetches and decodes one chunk, copying the portion overlapping
// [t0,t1) along the leading dimension into out.
func (a *Array) readChunk(ctx context.Context, coord []int, t0, t1, stride int, out []float64) error {
	key := a.chunkKey(coord)
	raw, err := a.store.fetcher.fetch(ctx, key)
	if errors.Is(err, ErrNotFound) {
		// Absent chunk: the region keeps the fill value.
		return nil
	}
	if err != nil {
		return fmt.Errorf("array %q: fetching chunk %s: %v", a.name, key, err)
	}

	vals, err := a.decode(raw)
	if err != nil {
		return fmt.Errorf("array %q: chunk %s: %v", a.name, key, err)
	}

	shape := a.meta.Shape
	chunks := a.meta.Chunks

	// Extent of this chunk in array coordinates, clipped at array edges.
	lo := make([]int, len(shape))
	hi := make([]int, len(shape))
	for d := range shape {
		lo[d] = coord[d] * chunks[d]
		hi[d] = lo[d] + chunks[d]
		if hi[d] > shape[d] {
			hi[d] = shape[d]
		}
	}

	top := hi[0]
	if top > t1 {
		top = t1
	}
	if lo[0] >= top {
		return nil
	}

	return a.copyChunk(vals, lo, hi, t0, top, stride, out)
}

// copyChunk copies the in-bounds region of a decoded chunk into the output
// window, handling arrays of any rank.
func (a *Array) copyChunk(vals []float64, lo, hi []int, t0, top, stride int, out []float64) error {
	shape := a.meta.Shape
	chunks := a.meta.Chunks
	rank := len(shape)

	pos := make([]int, rank)
	copy(pos, lo)
	if pos[0] < t0 {
		pos[0] = t0
	}

	for {
		// Flat index inside the decoded chunk buffer (C-order over the full,
		// unclipped chunk shape) and inside the output window.
		ci := 0
		for d := 0; d < rank; d++ {
			ci = ci*chunks[d] + (pos[d] - lo[d])
		}
		oi := (pos[0] - t0) * stride
		rem := 1
		for d := rank - 1; d >= 1; d-- {
			oi += pos[d] * rem
			rem *= shape[d]
		}
		if ci >= len(vals) {
			return fmt.Errorf("chunk buffer too small: index %d of %d", ci, len(vals))
		}
		out[oi] = vals[ci]

		// Odometer: trailing dims first, leading dim bounded by [t0, top).
		d := rank - 1
		for d >= 0 {
			pos[d]++
			limit := hi[d]
			low := lo[d]
			if d == 0 {
				limit = top
				if low < t0 {
					low = t0
				}
			}
			if pos[d] < limit {
				break
			}
			pos[d] = low
			d--
		}
		if d < 0 {
			return nil
		}
	}
}

// chunkKey builds the dotted chunk object key, e.g. "VAR_2T/3.0".
func (a *Array) chunkKey(coord []int) string {
	parts := make([]string, len(coord))
	for i, c := range coord {
		parts[i] = strconv.Itoa(c)
	}
	return a.name + "/" + strings.Join(parts, ".")
}

// decode decompresses (if configured) and decodes a chunk buffer into float64s.
func (a *Array) decode(raw []byte) ([]float64, error) {
	if a.meta.Compressor != nil {
		var (
			r   io.ReadCloser
			err error
		)
		switch a.meta.Compressor.ID {
		case "zlib":
			r, err = zlib.NewReader(bytes.NewReader(raw))
		case "gzip":
			r, err = gzip.NewReader(bytes.NewReader(raw))
		}
		if err != nil {
			return nil, fmt.Errorf("opening %s stream: %v", a.meta.Compressor.ID, err)
		}
		raw, err = io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("decompressing chunk: %v", err)
		}
	}

	n := 1
	for _, c := range a.meta.Chunks {
		n *= c
	}

	switch a.meta.DType {
	case "<f4":
		if len(raw) < n*4 {
			return nil, fmt.Errorf("short chunk: %d bytes for %d float32s", len(raw), n)
		}
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			vals[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		return vals, nil
	case "<f8":
		if len(raw) < n*8 {
			return nil, fmt.Errorf("short chunk: %d bytes for %d float64s", len(raw), n)
		}
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return vals, nil
	}
	return nil, fmt.Errorf("unsupported dtype %q", a.meta.DType)
}

// fillValue interprets the .zarray fill_value field. JSON "NaN" (string) and
// null both map to NaN.
func (a *Array) fillValue() float64 {
	raw := a.meta.FillValue
	if len(raw) == 0 || string(raw) == "null" {
		return math.NaN()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		return math.NaN()
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	return math.NaN()
}

// maskFill replaces elements equal to a finite fill value with NaN so callers
// see one consistent missing marker.
func (a *Array) maskFill(vals []float64) {
	fill := a.fillValue()
	if math.IsNaN(fill) {
		return
	}
	for i, v := range vals {
		if v == fill {
			vals[i] = math.NaN()
		}
	}
}
