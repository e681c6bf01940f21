// Package grid provides labeled multi-dimensional arrays and grid geometry
// for reanalysis fields.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// DataArray is a labeled multi-dimensional array: flat row-major values plus
// named dimensions and per-dimension coordinate vectors. It is the unit of
// data handed between the store, the regridder, and the dashboard.
type DataArray struct {
	Name   string
	Dims   []string
	Shape  []int
	Values []float64
	Coords map[string][]float64
	Attrs  map[string]string
}

// NewDataArray builds a DataArray and validates that the shape matches the
// value count and that every coordinate vector matches its dimension length.
func NewDataArray(name string, dims []string, shape []int, values []float64) (*DataArray, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("array %s: %d dims but %d shape entries", name, len(dims), len(shape))
	}
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("array %s: non-positive dimension length %d", name, s)
		}
		n *= s
	}
	if n != len(values) {
		return nil, fmt.Errorf("array %s: shape implies %d values, got %d", name, n, len(values))
	}
	return &DataArray{
		Name:   name,
		Dims:   dims,
		Shape:  shape,
		Values: values,
		Coords: make(map[string][]float64),
		Attrs:  make(map[string]string),
	}, nil
}

// SetCoord attaches a coordinate vector to a named dimension.
func (a *DataArray) SetCoord(dim string, coord []float64) error {
	for i, d := range a.Dims {
		if d == dim {
			if len(coord) != a.Shape[i] {
				return fmt.Errorf("array %s: coord %s has %d entries, dim has length %d",
					a.Name, dim, len(coord), a.Shape[i])
			}
			a.Coords[dim] = coord
			return nil
		}
	}
	return fmt.Errorf("array %s: no dimension named %s", a.Name, dim)
}

// DimLen returns the length of a named dimension, or -1 if absent.
func (a *DataArray) DimLen(dim string) int {
	for i, d := range a.Dims {
		if d == dim {
			return a.Shape[i]
		}
	}
	return -1
}

// TimeSlice returns the values of one step along the leading dimension.
// The returned slice aliases the backing array.
func (a *DataArray) TimeSlice(t int) ([]float64, error) {
	if len(a.Shape) < 2 {
		return nil, fmt.Errorf("array %s: TimeSlice needs at least 2 dims, have %d", a.Name, len(a.Shape))
	}
	if t < 0 || t >= a.Shape[0] {
		return nil, fmt.Errorf("array %s: time index %d out of range [0,%d)", a.Name, t, a.Shape[0])
	}
	stride := 1
	for _, s := range a.Shape[1:] {
		stride *= s
	}
	return a.Values[t*stride : (t+1)*stride], nil
}

// AnomalyFromFirst derives a new array holding each time step minus the first
// time step. NaN values propagate. The result shares dims and coords with the
// source array.
func (a *DataArray) AnomalyFromFirst() (*DataArray, error) {
	if len(a.Shape) < 2 {
		return nil, fmt.Errorf("array %s: anomaly needs a leading time dimension", a.Name)
	}
	base, err := a.TimeSlice(0)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(a.Values))
	stride := len(base)
	for t := 0; t < a.Shape[0]; t++ {
		for i, b := range base {
			out[t*stride+i] = a.Values[t*stride+i] - b
		}
	}
	anom, err := NewDataArray(a.Name+"_anom", a.Dims, a.Shape, out)
	if err != nil {
		return nil, err
	}
	for dim, coord := range a.Coords {
		anom.Coords[dim] = coord
	}
	if units, ok := a.Attrs["units"]; ok {
		anom.Attrs["units"] = units
	}
	anom.Attrs["long_name"] = a.Name + " anomaly from first time step"
	return anom, nil
}

// Stats summarizes a field for display scaling.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Valid  int     `json:"valid"`
}

// FieldStats computes summary statistics over all values, skipping NaN. The
// dashboard uses the full-array min/max so the color scale stays fixed while
// the time slider moves. Returns all-NaN stats when no finite value exists.
func FieldStats(values []float64) Stats {
	finite := make([]float64, 0, len(values))
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		finite = append(finite, v)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if len(finite) == 0 {
		nan := math.NaN()
		return Stats{Min: nan, Max: nan, Mean: nan, StdDev: nan}
	}
	mean, std := stat.MeanStdDev(finite, nil)
	if len(finite) == 1 {
		std = 0
	}
	return Stats{Min: min, Max: max, Mean: mean, StdDev: std, Valid: len(finite)}
}
