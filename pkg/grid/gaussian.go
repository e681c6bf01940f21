package grid

import (
	"fmt"
	"math"
)

// GaussianLatitudes returns the n latitudes (degrees, north to south) of a
// regular Gaussian grid: the roots of the Legendre polynomial P_n, found by
// Newton iteration from the standard asymptotic first guess. Spectral-model
// output (ERA5 native) lives on these latitudes rather than a uniform spacing.
func GaussianLatitudes(n int) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("gaussian grid needs at least 1 latitude, got %d", n)
	}
	lats := make([]float64, n)
	for i := 0; i < (n+1)/2; i++ {
		// First guess for the i-th root of P_n (Abramowitz & Stegun 22.16.6).
		x := math.Cos(math.Pi * (float64(i) + 0.75) / (float64(n) + 0.5))
		for iter := 0; iter < 100; iter++ {
			p, dp := legendre(n, x)
			dx := p / dp
			x -= dx
			if math.Abs(dx) < 1e-15 {
				break
			}
		}
		lat := math.Asin(x) * 180 / math.Pi
		lats[i] = lat
		lats[n-1-i] = -lat
	}
	if n%2 == 1 {
		lats[n/2] = 0
	}
	return lats, nil
}

// legendre evaluates P_n(x) and its derivative via the three-term recurrence.
func legendre(n int, x float64) (p, dp float64) {
	p0, p1 := 1.0, x
	for k := 2; k <= n; k++ {
		p0, p1 = p1, ((2*float64(k)-1)*x*p1-(float64(k)-1)*p0)/float64(k)
	}
	if n == 0 {
		return 1, 0
	}
	if n == 1 {
		return x, 1
	}
	dp = float64(n) * (x*p1 - p0) / (x*x - 1)
	return p1, dp
}

// RegularGrid is a uniform lat-lon target mesh.
type RegularGrid struct {
	Lats []float64 // south to north
	Lons []float64 // 0 to 360, exclusive of the wrap point
}

// NewRegularGrid builds a uniform global mesh with the given cell size in
// degrees. Latitudes span [-90+step/2, 90-step/2] so cells are centered.
func NewRegularGrid(stepDeg float64) (*RegularGrid, error) {
	if stepDeg <= 0 || stepDeg > 90 {
		return nil, fmt.Errorf("invalid grid step %.3f degrees", stepDeg)
	}
	nlat := int(math.Round(180 / stepDeg))
	nlon := int(math.Round(360 / stepDeg))
	g := &RegularGrid{
		Lats: make([]float64, nlat),
		Lons: make([]float64, nlon),
	}
	for i := range g.Lats {
		g.Lats[i] = -90 + stepDeg/2 + float64(i)*stepDeg
	}
	for i := range g.Lons {
		g.Lons[i] = float64(i) * stepDeg
	}
	return g, nil
}

// Size returns the number of nodes in the mesh.
func (g *RegularGrid) Size() int { return len(g.Lats) * len(g.Lons) }

// Signature identifies the mesh geometry for cache keying.
func (g *RegularGrid) Signature() string {
	return fmt.Sprintf("reg:%dx%d", len(g.Lats), len(g.Lons))
}

// NormLon converts a 0-360 longitude to -180..+180. Store coordinates use the
// 0-360 convention; triangulation works in signed degrees so the antimeridian
// seam lands at the edge of the domain rather than the middle.
func NormLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	return lon
}
