package grid

import (
	"math"
	"testing"
)

// TestGaussianLatitudes checks small-N latitudes against the known roots of
// the Legendre polynomials (P_2 roots at ±1/√3, P_4 at ±0.3399810, ±0.8611363).
func TestGaussianLatitudes(t *testing.T) {
	tests := []struct {
		n    int
		want []float64 // degrees, north to south
	}{
		{1, []float64{0}},
		{2, []float64{35.264390, -35.264390}},
		{4, []float64{59.444408, 19.875719, -19.875719, -59.444408}},
	}
	for _, tc := range tests {
		got, err := GaussianLatitudes(tc.n)
		if err != nil {
			t.Fatalf("GaussianLatitudes(%d): %v", tc.n, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("GaussianLatitudes(%d) returned %d latitudes, want %d", tc.n, len(got), len(tc.want))
		}
		for i := range got {
			if math.Abs(got[i]-tc.want[i]) > 1e-5 {
				t.Errorf("GaussianLatitudes(%d)[%d] = %.6f, want %.6f", tc.n, i, got[i], tc.want[i])
			}
		}
	}
}

// TestGaussianLatitudesSymmetry verifies north/south symmetry for larger N.
func TestGaussianLatitudesSymmetry(t *testing.T) {
	const n = 64
	lats, err := GaussianLatitudes(n)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n/2; i++ {
		if math.Abs(lats[i]+lats[n-1-i]) > 1e-12 {
			t.Errorf("lat[%d]=%.9f and lat[%d]=%.9f are not symmetric", i, lats[i], n-1-i, lats[n-1-i])
		}
	}
	for i := 1; i < n; i++ {
		if lats[i] >= lats[i-1] {
			t.Errorf("latitudes not strictly decreasing at %d: %.9f >= %.9f", i, lats[i], lats[i-1])
		}
	}
}

func TestGaussianLatitudesInvalid(t *testing.T) {
	if _, err := GaussianLatitudes(0); err == nil {
		t.Error("GaussianLatitudes(0) should fail")
	}
}

func TestNewRegularGrid(t *testing.T) {
	g, err := NewRegularGrid(1.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Lats) != 180 || len(g.Lons) != 360 {
		t.Fatalf("1-degree grid is %dx%d, want 180x360", len(g.Lats), len(g.Lons))
	}
	if g.Lats[0] != -89.5 || g.Lats[179] != 89.5 {
		t.Errorf("latitude extents %.2f..%.2f, want -89.50..89.50", g.Lats[0], g.Lats[179])
	}
	if g.Lons[0] != 0 || g.Lons[359] != 359 {
		t.Errorf("longitude extents %.2f..%.2f, want 0..359", g.Lons[0], g.Lons[359])
	}
	if g.Size() != 180*360 {
		t.Errorf("Size() = %d, want %d", g.Size(), 180*360)
	}

	if _, err := NewRegularGrid(0); err == nil {
		t.Error("NewRegularGrid(0) should fail")
	}
	if _, err := NewRegularGrid(-2); err == nil {
		t.Error("NewRegularGrid(-2) should fail")
	}
}

func TestNormLon(t *testing.T) {
	tests := []struct {
		lon  float64
		want float64
	}{
		{0, 0},
		{90, 90},
		{180, 180},
		{181, -179},
		{270, -90},
		{359.5, -0.5},
		{-10, -10}, // already signed, no change
	}
	for _, tc := range tests {
		if got := NormLon(tc.lon); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("NormLon(%.1f) = %.6f, want %.6f", tc.lon, got, tc.want)
		}
	}
}
