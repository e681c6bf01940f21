// Package regrid resamples scattered reanalysis samples onto a regular
// lat-lon mesh. It builds a planar Delaunay triangulation over the source
// sample coordinates once, then evaluates barycentric interpolation at every
// target node. Target nodes outside the convex hull of the source samples
// come back as NaN.
package regrid

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/fogleman/delaunay"

	"github.com/arcfield/eraview/pkg/grid"
)

// wrapMarginDeg is how far past the antimeridian source points are duplicated
// so the triangulation covers the longitude seam.
const wrapMarginDeg = 10.0

// Regridder holds a triangulation over one source geometry. Build it once per
// dataset and reuse it for every time step and variable on that geometry.
type Regridder struct {
	tri     *delaunay.Triangulation
	src     []int // triangulation point index -> source sample index
	index   *bucketIndex
	nSource int
}

// NewRegridder triangulates the source sample coordinates. lats and lons are
// parallel vectors, lons in the 0-360 convention. Longitudes within
// wrapMarginDeg of the seam are duplicated on the far side so interpolation
// stays continuous across it.
func NewRegridder(lats, lons []float64) (*Regridder, error) {
	if len(lats) != len(lons) {
		return nil, fmt.Errorf("coordinate length mismatch: %d lats, %d lons", len(lats), len(lons))
	}
	if len(lats) < 3 {
		return nil, fmt.Errorf("need at least 3 source samples to triangulate, got %d", len(lats))
	}

	points := make([]delaunay.Point, 0, len(lats)+len(lats)/8)
	src := make([]int, 0, cap(points))
	for i := range lats {
		x := grid.NormLon(lons[i])
		points = append(points, delaunay.Point{X: x, Y: lats[i]})
		src = append(src, i)

		if x > 180-wrapMarginDeg {
			points = append(points, delaunay.Point{X: x - 360, Y: lats[i]})
			src = append(src, i)
		} else if x < -180+wrapMarginDeg {
			points = append(points, delaunay.Point{X: x + 360, Y: lats[i]})
			src = append(src, i)
		}
	}

	tri, err := delaunay.Triangulate(points)
	if err != nil {
		return nil, fmt.Errorf("triangulating %d source samples: %w", len(points), err)
	}
	if len(tri.Triangles) == 0 {
		return nil, fmt.Errorf("degenerate source geometry: no triangles from %d samples", len(points))
	}

	return &Regridder{
		tri:     tri,
		src:     src,
		index:   newBucketIndex(tri),
		nSource: len(lats),
	}, nil
}

// NumSamples returns the number of source samples the regridder was built for.
func (r *Regridder) NumSamples() int { return r.nSource }

// Interpolate evaluates one scattered field at every node of the target mesh.
// values must be ordered like the coordinate vectors given to NewRegridder.
// The result is row-major lat-by-lon. workers <= 0 means one worker per CPU.
func (r *Regridder) Interpolate(values []float64, target *grid.RegularGrid, workers int) ([]float64, error) {
	if len(values) != r.nSource {
		return nil, fmt.Errorf("field has %d values, regridder built for %d samples", len(values), r.nSource)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	nlon := len(target.Lons)
	out := make([]float64, target.Size())

	rows := make(chan int, len(target.Lats))
	for j := range target.Lats {
		rows <- j
	}
	close(rows)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range rows {
				lat := target.Lats[j]
				for i, lon := range target.Lons {
					out[j*nlon+i] = r.at(grid.NormLon(lon), lat, values)
				}
			}
		}()
	}
	wg.Wait()

	return out, nil
}

// at evaluates the field at one point, or NaN outside the convex hull.
func (r *Regridder) at(x, y float64, values []float64) float64 {
	t := r.index.locate(r.tri, x, y)
	if t < 0 {
		return math.NaN()
	}
	a := r.tri.Triangles[t*3]
	b := r.tri.Triangles[t*3+1]
	c := r.tri.Triangles[t*3+2]
	w0, w1, w2 := barycentric(r.tri.Points[a], r.tri.Points[b], r.tri.Points[c], x, y)
	return w0*values[r.src[a]] + w1*values[r.src[b]] + w2*values[r.src[c]]
}

// barycentric returns the weights of (x,y) with respect to triangle pqr.
func barycentric(p, q, r delaunay.Point, x, y float64) (w0, w1, w2 float64) {
	d := (q.Y-r.Y)*(p.X-r.X) + (r.X-q.X)*(p.Y-r.Y)
	w0 = ((q.Y-r.Y)*(x-r.X) + (r.X-q.X)*(y-r.Y)) / d
	w1 = ((r.Y-p.Y)*(x-r.X) + (p.X-r.X)*(y-r.Y)) / d
	w2 = 1 - w0 - w1
	return
}

// baryEps tolerates floating-point leakage at triangle edges.
const baryEps = 1e-9

// bucketIndex is a uniform spatial hash over triangle bounding boxes. Point
// location scans only the triangles whose bbox overlaps the query bucket
// instead of the whole triangulation.
type bucketIndex struct {
	minX, minY float64
	cellW      float64
	cellH      float64
	nx, ny     int
	cells      [][]int32
}

func newBucketIndex(tri *delaunay.Triangulation) *bucketIndex {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range tri.Points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	nTri := len(tri.Triangles) / 3
	// Aim for a handful of triangles per cell.
	n := int(math.Sqrt(float64(nTri)/4)) + 1
	idx := &bucketIndex{
		minX:  minX,
		minY:  minY,
		nx:    n,
		ny:    n,
		cellW: (maxX - minX) / float64(n),
		cellH: (maxY - minY) / float64(n),
		cells: make([][]int32, n*n),
	}
	if idx.cellW == 0 {
		idx.cellW = 1
	}
	if idx.cellH == 0 {
		idx.cellH = 1
	}

	for t := 0; t < nTri; t++ {
		a := tri.Points[tri.Triangles[t*3]]
		b := tri.Points[tri.Triangles[t*3+1]]
		c := tri.Points[tri.Triangles[t*3+2]]
		tMinX := math.Min(a.X, math.Min(b.X, c.X))
		tMaxX := math.Max(a.X, math.Max(b.X, c.X))
		tMinY := math.Min(a.Y, math.Min(b.Y, c.Y))
		tMaxY := math.Max(a.Y, math.Max(b.Y, c.Y))

		i0, j0 := idx.cell(tMinX, tMinY)
		i1, j1 := idx.cell(tMaxX, tMaxY)
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				idx.cells[j*idx.nx+i] = append(idx.cells[j*idx.nx+i], int32(t))
			}
		}
	}
	return idx
}

func (b *bucketIndex) cell(x, y float64) (i, j int) {
	i = int((x - b.minX) / b.cellW)
	j = int((y - b.minY) / b.cellH)
	if i < 0 {
		i = 0
	}
	if i >= b.nx {
		i = b.nx - 1
	}
	if j < 0 {
		j = 0
	}
	if j >= b.ny {
		j = b.ny - 1
	}
	return
}

// locate returns the index of a triangle containing (x,y), or -1.
func (b *bucketIndex) locate(tri *delaunay.Triangulation, x, y float64) int {
	i, j := b.cell(x, y)
	for _, t := range b.cells[j*b.nx+i] {
		p := tri.Points[tri.Triangles[t*3]]
		q := tri.Points[tri.Triangles[t*3+1]]
		r := tri.Points[tri.Triangles[t*3+2]]
		w0, w1, w2 := barycentric(p, q, r, x, y)
		if w0 >= -baryEps && w1 >= -baryEps && w2 >= -baryEps {
			return int(t)
		}
	}
	return -1
}
