// Package aggregate produces per-vertex weighted statistics for every level of the
// lighting grid, either by splatting points or by gathering a finer level.
//
// Sums are kept in fixed point so concurrent accumulation is an integer atomic add:
// the result does not depend on goroutine interleaving or on how a gather is split
// into tasks.
package aggregate

import (
	"math"
	"sync/atomic"

	"github.com/gekko3d/lgh/lghrt/rt/core"
	"github.com/gekko3d/lgh/lghrt/rt/parallel"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// UnitScale is the fixed-point scale of weights, cube-local positions, second
	// moments and normals. All of them are bounded by 1 per contribution.
	UnitScale = 1 << 24
	// ColorScale trades precision for headroom; colors are unbounded HDR values.
	ColorScale = 1 << 16

	clearGroupSize = 512
)

// Sums is the fixed-point accumulator of one vertex.
type Sums struct {
	W  int64
	P  [3]int64 // sum w*p (cube-local)
	P2 [3]int64 // sum w*p*p
	N  [3]int64
	C  [3]int64
}

func quantize(v, scale float64) int64 {
	return int64(math.Round(v * scale))
}

// Contribution is the fixed-point sample of one point with weight w.
func Contribution(local, nrm, col mgl32.Vec3, w float64) Sums {
	var s Sums
	s.W = quantize(w, UnitScale)
	for a := 0; a < 3; a++ {
		l := float64(local[a])
		s.P[a] = quantize(w*l, UnitScale)
		s.P2[a] = quantize(w*l*l, UnitScale)
		s.N[a] = quantize(w*float64(nrm[a]), UnitScale)
		s.C[a] = quantize(w*float64(col[a]), ColorScale)
	}
	return s
}

func (s *Sums) Add(o Sums) {
	s.W += o.W
	for a := 0; a < 3; a++ {
		s.P[a] += o.P[a]
		s.P2[a] += o.P2[a]
		s.N[a] += o.N[a]
		s.C[a] += o.C[a]
	}
}

// Scaled multiplies every channel by t, rounding each channel once.
func (s Sums) Scaled(t float64) Sums {
	if t == 1 {
		return s
	}
	r := func(v int64) int64 { return int64(math.Round(float64(v) * t)) }
	out := Sums{W: r(s.W)}
	for a := 0; a < 3; a++ {
		out.P[a] = r(s.P[a])
		out.P2[a] = r(s.P2[a])
		out.N[a] = r(s.N[a])
		out.C[a] = r(s.C[a])
	}
	return out
}

type cell struct {
	w  atomic.Int64
	p  [3]atomic.Int64
	p2 [3]atomic.Int64
	n  [3]atomic.Int64
	c  [3]atomic.Int64
}

// Grid is the pre-compaction scratch of one level: one accumulator per vertex.
type Grid struct {
	Level int
	Geo   core.Geometry
	cells []cell
}

func NewGrid(numVerts int) *Grid {
	return &Grid{cells: make([]cell, 0, numVerts)}
}

// Reset sizes the grid for a level and zeroes every vertex in a parallel pass.
func (g *Grid) Reset(geo core.Geometry, level int) {
	g.Geo = geo
	g.Level = level
	n := geo.NumVerts(level)
	if cap(g.cells) < n {
		g.cells = make([]cell, n)
		return
	}
	g.cells = g.cells[:n]
	parallel.Dispatch1D(n, clearGroupSize, func(_, lo, hi int) {
		clear(g.cells[lo:hi])
	})
}

func (g *Grid) Len() int { return len(g.cells) }

func (g *Grid) add(i int, s Sums) {
	c := &g.cells[i]
	c.w.Add(s.W)
	for a := 0; a < 3; a++ {
		c.p[a].Add(s.P[a])
		c.p2[a].Add(s.P2[a])
		c.n[a].Add(s.N[a])
		c.c[a].Add(s.C[a])
	}
}

// store overwrites a vertex; only valid when a single worker owns it.
func (g *Grid) store(i int, s Sums) {
	c := &g.cells[i]
	c.w.Store(s.W)
	for a := 0; a < 3; a++ {
		c.p[a].Store(s.P[a])
		c.p2[a].Store(s.P2[a])
		c.n[a].Store(s.N[a])
		c.c[a].Store(s.C[a])
	}
}

func (g *Grid) Load(i int) Sums {
	c := &g.cells[i]
	s := Sums{W: c.w.Load()}
	for a := 0; a < 3; a++ {
		s.P[a] = c.p[a].Load()
		s.P2[a] = c.p2[a].Load()
		s.N[a] = c.n[a].Load()
		s.C[a] = c.c[a].Load()
	}
	return s
}

func (g *Grid) Alive(i int) bool { return g.cells[i].w.Load() > 0 }

func (g *Grid) Weight(i int) float32 {
	return float32(float64(g.cells[i].w.Load()) / UnitScale)
}

// Stats finalizes a vertex into weighted means and a per-axis standard deviation.
func (g *Grid) Stats(i int) core.CellStats {
	return Finalize(g.Load(i), g.Geo, g.Level)
}

// Finalize divides the sums by their weight. The variance is clamped at zero to
// absorb cancellation in E[p^2] - E[p]^2.
func Finalize(s Sums, geo core.Geometry, level int) core.CellStats {
	if s.W <= 0 {
		return core.CellStats{}
	}
	w := float64(s.W)
	size := float64(geo.Cube.Size)

	var mean, nrm, col, dev mgl32.Vec3
	for a := 0; a < 3; a++ {
		m := float64(s.P[a]) / w
		variance := math.Max(0, float64(s.P2[a])/w-m*m)
		mean[a] = float32(m)
		dev[a] = float32(math.Sqrt(variance) * size)
		nrm[a] = float32(float64(s.N[a]) / w)
		col[a] = float32(float64(s.C[a]) / w * (UnitScale / ColorScale))
	}
	return core.CellStats{
		Position: geo.World(mean).Vec4(geo.CellSize(level)),
		Normal:   nrm,
		Color:    col,
		Stddev:   dev,
		Weight:   float32(w / UnitScale),
	}
}
