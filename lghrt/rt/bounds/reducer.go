package bounds

import (
	"errors"
	"math"

	"github.com/gekko3d/lgh/lghrt/rt/core"
	"github.com/gekko3d/lgh/lghrt/rt/parallel"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// FirstGroupSize is the number of points folded by one group in the first pass.
	FirstGroupSize = 1024
	// FoldGroupSize is the number of pairs folded per group in later passes.
	FoldGroupSize = 2048
)

var ErrEmptyPointCloud = errors.New("bounds of an empty point cloud")

// Pair is a per-axis min and per-axis max. It is not a pair of points.
type Pair struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func emptyPair() Pair {
	inf := float32(math.Inf(1))
	return Pair{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (p Pair) grow(q Pair) Pair {
	return Pair{
		Min: mgl32.Vec3{min(p.Min.X(), q.Min.X()), min(p.Min.Y(), q.Min.Y()), min(p.Min.Z(), q.Min.Z())},
		Max: mgl32.Vec3{max(p.Max.X(), q.Max.X()), max(p.Max.Y(), q.Max.Y()), max(p.Max.Z(), q.Max.Z())},
	}
}

// Reducer computes point cloud bounds with a tree reduction. Its two ping-pong
// buffers are sized once for the maximum point count and reused every rebuild.
type Reducer struct {
	buffers [2][]Pair
	// Passes is the number of passes the last Reduce ran.
	Passes int
}

func NewReducer(maxPoints int) *Reducer {
	r := &Reducer{}
	r.reserve(maxPoints)
	return r
}

func (r *Reducer) reserve(n int) {
	groups := parallel.NumGroups(n, FirstGroupSize)
	if cap(r.buffers[0]) < groups {
		r.buffers[0] = make([]Pair, groups)
		r.buffers[1] = make([]Pair, parallel.NumGroups(groups, FoldGroupSize))
	}
}

// Reduce returns the per-axis bounds of the first n positions.
func (r *Reducer) Reduce(positions []mgl32.Vec3, n int) (Pair, error) {
	if n <= 0 || len(positions) == 0 {
		return Pair{}, ErrEmptyPointCloud
	}
	n = min(n, len(positions))
	r.reserve(n)

	groups := parallel.NumGroups(n, FirstGroupSize)
	src := r.buffers[0][:groups]
	parallel.Dispatch1D(n, FirstGroupSize, func(g, lo, hi int) {
		acc := emptyPair()
		for _, p := range positions[lo:hi] {
			acc = acc.grow(Pair{Min: p, Max: p})
		}
		src[g] = acc
	})
	r.Passes = 1

	cur := 0
	for groups > 1 {
		next := parallel.NumGroups(groups, FoldGroupSize)
		in := r.buffers[cur][:groups]
		out := r.buffers[1-cur]
		if cap(out) < next {
			out = make([]Pair, next)
			r.buffers[1-cur] = out
		}
		out = out[:next]
		parallel.Dispatch1D(groups, FoldGroupSize, func(g, lo, hi int) {
			acc := emptyPair()
			for _, p := range in[lo:hi] {
				acc = acc.grow(p)
			}
			out[g] = acc
		})
		groups = next
		cur = 1 - cur
		r.Passes++
	}

	return r.buffers[cur][0], nil
}

// SceneCube reduces the positions and pads the result into the scene cube.
func (r *Reducer) SceneCube(positions []mgl32.Vec3, n int) (core.Cube, error) {
	b, err := r.Reduce(positions, n)
	if err != nil {
		return core.Cube{}, err
	}
	return core.CubeFromBounds(b.Min, b.Max), nil
}
