package aggregate

import (
	"github.com/gekko3d/lgh/lghrt/rt/parallel"
)

const (
	gatherGroupSize = 64
	// DefaultTaskDiv is the per-axis task split of the two-stage gather.
	DefaultTaskDiv = 8
	// HighestTaskDiv is used for the coarsest level, whose footprint covers the scene.
	HighestTaskDiv = 16
)

// restriction weights of a level-L vertex over the 3 nearest level L-1 vertices
var finerWeights = [3]float64{0.5, 1, 0.5}

// Gatherer folds finer-level accumulators into coarser vertices. It owns the task
// partial buffer of the two-stage gather so it can be reused across levels.
type Gatherer struct {
	partials []Sums
}

func NewGatherer() *Gatherer {
	return &Gatherer{}
}

// FromFiner builds dst (level L) from the raw accumulators of src (level L-1).
// Every dst vertex folds the 3x3x3 src vertices around it.
func (ga *Gatherer) FromFiner(dst, src *Grid) {
	geo, level := dst.Geo, dst.Level
	srcRes := src.Geo.Res(src.Level)

	parallel.Dispatch1D(dst.Len(), gatherGroupSize, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			x, y, z := geo.VertexCoords(level, i)
			var acc Sums
			for dz := -1; dz <= 1; dz++ {
				uz := 2*z + dz
				if uz < 0 || uz >= srcRes {
					continue
				}
				for dy := -1; dy <= 1; dy++ {
					uy := 2*y + dy
					if uy < 0 || uy >= srcRes {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						ux := 2*x + dx
						if ux < 0 || ux >= srcRes {
							continue
						}
						u := (uz*srcRes+uy)*srcRes + ux
						if !src.Alive(u) {
							continue
						}
						t := finerWeights[dx+1] * finerWeights[dy+1] * finerWeights[dz+1]
						acc.Add(src.Load(u).Scaled(t))
					}
				}
			}
			dst.store(i, acc)
		}
	})
}

// span of one task along one axis of a footprint of `width` vertices
func taskRange(width, taskDiv, k int) (lo, hi int) {
	chunk := (width + taskDiv - 1) / taskDiv
	lo = min(k*chunk, width)
	hi = min(lo+chunk, width)
	return
}

// FromLevelOne builds a coarse level directly from the level 1 accumulators. A
// vertex at level L covers (2*2^(L-1)-1)^3 level 1 vertices, so the fold is split
// into taskDiv^3 tasks per vertex, then a second pass folds the task partials.
// The result is the same for every taskDiv. taskDiv is capped at the footprint
// width, past which extra tasks would be empty.
func (ga *Gatherer) FromLevelOne(dst, levelOne *Grid, taskDiv int) {
	geo, level := dst.Geo, dst.Level
	span := 1 << (level - levelOne.Level)
	width := 2*span - 1
	taskDiv = max(1, min(taskDiv, width))
	srcRes := levelOne.Geo.Res(levelOne.Level)
	tasksPerVert := taskDiv * taskDiv * taskDiv
	numVerts := dst.Len()

	need := numVerts * tasksPerVert
	if cap(ga.partials) < need {
		ga.partials = make([]Sums, need)
	}
	partials := ga.partials[:need]

	tent := make([]float64, width)
	for k := range tent {
		d := k - (span - 1)
		if d < 0 {
			d = -d
		}
		tent[k] = 1 - float64(d)/float64(span)
	}

	// stage 1: every task folds its slice of the footprint
	parallel.Dispatch1D(need, gatherGroupSize, func(_, lo, hi int) {
		for job := lo; job < hi; job++ {
			vert, task := job/tasksPerVert, job%tasksPerVert
			x, y, z := geo.VertexCoords(level, vert)
			tx, ty, tz := task%taskDiv, (task/taskDiv)%taskDiv, task/(taskDiv*taskDiv)
			x0, x1 := taskRange(width, taskDiv, tx)
			y0, y1 := taskRange(width, taskDiv, ty)
			z0, z1 := taskRange(width, taskDiv, tz)

			var acc Sums
			for kz := z0; kz < z1; kz++ {
				uz := z*span + kz - (span - 1)
				if uz < 0 || uz >= srcRes {
					continue
				}
				for ky := y0; ky < y1; ky++ {
					uy := y*span + ky - (span - 1)
					if uy < 0 || uy >= srcRes {
						continue
					}
					for kx := x0; kx < x1; kx++ {
						ux := x*span + kx - (span - 1)
						if ux < 0 || ux >= srcRes {
							continue
						}
						u := (uz*srcRes+uy)*srcRes + ux
						if !levelOne.Alive(u) {
							continue
						}
						acc.Add(levelOne.Load(u).Scaled(tent[kx] * tent[ky] * tent[kz]))
					}
				}
			}
			partials[job] = acc
		}
	})

	// stage 2: fold the task partials of every vertex
	parallel.Dispatch1D(numVerts, gatherGroupSize, func(_, lo, hi int) {
		for vert := lo; vert < hi; vert++ {
			var acc Sums
			for _, p := range partials[vert*tasksPerVert : (vert+1)*tasksPerVert] {
				acc.Add(p)
			}
			dst.store(vert, acc)
		}
	})
}
