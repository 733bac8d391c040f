package aggregate

import (
	"github.com/gekko3d/lgh/lghrt/rt/core"
	"github.com/gekko3d/lgh/lghrt/rt/parallel"
)

// SplatGroupSize is the number of points one splat group processes.
const SplatGroupSize = 1024

// Splat scatters the first n points of the cloud into the grid with atomic adds.
// The grid must have been Reset for its level; it is complete when Splat returns.
func (g *Grid) Splat(cloud core.PointCloud, n int, fp Footprint) {
	geo, level := g.Geo, g.Level
	cells := geo.Cells(level)
	parallel.Dispatch1D(n, SplatGroupSize, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			local := geo.Local(cloud.Positions[i])
			nrm, col := cloud.Normals[i], cloud.Colors[i]
			fp.Visit(local, cells, func(x, y, z int, w float64) {
				s := Contribution(local, nrm, col, w)
				if s.W == 0 {
					return
				}
				g.add(geo.VertexIndex(level, x, y, z), s)
			})
		}
	})
}
