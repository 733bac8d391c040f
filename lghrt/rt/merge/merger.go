package merge

import (
	"github.com/gekko3d/lgh/lghrt/rt/core"
	"github.com/gekko3d/lgh/lghrt/rt/parallel"
)

// MergeGroupSize is the number of entries one merge group copies.
const MergeGroupSize = 1024

// Source is one level's compacted entries.
type Source interface {
	Len() int
	Instance(i int) core.Instance
}

// Cells adapts a compacted level buffer.
type Cells []core.CellStats

func (c Cells) Len() int                     { return len(c) }
func (c Cells) Instance(i int) core.Instance { return c[i].Instance() }

// Points adapts the raw VPL buffers as level 0.
type Points struct {
	Cloud  core.PointCloud
	N      int
	Radius float32
}

func (p Points) Len() int { return p.N }
func (p Points) Instance(i int) core.Instance {
	return core.PointInstance(p.Cloud.Positions[i], p.Cloud.Normals[i], p.Cloud.Colors[i], p.Radius)
}

// Merge writes every included level of sources (indexed by level) into b at the
// slots given by the layout. It reports whether b had to be reallocated.
func Merge(layout Layout, sources []Source, b *Buffers) bool {
	reallocated := b.Reserve(layout.Total)
	for level := 0; level <= layout.HighestLevel; level++ {
		if !layout.Included(level) || sources[level] == nil {
			continue
		}
		src := sources[level]
		n := min(src.Len(), layout.LevelSizes[level])
		parallel.Dispatch1D(n, MergeGroupSize, func(_, lo, hi int) {
			for j := lo; j < hi; j++ {
				b.Set(layout.Dest(level, j), src.Instance(j))
			}
		})
	}
	return reallocated
}
