package lgh

import (
	"fmt"

	"github.com/gekko3d/lgh/lghrt/rt/core"
	"github.com/gekko3d/lgh/lghrt/rt/merge"

	"github.com/google/uuid"
)

// Snapshot is one published hierarchy. Everything but Instances is immutable;
// Instances belongs to the controller's double buffer and may only be read inside
// Hierarchy.View.
type Snapshot struct {
	ID         uuid.UUID
	Generation uint64

	HighestLevel    int
	Cube            core.Cube
	BaseRadius      float32
	HighestCellSize float32
	NumVPLs         int
	// LevelSizes[0] is NumVPLs, LevelSizes[L] the survivor count of level L.
	LevelSizes []int

	InterleaveRate   int
	IncludeLevelZero bool
	NumInstances     int
	Instances        *merge.Buffers

	// LevelOffsets is only set for InterleaveRate 1.
	LevelOffsets      []int
	OffsetOfTile      []int
	NumInstanceOfTile []int
	LevelOffsetOfTile []int
}

func newSnapshot(gen uint64, geo core.Geometry, layout merge.Layout, numVPLs int, b *merge.Buffers) *Snapshot {
	s := &Snapshot{
		ID:                uuid.New(),
		Generation:        gen,
		HighestLevel:      geo.HighestLevel,
		Cube:              geo.Cube,
		BaseRadius:        geo.BaseRadius(),
		HighestCellSize:   geo.CellSize(geo.HighestLevel),
		NumVPLs:           numVPLs,
		LevelSizes:        append([]int(nil), layout.LevelSizes...),
		InterleaveRate:    layout.Rate,
		IncludeLevelZero:  layout.IncludeLevelZero,
		NumInstances:      layout.Total,
		Instances:         b,
		OffsetOfTile:      layout.OffsetOfTile,
		NumInstanceOfTile: layout.NumInstanceOfTile,
		LevelOffsetOfTile: layout.LevelOffsetOfTile,
	}
	if layout.Rate <= 1 {
		s.LevelOffsets = layout.LevelOffsets
	}
	return s
}

func (s *Snapshot) Geometry() core.Geometry {
	return core.Geometry{HighestLevel: s.HighestLevel, Cube: s.Cube}
}

func (s *Snapshot) Instance(i int) core.Instance { return s.Instances.At(i) }

// Level recovers the level of instance i from its radius.
func (s *Snapshot) Level(i int) int {
	r := s.Instances.Position[i][3]
	level := 0
	for c := s.BaseRadius * 1.5; level < s.HighestLevel && r > c; c *= 2 {
		level++
	}
	return level
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("lgh %s gen=%d levels=%d instances=%d rate=%d sizes=%v",
		s.ID, s.Generation, s.HighestLevel+1, s.NumInstances, s.InterleaveRate, s.LevelSizes)
}
