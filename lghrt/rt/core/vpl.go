package core

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxVPLs is the largest point count the hierarchy is sized for.
const MaxVPLs = 11000000

var ErrShortBuffers = errors.New("vpl buffers shorter than point count")

// PointCloud is the flat VPL set handed over by the generator.
// The three attribute slices are parallel and may be longer than the live count.
type PointCloud struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Colors    []mgl32.Vec3
}

// Capacity is the number of points all three buffers can hold.
func (pc PointCloud) Capacity() int {
	return min(len(pc.Positions), len(pc.Normals), len(pc.Colors))
}

func (pc PointCloud) Check(numVPLs int) error {
	if numVPLs < 0 || numVPLs > pc.Capacity() {
		return fmt.Errorf("%w: need %d, have %d", ErrShortBuffers, numVPLs, pc.Capacity())
	}
	return nil
}

// Cube is the padded scene bounding cube the grid pyramid spans.
type Cube struct {
	Corner mgl32.Vec3
	Size   float32
}

// CellStats holds the finalized statistics of one grid vertex.
// Position.W carries the level's cell size.
type CellStats struct {
	Position mgl32.Vec4
	Normal   mgl32.Vec3
	Color    mgl32.Vec3
	Stddev   mgl32.Vec3
	Weight   float32
}

func (s CellStats) Empty() bool { return s.Weight <= 0 }

// Instance is one entry of the merged buffer read by the shading stage.
type Instance struct {
	Position mgl32.Vec4 // xyz, radius
	Normal   mgl32.Vec3
	Color    mgl32.Vec3
	Stddev   mgl32.Vec4 // xyz, weight
}

func (s CellStats) Instance() Instance {
	return Instance{
		Position: s.Position,
		Normal:   s.Normal,
		Color:    s.Color,
		Stddev:   s.Stddev.Vec4(s.Weight),
	}
}

// PointInstance turns a raw VPL into a level 0 instance.
func PointInstance(pos, nrm, col mgl32.Vec3, radius float32) Instance {
	return Instance{
		Position: pos.Vec4(radius),
		Normal:   nrm,
		Color:    col,
		Stddev:   mgl32.Vec4{0, 0, 0, 1},
	}
}
