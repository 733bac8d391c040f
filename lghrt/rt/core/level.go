package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// MaxLevels caps the pyramid depth (levels 0..MaxLevels-1).
	MaxLevels = 10
	// DenseFactor is the minimum ratio of fine cells to points.
	DenseFactor = 10
	// CubePadding pads the largest bounding-box extent.
	CubePadding = 1.1
)

var ErrCapacityExceeded = errors.New("number of VPLs exceeds LGH capacity")

// CalculateNumLevels returns the number of levels (including level 0) needed so the
// finest grid holds at least DenseFactor cells per point.
func CalculateNumLevels(numVPLs int) (int, error) {
	dense := int64(numVPLs) * DenseFactor
	for numLevels := 2; numLevels <= MaxLevels; numLevels++ {
		dim := int64(1) << (numLevels - 1)
		if dim*dim*dim > dense {
			return numLevels, nil
		}
	}
	return 0, fmt.Errorf("%w: %d VPLs, max depth %d", ErrCapacityExceeded, numVPLs, MaxLevels)
}

// Geometry describes the grid pyramid laid over the scene cube.
type Geometry struct {
	HighestLevel int
	Cube         Cube
}

// Res is the number of vertices per axis at a level.
func (g Geometry) Res(level int) int {
	return (1 << (g.HighestLevel - level)) + 1
}

// Cells is the number of cells per axis at a level.
func (g Geometry) Cells(level int) int {
	return 1 << (g.HighestLevel - level)
}

func (g Geometry) NumVerts(level int) int {
	r := g.Res(level)
	return r * r * r
}

// BaseRadius is the cell size of the (virtual) level 0 grid.
func (g Geometry) BaseRadius() float32 {
	return g.Cube.Size / float32(int(1)<<g.HighestLevel)
}

// CellSize is the vertex spacing at a level; it doubles per level.
func (g Geometry) CellSize(level int) float32 {
	return g.BaseRadius() * float32(int(1)<<level)
}

func (g Geometry) VertexIndex(level, x, y, z int) int {
	r := g.Res(level)
	return (z*r+y)*r + x
}

func (g Geometry) VertexCoords(level, idx int) (x, y, z int) {
	r := g.Res(level)
	x = idx % r
	y = (idx / r) % r
	z = idx / (r * r)
	return
}

// Local maps a world position into cube-local [0,1] coordinates.
func (g Geometry) Local(p mgl32.Vec3) mgl32.Vec3 {
	inv := 1 / g.Cube.Size
	return p.Sub(g.Cube.Corner).Mul(inv)
}

// World maps cube-local coordinates back into world space.
func (g Geometry) World(local mgl32.Vec3) mgl32.Vec3 {
	return g.Cube.Corner.Add(local.Mul(g.Cube.Size))
}

// CubeFromBounds pads the per-axis bounds into the scene cube.
func CubeFromBounds(minB, maxB mgl32.Vec3) Cube {
	dim := maxB.Sub(minB)
	size := float32(math.Max(float64(dim.X()), math.Max(float64(dim.Y()), float64(dim.Z())))) * CubePadding
	if size <= 0 {
		// all points coincide; keep a unit cube so cell sizes stay finite
		size = 1
	}
	center := maxB.Add(minB).Mul(0.5)
	half := size / 2
	return Cube{Corner: center.Sub(mgl32.Vec3{half, half, half}), Size: size}
}
