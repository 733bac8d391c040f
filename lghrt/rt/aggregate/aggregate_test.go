package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gekko3d/lgh/lghrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomCloud(seed int64, n int) core.PointCloud {
	rng := rand.New(rand.NewSource(seed))
	pc := core.PointCloud{
		Positions: make([]mgl32.Vec3, n),
		Normals:   make([]mgl32.Vec3, n),
		Colors:    make([]mgl32.Vec3, n),
	}
	for i := 0; i < n; i++ {
		pc.Positions[i] = mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
		pc.Normals[i] = mgl32.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1}.Normalize()
		pc.Colors[i] = mgl32.Vec3{rng.Float32() * 4, rng.Float32(), rng.Float32() * 10}
	}
	return pc
}

func unitGeometry(highest int) core.Geometry {
	return core.Geometry{
		HighestLevel: highest,
		Cube:         core.CubeFromBounds(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}),
	}
}

func splatLevel(geo core.Geometry, level int, pc core.PointCloud, fp Footprint) *Grid {
	g := NewGrid(geo.NumVerts(level))
	g.Reset(geo, level)
	g.Splat(pc, len(pc.Positions), fp)
	return g
}

func TestFootprintWeightsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		local := mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
		sum := 0.0
		visits := 0
		FootprintTrilinear.Visit(local, 16, func(x, y, z int, w float64) {
			sum += w
			visits++
			assert.True(t, x >= 0 && x <= 16 && y >= 0 && y <= 16 && z >= 0 && z <= 16)
		})
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.LessOrEqual(t, visits, 8)
	}

	var got [3]int
	FootprintNearest.Visit(mgl32.Vec3{0.49, 0.51, 1}, 2, func(x, y, z int, w float64) {
		got = [3]int{x, y, z}
		assert.Equal(t, 1.0, w)
	})
	assert.Equal(t, [3]int{1, 1, 2}, got)
}

func TestSplatWeightConservation(t *testing.T) {
	pc := randomCloud(11, 1000)
	geo := unitGeometry(5)

	for level := 1; level <= 5; level++ {
		// nearest: one pair of weight 1 per point
		g := splatLevel(geo, level, pc, FootprintNearest)
		var total int64
		for i := 0; i < g.Len(); i++ {
			total += g.Load(i).W
		}
		assert.Equal(t, int64(len(pc.Positions))*UnitScale, total, "nearest level %d", level)

		// trilinear: the grid holds exactly the generated pairs, and they sum to ~1 per point
		g = splatLevel(geo, level, pc, FootprintTrilinear)
		var want int64
		cells := geo.Cells(level)
		for i := range pc.Positions {
			local := geo.Local(pc.Positions[i])
			FootprintTrilinear.Visit(local, cells, func(_, _, _ int, w float64) {
				want += quantize(w, UnitScale)
			})
		}
		total = 0
		for i := 0; i < g.Len(); i++ {
			total += g.Load(i).W
		}
		assert.Equal(t, want, total, "trilinear level %d", level)
		assert.InDelta(t, float64(len(pc.Positions)), float64(total)/UnitScale, 1e-3)
	}
}

func TestSplatIsDeterministic(t *testing.T) {
	pc := randomCloud(5, 5000)
	geo := unitGeometry(6)
	a := splatLevel(geo, 2, pc, FootprintTrilinear)
	b := splatLevel(geo, 2, pc, FootprintTrilinear)
	for i := 0; i < a.Len(); i++ {
		if a.Load(i) != b.Load(i) {
			t.Fatalf("vertex %d differs between runs", i)
		}
	}
}

func TestResetClearsReusedGrid(t *testing.T) {
	pc := randomCloud(2, 100)
	geo := unitGeometry(4)
	g := splatLevel(geo, 1, pc, FootprintTrilinear)
	g.Reset(geo, 1)
	for i := 0; i < g.Len(); i++ {
		require.False(t, g.Alive(i))
	}
	// shrinking reuses the allocation
	g.Reset(geo, 3)
	assert.Equal(t, geo.NumVerts(3), g.Len())
}

func TestFinalizeMeanAndStddev(t *testing.T) {
	geo := unitGeometry(3)
	pc := core.PointCloud{
		Positions: []mgl32.Vec3{{0.40, 0.5, 0.5}, {0.60, 0.5, 0.5}},
		Normals:   []mgl32.Vec3{{0, 1, 0}, {0, 1, 0}},
		Colors:    []mgl32.Vec3{{1, 2, 3}, {3, 2, 1}},
	}
	// both points snap to vertex (2,2,2) of the 4x4x4-cell level 1 grid
	g := splatLevel(geo, 1, pc, FootprintNearest)

	found := false
	for i := 0; i < g.Len(); i++ {
		if !g.Alive(i) {
			continue
		}
		found = true
		s := g.Stats(i)
		assert.InDelta(t, 2.0, s.Weight, 1e-6)
		assert.InDelta(t, 0.5, s.Position.X(), 1e-5)
		assert.InDelta(t, 0.5, s.Position.Y(), 1e-5)
		assert.InDelta(t, geo.CellSize(1), s.Position.W(), 1e-6)
		assert.InDelta(t, 0.1, s.Stddev.X(), 1e-4)
		assert.InDelta(t, 0.0, s.Stddev.Y(), 1e-4)
		assert.InDelta(t, 1.0, s.Normal.Y(), 1e-6)
		assert.InDelta(t, 2.0, s.Color.X(), 1e-4)
		assert.InDelta(t, 2.0, s.Color.Z(), 1e-4)
	}
	assert.True(t, found)
}

func TestStddevNeverNegative(t *testing.T) {
	pc := randomCloud(9, 3000)
	geo := unitGeometry(6)
	for level := 1; level <= 6; level++ {
		g := splatLevel(geo, level, pc, FootprintTrilinear)
		for i := 0; i < g.Len(); i++ {
			s := g.Stats(i)
			for a := 0; a < 3; a++ {
				if s.Stddev[a] < 0 || math.IsNaN(float64(s.Stddev[a])) {
					t.Fatalf("level %d vertex %d has stddev %v", level, i, s.Stddev)
				}
			}
		}
	}
}

func assertGridsClose(t *testing.T, want, got *Grid) {
	t.Helper()
	require.Equal(t, want.Len(), got.Len())
	for i := 0; i < want.Len(); i++ {
		ws, gs := want.Load(i), got.Load(i)
		assert.InDelta(t, float64(ws.W)/UnitScale, float64(gs.W)/UnitScale, 1e-3, "weight of vertex %d", i)
		if float64(ws.W)/UnitScale < 0.5 {
			continue
		}
		a, b := want.Stats(i), got.Stats(i)
		for k := 0; k < 3; k++ {
			assert.InDelta(t, a.Position[k], b.Position[k], 1e-3)
			assert.InDelta(t, a.Normal[k], b.Normal[k], 1e-3)
			assert.InDelta(t, a.Color[k], b.Color[k], 1e-2)
			assert.InDelta(t, a.Stddev[k], b.Stddev[k], 1e-2)
		}
	}
}

func TestGatherFromFinerMatchesSplat(t *testing.T) {
	pc := randomCloud(21, 500)
	geo := unitGeometry(5)
	finer := splatLevel(geo, 1, pc, FootprintTrilinear)

	ga := NewGatherer()
	for level := 2; level <= 4; level++ {
		dst := NewGrid(geo.NumVerts(level))
		dst.Reset(geo, level)
		ga.FromFiner(dst, finer)
		assertGridsClose(t, splatLevel(geo, level, pc, FootprintTrilinear), dst)
		finer = dst
	}
}

func TestGatherFromLevelOneTaskSplitInvariant(t *testing.T) {
	pc := randomCloud(33, 400)
	geo := unitGeometry(4)
	levelOne := splatLevel(geo, 1, pc, FootprintTrilinear)
	ga := NewGatherer()

	var reference *Grid
	for _, div := range []int{1, 2, 3, 8, 16} {
		dst := NewGrid(geo.NumVerts(4))
		dst.Reset(geo, 4)
		ga.FromLevelOne(dst, levelOne, div)
		if reference == nil {
			reference = dst
			continue
		}
		for i := 0; i < dst.Len(); i++ {
			if reference.Load(i) != dst.Load(i) {
				t.Fatalf("taskDiv %d changed vertex %d", div, i)
			}
		}
	}
	assertGridsClose(t, splatLevel(geo, 4, pc, FootprintTrilinear), reference)

	mid := NewGrid(geo.NumVerts(3))
	mid.Reset(geo, 3)
	ga.FromLevelOne(mid, levelOne, DefaultTaskDiv)
	assertGridsClose(t, splatLevel(geo, 3, pc, FootprintTrilinear), mid)
}

func TestFromLevelOnePartialsBoundedByFootprint(t *testing.T) {
	pc := randomCloud(44, 300)
	geo := unitGeometry(6)
	levelOne := splatLevel(geo, 1, pc, FootprintTrilinear)
	ga := NewGatherer()

	// level 2 spans 3 level 1 vertices per axis, level 3 spans 7
	for _, c := range []struct{ level, width, taskDiv int }{
		{2, 3, DefaultTaskDiv},
		{3, 7, HighestTaskDiv},
	} {
		dst := NewGrid(geo.NumVerts(c.level))
		dst.Reset(geo, c.level)
		ga.FromLevelOne(dst, levelOne, c.taskDiv)
		assert.LessOrEqual(t, cap(ga.partials), geo.NumVerts(c.level)*c.width*c.width*c.width, "level %d", c.level)

		fine := NewGrid(geo.NumVerts(c.level))
		fine.Reset(geo, c.level)
		NewGatherer().FromLevelOne(fine, levelOne, c.width)
		for i := 0; i < dst.Len(); i++ {
			require.Equal(t, fine.Load(i), dst.Load(i), "level %d vertex %d", c.level, i)
		}
		ga = NewGatherer()
	}
}

func TestScaledRoundsOnce(t *testing.T) {
	s := Sums{W: 3, P: [3]int64{5, -5, 1}}
	h := s.Scaled(0.5)
	assert.Equal(t, int64(2), h.W) // 1.5 rounds away from zero
	assert.Equal(t, int64(3), h.P[0])
	assert.Equal(t, int64(-3), h.P[1])
	assert.Equal(t, s, s.Scaled(1))
}
