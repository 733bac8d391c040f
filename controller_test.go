package lgh

import (
	"math/rand"
	"testing"

	"github.com/gekko3d/lgh/lghrt/rt/bounds"
	"github.com/gekko3d/lgh/lghrt/rt/core"
	"github.com/gekko3d/lgh/lghrt/rt/merge"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitCubeFrame(n int, seed int64) Frame {
	rng := rand.New(rand.NewSource(seed))
	cloud := core.PointCloud{
		Positions: make([]mgl32.Vec3, n),
		Normals:   make([]mgl32.Vec3, n),
		Colors:    make([]mgl32.Vec3, n),
	}
	for i := 0; i < n; i++ {
		cloud.Positions[i] = mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
		cloud.Normals[i] = mgl32.Vec3{0, 0, 1}
		cloud.Colors[i] = mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
	}
	return Frame{Cloud: cloud, NumVPLs: n, VPLsUpdated: true}
}

func centroid(ps []mgl32.Vec3) mgl32.Vec3 {
	var sum mgl32.Vec3
	for _, p := range ps {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float32(len(ps)))
}

func TestEndToEndUnitCube(t *testing.T) {
	h := NewHierarchy(nil)
	frame := unitCubeFrame(1000, 1)

	updated, err := h.CheckUpdate(frame, DefaultConfig())
	require.NoError(t, err)
	require.True(t, updated)
	assert.Equal(t, StateBuilt, h.State())
	assert.Equal(t, 6, h.NumLevels())

	snap := h.Current()
	require.NotNil(t, snap)
	assert.Equal(t, 5, snap.HighestLevel)
	assert.Equal(t, 1000, snap.LevelSizes[0])
	assert.GreaterOrEqual(t, snap.LevelSizes[snap.HighestLevel], 1)

	for level := 1; level < h.NumLevels(); level++ {
		var weight float64
		for _, c := range h.levels[level] {
			require.Greater(t, c.Weight, float32(0))
			for a := 0; a < 3; a++ {
				require.GreaterOrEqual(t, c.Stddev[a], float32(0), "level %d", level)
			}
			assert.Equal(t, snap.Geometry().CellSize(level), c.Position[3])
			weight += float64(c.Weight)
		}
		assert.InDelta(t, 1000, weight, 0.01, "level %d weight", level)
	}
}

func levelCentroid(cells []core.CellStats) mgl32.Vec3 {
	var sum mgl32.Vec3
	var w float32
	for _, c := range cells {
		sum = sum.Add(c.Position.Vec3().Mul(c.Weight))
		w += c.Weight
	}
	return sum.Mul(1 / w)
}

func TestBuildSourcesAgree(t *testing.T) {
	frame := unitCubeFrame(1000, 2)
	want := centroid(frame.Cloud.Positions)

	for _, src := range []BuildSource{FromPointCloud, FromFinerLevel} {
		cfg := DefaultConfig()
		cfg.BuildSource = src
		cfg.FirstHighLevel = 3

		h := NewHierarchy(nil)
		require.NoError(t, h.Build(frame, cfg))
		for level := 1; level < h.NumLevels(); level++ {
			got := levelCentroid(h.levels[level])
			for a := 0; a < 3; a++ {
				assert.InDelta(t, want[a], got[a], 1e-3, "%v level %d", src, level)
			}
		}
	}
}

func TestCheckUpdateDecisions(t *testing.T) {
	h := NewHierarchy(nil)
	frame := unitCubeFrame(1000, 3)
	cfg := DefaultConfig()

	_, err := h.CheckUpdate(frame, cfg)
	require.NoError(t, err)
	first := h.Current()

	frame.VPLsUpdated = false
	updated, err := h.CheckUpdate(frame, cfg)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Same(t, first, h.Current())

	// tiling only: re-merge, level sizes untouched
	cfg.InterleaveRate = 2
	updated, err = h.CheckUpdate(frame, cfg)
	require.NoError(t, err)
	assert.True(t, updated)
	tiled := h.Current()
	assert.Equal(t, first.Generation+1, tiled.Generation)
	assert.NotEqual(t, first.ID, tiled.ID)
	assert.Equal(t, first.LevelSizes, tiled.LevelSizes)
	assert.Equal(t, first.NumInstances, tiled.NumInstances)
	assert.Len(t, tiled.OffsetOfTile, 4)
	assert.Nil(t, tiled.LevelOffsets)

	cfg.IncludeLevelZero = true
	updated, err = h.CheckUpdate(frame, cfg)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, first.NumInstances+1000, h.Current().NumInstances)

	// build source: full rebuild
	cfg.BuildSource = FromFinerLevel
	updated, err = h.CheckUpdate(frame, cfg)
	require.NoError(t, err)
	assert.True(t, updated)

	// depth change
	bigger := unitCubeFrame(4000, 4)
	updated, err = h.CheckUpdate(bigger, cfg)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 7, h.NumLevels())
	assert.Equal(t, 6, h.Current().HighestLevel)
}

func TestTiledSnapshotCoversAllInstances(t *testing.T) {
	h := NewHierarchy(nil)
	cfg := DefaultConfig()
	cfg.InterleaveRate = 4
	cfg.IncludeLevelZero = true
	require.NoError(t, h.Build(unitCubeFrame(1000, 5), cfg))

	err := h.View(func(s *Snapshot) {
		require.Len(t, s.NumInstanceOfTile, 16)
		sum := 0
		for _, n := range s.NumInstanceOfTile {
			sum += n
		}
		assert.Equal(t, s.NumInstances, sum)
		assert.Equal(t, s.NumInstances, s.Instances.Count)
		assert.Len(t, s.LevelOffsetOfTile, 16*(s.HighestLevel+1))
	})
	require.NoError(t, err)
}

func TestSnapshotLevelFromRadius(t *testing.T) {
	h := NewHierarchy(nil)
	cfg := DefaultConfig()
	cfg.IncludeLevelZero = true
	require.NoError(t, h.Build(unitCubeFrame(500, 6), cfg))

	s := h.Current()
	for level := 0; level <= s.HighestLevel; level++ {
		lo := s.LevelOffsets[level]
		for i := lo; i < lo+s.LevelSizes[level]; i++ {
			require.Equal(t, level, s.Level(i))
		}
	}
}

func TestRemergeIsIdempotent(t *testing.T) {
	h := NewHierarchy(nil)
	cfg := DefaultConfig()
	cfg.InterleaveRate = 2
	require.NoError(t, h.Build(unitCubeFrame(1000, 7), cfg))

	var first []byte
	require.NoError(t, h.View(func(s *Snapshot) { first = s.Instances.ToBytes() }))
	require.NoError(t, h.Remerge(cfg))
	require.NoError(t, h.Remerge(cfg))
	require.NoError(t, h.View(func(s *Snapshot) {
		assert.Equal(t, first, s.Instances.ToBytes())
	}))
}

func TestDoubleBufferReallocations(t *testing.T) {
	h := NewHierarchy(nil)
	frame := unitCubeFrame(1000, 8)
	cfg := DefaultConfig()

	for i := 0; i < 6; i++ {
		require.NoError(t, h.Build(frame, cfg))
	}
	// one allocation per buffer of the pair
	assert.Equal(t, 2, h.Reallocations())
	assert.Equal(t, 1, h.buffers[0].Allocations)
	assert.Equal(t, 1, h.buffers[1].Allocations)

	cfg.InterleaveRate = 4
	require.NoError(t, h.Remerge(cfg))
	assert.Equal(t, 2, h.Reallocations())
}

func TestReallocationsAcrossOscillatingCounts(t *testing.T) {
	h := NewHierarchy(nil)
	cfg := DefaultConfig()
	cfg.IncludeLevelZero = true

	// expected allocations replay the reallocation rule per half of the double buffer
	var capacity [2]int
	want := 0
	for i, n := range []int{1000, 700, 1200, 400, 400, 1000, 1000, 1200} {
		updated, err := h.CheckUpdate(unitCubeFrame(n, int64(100+i)), cfg)
		require.NoError(t, err)
		require.True(t, updated)

		required := h.Current().NumInstances
		slot := i % 2
		if merge.NeedsRealloc(required, capacity[slot]) {
			capacity[slot] = max(int(float64(required)*merge.Slack), required)
			want++
		}
		assert.Equal(t, want, h.Reallocations(), "frame %d, %d vpls", i, n)
		assert.Equal(t, capacity[slot], h.buffers[slot].Capacity(), "frame %d", i)
	}
	// 400 vpls drop a level, which shrinks the buffers below half use at least once
	assert.Greater(t, want, 2)
	assert.Equal(t, want, h.buffers[0].Allocations+h.buffers[1].Allocations)
}

func TestErrors(t *testing.T) {
	h := NewHierarchy(nil)

	assert.ErrorIs(t, h.Remerge(DefaultConfig()), ErrNotInitialized)
	assert.ErrorIs(t, h.View(func(*Snapshot) {}), ErrNotInitialized)

	_, err := h.CheckUpdate(Frame{}, DefaultConfig())
	assert.ErrorIs(t, err, bounds.ErrEmptyPointCloud)
	assert.Nil(t, h.Current())
	assert.Equal(t, StateUninitialized, h.State())

	cfg := DefaultConfig()
	cfg.MaxVPLs = 10
	_, err = h.CheckUpdate(unitCubeFrame(20, 9), cfg)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)

	frame := unitCubeFrame(20, 9)
	frame.NumVPLs = 30
	_, err = h.CheckUpdate(frame, DefaultConfig())
	assert.ErrorIs(t, err, core.ErrShortBuffers)

	cfg = DefaultConfig()
	cfg.InterleaveRate = 3
	_, err = h.CheckUpdate(unitCubeFrame(20, 9), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFailedBuildKeepsPublishedSnapshot(t *testing.T) {
	h := NewHierarchy(nil)
	require.NoError(t, h.Build(unitCubeFrame(100, 10), DefaultConfig()))
	before := h.Current()

	// 0 points would need 2 levels instead of 5; the depth must not change on failure
	_, err := h.CheckUpdate(Frame{Cloud: unitCubeFrame(1, 0).Cloud, NumVPLs: 0, VPLsUpdated: true}, DefaultConfig())
	assert.ErrorIs(t, err, bounds.ErrEmptyPointCloud)
	assert.Same(t, before, h.Current())
	assert.Equal(t, StateBuilt, h.State())
	assert.Equal(t, 5, h.NumLevels())

	err = h.Build(Frame{Cloud: unitCubeFrame(1, 0).Cloud, NumVPLs: 0}, DefaultConfig())
	assert.ErrorIs(t, err, bounds.ErrEmptyPointCloud)
	assert.Equal(t, StateBuilt, h.State())

	cfg := DefaultConfig()
	cfg.InterleaveRate = 2
	require.NoError(t, h.Remerge(cfg))
	after := h.Current()
	assert.Equal(t, before.LevelSizes, after.LevelSizes)
	assert.Equal(t, before.NumInstances, after.NumInstances)
	assert.Equal(t, 2, after.InterleaveRate)
}

func TestProfilerScopes(t *testing.T) {
	h := NewHierarchy(nil)
	cfg := DefaultConfig()
	cfg.BuildSource = FromFinerLevel
	cfg.FirstHighLevel = 3
	require.NoError(t, h.Build(unitCubeFrame(1000, 11), cfg))

	assert.Equal(t, []string{
		"Build LGH", "Bounds",
		"Splat level 1", "Gather level 2", "Gather level 3", "Gather level 4", "Gather level 5",
		"Merge levels",
	}, h.Profiler.Order)
	assert.Equal(t, h.Current().NumInstances, h.Profiler.Count("Instances"))
	assert.Equal(t, h.Current().LevelSizes[3], h.Profiler.Count("Level 3"))
	assert.Contains(t, h.Profiler.GetStatsString(), "Merge levels")
}
