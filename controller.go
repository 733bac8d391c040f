// Package lgh builds a lighting grid hierarchy over a cloud of virtual point lights
// and republishes it as a merged instance buffer whenever the inputs change.
package lgh

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gekko3d/lgh/lghrt/rt/aggregate"
	"github.com/gekko3d/lgh/lghrt/rt/bounds"
	"github.com/gekko3d/lgh/lghrt/rt/compact"
	"github.com/gekko3d/lgh/lghrt/rt/core"
	"github.com/gekko3d/lgh/lghrt/rt/merge"
)

var ErrNotInitialized = errors.New("lgh not built yet")

type State int

const (
	StateUninitialized State = iota
	StateBuilt
)

func (s State) String() string {
	if s == StateBuilt {
		return "built"
	}
	return "uninitialized"
}

// Frame is the VPL input of one frame. The cloud buffers may be longer than NumVPLs.
type Frame struct {
	Cloud       core.PointCloud
	NumVPLs     int
	VPLsUpdated bool
}

// Hierarchy owns the per-level scratch and the double-buffered instance buffers.
// CheckUpdate, Build and Remerge must be called from one goroutine; View and
// Current are safe from any goroutine.
type Hierarchy struct {
	Log      Logger
	Profiler *Profiler

	mu      sync.RWMutex
	current *Snapshot

	state     State
	cfg       Config
	numLevels int
	geo       core.Geometry
	cloud     core.PointCloud
	numVPLs   int

	reducer   *bounds.Reducer
	gatherer  *aggregate.Gatherer
	compactor *compact.Compactor
	grids     []*aggregate.Grid
	levels    [][]core.CellStats
	sizes     []int

	buffers    [2]merge.Buffers
	back       int
	generation uint64
	reallocs   int
}

func NewHierarchy(log Logger) *Hierarchy {
	if log == nil {
		log = NewNopLogger()
	}
	return &Hierarchy{
		Log:      log,
		Profiler: NewProfiler(),
		reducer:  bounds.NewReducer(core.MaxVPLs),
		gatherer: aggregate.NewGatherer(),
	}
}

func (h *Hierarchy) State() State { return h.state }

func (h *Hierarchy) NumLevels() int { return h.numLevels }

// Init sizes the per-level scratch for a depth. The hierarchy is unbuilt after it.
func (h *Hierarchy) Init(numLevels int) error {
	if numLevels < 2 || numLevels > core.MaxLevels {
		return fmt.Errorf("%w: %d levels", core.ErrCapacityExceeded, numLevels)
	}
	geo := core.Geometry{HighestLevel: numLevels - 1}
	h.numLevels = numLevels
	h.grids = make([]*aggregate.Grid, numLevels)
	h.levels = make([][]core.CellStats, numLevels)
	h.sizes = make([]int, numLevels)
	for level := 1; level < numLevels; level++ {
		h.grids[level] = aggregate.NewGrid(geo.NumVerts(level))
	}
	h.compactor = compact.NewCompactor(geo.NumVerts(1))
	h.state = StateUninitialized
	return nil
}

// CheckUpdate compares the frame and config with what was applied last and does
// the least work that brings the published hierarchy up to date: a re-init and
// rebuild on depth change, a rebuild when the VPLs or the build settings changed,
// a re-merge when only the tiling or level 0 filter changed. It reports whether
// anything was published.
func (h *Hierarchy) CheckUpdate(frame Frame, cfg Config) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	numLevels, err := h.levelsFor(frame, cfg)
	if err != nil {
		h.Log.Errorf("%v", err)
		return false, err
	}

	switch {
	case h.state == StateUninitialized || numLevels != h.numLevels:
		h.Log.Debugf("depth %d -> %d, reinitializing", h.numLevels, numLevels)
		return true, h.build(frame, cfg, numLevels)
	case frame.VPLsUpdated || frame.NumVPLs != h.numVPLs || h.buildSettingsChanged(cfg):
		h.Log.Debugf("rebuilding (vpls updated=%v, source %v)", frame.VPLsUpdated, cfg.BuildSource)
		return true, h.build(frame, cfg, numLevels)
	case cfg.InterleaveRate != h.cfg.InterleaveRate || cfg.IncludeLevelZero != h.cfg.IncludeLevelZero:
		h.Log.Debugf("re-merging (rate %d, level 0 %v)", cfg.InterleaveRate, cfg.IncludeLevelZero)
		h.cloud = frame.Cloud
		h.cfg = cfg
		h.merge()
		return true, nil
	}
	return false, nil
}

func (h *Hierarchy) buildSettingsChanged(cfg Config) bool {
	return cfg.BuildSource != h.cfg.BuildSource ||
		cfg.Footprint != h.cfg.Footprint ||
		cfg.FirstHighLevel != h.cfg.FirstHighLevel
}

func (h *Hierarchy) levelsFor(frame Frame, cfg Config) (int, error) {
	if err := frame.Cloud.Check(frame.NumVPLs); err != nil {
		return 0, err
	}
	if frame.NumVPLs > cfg.MaxVPLs {
		return 0, fmt.Errorf("%w: %d vpls, max %d", core.ErrCapacityExceeded, frame.NumVPLs, cfg.MaxVPLs)
	}
	return core.CalculateNumLevels(frame.NumVPLs)
}

// Build runs the full pipeline regardless of what changed.
func (h *Hierarchy) Build(frame Frame, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	numLevels, err := h.levelsFor(frame, cfg)
	if err != nil {
		h.Log.Errorf("%v", err)
		return err
	}
	return h.build(frame, cfg, numLevels)
}

// Remerge repacks the retained levels with a new tiling or level 0 filter.
func (h *Hierarchy) Remerge(cfg Config) error {
	if h.state != StateBuilt {
		return ErrNotInitialized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.cfg.InterleaveRate = cfg.InterleaveRate
	h.cfg.IncludeLevelZero = cfg.IncludeLevelZero
	h.merge()
	return nil
}

// build runs the pipeline. The per-level scratch is only resized once the bounds
// reduction succeeded, so a failed build leaves the last hierarchy intact and
// re-mergeable.
func (h *Hierarchy) build(frame Frame, cfg Config, numLevels int) error {
	defer h.Profiler.Scope("Build LGH")()

	endBounds := h.Profiler.Scope("Bounds")
	cube, err := h.reducer.SceneCube(frame.Cloud.Positions, frame.NumVPLs)
	endBounds()
	if err != nil {
		h.Log.Errorf("bounds: %v", err)
		return fmt.Errorf("lgh bounds: %w", err)
	}

	if h.state == StateUninitialized || numLevels != h.numLevels {
		if err := h.Init(numLevels); err != nil {
			return err
		}
	}

	geo := core.Geometry{HighestLevel: h.numLevels - 1, Cube: cube}
	for level := 1; level < h.numLevels; level++ {
		h.aggregate(geo, level, frame, cfg)
		h.compactLevel(level)
	}

	h.geo = geo
	h.cloud = frame.Cloud
	h.numVPLs = frame.NumVPLs
	h.sizes[0] = frame.NumVPLs
	h.cfg = cfg
	h.state = StateBuilt
	h.merge()
	return nil
}

func (h *Hierarchy) aggregate(geo core.Geometry, level int, frame Frame, cfg Config) {
	g := h.grids[level]
	g.Reset(geo, level)

	switch {
	case level == 1 || cfg.BuildSource == FromPointCloud:
		defer h.Profiler.Scope(fmt.Sprintf("Splat level %d", level))()
		g.Splat(frame.Cloud, frame.NumVPLs, cfg.Footprint)
	case level < cfg.FirstHighLevel:
		defer h.Profiler.Scope(fmt.Sprintf("Gather level %d", level))()
		h.gatherer.FromFiner(g, h.grids[level-1])
	default:
		defer h.Profiler.Scope(fmt.Sprintf("Gather level %d", level))()
		taskDiv := aggregate.DefaultTaskDiv
		if level == geo.HighestLevel {
			taskDiv = aggregate.HighestTaskDiv
		}
		h.gatherer.FromLevelOne(g, h.grids[1], taskDiv)
	}
}

func (h *Hierarchy) compactLevel(level int) {
	g := h.grids[level]
	n := h.compactor.Scan(g.Len(), g.Alive)

	buf := h.levels[level]
	if cap(buf) < n {
		buf = make([]core.CellStats, n)
	}
	buf = buf[:n]
	h.compactor.Scatter(g.Alive, func(src, dst int) {
		buf[dst] = g.Stats(src)
	})
	h.levels[level] = buf
	h.sizes[level] = n
	h.Profiler.SetCount(fmt.Sprintf("Level %d", level), n)
}

// merge packs the retained levels into the back buffer and publishes it.
func (h *Hierarchy) merge() {
	defer h.Profiler.Scope("Merge levels")()

	layout := merge.Plan(h.sizes, h.cfg.IncludeLevelZero, h.cfg.InterleaveRate)
	sources := make([]merge.Source, h.numLevels)
	sources[0] = merge.Points{Cloud: h.cloud, N: h.numVPLs, Radius: h.geo.BaseRadius()}
	for level := 1; level < h.numLevels; level++ {
		sources[level] = merge.Cells(h.levels[level])
	}

	back := &h.buffers[h.back]
	if merge.Merge(layout, sources, back) {
		h.reallocs++
		h.Log.Debugf("instance buffer %d reallocated, capacity %d", h.back, back.Capacity())
	}
	h.Profiler.SetCount("Instances", layout.Total)
	h.Profiler.SetCount("Reallocations", h.reallocs)

	h.generation++
	snap := newSnapshot(h.generation, h.geo, layout, h.numVPLs, back)

	h.mu.Lock()
	h.current = snap
	h.back = 1 - h.back
	h.mu.Unlock()
	h.Log.Debugf("published %s", snap)
}

// View calls fn with the published snapshot while holding the read lock, so the
// instance buffers cannot be rewritten under it. fn must not keep Instances.
func (h *Hierarchy) View(fn func(s *Snapshot)) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return ErrNotInitialized
	}
	fn(h.current)
	return nil
}

// Current returns the published snapshot or nil. Its Instances are only valid
// until the next rebuild or re-merge.
func (h *Hierarchy) Current() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reallocations is the number of instance buffer reallocations so far.
func (h *Hierarchy) Reallocations() int { return h.reallocs }
