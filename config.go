package lgh

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gekko3d/lgh/lghrt/rt/aggregate"
	"github.com/gekko3d/lgh/lghrt/rt/core"
)

var ErrInvalidConfig = errors.New("invalid lgh config")

// BuildSource selects how levels above 1 are aggregated.
type BuildSource int

const (
	// FromPointCloud splats the raw VPLs into every level.
	FromPointCloud BuildSource = iota
	// FromFinerLevel splats level 1 only and gathers the coarser levels from it.
	FromFinerLevel
)

func (b BuildSource) String() string {
	switch b {
	case FromPointCloud:
		return "pointcloud"
	case FromFinerLevel:
		return "finer"
	}
	return fmt.Sprintf("BuildSource(%d)", int(b))
}

func ParseBuildSource(s string) (BuildSource, error) {
	switch s {
	case "pointcloud", "":
		return FromPointCloud, nil
	case "finer":
		return FromFinerLevel, nil
	}
	return 0, fmt.Errorf("%w: unknown build source %q", ErrInvalidConfig, s)
}

func (b BuildSource) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *BuildSource) UnmarshalText(text []byte) error {
	v, err := ParseBuildSource(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Config is the set of tunables the controller diffs on every CheckUpdate.
type Config struct {
	BuildSource      BuildSource         `json:"build_source"`
	IncludeLevelZero bool                `json:"include_level_zero"`
	InterleaveRate   int                 `json:"interleave_rate"`
	FirstHighLevel   int                 `json:"first_high_level"`
	Footprint        aggregate.Footprint `json:"footprint"`
	MaxVPLs          int                 `json:"max_vpls"`
}

func DefaultConfig() Config {
	return Config{
		BuildSource:    FromPointCloud,
		InterleaveRate: 1,
		FirstHighLevel: 5,
		Footprint:      aggregate.FootprintTrilinear,
		MaxVPLs:        core.MaxVPLs,
	}
}

func (c Config) Validate() error {
	switch c.InterleaveRate {
	case 1, 2, 4:
	default:
		return fmt.Errorf("%w: interleave rate %d not in {1,2,4}", ErrInvalidConfig, c.InterleaveRate)
	}
	if c.BuildSource != FromPointCloud && c.BuildSource != FromFinerLevel {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, c.BuildSource)
	}
	if c.FirstHighLevel < 2 {
		return fmt.Errorf("%w: first high level %d < 2", ErrInvalidConfig, c.FirstHighLevel)
	}
	if c.Footprint != aggregate.FootprintTrilinear && c.Footprint != aggregate.FootprintNearest {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, c.Footprint)
	}
	if c.BuildSource == FromFinerLevel && c.Footprint != aggregate.FootprintTrilinear {
		return fmt.Errorf("%w: gathering from finer levels needs the trilinear footprint", ErrInvalidConfig)
	}
	if c.MaxVPLs <= 0 || c.MaxVPLs > core.MaxVPLs {
		return fmt.Errorf("%w: max vpls %d outside 1..%d", ErrInvalidConfig, c.MaxVPLs, core.MaxVPLs)
	}
	return nil
}

// LoadConfig reads a JSON config. Missing fields keep their defaults.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filename, err)
	}
	return cfg, cfg.Validate()
}

func SaveConfig(filename string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
