// Package merge packs the compacted levels into the single instance buffer the
// shading stage draws from, either level after level or split into screen tiles.
package merge

// Layout is the destination map of a merge. Level 0 is the raw point cloud.
type Layout struct {
	HighestLevel     int
	IncludeLevelZero bool
	Rate             int
	LevelSizes       []int
	Total            int

	// LevelOffsets is the first slot of every level in contiguous mode.
	LevelOffsets []int

	OffsetOfTile      []int
	NumInstanceOfTile []int
	// LevelOffsetOfTile[tile*(HighestLevel+1)+level] is the first slot of a level
	// inside a tile.
	LevelOffsetOfTile []int
}

// Plan picks the contiguous layout for rate <= 1 and the tiled one otherwise.
// levelSizes[0] is the number of VPLs.
func Plan(levelSizes []int, includeLevelZero bool, rate int) Layout {
	if rate <= 1 {
		return Contiguous(levelSizes, includeLevelZero)
	}
	return Tiled(levelSizes, includeLevelZero, rate)
}

func (l Layout) firstLevel() int {
	if l.IncludeLevelZero {
		return 0
	}
	return 1
}

func (l Layout) Tiles() int { return l.Rate * l.Rate }

func (l Layout) Included(level int) bool {
	return level >= l.firstLevel() && level <= l.HighestLevel
}

func Contiguous(levelSizes []int, includeLevelZero bool) Layout {
	l := Layout{
		HighestLevel:     len(levelSizes) - 1,
		IncludeLevelZero: includeLevelZero,
		Rate:             1,
		LevelSizes:       levelSizes,
		LevelOffsets:     make([]int, len(levelSizes)),
	}
	for level := l.firstLevel(); level <= l.HighestLevel; level++ {
		l.LevelOffsets[level] = l.Total
		l.Total += levelSizes[level]
	}
	l.OffsetOfTile = []int{0}
	l.NumInstanceOfTile = []int{l.Total}
	l.LevelOffsetOfTile = append([]int(nil), l.LevelOffsets...)
	return l
}

// Tiled spreads every level over rate*rate tiles. The first size%tiles tiles of a
// level take one extra entry; tiles are laid out one after another and keep their
// entries grouped by ascending level.
func Tiled(levelSizes []int, includeLevelZero bool, rate int) Layout {
	numLevels := len(levelSizes)
	tiles := rate * rate
	l := Layout{
		HighestLevel:      numLevels - 1,
		IncludeLevelZero:  includeLevelZero,
		Rate:              rate,
		LevelSizes:        levelSizes,
		OffsetOfTile:      make([]int, tiles),
		NumInstanceOfTile: make([]int, tiles),
		LevelOffsetOfTile: make([]int, tiles*numLevels),
	}

	for level := l.firstLevel(); level < numLevels; level++ {
		base, rem := levelSizes[level]/tiles, levelSizes[level]%tiles
		for tile := 0; tile < tiles; tile++ {
			n := base
			if tile < rem {
				n++
			}
			l.LevelOffsetOfTile[tile*numLevels+level] = l.NumInstanceOfTile[tile]
			l.NumInstanceOfTile[tile] += n
		}
	}

	cdf := 0
	for tile := 0; tile < tiles; tile++ {
		l.OffsetOfTile[tile] = cdf
		for level := l.firstLevel(); level < numLevels; level++ {
			l.LevelOffsetOfTile[tile*numLevels+level] += cdf
		}
		cdf += l.NumInstanceOfTile[tile]
	}
	l.Total = cdf
	return l
}

// Dest is the instance slot of entry j of a level.
func (l Layout) Dest(level, j int) int {
	if l.Rate <= 1 {
		return l.LevelOffsets[level] + j
	}
	tiles := l.Tiles()
	base, rem := l.LevelSizes[level]/tiles, l.LevelSizes[level]%tiles
	var tile, local int
	if wide := (base + 1) * rem; j < wide {
		tile, local = j/(base+1), j%(base+1)
	} else {
		tile, local = rem+(j-wide)/base, (j-wide)%base
	}
	return l.LevelOffsetOfTile[tile*(l.HighestLevel+1)+level] + local
}
