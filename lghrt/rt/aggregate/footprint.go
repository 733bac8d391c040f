package aggregate

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Footprint decides which vertices a point contributes to and with what weight.
type Footprint int

const (
	// FootprintTrilinear spreads a point over the 8 corners of its cell with tent
	// weights that sum to one.
	FootprintTrilinear Footprint = iota
	// FootprintNearest assigns the whole point to its nearest vertex.
	FootprintNearest
)

func (f Footprint) String() string {
	switch f {
	case FootprintTrilinear:
		return "trilinear"
	case FootprintNearest:
		return "nearest"
	}
	return fmt.Sprintf("Footprint(%d)", int(f))
}

func ParseFootprint(s string) (Footprint, error) {
	switch s {
	case "trilinear", "":
		return FootprintTrilinear, nil
	case "nearest":
		return FootprintNearest, nil
	}
	return 0, fmt.Errorf("unknown footprint %q", s)
}

func (f Footprint) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Footprint) UnmarshalText(b []byte) error {
	v, err := ParseFootprint(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Visit calls fn for every vertex the cube-local point touches on a grid with
// `cells` cells per axis (cells+1 vertices).
func (f Footprint) Visit(local mgl32.Vec3, cells int, fn func(x, y, z int, w float64)) {
	var base [3]int
	var frac [3]float64
	for a := 0; a < 3; a++ {
		g := float64(local[a]) * float64(cells)
		c := int(math.Floor(g))
		c = max(0, min(c, cells-1))
		base[a] = c
		frac[a] = max(0, min(g-float64(c), 1))
	}

	if f == FootprintNearest {
		x, y, z := base[0], base[1], base[2]
		if frac[0] >= 0.5 {
			x++
		}
		if frac[1] >= 0.5 {
			y++
		}
		if frac[2] >= 0.5 {
			z++
		}
		fn(x, y, z, 1)
		return
	}

	for corner := 0; corner < 8; corner++ {
		w := 1.0
		var v [3]int
		for a := 0; a < 3; a++ {
			bit := (corner >> a) & 1
			v[a] = base[a] + bit
			if bit == 1 {
				w *= frac[a]
			} else {
				w *= 1 - frac[a]
			}
		}
		if w > 0 {
			fn(v[0], v[1], v[2], w)
		}
	}
}
