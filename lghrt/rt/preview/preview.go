// Package preview renders a published hierarchy as a row of per-level top-down
// projections, for debugging builds without a renderer attached.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/gekko3d/lgh"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type Options struct {
	PanelSize int
	Padding   int
	// Exposure scales the weight-based brightness of a pixel.
	Exposure float32
}

func DefaultOptions() Options {
	return Options{PanelSize: 128, Padding: 8, Exposure: 1}
}

var background = color.RGBA{16, 16, 20, 255}

const labelHeight = 16

// Render draws one panel per level. A panel pixel is the weighted mean color of
// the level's instances that project onto it along z.
func Render(s *lgh.Snapshot, opts Options) *image.RGBA {
	if opts.PanelSize <= 0 {
		opts.PanelSize = DefaultOptions().PanelSize
	}
	numLevels := s.HighestLevel + 1
	w := numLevels*(opts.PanelSize+opts.Padding) + opts.Padding
	h := opts.PanelSize + 2*opts.Padding + labelHeight
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	panels := project(s, opts.Exposure)
	for level, panel := range panels {
		x0 := opts.Padding + level*(opts.PanelSize+opts.Padding)
		rect := image.Rect(x0, opts.Padding, x0+opts.PanelSize, opts.Padding+opts.PanelSize)
		if panel != nil {
			draw.NearestNeighbor.Scale(dst, rect, panel, panel.Bounds(), draw.Over, nil)
		}
		label(dst, x0, rect.Max.Y+labelHeight-3, fmt.Sprintf("L%d n=%d", level, levelSize(s, level)))
	}
	return dst
}

func levelSize(s *lgh.Snapshot, level int) int {
	if level == 0 && !s.IncludeLevelZero {
		return 0
	}
	return s.LevelSizes[level]
}

type pixel struct {
	c [3]float32
	w float32
}

func project(s *lgh.Snapshot, exposure float32) []*image.RGBA {
	geo := s.Geometry()
	numLevels := s.HighestLevel + 1
	acc := make([][]pixel, numLevels)
	for i := 0; i < s.NumInstances; i++ {
		in := s.Instance(i)
		level := s.Level(i)
		res := geo.Res(level)
		if acc[level] == nil {
			acc[level] = make([]pixel, res*res)
		}
		local := geo.Local(in.Position.Vec3())
		px := clampInt(int(math.Round(float64(local[0])*float64(res-1))), 0, res-1)
		py := clampInt(int(math.Round(float64(local[1])*float64(res-1))), 0, res-1)
		p := &acc[level][(res-1-py)*res+px]
		wt := in.Stddev[3]
		for a := 0; a < 3; a++ {
			p.c[a] += in.Color[a] * wt
		}
		p.w += wt
	}

	panels := make([]*image.RGBA, numLevels)
	for level, pixels := range acc {
		if pixels == nil {
			continue
		}
		res := geo.Res(level)
		img := image.NewRGBA(image.Rect(0, 0, res, res))
		for i, p := range pixels {
			if p.w <= 0 {
				continue
			}
			gain := float32(1 - math.Exp(-float64(p.w*exposure)))
			img.SetRGBA(i%res, i/res, color.RGBA{
				R: channel(p.c[0] / p.w * gain),
				G: channel(p.c[1] / p.w * gain),
				B: channel(p.c[2] / p.w * gain),
				A: 255,
			})
		}
		panels[level] = img
	}
	return panels
}

func channel(v float32) uint8 {
	return uint8(math.Round(float64(min(max(v, 0), 1)) * 255))
}

func clampInt(v, lo, hi int) int { return min(max(v, lo), hi) }

func label(dst *image.RGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{220, 220, 220, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// WritePNG renders the snapshot and writes it to filename.
func WritePNG(filename string, s *lgh.Snapshot, opts Options) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(f, Render(s, opts)); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filename, err)
	}
	return f.Close()
}
