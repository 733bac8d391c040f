package merge

import (
	"github.com/gekko3d/lgh/lghrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// Slack is the headroom added on reallocation.
const Slack = 1.1

// NeedsRealloc reports whether a buffer of the given capacity must be replaced to
// hold `required` entries: it grows when too small and shrinks when less than
// half used.
func NeedsRealloc(required, capacity int) bool {
	return required > capacity || 2*required < capacity
}

// Buffers is the merged instance buffer as four parallel attribute arrays.
type Buffers struct {
	Position []mgl32.Vec4
	Normal   []mgl32.Vec3
	Color    []mgl32.Vec3
	Stddev   []mgl32.Vec4
	Count    int
	// Allocations counts how many times the arrays were (re)allocated.
	Allocations int
}

func (b *Buffers) Capacity() int { return len(b.Position) }

// Reserve makes room for `required` entries and sets Count. It reallocates only
// when NeedsRealloc says so and reports whether it did.
func (b *Buffers) Reserve(required int) bool {
	b.Count = required
	if !NeedsRealloc(required, b.Capacity()) {
		return false
	}
	capacity := int(float64(required) * Slack)
	capacity = max(capacity, required)
	b.Position = make([]mgl32.Vec4, capacity)
	b.Normal = make([]mgl32.Vec3, capacity)
	b.Color = make([]mgl32.Vec3, capacity)
	b.Stddev = make([]mgl32.Vec4, capacity)
	b.Allocations++
	return true
}

func (b *Buffers) Set(i int, in core.Instance) {
	b.Position[i] = in.Position
	b.Normal[i] = in.Normal
	b.Color[i] = in.Color
	b.Stddev[i] = in.Stddev
}

func (b *Buffers) At(i int) core.Instance {
	return core.Instance{
		Position: b.Position[i],
		Normal:   b.Normal[i],
		Color:    b.Color[i],
		Stddev:   b.Stddev[i],
	}
}

// ToBytes packs the live entries attribute by attribute, the way they are uploaded.
func (b *Buffers) ToBytes() []byte {
	n := b.Count
	out := core.PackVec4s(b.Position[:n])
	out = append(out, core.PackVec3s(b.Normal[:n])...)
	out = append(out, core.PackVec3s(b.Color[:n])...)
	out = append(out, core.PackVec4s(b.Stddev[:n])...)
	return out
}
