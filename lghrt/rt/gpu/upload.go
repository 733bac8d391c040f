package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/lgh/lghrt/rt/core"
	"github.com/gekko3d/lgh/lghrt/rt/merge"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Params is the uniform block the shading passes read alongside the instances.
type Params struct {
	NumInstances   int
	HighestLevel   int
	InterleaveRate int
	BaseRadius     float32
	Corner         mgl32.Vec3
	Size           float32
}

// Matches WGSL LGHParams
//
//	struct LGHParams {
//	   num_instances   : u32;
//	   highest_level   : u32;
//	   interleave_rate : u32;
//	   base_radius     : f32;
//	   corner          : vec3<f32>;
//	   size            : f32;
//	}; -> 32 bytes
const ParamsSize = 32

func (p Params) ToBytes() []byte {
	buf := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(p.NumInstances))
	binary.LittleEndian.PutUint32(buf[4:], uint32(p.HighestLevel))
	binary.LittleEndian.PutUint32(buf[8:], uint32(p.InterleaveRate))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(p.BaseRadius))
	for a := 0; a < 3; a++ {
		binary.LittleEndian.PutUint32(buf[16+4*a:], math.Float32bits(p.Corner[a]))
	}
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(p.Size))
	return buf
}

// Tables are the tile lookup tables of a tiled merge.
type Tables struct {
	OffsetOfTile      []int
	NumInstanceOfTile []int
	LevelOffsetOfTile []int
}

// bufferSize applies the instance buffer reallocation rule to byte sizes and
// rounds to the 4 byte copy alignment.
func bufferSize(needed, current uint64) (uint64, bool) {
	needed = align4(max(needed, 4))
	if current != 0 && !merge.NeedsRealloc(int(needed), int(current)) {
		return current, false
	}
	return align4(uint64(float64(needed) * merge.Slack)), true
}

func align4(n uint64) uint64 {
	if n%4 != 0 {
		n += 4 - n%4
	}
	return n
}

type queueWriter interface {
	WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte) error
}

// Uploader keeps one storage buffer per instance attribute plus the tile tables.
type Uploader struct {
	Device *wgpu.Device
	queue  queueWriter

	Params            *wgpu.Buffer
	Position          *wgpu.Buffer
	Normal            *wgpu.Buffer
	Color             *wgpu.Buffer
	Stddev            *wgpu.Buffer
	OffsetOfTile      *wgpu.Buffer
	NumInstanceOfTile *wgpu.Buffer
	LevelOffsetOfTile *wgpu.Buffer

	// Allocations counts buffer (re)creations.
	Allocations int
}

func NewUploader(device *wgpu.Device) *Uploader {
	return &Uploader{Device: device, queue: device.GetQueue()}
}

func (u *Uploader) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage) (bool, error) {
	var current uint64
	if *buf != nil {
		current = (*buf).GetSize()
	}
	size, realloc := bufferSize(uint64(len(data)), current)
	if realloc {
		if *buf != nil {
			(*buf).Release()
		}
		newBuf, err := u.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: name,
			Size:  size,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			*buf = nil
			return false, fmt.Errorf("create %s: %w", name, err)
		}
		*buf = newBuf
		u.Allocations++
	}
	return realloc, u.write(name, *buf, data)
}

func (u *Uploader) write(name string, buf *wgpu.Buffer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := u.queue.WriteBuffer(buf, 0, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Upload writes the merged instances, tile tables and params. It reports whether
// any buffer had to be recreated, which invalidates bind groups built on them.
func (u *Uploader) Upload(b *merge.Buffers, t Tables, p Params) (bool, error) {
	n := b.Count
	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc
	uploads := []struct {
		name  string
		buf   **wgpu.Buffer
		data  []byte
		usage wgpu.BufferUsage
	}{
		{"LGH Params", &u.Params, p.ToBytes(), wgpu.BufferUsageUniform},
		{"LGH Position", &u.Position, core.PackVec4s(b.Position[:n]), storage},
		{"LGH Normal", &u.Normal, core.PackVec3s(b.Normal[:n]), storage},
		{"LGH Color", &u.Color, core.PackVec3s(b.Color[:n]), storage},
		{"LGH Stddev", &u.Stddev, core.PackVec4s(b.Stddev[:n]), storage},
		{"LGH OffsetOfTile", &u.OffsetOfTile, core.PackInt32s(t.OffsetOfTile), storage},
		{"LGH NumInstanceOfTile", &u.NumInstanceOfTile, core.PackInt32s(t.NumInstanceOfTile), storage},
		{"LGH LevelOffsetOfTile", &u.LevelOffsetOfTile, core.PackInt32s(t.LevelOffsetOfTile), storage},
	}

	recreated := false
	for _, up := range uploads {
		r, err := u.ensureBuffer(up.name, up.buf, up.data, up.usage)
		if err != nil {
			return recreated, err
		}
		recreated = recreated || r
	}
	return recreated, nil
}

func (u *Uploader) Release() {
	for _, b := range []**wgpu.Buffer{
		&u.Params, &u.Position, &u.Normal, &u.Color, &u.Stddev,
		&u.OffsetOfTile, &u.NumInstanceOfTile, &u.LevelOffsetOfTile,
	} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
}
