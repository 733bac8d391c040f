package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Matches WGSL LGHInstance
//
//	struct LGHInstance {
//	   position : vec4<f32>; (16) xyz, radius
//	   normal   : vec4<f32>; (16) xyz, pad
//	   color    : vec4<f32>; (16) rgb, pad
//	   stddev   : vec4<f32>; (16) xyz, weight
//	}; -> 64 bytes
const InstanceStride = 64

func (in *Instance) ToBytes() []byte {
	buf := make([]byte, InstanceStride)
	putVec4(buf[0:16], in.Position)
	putVec4(buf[16:32], in.Normal.Vec4(0))
	putVec4(buf[32:48], in.Color.Vec4(0))
	putVec4(buf[48:64], in.Stddev)
	return buf
}

// PackVec4s lays out an array<vec4<f32>>.
func PackVec4s(vs []mgl32.Vec4) []byte {
	buf := make([]byte, 16*len(vs))
	for i, v := range vs {
		putVec4(buf[i*16:], v)
	}
	return buf
}

// PackVec3s lays out an array<vec3<f32>>, which has a 16 byte stride in WGSL.
func PackVec3s(vs []mgl32.Vec3) []byte {
	buf := make([]byte, 16*len(vs))
	for i, v := range vs {
		putVec4(buf[i*16:], v.Vec4(0))
	}
	return buf
}

func PackInt32s(vs []int) []byte {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(v)))
	}
	return buf
}

func putVec4(buf []byte, v mgl32.Vec4) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(v[3]))
}
