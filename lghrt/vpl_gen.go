package main

import (
	"math"
	"math/rand"

	"github.com/gekko3d/lgh/lghrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

type wall struct {
	origin, u, v, normal mgl32.Vec3
	albedo               mgl32.Vec3
}

// unit box open towards -z
var boxWalls = []wall{
	{mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0.8, 0.8, 0.8}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0.8, 0.8, 0.8}},
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0.8, 0.8, 0.8}},
	{mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0.75, 0.1, 0.1}},
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0.1, 0.75, 0.1}},
}

// VPLGenerator stands in for the shadow map pass: it scatters VPLs over a box lit
// by a point light that circles below the ceiling.
type VPLGenerator struct {
	rng   *rand.Rand
	cloud core.PointCloud
}

func NewVPLGenerator(capacity int, seed int64) *VPLGenerator {
	return &VPLGenerator{
		rng: rand.New(rand.NewSource(seed)),
		cloud: core.PointCloud{
			Positions: make([]mgl32.Vec3, capacity),
			Normals:   make([]mgl32.Vec3, capacity),
			Colors:    make([]mgl32.Vec3, capacity),
		},
	}
}

func (g *VPLGenerator) LightPosition(frame int) mgl32.Vec3 {
	a := float64(frame) * 0.1
	return mgl32.Vec3{0.5 + 0.3*float32(math.Cos(a)), 0.9, 0.5 + 0.3*float32(math.Sin(a))}
}

// Generate fills the first n slots for a frame and returns the cloud.
func (g *VPLGenerator) Generate(n, frame int) core.PointCloud {
	n = min(n, len(g.cloud.Positions))
	light := g.LightPosition(frame)
	for i := 0; i < n; i++ {
		w := boxWalls[g.rng.Intn(len(boxWalls))]
		p := w.origin.Add(w.u.Mul(g.rng.Float32())).Add(w.v.Mul(g.rng.Float32()))

		toLight := light.Sub(p)
		dist2 := max(toLight.Dot(toLight), 1e-4)
		cos := max(w.normal.Dot(toLight.Normalize()), 0)
		intensity := cos / dist2 / float32(n) * 1000

		g.cloud.Positions[i] = p
		g.cloud.Normals[i] = w.normal
		g.cloud.Colors[i] = w.albedo.Mul(intensity)
	}
	return g.cloud
}
