package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/geom"
)

// View constants.
const (
	baseFarPlane = 512
	nearPlane    = 0.5
	fieldOfView  = math.Pi / 4
)

// View is the per-world camera context threaded through tile, patch and
// object culling. It is recomputed by World.updateView whenever the camera
// moves and read by everything else.
type View struct {
	CameraPos    mgl32.Vec3
	CameraTarget mgl32.Vec3
	CameraDir    mgl32.Vec3

	ViewMat  mgl32.Mat4
	Proj     mgl32.Mat4
	ViewProj mgl32.Mat4
	Frustum  geom.Frustum

	FarPlane       float32
	FarPlaneFactor float32
	VisibilityLand int

	FogStart    float32
	FogEnd      float32
	FogSettings mgl32.Vec2 // (fogEnd, 1/(fogEnd-fogStart))

	MPU float32
}

// FarPlaneFactor maps the field-of-view quality factor to the fraction of
// the base far plane in use.
func FarPlaneFactor(fieldViewFactor float32) float32 {
	return min(0.25+fieldViewFactor/1.33, 1)
}

// VisibilityLand is the tile radius around the camera tile that can hold
// anything within farPlane.
func VisibilityLand(farPlane, mpu float32) int {
	return max(int(farPlane/(MapSize*mpu)), 1)
}

// update recomputes the derived camera state.
func (v *View) update(fieldViewFactor float32, width, height int, fogStart, fogEnd float32) {
	v.FarPlaneFactor = FarPlaneFactor(fieldViewFactor)
	v.FarPlane = baseFarPlane * v.FarPlaneFactor
	v.VisibilityLand = VisibilityLand(v.FarPlane, v.MPU)

	aspect := float32(1)
	if width > 0 && height > 0 {
		aspect = float32(width) / float32(height)
	}
	if dir := v.CameraTarget.Sub(v.CameraPos); dir.Len() > 0 {
		v.CameraDir = dir.Normalize()
	}
	v.ViewMat = geom.LookAtLH(v.CameraPos, v.CameraTarget, mgl32.Vec3{0, 1, 0})
	v.Proj = geom.PerspectiveLH(fieldOfView, aspect, nearPlane, v.FarPlane)
	v.ViewProj = v.Proj.Mul4(v.ViewMat)
	v.Frustum = geom.FrustumFromViewProj(v.ViewProj)

	v.FogStart = fogStart * v.FarPlaneFactor
	v.FogEnd = fogEnd * v.FarPlaneFactor
	if v.FogEnd > v.FogStart {
		v.FogSettings = mgl32.Vec2{v.FogEnd, 1 / (v.FogEnd - v.FogStart)}
	} else {
		v.FogSettings = mgl32.Vec2{v.FogEnd, 0}
	}
}

// tileCoord maps a world position to its tile grid coordinate.
func (v *View) tileCoord(p mgl32.Vec3) (int, int) {
	return geom.FloorDiv(p[0]/v.MPU, MapSize), geom.FloorDiv(p[2]/v.MPU, MapSize)
}
