// Package geom holds the spatial primitives shared by tiles, patches and
// objects: 8-corner bounding boxes, frustum planes and the left-handed
// camera matrices they are derived from.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Box holds the 8 corners of a bounding volume.
// Corner order: xyz, Xyz, xYz, XYz, xyZ, XyZ, xYZ, XYZ (lower case = min).
type Box [8]mgl32.Vec3

// AxisBox builds the corners of the axis-aligned box [min, max].
func AxisBox(min, max mgl32.Vec3) Box {
	return Box{
		{min[0], min[1], min[2]},
		{max[0], min[1], min[2]},
		{min[0], max[1], min[2]},
		{max[0], max[1], min[2]},
		{min[0], min[1], max[2]},
		{max[0], min[1], max[2]},
		{min[0], max[1], max[2]},
		{max[0], max[1], max[2]},
	}
}

// Transform returns the box with every corner transformed by m.
func (b Box) Transform(m mgl32.Mat4) Box {
	var out Box
	for i := range b {
		out[i] = mgl32.TransformCoordinate(b[i], m)
	}
	return out
}

// MinY returns the smallest y of an AxisBox.
func (b Box) MinY() float32 { return b[0][1] }

// MaxY returns the largest y of an AxisBox.
func (b Box) MaxY() float32 { return b[7][1] }

// Plane indices into a Frustum.
const (
	PlaneNear = iota
	PlaneFar
	PlaneLeft
	PlaneRight
	PlaneTop
	PlaneBottom
	PlaneCount
)

// Frustum holds 6 planes (nx, ny, nz, d). A point p lies on the inside of
// plane i when n·p + d >= 0.
type Frustum [PlaneCount]mgl32.Vec4

// OutsideMask returns one bit per plane the point lies behind.
func (f *Frustum) OutsideMask(p mgl32.Vec3) uint8 {
	var mask uint8
	for i := 0; i < PlaneCount; i++ {
		pl := f[i]
		if pl[0]*p[0]+pl[1]*p[1]+pl[2]*p[2]+pl[3] < 0 {
			mask |= 1 << i
		}
	}
	return mask
}

// Visible runs the outside-bitmask test: the box is accepted as soon as one
// corner is inside every plane, otherwise it is visible unless a single
// plane has all 8 corners behind it. The test is conservative: it may accept
// boxes that are actually outside, it never rejects a box that intersects.
func (f *Frustum) Visible(b *Box) bool {
	var masks [8]uint8
	for i := range b {
		masks[i] = f.OutsideMask(b[i])
		if masks[i] == 0 {
			return true
		}
	}
	return masks[0]&masks[1]&masks[2]&masks[3]&masks[4]&masks[5]&masks[6]&masks[7] == 0
}

// PlaneFromPoints builds the plane through a, b and c with the normal
// normalize((b-a) x (c-a)).
func PlaneFromPoints(a, b, c mgl32.Vec3) mgl32.Vec4 {
	n := b.Sub(a).Cross(c.Sub(a)).Normalize()
	return mgl32.Vec4{n[0], n[1], n[2], -a.Dot(n)}
}

// ndcCorners are the clip-space corners unprojected to build the frustum.
var ndcCorners = [8]mgl32.Vec3{
	{-1, -1, 0}, // xyz
	{1, -1, 0},  // Xyz
	{-1, 1, 0},  // xYz
	{1, 1, 0},   // XYz
	{-1, -1, 1}, // xyZ
	{1, -1, 1},  // XyZ
	{-1, 1, 1},  // xYZ
	{1, 1, 1},   // XYZ
}

// FrustumFromViewProj unprojects the NDC corners through the inverse of
// viewProj and builds the 6 planes from fixed corner triples.
func FrustumFromViewProj(viewProj mgl32.Mat4) Frustum {
	inv := viewProj.Inv()

	var c [8]mgl32.Vec3
	for i := range ndcCorners {
		c[i] = mgl32.TransformCoordinate(ndcCorners[i], inv)
	}

	var f Frustum
	f[PlaneNear] = PlaneFromPoints(c[0], c[1], c[2])
	f[PlaneFar] = PlaneFromPoints(c[6], c[7], c[5])
	f[PlaneLeft] = PlaneFromPoints(c[2], c[6], c[4])
	f[PlaneRight] = PlaneFromPoints(c[7], c[3], c[5])
	f[PlaneTop] = PlaneFromPoints(c[2], c[3], c[6])
	f[PlaneBottom] = PlaneFromPoints(c[1], c[0], c[4])
	return f
}

// LookAtLH builds a left-handed view matrix: the camera looks down +Z.
func LookAtLH(eye, center, up mgl32.Vec3) mgl32.Mat4 {
	f := center.Sub(eye).Normalize()
	s := up.Cross(f).Normalize()
	u := f.Cross(s)

	return mgl32.Mat4{
		s[0], u[0], f[0], 0,
		s[1], u[1], f[1], 0,
		s[2], u[2], f[2], 0,
		-s.Dot(eye), -u.Dot(eye), -f.Dot(eye), 1,
	}
}

// PerspectiveLH builds a left-handed projection with depth mapped to -1..1.
func PerspectiveLH(fovy, aspect, near, far float32) mgl32.Mat4 {
	tanHalf := float32(math.Tan(float64(fovy) / 2))

	var m mgl32.Mat4
	m[0] = 1 / (aspect * tanHalf)
	m[5] = 1 / tanHalf
	m[10] = (far + near) / (far - near)
	m[11] = 1
	m[14] = -(2 * far * near) / (far - near)
	return m
}

// YawPitchRoll builds the rotation Ry(yaw) * Rx(pitch) * Rz(roll).
func YawPitchRoll(yaw, pitch, roll float32) mgl32.Mat4 {
	ch, sh := cosSin(yaw)
	cp, sp := cosSin(pitch)
	cb, sb := cosSin(roll)

	return mgl32.Mat4{
		ch*cb + sh*sp*sb, sb * cp, -sh*cb + ch*sp*sb, 0,
		-ch*sb + sh*sp*cb, cb * cp, sb*sh + ch*sp*cb, 0,
		sh * cp, -sp, ch * cp, 0,
		0, 0, 0, 1,
	}
}

func cosSin(a float32) (float32, float32) {
	s, c := math.Sincos(float64(a))
	return float32(c), float32(s)
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(v, size float32) int {
	return int(math.Floor(float64(v / size)))
}
