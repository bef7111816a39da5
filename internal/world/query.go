package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VecInWorld reports whether world position (x, z) lies on the grid.
func (w *World) VecInWorld(x, z float32) bool {
	if w.manifest == nil {
		return false
	}
	extent := float32(MapSize) * w.view.MPU
	return x >= 0 && x < float32(w.width)*extent && z >= 0 && z < float32(w.height)*extent
}

// localCoord splits world position (x, z) into the owning tile and the
// tile-local grid coordinate.
func (w *World) localCoord(x, z float32) (*Landscape, float32, float32) {
	if !w.VecInWorld(x, z) {
		return nil, 0, 0
	}
	x /= w.view.MPU
	z /= w.view.MPU
	mx := int(x / MapSize)
	mz := int(z / MapSize)
	l := w.lands[mx+mz*w.width]
	if l == nil || !l.ready {
		return nil, 0, 0
	}
	return l, x - float32(mx*MapSize), z - float32(mz*MapSize)
}

// Landscape returns the tile covering p, nil outside the world or before
// the tile was requested.
func (w *World) Landscape(p mgl32.Vec3) *Landscape {
	if !w.VecInWorld(p[0], p[2]) {
		return nil
	}
	mx := int(p[0] / w.view.MPU / MapSize)
	mz := int(p[2] / w.view.MPU / MapSize)
	return w.lands[mx+mz*w.width]
}

// LandHeight interpolates the terrain height at world position (x, z).
func (w *World) LandHeight(x, z float32) float32 {
	l, lx, lz := w.localCoord(x, z)
	if l == nil {
		return 0
	}
	return l.Height(lx, lz)
}

// LandHeightFast returns the terrain sample of the cell under (x, z).
func (w *World) LandHeightFast(x, z float32) float32 {
	l, lx, lz := w.localCoord(x, z)
	if l == nil {
		return 0
	}
	return l.HeightFast(lx, lz)
}

// LandTier returns the terrain category under (x, z).
func (w *World) LandTier(x, z float32) Tier {
	l, lx, lz := w.localCoord(x, z)
	if l == nil {
		return TierNone
	}
	return l.Tier(lx, lz)
}

// WaterHeight returns the water/cloud entry of the patch under (x, z).
func (w *World) WaterHeight(x, z float32) (WaterHeight, bool) {
	l, lx, lz := w.localCoord(x, z)
	if l == nil {
		return WaterHeight{}, false
	}
	return l.Water(int(lx)/PatchSize, int(lz)/PatchSize)
}

// LandTri returns the terrain triangle under (x, z) in world coordinates.
// Cells alternate their split diagonal by the parity of the cell index.
func (w *World) LandTri(x, z float32) ([3]mgl32.Vec3, bool) {
	var tri [3]mgl32.Vec3
	l, lx, lz := w.localCoord(x, z)
	if l == nil {
		return tri, false
	}

	mpu := w.view.MPU
	tx, tz := l.x*MapSize, l.z*MapSize
	gx := min(int(lx), MapSize-1)
	gz := min(int(lz), MapSize-1)
	fx := lx - float32(gx)
	fz := lz - float32(gz)

	corner := func(dx, dz int) mgl32.Vec3 {
		return mgl32.Vec3{
			float32(tx+gx+dx) * mpu,
			l.Height(float32(gx+dx), float32(gz+dz)),
			float32(tz+gz+dz) * mpu,
		}
	}

	if (gx+gz)%2 == 0 {
		if fx > fz {
			tri = [3]mgl32.Vec3{corner(0, 0), corner(1, 1), corner(1, 0)}
		} else {
			tri = [3]mgl32.Vec3{corner(0, 0), corner(0, 1), corner(1, 1)}
		}
	} else {
		if fx+fz < 1 {
			tri = [3]mgl32.Vec3{corner(0, 0), corner(0, 1), corner(1, 0)}
		} else {
			tri = [3]mgl32.Vec3{corner(1, 0), corner(0, 1), corner(1, 1)}
		}
	}
	return tri, true
}

// LandNormal returns the normal of the terrain triangle under (x, z). Flat
// ground yields (0, -1, 0).
func (w *World) LandNormal(x, z float32) mgl32.Vec3 {
	tri, ok := w.LandTri(x, z)
	if !ok {
		return mgl32.Vec3{}
	}
	n := tri[2].Sub(tri[0]).Cross(tri[1].Sub(tri[0]))
	if n.Len() == 0 {
		return mgl32.Vec3{}
	}
	return n.Normalize()
}

// LandRot returns the Euler rotation in degrees that tilts an object
// standing on flat ground onto the terrain under (x, z).
func (w *World) LandRot(x, z float32) mgl32.Vec3 {
	n := w.LandNormal(x, z)
	up := mgl32.Vec3{0, -1, 0}
	axis := up.Cross(n)
	if n.Len() == 0 || axis.Len() < 1e-6 {
		return mgl32.Vec3{}
	}
	cos := mgl32.Clamp(up.Dot(n), -1, 1)
	q := mgl32.QuatRotate(float32(math.Acos(float64(cos))), axis.Normalize())
	e := eulerAngles(q)
	return mgl32.Vec3{mgl32.RadToDeg(e[0]), mgl32.RadToDeg(e[1]), mgl32.RadToDeg(e[2])}
}

// eulerAngles returns (pitch, yaw, roll) in radians.
func eulerAngles(q mgl32.Quat) mgl32.Vec3 {
	w, x, y, z := float64(q.W), float64(q.V[0]), float64(q.V[1]), float64(q.V[2])
	pitch := math.Atan2(2*(y*z+w*x), w*w-x*x-y*y+z*z)
	yaw := math.Asin(math.Max(-1, math.Min(1, -2*(x*z-w*y))))
	roll := math.Atan2(2*(x*y+w*z), w*w+x*x-y*y-z*z)
	return mgl32.Vec3{float32(pitch), float32(yaw), float32(roll)}
}

// Underwater reports whether the camera sits below a water patch surface,
// with that patch's water entry.
func (w *World) Underwater() (WaterHeight, bool) {
	cam := w.view.CameraPos
	wh, ok := w.WaterHeight(cam[0], cam[2])
	if !ok || wh.Type != WaterWater || wh.Height < cam[1] {
		return WaterHeight{}, false
	}
	return wh, true
}
