package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// unitCube is the frustum of the box [-1,1]^3 with inward-facing planes.
func unitCube() Frustum {
	return Frustum{
		{0, 0, 1, 1},
		{0, 0, -1, 1},
		{1, 0, 0, 1},
		{-1, 0, 0, 1},
		{0, -1, 0, 1},
		{0, 1, 0, 1},
	}
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestVisibleAcceptsBoxInside(t *testing.T) {
	f := unitCube()
	b := AxisBox(mgl32.Vec3{-0.5, -0.5, -0.5}, mgl32.Vec3{0.5, 0.5, 0.5})
	if !f.Visible(&b) {
		t.Fatalf("box fully inside must be visible")
	}
}

func TestVisibleRejectsBoxBehindSinglePlane(t *testing.T) {
	f := unitCube()
	b := AxisBox(mgl32.Vec3{2, -0.5, -0.5}, mgl32.Vec3{3, 0.5, 0.5})
	if f.Visible(&b) {
		t.Fatalf("box behind the right plane must be culled")
	}
}

func TestVisibleAcceptsStraddlingBox(t *testing.T) {
	f := unitCube()
	// Every corner is outside some plane, but no plane excludes all corners.
	b := AxisBox(mgl32.Vec3{-5, -5, -5}, mgl32.Vec3{5, 5, 5})
	if !f.Visible(&b) {
		t.Fatalf("enclosing box must be visible")
	}
}

func TestOutsideMaskBits(t *testing.T) {
	f := unitCube()
	if m := f.OutsideMask(mgl32.Vec3{0, 0, 0}); m != 0 {
		t.Fatalf("origin mask = %b, want 0", m)
	}
	m := f.OutsideMask(mgl32.Vec3{2, 0, -2})
	want := uint8(1<<PlaneNear | 1<<PlaneRight)
	if m != want {
		t.Fatalf("mask = %06b, want %06b", m, want)
	}
}

func testFrustum() Frustum {
	view := LookAtLH(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0})
	proj := PerspectiveLH(math.Pi/4, 1, 0.5, 512)
	return FrustumFromViewProj(proj.Mul4(view))
}

func TestFrustumFromViewProjOrientation(t *testing.T) {
	f := testFrustum()

	if m := f.OutsideMask(mgl32.Vec3{0, 0, 10}); m != 0 {
		t.Fatalf("point in front of the camera has mask %06b", m)
	}
	if m := f.OutsideMask(mgl32.Vec3{0, 0, -10}); m&(1<<PlaneNear) == 0 {
		t.Fatalf("point behind the camera must be outside the near plane, mask %06b", m)
	}
	if m := f.OutsideMask(mgl32.Vec3{0, 0, 600}); m&(1<<PlaneFar) == 0 {
		t.Fatalf("point past the far plane must be outside it, mask %06b", m)
	}
}

func TestFrustumFromViewProjCulling(t *testing.T) {
	f := testFrustum()

	cases := []struct {
		name     string
		min, max mgl32.Vec3
		want     bool
	}{
		{"in front", mgl32.Vec3{-1, -1, 9}, mgl32.Vec3{1, 1, 11}, true},
		{"behind", mgl32.Vec3{-1, -1, -11}, mgl32.Vec3{1, 1, -9}, false},
		{"past far", mgl32.Vec3{-1, -1, 600}, mgl32.Vec3{1, 1, 610}, false},
		{"far left", mgl32.Vec3{-101, -1, 9}, mgl32.Vec3{-99, 1, 11}, false},
		{"far right", mgl32.Vec3{99, -1, 9}, mgl32.Vec3{101, 1, 11}, false},
		{"crossing right edge", mgl32.Vec3{3, -1, 9}, mgl32.Vec3{6, 1, 11}, true},
	}
	for _, tc := range cases {
		b := AxisBox(tc.min, tc.max)
		if got := f.Visible(&b); got != tc.want {
			t.Fatalf("%s: visible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestYawPitchRoll(t *testing.T) {
	id := YawPitchRoll(0, 0, 0)
	if !id.ApproxEqualThreshold(mgl32.Ident4(), 1e-6) {
		t.Fatalf("zero angles must give identity, got %v", id)
	}

	v := mgl32.TransformCoordinate(mgl32.Vec3{0, 0, 1}, YawPitchRoll(math.Pi/2, 0, 0))
	if !near(v[0], 1) || !near(v[1], 0) || !near(v[2], 0) {
		t.Fatalf("yaw 90 should turn +Z into +X, got %v", v)
	}
}

func TestBoxTransform(t *testing.T) {
	b := AxisBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})
	moved := b.Transform(mgl32.Translate3D(5, 0, 0).Mul4(mgl32.Scale3D(2, 2, 2)))

	if !near(moved[0][0], 3) || !near(moved[0][1], -2) || !near(moved[7][0], 7) || !near(moved[7][2], 2) {
		t.Fatalf("unexpected transformed corners %v / %v", moved[0], moved[7])
	}
	if moved.MinY() != moved[0][1] || moved.MaxY() != moved[7][1] {
		t.Fatalf("MinY/MaxY must read corners 0 and 7")
	}
}

func TestFloorDiv(t *testing.T) {
	if got := FloorDiv(-0.5, 64); got != -1 {
		t.Fatalf("FloorDiv(-0.5, 64) = %d, want -1", got)
	}
	if got := FloorDiv(130, 64); got != 2 {
		t.Fatalf("FloorDiv(130, 64) = %d, want 2", got)
	}
}
