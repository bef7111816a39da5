// Package model resolves model props to reference-counted models backed by
// streamed model files.
package model

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/resource"
)

var ErrUnknownModel = errors.New("unknown model")

// Kind is the closed set of model variants.
type Kind uint8

const (
	KindMesh Kind = iota
	KindEffect
)

func (k Kind) String() string {
	if k == KindEffect {
		return "effect"
	}
	return "mesh"
}

// objectQuality is the LOD distance step per object quality setting.
var objectQuality = [3]float32{15, 30, 50}

// Model is a mesh or an effect. Static meshes are shared between all
// objects using the same prop; animated meshes and effects carry per-object
// frame state and are never shared.
type Model struct {
	resource.RefCount

	kind   Kind
	prop   *data.ModelProp
	file   *File
	loaded bool

	bbMin, bbMax mgl32.Vec3
	frameCount   int
	curFrame     float32
	endFrame     bool
	skinned      bool
}

func newModel(prop *data.ModelProp, file *File) *Model {
	m := &Model{prop: prop, file: file}
	if prop.ModelType == data.ModelEffect {
		m.kind = KindEffect
	}
	file.Retain()
	m.InitRefs(func() { file.Release() })
	return m
}

func (m *Model) Kind() Kind            { return m.kind }
func (m *Model) Prop() *data.ModelProp { return m.prop }
func (m *Model) IsEffect() bool        { return m.kind == KindEffect }
func (m *Model) IsAnimated() bool      { return m.prop.ModelType != data.ModelMesh }
func (m *Model) CurrentFrame() float32 { return m.curFrame }
func (m *Model) FrameCount() int       { return m.frameCount }
func (m *Model) EndFrame() bool        { return m.endFrame }
func (m *Model) Skinned() bool         { return m.skinned }
func (m *Model) FileName() string      { return m.file.Name() }

// Bounds returns the local bounding box, valid once Loaded.
func (m *Model) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	return m.bbMin, m.bbMax
}

// Distant returns the distance culling tier. Tiers outside 0..3 fall back
// to tier 0.
func (m *Model) Distant() int {
	if int(m.prop.Distant) >= data.DistanceTierCount {
		return 0
	}
	return int(m.prop.Distant)
}

// Loaded reports whether the backing file has arrived, resolving bounds
// and frame count the first time it has.
func (m *Model) Loaded() bool {
	if m.loaded {
		return true
	}
	if m.checkLoaded() {
		m.loaded = true
	}
	return m.loaded
}

func (m *Model) checkLoaded() bool {
	if !m.file.Loaded() {
		return false
	}
	fd := m.file.Data()

	switch m.kind {
	case KindMesh:
		if len(fd.Objects) > 0 {
			m.bbMin = fd.Objects[0].BBMin
			m.bbMax = fd.Objects[0].BBMax
			for _, o := range fd.Objects[1:] {
				for i := 0; i < 3; i++ {
					m.bbMin[i] = min(m.bbMin[i], o.BBMin[i])
					m.bbMax[i] = max(m.bbMax[i], o.BBMax[i])
				}
			}
		}
		m.skinned = fd.Skeleton != nil
		if fd.Motion != nil {
			m.frameCount = int(fd.Motion.Frames)
		}
	case KindEffect:
		m.frameCount = 1
		if fd.Sfx != nil {
			m.bbMin, m.bbMax = fd.Sfx.BBMin, fd.Sfx.BBMax
			m.frameCount = max(int(fd.Sfx.Frames), 1)
		}
	}
	return true
}

// Update advances the animation by frames ticks. Meshes without a motion
// stay on frame 0. Effects flag EndFrame on the tick that wraps around.
func (m *Model) Update(frames int) {
	if !m.loaded || frames == 0 {
		return
	}
	switch m.kind {
	case KindMesh:
		if m.frameCount > 0 {
			m.curFrame = fmod(m.curFrame+0.5*float32(frames), float32(m.frameCount))
		}
	case KindEffect:
		m.endFrame = int(m.curFrame)+frames >= m.frameCount
		m.curFrame = fmod(m.curFrame+float32(frames), float32(m.frameCount))
	}
}

// NextFrame returns the integer frame to blend toward.
func (m *Model) NextFrame() int {
	next := int(m.curFrame)
	if next >= m.frameCount {
		next = 0
	}
	return next
}

// LOD picks the mesh detail level for an object at dist. Indoor worlds
// always render full detail.
func LOD(dist float32, quality int, indoor bool) int {
	if indoor {
		return 0
	}
	if quality < 0 || quality >= len(objectQuality) {
		quality = 0
	}
	return min(2, int(dist/objectQuality[quality]))
}

func fmod(a, b float32) float32 {
	return float32(math.Mod(float64(a), float64(b)))
}
