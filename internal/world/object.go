package world

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/geom"
	"github.com/terrastream/terrastream/internal/model"
)

var (
	ErrNoModel         = errors.New("object has no model")
	ErrAlreadyAttached = errors.New("object already belongs to a world")
	ErrOutsideWorld    = errors.New("position outside the world")
	ErrNoTile          = errors.New("no loaded tile at position")
)

// Distance culling tiers, indexed by the model prop's distant value.
var (
	minDistant = [data.DistanceTierCount]float32{100, 70, 40, 128}
	maxDistant = [data.DistanceTierCount]float32{400, 200, 70, 400}
)

// DistanceCutoff returns the distance beyond which an object of the given
// tier is culled without a frustum test.
func DistanceCutoff(tier int, fieldViewFactor float32) float32 {
	if tier < 0 || tier >= data.DistanceTierCount {
		tier = 0
	}
	return minDistant[tier] + fieldViewFactor*(maxDistant[tier]-minDistant[tier])
}

const farDistance = 99999.9

// ObjectState is the lifecycle stage of an Object.
type ObjectState uint8

const (
	ObjectCreated ObjectState = iota
	ObjectAttached
	ObjectPendingDelete
	ObjectDestroyed
)

func (s ObjectState) String() string {
	switch s {
	case ObjectCreated:
		return "created"
	case ObjectAttached:
		return "attached"
	case ObjectPendingDelete:
		return "pending_delete"
	case ObjectDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// CullResult tells how an object's cull pass ended.
type CullResult uint8

const (
	CullSkipped CullResult = iota // model not loaded yet
	CullDistance
	CullFrustum
	CullVisible
)

// Object is a positioned, oriented and scaled entity backed by a shared
// model. Rotation is in degrees. The world transform and bounds are
// recomputed lazily on the next cull after any change.
type Object struct {
	id     uint64
	typ    data.ObjectType
	bucket data.ObjectType

	world *World
	land  *Landscape
	model *model.Model

	pos, rot, scale mgl32.Vec3
	dirty           bool
	tm              mgl32.Mat4
	bounds          geom.Box
	dist            float32

	visible   bool
	deleted   bool
	destroyed bool

	// effect playback, zero maxPlay loops forever
	maxPlay   int
	playCount int
}

func NewObject(t data.ObjectType) *Object {
	return &Object{
		typ:    t,
		bucket: t,
		scale:  mgl32.Vec3{1, 1, 1},
		dirty:  true,
		tm:     mgl32.Ident4(),
		dist:   farDistance,
	}
}

func (o *Object) ID() uint64              { return o.id }
func (o *Object) Type() data.ObjectType   { return o.typ }
func (o *Object) Bucket() data.ObjectType { return o.bucket }
func (o *Object) Model() *model.Model     { return o.model }
func (o *Object) Pos() mgl32.Vec3         { return o.pos }
func (o *Object) Rot() mgl32.Vec3         { return o.rot }
func (o *Object) Scale() mgl32.Vec3       { return o.scale }
func (o *Object) Transform() mgl32.Mat4   { return o.tm }
func (o *Object) Bounds() geom.Box        { return o.bounds }
func (o *Object) Distance() float32       { return o.dist }
func (o *Object) Visible() bool           { return o.visible }
func (o *Object) Deleted() bool           { return o.deleted }
func (o *Object) World() *World           { return o.world }

func (o *Object) State() ObjectState {
	switch {
	case o.destroyed:
		return ObjectDestroyed
	case o.deleted:
		return ObjectPendingDelete
	case o.world != nil:
		return ObjectAttached
	}
	return ObjectCreated
}

func (o *Object) SetPos(p mgl32.Vec3) {
	if o.pos != p {
		o.pos = p
		o.dirty = true
	}
}

func (o *Object) SetRot(r mgl32.Vec3) {
	if o.rot != r {
		o.rot = r
		o.dirty = true
	}
}

func (o *Object) SetScale(s mgl32.Vec3) {
	if o.scale != s {
		o.scale = s
		o.dirty = true
	}
}

// SetModelID resolves the model for id through m, replacing any previous
// model. On failure the object must be discarded.
func (o *Object) SetModelID(m *model.Manager, id int32) error {
	mdl, err := m.Create(o.typ, id)
	if err != nil {
		return fmt.Errorf("object model %d: %w", id, err)
	}
	if o.model != nil {
		o.model.Release()
	}
	o.model = mdl
	o.bucket = o.typ
	if o.typ == data.ObjStatic && mdl.IsAnimated() {
		o.bucket = data.ObjAnimated
	}
	o.dirty = true
	return nil
}

// IsEffect reports whether the object renders through the effect list.
func (o *Object) IsEffect() bool {
	return o.model != nil && o.model.IsEffect()
}

func (o *Object) updateTransform() {
	lo, hi := o.model.Bounds()
	o.tm = mgl32.Translate3D(o.pos[0], o.pos[1], o.pos[2]).
		Mul4(mgl32.Scale3D(o.scale[0], o.scale[1], o.scale[2])).
		Mul4(geom.YawPitchRoll(
			mgl32.DegToRad(-o.rot[1]),
			mgl32.DegToRad(-o.rot[0]),
			mgl32.DegToRad(o.rot[2]),
		))
	o.bounds = geom.AxisBox(lo, hi).Transform(o.tm)
	o.dirty = false
}

// Cull refreshes the transform if needed, measures the camera distance and
// runs the distance cutoff followed by the frustum test.
func (o *Object) Cull(v *View, fieldViewFactor float32) CullResult {
	if o.model == nil || !o.model.Loaded() {
		o.visible = false
		return CullSkipped
	}
	if o.dirty {
		o.updateTransform()
	}

	o.dist = v.CameraPos.Sub(o.pos).Len()
	if o.dist > DistanceCutoff(o.model.Distant(), fieldViewFactor) {
		o.visible = false
		return CullDistance
	}

	o.visible = v.Frustum.Visible(&o.bounds)
	if !o.visible {
		return CullFrustum
	}
	return CullVisible
}

// Update advances the model animation. A spawned effect that finished its
// last play schedules its own deletion.
func (o *Object) Update(frames int) {
	if o.model == nil {
		return
	}
	o.model.Update(frames)
	if !o.model.IsEffect() || !o.model.EndFrame() {
		return
	}
	o.playCount++
	if o.maxPlay > 0 && o.playCount >= o.maxPlay && o.world != nil {
		o.world.DeleteObject(o)
	}
}

// LOD returns the mesh detail level at the last culled distance.
func (o *Object) LOD(quality int) int {
	indoor := o.world != nil && o.world.Indoor()
	return model.LOD(o.dist, quality, indoor)
}

func (o *Object) destroy() {
	if o.destroyed {
		return
	}
	o.destroyed = true
	o.visible = false
	if o.model != nil {
		o.model.Release()
		o.model = nil
	}
	o.land = nil
}

// SortFarToNear orders objects by descending camera distance.
func SortFarToNear(a, b *Object) int {
	switch {
	case a.dist > b.dist:
		return -1
	case a.dist < b.dist:
		return 1
	}
	return 0
}

// SpawnEffect creates an effect object at pos that plays its effect once
// and then deletes itself.
func SpawnEffect(w *World, models *model.Manager, id int32, pos mgl32.Vec3) (*Object, error) {
	o := NewObject(data.ObjEffect)
	o.SetPos(pos)
	if err := o.SetModelID(models, id); err != nil {
		return nil, err
	}
	o.maxPlay = 1
	if err := w.AddObject(o); err != nil {
		o.destroy()
		return nil, err
	}
	return o, nil
}

// SetMaxPlay sets how many times an effect object plays before deleting
// itself. Zero loops forever.
func (o *Object) SetMaxPlay(n int) {
	o.maxPlay = n
}
