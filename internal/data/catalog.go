package data

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// ObjectType is the category an object is registered under.
type ObjectType uint8

const (
	ObjStatic   ObjectType = iota // OBJ
	ObjAnimated                   // ANI
	ObjControl                    // CTRL
	ObjEffect                     // SFX
	ObjectTypeCount
)

func (t ObjectType) String() string {
	switch t {
	case ObjStatic:
		return "obj"
	case ObjAnimated:
		return "ani"
	case ObjControl:
		return "ctrl"
	case ObjEffect:
		return "sfx"
	}
	return fmt.Sprintf("objtype(%d)", uint8(t))
}

// ModelType is the kind of model a prop resolves to.
type ModelType uint8

const (
	ModelNone     ModelType = 0
	ModelMesh     ModelType = 1
	ModelAnimated ModelType = 2
	ModelEffect   ModelType = 4
)

// DistanceTierCount is the number of distance culling tiers.
const DistanceTierCount = 4

// ModelProp describes one placeable model in the project manifest.
type ModelProp struct {
	Type      ObjectType
	ID        int32
	File      string
	ModelType ModelType
	Distant   uint8 // distance culling tier 0..3
}

const projectVersion = 1

// ModelCatalog is the project manifest: every model prop by type and id.
type ModelCatalog struct {
	props [ObjectTypeCount]map[int32]*ModelProp
	log   *zap.Logger
}

func NewModelCatalog(log *zap.Logger) *ModelCatalog {
	c := &ModelCatalog{log: log}
	for i := range c.props {
		c.props[i] = make(map[int32]*ModelProp)
	}
	return c
}

// ParseProject decodes a project manifest payload. Names are stored in the
// legacy code page enc (nil = raw bytes).
func ParseProject(payload []byte, enc encoding.Encoding, log *zap.Logger) (*ModelCatalog, error) {
	r := NewReader(payload).WithEncoding(enc)
	if v := r.U8(); v != projectVersion {
		return nil, fmt.Errorf("project version %d, want %d", v, projectVersion)
	}

	c := NewModelCatalog(log)
	for group := 0; group < 2; group++ {
		objType := ObjectType(r.U8())
		count := int(r.I32())
		if r.Err() != nil {
			break
		}
		if objType >= ObjectTypeCount {
			return nil, fmt.Errorf("project group %d: object type %d out of range", group, objType)
		}
		if count < 0 || count > r.Remaining() {
			return nil, fmt.Errorf("project group %d: bad prop count %d", group, count)
		}
		for i := 0; i < count; i++ {
			p := &ModelProp{Type: objType}
			p.ID = r.I32()
			p.File = r.String(int(r.I32()))
			p.ModelType = ModelType(r.U8())
			p.Distant = r.U8()
			if r.Err() != nil {
				break
			}
			c.props[objType][p.ID] = p
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	return c, nil
}

// EncodeProject writes a project manifest with the static and effect groups.
func EncodeProject(props []ModelProp, enc encoding.Encoding) []byte {
	w := NewWriter().WithEncoding(enc)
	w.U8(projectVersion)
	for _, t := range []ObjectType{ObjStatic, ObjEffect} {
		var group []ModelProp
		for _, p := range props {
			if p.Type == t {
				group = append(group, p)
			}
		}
		w.U8(uint8(t))
		w.I32(int32(len(group)))
		for _, p := range group {
			w.I32(p.ID)
			w.I32(int32(w.EncodedLen(p.File)))
			w.String(p.File)
			w.U8(uint8(p.ModelType))
			w.U8(p.Distant)
		}
	}
	return w.Bytes()
}

// Add registers a prop, replacing any prop with the same type and id.
func (c *ModelCatalog) Add(p ModelProp) {
	if p.Type >= ObjectTypeCount {
		return
	}
	c.props[p.Type][p.ID] = &p
}

// Prop returns the prop for (type, id), or nil and logs when unknown.
func (c *ModelCatalog) Prop(t ObjectType, id int32) *ModelProp {
	if t < ObjectTypeCount {
		if p := c.props[t][id]; p != nil {
			return p
		}
	}
	c.log.Warn("model prop not found", zap.Stringer("type", t), zap.Int32("id", id))
	return nil
}

// Count returns the number of props across all types.
func (c *ModelCatalog) Count() int {
	n := 0
	for _, m := range c.props {
		n += len(m)
	}
	return n
}
