package world

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/data"
)

// Tile layout.
const (
	PatchesPerSide = 8
	PatchSize      = 8
	MapSize        = PatchesPerSide * PatchSize
	PatchCount     = PatchesPerSide * PatchesPerSide
	HeightCount    = (MapSize + 1) * (MapSize + 1)
	LightmapSize   = (PatchSize - 1) * PatchesPerSide
)

// Tier is a terrain category folded into a stored height sample.
type Tier float32

const (
	TierNone   Tier = 0
	TierNoWalk Tier = 1000
	TierNoFly  Tier = 2000
	TierNoMove Tier = 3000
	TierDie    Tier = 4000
)

// HeightTier returns the highest tier the raw sample has been biased by.
func HeightTier(raw float32) Tier {
	switch {
	case raw >= float32(TierDie):
		return TierDie
	case raw >= float32(TierNoMove):
		return TierNoMove
	case raw >= float32(TierNoFly):
		return TierNoFly
	case raw >= float32(TierNoWalk):
		return TierNoWalk
	}
	return TierNone
}

// DecodeHeight strips the tier bias from a raw sample.
func DecodeHeight(raw float32) float32 {
	return raw - float32(HeightTier(raw))
}

// EncodeHeight biases h by tier. h must lie below 1000.
func EncodeHeight(h float32, tier Tier) float32 {
	return h + float32(tier)
}

// WaterType of a patch's water/cloud entry.
type WaterType uint16

const (
	WaterNone  WaterType = 0
	WaterCloud WaterType = 1
	WaterWater WaterType = 2
)

// Clouds widen a patch downward by this margin.
const cloudMargin = 40

type WaterHeight struct {
	Type    WaterType
	Texture uint16
	Height  float32
}

type Layer struct {
	PatchEnabled   [PatchCount]bool
	TextureID      int32
	LightmapOffset mgl32.Vec2
}

type Lightmap struct {
	W, H   int32
	Texels []byte // RGBA8, W*H*4 bytes
}

// TileObject is an object placement stored in a tile, in tile-local units.
type TileObject struct {
	ModelID         int32
	Pos, Rot, Scale mgl32.Vec3
}

// TileData is the decoded tile payload.
type TileData struct {
	Version  uint8
	X, Z     int32
	Heights  [HeightCount]float32
	Water    [PatchCount]WaterHeight
	Layers   []Layer
	Lightmap Lightmap
	Static   []TileObject
	Effects  []TileObject
}

const tileVersion = 1

var ErrWrongTile = errors.New("tile coordinate mismatch")

// DecodeTile parses a decompressed tile payload.
func DecodeTile(payload []byte) (*TileData, error) {
	r := data.NewReader(payload)
	t := &TileData{}

	t.Version = r.U8()
	t.X = r.I32()
	t.Z = r.I32()
	for i := range t.Heights {
		t.Heights[i] = r.F32()
	}
	for i := range t.Water {
		t.Water[i] = WaterHeight{Type: WaterType(r.U16()), Texture: r.U16(), Height: r.F32()}
	}

	layerCount := int(r.I32())
	if layerCount < 0 || layerCount*(PatchCount+12) > r.Remaining() {
		return nil, fmt.Errorf("tile: bad layer count %d", layerCount)
	}
	t.Layers = make([]Layer, layerCount)
	for i := range t.Layers {
		l := &t.Layers[i]
		for p := range l.PatchEnabled {
			l.PatchEnabled[p] = r.U8() != 0
		}
		l.TextureID = r.I32()
		l.LightmapOffset = r.Vec2()
	}

	t.Lightmap.W = r.I32()
	t.Lightmap.H = r.I32()
	texels := int(t.Lightmap.W) * int(t.Lightmap.H) * 4
	if t.Lightmap.W < 0 || t.Lightmap.H < 0 || texels > r.Remaining() {
		return nil, fmt.Errorf("tile: bad lightmap size %dx%d", t.Lightmap.W, t.Lightmap.H)
	}
	t.Lightmap.Texels = append([]byte(nil), r.Bytes(texels)...)

	var err error
	if t.Static, err = decodeTileObjects(r); err != nil {
		return nil, err
	}
	if t.Effects, err = decodeTileObjects(r); err != nil {
		return nil, err
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}
	return t, nil
}

func decodeTileObjects(r *data.Reader) ([]TileObject, error) {
	count := int(r.I32())
	if count < 0 || count*40 > r.Remaining() {
		if r.Err() != nil {
			return nil, fmt.Errorf("decode tile: %w", r.Err())
		}
		return nil, fmt.Errorf("tile: bad object count %d", count)
	}
	objs := make([]TileObject, count)
	for i := range objs {
		objs[i] = TileObject{ModelID: r.I32(), Pos: r.Vec3(), Rot: r.Vec3(), Scale: r.Vec3()}
	}
	return objs, nil
}

// EncodeTile writes t in the tile payload format.
func EncodeTile(t *TileData) []byte {
	w := data.NewWriter()
	v := t.Version
	if v == 0 {
		v = tileVersion
	}
	w.U8(v)
	w.I32(t.X)
	w.I32(t.Z)
	for _, h := range t.Heights {
		w.F32(h)
	}
	for _, wh := range t.Water {
		w.U16(uint16(wh.Type))
		w.U16(wh.Texture)
		w.F32(wh.Height)
	}
	w.I32(int32(len(t.Layers)))
	for _, l := range t.Layers {
		for _, on := range l.PatchEnabled {
			if on {
				w.U8(1)
			} else {
				w.U8(0)
			}
		}
		w.I32(l.TextureID)
		w.Vec2(l.LightmapOffset)
	}
	w.I32(t.Lightmap.W)
	w.I32(t.Lightmap.H)
	w.Raw(t.Lightmap.Texels)
	for _, group := range [][]TileObject{t.Static, t.Effects} {
		w.I32(int32(len(group)))
		for _, o := range group {
			w.I32(o.ModelID)
			w.Vec3(o.Pos)
			w.Vec3(o.Rot)
			w.Vec3(o.Scale)
		}
	}
	return w.Bytes()
}

// TilePath returns the asset path of tile (x, z) in the named world.
func TilePath(world string, x, z int) string {
	return fmt.Sprintf("world/%s/p%02d-%02d.bin", world, x, z)
}

// ManifestPath returns the asset path of the named world's manifest.
func ManifestPath(world string) string {
	return "world/" + world + "/properties.bin"
}

// Manifest is the world properties file.
type Manifest struct {
	Version          uint8
	Width, Height    int32
	MPU              int32
	FogStart, FogEnd float32
	Indoor           bool
	Ambient          mgl32.Vec3
	Diffuse          mgl32.Vec3
	LightDir         mgl32.Vec3
}

func DecodeManifest(payload []byte) (*Manifest, error) {
	r := data.NewReader(payload)
	m := &Manifest{
		Version:  r.U8(),
		Width:    r.I32(),
		Height:   r.I32(),
		MPU:      r.I32(),
		FogStart: r.F32(),
		FogEnd:   r.F32(),
		Indoor:   r.U8() != 0,
		Ambient:  r.Vec3(),
		Diffuse:  r.Vec3(),
		LightDir: r.Vec3(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Width <= 0 || m.Height <= 0 || m.Width > 1024 || m.Height > 1024 {
		return nil, fmt.Errorf("manifest: bad grid %dx%d", m.Width, m.Height)
	}
	if m.MPU <= 0 {
		return nil, fmt.Errorf("manifest: bad meters per unit %d", m.MPU)
	}
	return m, nil
}

func EncodeManifest(m *Manifest) []byte {
	w := data.NewWriter()
	v := m.Version
	if v == 0 {
		v = 1
	}
	w.U8(v)
	w.I32(m.Width)
	w.I32(m.Height)
	w.I32(m.MPU)
	w.F32(m.FogStart)
	w.F32(m.FogEnd)
	if m.Indoor {
		w.U8(1)
	} else {
		w.U8(0)
	}
	w.Vec3(m.Ambient)
	w.Vec3(m.Diffuse)
	w.Vec3(m.LightDir)
	return w.Bytes()
}
