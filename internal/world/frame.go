package world

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Weather is the precipitation state of an outdoor world.
type Weather uint8

const (
	WeatherNone Weather = iota
	WeatherRain
	WeatherSnow
)

func (w Weather) String() string {
	switch w {
	case WeatherRain:
		return "rain"
	case WeatherSnow:
		return "snow"
	}
	return "none"
}

// ParseWeather maps a weather name to its state.
func ParseWeather(s string) (Weather, bool) {
	switch s {
	case "", "none", "clear":
		return WeatherNone, true
	case "rain":
		return WeatherRain, true
	case "snow":
		return WeatherSnow, true
	}
	return WeatherNone, false
}

// PatchDraw is one patch drawn by a texture layer.
type PatchDraw struct {
	Patch       int    `json:"patch"`
	IndexOffset uint32 `json:"index_offset"`
	Blend       bool   `json:"blend"`
}

// LayerDraw is a texture layer and the patches it covers this frame.
type LayerDraw struct {
	Layer          int         `json:"layer"`
	TextureID      int32       `json:"texture_id"`
	LightmapOffset mgl32.Vec2  `json:"lightmap_offset"`
	Patches        []PatchDraw `json:"patches"`
}

type TileView struct {
	X       int              `json:"x"`
	Z       int              `json:"z"`
	Patches [PatchCount]bool `json:"patches"`
	Draws   []LayerDraw      `json:"draws"`
	Water   []int            `json:"water,omitempty"`
	Clouds  []int            `json:"clouds,omitempty"`
}

type ObjectView struct {
	ID        uint64     `json:"id"`
	ModelID   int32      `json:"model_id"`
	File      string     `json:"file"`
	Pos       mgl32.Vec3 `json:"pos"`
	Transform mgl32.Mat4 `json:"transform"`
	Distance  float32    `json:"distance"`
	Frame     float32    `json:"frame"`
	LOD       int        `json:"lod"`
}

// Frame is a self-contained snapshot of everything a renderer needs for
// one frame. It shares no memory with the world and may be handed to
// other goroutines.
type Frame struct {
	Number      uint64      `json:"number"`
	Camera      mgl32.Vec3  `json:"camera"`
	Target      mgl32.Vec3  `json:"target"`
	FarPlane    float32     `json:"far_plane"`
	FogStart    float32     `json:"fog_start"`
	FogEnd      float32     `json:"fog_end"`
	FogSettings mgl32.Vec2  `json:"fog_settings"`
	ViewProj    mgl32.Mat4  `json:"view_proj"`
	Env         Environment `json:"env"`
	Weather     string      `json:"weather"`

	WaterFrame   float32    `json:"water_frame"`
	CloudOffsets [2]float32 `json:"cloud_offsets"`
	Underwater   bool       `json:"underwater"`
	WaterTexture uint16     `json:"water_texture,omitempty"`

	Tiles   []TileView   `json:"tiles"`
	Objects []ObjectView `json:"objects"`
	Effects []ObjectView `json:"effects"`
	Stats   CullStats    `json:"stats"`
}

// Renderer consumes finished frames.
type Renderer interface {
	Render(f *Frame)
}

// BuildFrame snapshots the result of the last Update.
func (w *World) BuildFrame() *Frame {
	v := &w.view
	f := &Frame{
		Number:       w.frameNo,
		Camera:       v.CameraPos,
		Target:       v.CameraTarget,
		FarPlane:     v.FarPlane,
		FogStart:     v.FogStart,
		FogEnd:       v.FogEnd,
		FogSettings:  v.FogSettings,
		ViewProj:     v.ViewProj,
		Weather:      w.weather.String(),
		WaterFrame:   w.waterFrame,
		CloudOffsets: w.clouds,
		Stats:        w.stats,
	}
	if w.manifest != nil {
		f.Env = Light(w.manifest, w.deps.Lights, w.clock.Now())
	}
	if wh, ok := w.Underwater(); ok {
		f.Underwater = true
		f.WaterTexture = wh.Texture
	}

	f.Tiles = make([]TileView, 0, len(w.cullLands))
	for _, l := range w.cullLands {
		tv := TileView{
			X:      l.x,
			Z:      l.z,
			Draws:  l.LayerDraws(),
			Water:  l.WaterQuads(WaterWater),
			Clouds: l.WaterQuads(WaterCloud),
		}
		for i := range l.patches {
			tv.Patches[i] = l.patches[i].Visible
		}
		f.Tiles = append(f.Tiles, tv)
	}

	q := w.quality()
	f.Objects = objectViews(w.cullObjs, q.ObjectQuality)
	f.Effects = objectViews(w.cullFx, q.ObjectQuality)
	return f
}

func objectViews(objs []*Object, quality int) []ObjectView {
	out := make([]ObjectView, 0, len(objs))
	for _, o := range objs {
		ov := ObjectView{
			ID:        o.id,
			Pos:       o.pos,
			Transform: o.tm,
			Distance:  o.dist,
			LOD:       o.LOD(quality),
		}
		if o.model != nil {
			ov.ModelID = o.model.Prop().ID
			ov.File = o.model.FileName()
			ov.Frame = o.model.CurrentFrame()
		}
		out = append(out, ov)
	}
	return out
}
