package world

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/core/event"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/geom"
	"github.com/terrastream/terrastream/internal/resource"
	"go.uber.org/zap"
)

// Patch is one of the 64 fixed sub-regions of a tile.
type Patch struct {
	Bounds      geom.Box
	Visible     bool
	IndexOffset uint32 // byte offset into the shared tile triangulation
}

// patchIndexBytes is the size of one patch's slice of the tile index
// buffer: 128 triangles of 16-bit indices.
const patchIndexBytes = 128 * 3 * 2

// Landscape is one streamed tile of the world grid. It is created empty
// the first time its coordinate is requested and populated when its bytes
// arrive. A tile whose load failed keeps its slot and never reports
// visible.
type Landscape struct {
	*resource.Resource

	world *World
	x, z  int

	heights  [HeightCount]float32 // raw samples, tier bias included
	water    [PatchCount]WaterHeight
	layers   []Layer
	lightmap Lightmap
	patches  [PatchCount]Patch
	bounds   geom.Box

	ready   bool
	visible bool
	failed  bool

	objects [data.ObjectTypeCount][]*Object
}

func newLandscape(w *World, x, z int) *Landscape {
	l := &Landscape{world: w, x: x, z: z}
	l.Resource = resource.New(TilePath(w.name, x, z), w.deps.Loader, w.log, l.onLoad)
	l.OnFail(l.onFail)
	return l
}

func (l *Landscape) onLoad(payload []byte) error {
	t, err := DecodeTile(payload)
	if err != nil {
		return err
	}
	if t.Version != tileVersion {
		return fmt.Errorf("tile version %d, want %d", t.Version, tileVersion)
	}
	if int(t.X) != l.x || int(t.Z) != l.z {
		return fmt.Errorf("tile (%d,%d) holds (%d,%d): %w", l.x, l.z, t.X, t.Z, ErrWrongTile)
	}

	l.heights = t.Heights
	l.water = t.Water
	l.layers = t.Layers
	l.lightmap = t.Lightmap

	l.placeObjects(data.ObjStatic, t.Static)
	l.placeObjects(data.ObjEffect, t.Effects)

	l.initPatches()
	l.calculateBounds()
	l.ready = true
	l.UpdateCull(&l.world.view)

	emit(l.world, event.TileLoaded{
		X:       l.x,
		Z:       l.z,
		Objects: l.ObjectCount(),
	})
	return nil
}

func (l *Landscape) onFail(err error) {
	l.failed = true
	l.visible = false
	l.world.log.Error("tile unusable",
		zap.Int("x", l.x),
		zap.Int("z", l.z),
		zap.Error(err),
	)
	emit(l.world, event.TileFailed{X: l.x, Z: l.z, Reason: err.Error()})
}

// placeObjects turns tile-local placements into attached objects. Positions
// are stored in tile units and scaled by (MPU, 1, MPU) from the tile origin.
func (l *Landscape) placeObjects(t data.ObjectType, placements []TileObject) {
	models := l.world.deps.Models
	if models == nil {
		return
	}
	mpu := l.world.view.MPU
	origin := mgl32.Vec3{float32(l.x*MapSize) * mpu, 0, float32(l.z*MapSize) * mpu}

	for _, p := range placements {
		o := NewObject(t)
		o.SetPos(mgl32.Vec3{p.Pos[0] * mpu, p.Pos[1], p.Pos[2] * mpu}.Add(origin))
		o.SetRot(p.Rot)
		o.SetScale(p.Scale)
		if err := o.SetModelID(models, p.ModelID); err != nil {
			l.world.log.Warn("tile object discarded",
				zap.Int("x", l.x),
				zap.Int("z", l.z),
				zap.Int32("model", p.ModelID),
				zap.Error(err),
			)
			continue
		}
		o.world = l.world
		o.id = l.world.nextObjectID()
		l.add(o)
	}
}

func (l *Landscape) initPatches() {
	mpu := l.world.view.MPU
	for pz := 0; pz < PatchesPerSide; pz++ {
		for px := 0; px < PatchesPerSide; px++ {
			idx := pz*PatchesPerSide + px
			l.patches[idx] = l.newPatch(idx, px, pz, mpu)
		}
	}
}

// newPatch scans the decoded (PatchSize+1)^2 sub-grid of the patch and
// widens the vertical extent by its water or cloud layer.
func (l *Landscape) newPatch(idx, px, pz int, mpu float32) Patch {
	miny, maxy := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	base := pz*PatchSize*(MapSize+1) + px*PatchSize
	for i := 0; i <= PatchSize; i++ {
		for j := 0; j <= PatchSize; j++ {
			y := DecodeHeight(l.heights[base+i*(MapSize+1)+j])
			miny = min(miny, y)
			maxy = max(maxy, y)
		}
	}

	switch wh := l.water[idx]; wh.Type {
	case WaterCloud:
		miny = min(miny, wh.Height-cloudMargin)
		maxy = max(maxy, wh.Height)
	case WaterWater:
		miny = min(miny, wh.Height)
		maxy = max(maxy, wh.Height)
	}

	x0 := float32(l.x*MapSize+px*PatchSize) * mpu
	z0 := float32(l.z*MapSize+pz*PatchSize) * mpu
	return Patch{
		Bounds: geom.AxisBox(
			mgl32.Vec3{x0, miny, z0},
			mgl32.Vec3{x0 + PatchSize*mpu, maxy, z0 + PatchSize*mpu},
		),
		IndexOffset: uint32(patchIndexBytes * idx),
	}
}

func (l *Landscape) calculateBounds() {
	miny, maxy := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for i := range l.patches {
		miny = min(miny, l.patches[i].Bounds.MinY())
		maxy = max(maxy, l.patches[i].Bounds.MaxY())
	}
	mpu := l.world.view.MPU
	x0 := float32(l.x*MapSize) * mpu
	z0 := float32(l.z*MapSize) * mpu
	l.bounds = geom.AxisBox(
		mgl32.Vec3{x0, miny, z0},
		mgl32.Vec3{x0 + MapSize*mpu, maxy, z0 + MapSize*mpu},
	)
}

// UpdateCull tests the tile against the frustum and, when it is visible,
// every patch. Patches of an invisible tile keep their previous flags.
func (l *Landscape) UpdateCull(v *View) {
	if !l.ready {
		l.visible = false
		return
	}
	l.visible = v.Frustum.Visible(&l.bounds)
	if !l.visible {
		return
	}
	for i := range l.patches {
		l.patches[i].Visible = v.Frustum.Visible(&l.patches[i].Bounds)
	}
}

func (l *Landscape) Coord() (int, int)   { return l.x, l.z }
func (l *Landscape) Visible() bool       { return l.visible }
func (l *Landscape) Failed() bool        { return l.failed }
func (l *Landscape) Bounds() geom.Box    { return l.bounds }
func (l *Landscape) Patch(i int) *Patch  { return &l.patches[i] }
func (l *Landscape) Layers() []Layer     { return l.layers }
func (l *Landscape) Lightmap() *Lightmap { return &l.lightmap }

// Objects returns the bucket of type t.
func (l *Landscape) Objects(t data.ObjectType) []*Object { return l.objects[t] }

// ObjectCount returns the number of objects across all buckets.
func (l *Landscape) ObjectCount() int {
	n := 0
	for _, b := range l.objects {
		n += len(b)
	}
	return n
}

func (l *Landscape) sample(ix, iz int) float32 {
	return DecodeHeight(l.heights[ix+iz*(MapSize+1)])
}

// Height interpolates the decoded heightmap at tile-local grid coordinates.
// Coordinates outside [0, MapSize] yield 0.
func (l *Landscape) Height(x, z float32) float32 {
	if x < 0 || x > MapSize || z < 0 || z > MapSize {
		return 0
	}
	px := min(int(x), MapSize-1)
	pz := min(int(z), MapSize-1)
	dx := x - float32(px)
	dz := z - float32(pz)

	y1 := l.sample(px, pz)
	y2 := l.sample(px+1, pz)
	y3 := l.sample(px, pz+1)
	y4 := l.sample(px+1, pz+1)
	return y1*(1-dx)*(1-dz) + y2*dx*(1-dz) + y3*(1-dx)*dz + y4*dx*dz
}

// HeightFast returns the decoded sample of the cell containing (x, z).
func (l *Landscape) HeightFast(x, z float32) float32 {
	if x < 0 || x > MapSize || z < 0 || z > MapSize {
		return 0
	}
	return l.sample(int(x), int(z))
}

// Tier returns the terrain category of the cell containing (x, z).
func (l *Landscape) Tier(x, z float32) Tier {
	if x < 0 || x > MapSize || z < 0 || z > MapSize {
		return TierNone
	}
	return HeightTier(l.heights[int(x)+int(z)*(MapSize+1)])
}

// Water returns the water/cloud entry of patch (px, pz).
func (l *Landscape) Water(px, pz int) (WaterHeight, bool) {
	if !l.ready || px < 0 || px >= PatchesPerSide || pz < 0 || pz >= PatchesPerSide {
		return WaterHeight{}, false
	}
	return l.water[pz*PatchesPerSide+px], true
}

func (l *Landscape) add(o *Object) {
	o.land = l
	l.objects[o.bucket] = append(l.objects[o.bucket], o)
}

// remove unlinks o from the bucket it was added to.
func (l *Landscape) remove(o *Object) {
	b := l.objects[o.bucket]
	if i := slices.Index(b, o); i >= 0 {
		l.objects[o.bucket] = slices.Delete(b, i, i+1)
	}
}

// LayerDraws lists, per texture layer in order, the enabled and visible
// patches to draw. A patch is blended when an earlier layer already drew
// it. Layers with nothing to draw are left out.
func (l *Landscape) LayerDraws() []LayerDraw {
	var drawn [PatchCount]bool
	var draws []LayerDraw
	for li := range l.layers {
		layer := &l.layers[li]
		var patches []PatchDraw
		for p, on := range layer.PatchEnabled {
			if !on || !l.patches[p].Visible {
				continue
			}
			patches = append(patches, PatchDraw{
				Patch:       p,
				IndexOffset: l.patches[p].IndexOffset,
				Blend:       drawn[p],
			})
		}
		if len(patches) == 0 {
			continue
		}
		for _, pd := range patches {
			drawn[pd.Patch] = true
		}
		draws = append(draws, LayerDraw{
			Layer:          li,
			TextureID:      layer.TextureID,
			LightmapOffset: layer.LightmapOffset,
			Patches:        patches,
		})
	}
	return draws
}

// WaterQuads returns the indices of the patches carrying a quad of type t.
func (l *Landscape) WaterQuads(t WaterType) []int {
	var out []int
	for i := range l.water {
		if l.water[i].Type == t {
			out = append(out, i)
		}
	}
	return out
}
