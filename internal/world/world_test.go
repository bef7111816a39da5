package world

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/asset"
	"github.com/terrastream/terrastream/internal/config"
	"github.com/terrastream/terrastream/internal/core/event"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/model"
	"github.com/terrastream/terrastream/internal/resource"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	rockID  = 1
	sparkID = 7
)

// recorder remembers every path submitted through it.
type recorder struct {
	next  resource.Requester
	paths []string
}

func (r *recorder) Submit(res *resource.Resource) error {
	r.paths = append(r.paths, res.Path())
	return r.next.Submit(res)
}

func (r *recorder) tiles() []string {
	var out []string
	for _, p := range r.paths {
		if strings.HasPrefix(p, "world/") && !strings.HasSuffix(p, "properties.bin") {
			out = append(out, p)
		}
	}
	return out
}

type fixture struct {
	t       *testing.T
	src     *asset.MemSource
	loader  *resource.Loader
	req     *recorder
	models  *model.Manager
	bus     *event.Bus
	quality config.QualityConfig
	logs    *observer.ObservedLogs
	world   *World
}

func newFixture(t *testing.T, m *Manifest) *fixture {
	t.Helper()
	return newFixtureWithLoader(t, m, config.LoaderConfig{Workers: 2, QueueSize: 64, Burst: 1})
}

func newFixtureWithLoader(t *testing.T, m *Manifest, lc config.LoaderConfig) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)

	f := &fixture{
		t:       t,
		src:     asset.NewMemSource(),
		bus:     event.NewBus(),
		quality: config.QualityConfig{FieldViewFactor: 1},
		logs:    logs,
	}
	f.loader = resource.NewLoader(f.src, lc, log)
	t.Cleanup(f.loader.Close)
	f.req = &recorder{next: f.loader}

	cat := data.NewModelCatalog(log)
	cat.Add(data.ModelProp{Type: data.ObjStatic, ID: rockID, File: "rock", ModelType: data.ModelMesh})
	cat.Add(data.ModelProp{Type: data.ObjEffect, ID: sparkID, File: "spark", ModelType: data.ModelEffect})
	f.models = model.NewManager(cat, f.req, "model", log)
	f.putModel("rock", &model.FileData{Objects: []model.Object3D{{BBMin: mgl32.Vec3{-1, 0, -1}, BBMax: mgl32.Vec3{1, 6, 1}}}})
	f.putModel("spark", &model.FileData{Sfx: &model.SfxDef{BBMin: mgl32.Vec3{-1, -1, -1}, BBMax: mgl32.Vec3{1, 1, 1}, Frames: 2}})

	f.put(ManifestPath("demo"), EncodeManifest(m))
	f.world = New("demo", Deps{
		Loader:  f.req,
		Models:  f.models,
		Bus:     f.bus,
		Quality: &f.quality,
		Log:     log,
		Width:   1,
		Height:  1,
	})
	f.flush()
	if !f.world.Loaded() {
		t.Fatalf("manifest not loaded: %v", f.world.Err())
	}
	return f
}

func (f *fixture) put(path string, payload []byte) {
	f.t.Helper()
	raw, err := asset.Encode(payload, asset.FormatZstd)
	if err != nil {
		f.t.Fatalf("encode %s: %v", path, err)
	}
	_ = f.src.Put(context.Background(), path, raw)
}

func (f *fixture) putModel(name string, fd *model.FileData) {
	f.put("model/"+name+".bin", model.EncodeFile(fd))
}

func (f *fixture) putTile(td *TileData) {
	f.put(TilePath("demo", int(td.X), int(td.Z)), EncodeTile(td))
}

func (f *fixture) flush() {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.loader.Flush(ctx); err != nil {
		f.t.Fatalf("flush: %v", err)
	}
}

func flatTile(x, z int, h float32) *TileData {
	t := &TileData{X: int32(x), Z: int32(z)}
	for i := range t.Heights {
		t.Heights[i] = h
	}
	return t
}

// demoFixture is a 2x2 world with one loaded tile at (0,0) holding a rock
// at its center, water on patch 0 and cloud on patch 1. The other tiles
// are missing.
func demoFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, &Manifest{Width: 2, Height: 2, MPU: 1, FogStart: 70, FogEnd: 400})

	td := flatTile(0, 0, 10)
	td.Water[0] = WaterHeight{Type: WaterWater, Texture: 3, Height: 20}
	td.Water[1] = WaterHeight{Type: WaterCloud, Height: 50}
	all := Layer{TextureID: 100}
	for i := range all.PatchEnabled {
		all.PatchEnabled[i] = true
	}
	detail := Layer{TextureID: 101}
	for i := range detail.PatchEnabled {
		detail.PatchEnabled[i] = i%2 == 0
	}
	td.Layers = []Layer{all, {TextureID: 102}, detail}
	td.Static = []TileObject{{ModelID: rockID, Pos: mgl32.Vec3{32, 10, 32}, Scale: mgl32.Vec3{1, 1, 1}}}
	f.putTile(td)

	f.world.SetCameraPos(mgl32.Vec3{32, 40, -40})
	f.world.SetCameraTarget(mgl32.Vec3{32, 0, 32})
	f.world.Update(1)
	f.flush()
	f.world.Update(1)
	return f
}

func TestTileNeighborhoodSkipsOutOfRange(t *testing.T) {
	got := TileNeighborhood(2, 2, 1, 4, 4)
	if len(got) != 9 {
		t.Fatalf("got %d coordinates, want 9: %v", len(got), got)
	}
	i := 0
	for z := 1; z <= 3; z++ {
		for x := 1; x <= 3; x++ {
			if got[i] != [2]int{x, z} {
				t.Fatalf("coordinate %d = %v, want (%d,%d)", i, got[i], x, z)
			}
			i++
		}
	}

	corner := TileNeighborhood(0, 0, 1, 4, 4)
	if len(corner) != 4 {
		t.Fatalf("corner neighborhood = %v, want 4 in-range coordinates", corner)
	}
	for _, c := range corner {
		if c[0] < 0 || c[1] < 0 {
			t.Fatalf("out-of-range coordinate %v was not skipped", c)
		}
	}
}

func TestWorldRequestsCameraNeighborhood(t *testing.T) {
	f := newFixture(t, &Manifest{Width: 4, Height: 4, MPU: 2})
	f.quality.FieldViewFactor = 0 // far plane 128, one tile of radius at MPU 2

	f.world.SetCameraPos(mgl32.Vec3{300, 50, 300})
	f.world.SetCameraTarget(mgl32.Vec3{300, 50, 400})
	f.world.Update(1)

	if got := f.world.View().VisibilityLand; got != 1 {
		t.Fatalf("visibilityLand = %d, want 1", got)
	}
	want := map[string]bool{}
	for z := 1; z <= 3; z++ {
		for x := 1; x <= 3; x++ {
			want[TilePath("demo", x, z)] = true
		}
	}
	got := f.req.tiles()
	if len(got) != len(want) {
		t.Fatalf("requested %v, want the 9 tiles around (2,2)", got)
	}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected tile request %s", p)
		}
	}

	// No duplicate requests while the loads are in flight.
	f.world.Update(1)
	if n := len(f.req.tiles()); n != 9 {
		t.Fatalf("requested %d tiles after second update, want 9", n)
	}
}

func TestUpdateIsInertBeforeManifest(t *testing.T) {
	src := asset.NewMemSource()
	l := resource.NewLoader(src, config.LoaderConfig{Workers: 1, QueueSize: 4}, zap.NewNop())
	t.Cleanup(l.Close)

	w := New("missing", Deps{Loader: l})
	w.Update(1)
	if w.FrameNumber() != 0 {
		t.Fatalf("update ran before the manifest loaded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !errors.Is(w.Err(), asset.ErrNotFound) {
		t.Fatalf("Err() = %v, want ErrNotFound", w.Err())
	}
}

func TestTileLoadBuildsVisibleFrame(t *testing.T) {
	f := demoFixture(t)
	w := f.world

	tile := w.Tile(0, 0)
	if tile == nil || !tile.Loaded() || !tile.Visible() {
		t.Fatalf("tile (0,0) not loaded and visible")
	}
	if len(w.VisibleTiles()) != 1 {
		t.Fatalf("visible tiles = %d, want 1", len(w.VisibleTiles()))
	}
	for _, c := range [][2]int{{1, 0}, {0, 1}, {1, 1}} {
		hole := w.Tile(c[0], c[1])
		if hole == nil || !hole.Failed() || hole.Visible() || hole.Loaded() {
			t.Fatalf("missing tile %v must be a permanent hole", c)
		}
	}
	if n := f.logs.FilterMessage("tile unusable").Len(); n != 3 {
		t.Fatalf("logged %d unusable tiles, want 3", n)
	}

	objs := w.VisibleObjects()
	if len(objs) != 1 || objs[0].Pos() != (mgl32.Vec3{32, 10, 32}) {
		t.Fatalf("visible objects = %v, want the rock", objs)
	}
	if objs[0].State() != ObjectAttached {
		t.Fatalf("tile object state = %s", objs[0].State())
	}

	var loaded []event.TileLoaded
	var failed int
	event.Subscribe(f.bus, func(ev event.TileLoaded) { loaded = append(loaded, ev) })
	event.Subscribe(f.bus, func(event.TileFailed) { failed++ })
	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	if len(loaded) != 1 || loaded[0].Objects != 1 || failed != 3 {
		t.Fatalf("events: loaded=%v failed=%d", loaded, failed)
	}

	frame := w.BuildFrame()
	if frame.Number != w.FrameNumber() || len(frame.Tiles) != 1 || len(frame.Objects) != 1 {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.Objects[0].File != "rock" {
		t.Fatalf("frame object file = %q", frame.Objects[0].File)
	}
	tv := frame.Tiles[0]
	if len(tv.Water) != 1 || tv.Water[0] != 0 || len(tv.Clouds) != 1 || tv.Clouds[0] != 1 {
		t.Fatalf("water=%v clouds=%v", tv.Water, tv.Clouds)
	}
}

func TestLayerDrawBlendFlags(t *testing.T) {
	f := demoFixture(t)
	draws := f.world.Tile(0, 0).LayerDraws()

	if len(draws) != 2 {
		t.Fatalf("draws = %d layers, want 2 (empty layer omitted)", len(draws))
	}
	if draws[0].Layer != 0 || draws[1].Layer != 2 {
		t.Fatalf("layer order %d, %d", draws[0].Layer, draws[1].Layer)
	}
	if len(draws[0].Patches) == 0 {
		t.Fatalf("base layer draws nothing")
	}
	for _, p := range draws[0].Patches {
		if p.Blend {
			t.Fatalf("base layer patch %d blended", p.Patch)
		}
		if p.IndexOffset != uint32(p.Patch*128*3*2) {
			t.Fatalf("patch %d index offset %d", p.Patch, p.IndexOffset)
		}
	}
	for _, p := range draws[1].Patches {
		if !p.Blend || p.Patch%2 != 0 {
			t.Fatalf("detail layer patch %+v", p)
		}
	}
}

func TestWrongTileIsDiscarded(t *testing.T) {
	f := newFixture(t, &Manifest{Width: 2, Height: 2, MPU: 1})
	f.put(TilePath("demo", 0, 0), EncodeTile(flatTile(1, 1, 5)))

	f.world.SetCameraPos(mgl32.Vec3{10, 40, 10})
	f.world.SetCameraTarget(mgl32.Vec3{20, 0, 20})
	f.world.Update(1)
	f.flush()
	f.world.Update(1)

	tile := f.world.Tile(0, 0)
	if !tile.Failed() || tile.Visible() {
		t.Fatalf("mismatched tile must be unusable")
	}
	found := false
	for _, e := range f.logs.FilterMessage("tile unusable").All() {
		if e.ContextMap()["x"] == int64(0) && strings.Contains(fmt.Sprint(e.ContextMap()["error"]), ErrWrongTile.Error()) {
			found = true
		}
	}
	if !found {
		t.Fatalf("coordinate mismatch not logged")
	}
	if f.world.LandHeight(10, 10) != 0 {
		t.Fatalf("height query answered from a discarded tile")
	}
}

func TestDeleteThenCull(t *testing.T) {
	f := demoFixture(t)
	w := f.world
	tile := w.Tile(0, 0)

	rock := w.VisibleObjects()[0]
	wasVisible := rock.Visible()

	w.DeleteObject(rock)
	w.DeleteObject(rock)
	if w.PendingDeletes() != 1 {
		t.Fatalf("pending deletes = %d, want 1", w.PendingDeletes())
	}
	if rock.State() != ObjectPendingDelete {
		t.Fatalf("state = %s", rock.State())
	}

	w.CullObjects()
	if rock.Visible() != wasVisible {
		t.Fatalf("visibility changed before the drain")
	}
	if len(tile.Objects(data.ObjStatic)) != 1 {
		t.Fatalf("object left its bucket before the next update")
	}
	if len(w.VisibleObjects()) != 0 {
		t.Fatalf("pending object still listed")
	}

	var destroyed []event.ObjectDestroyed
	event.Subscribe(f.bus, func(ev event.ObjectDestroyed) { destroyed = append(destroyed, ev) })

	w.Update(1)
	if len(tile.Objects(data.ObjStatic)) != 0 {
		t.Fatalf("object still in its bucket after update")
	}
	if rock.State() != ObjectDestroyed || rock.Model() != nil {
		t.Fatalf("state = %s after drain", rock.State())
	}
	if w.PendingDeletes() != 0 {
		t.Fatalf("deletion queue not drained")
	}

	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	if len(destroyed) != 1 || destroyed[0].ModelID != rockID {
		t.Fatalf("destroyed events = %v", destroyed)
	}

	w.DeleteObject(rock)
	if w.PendingDeletes() != 0 {
		t.Fatalf("destroyed object re-queued")
	}
}

func TestAddObject(t *testing.T) {
	f := demoFixture(t)
	w := f.world

	bare := NewObject(data.ObjStatic)
	bare.SetPos(mgl32.Vec3{10, 10, 10})
	if err := w.AddObject(bare); !errors.Is(err, ErrNoModel) {
		t.Fatalf("err = %v, want ErrNoModel", err)
	}

	newRock := func(p mgl32.Vec3) *Object {
		o := NewObject(data.ObjStatic)
		o.SetPos(p)
		if err := o.SetModelID(f.models, rockID); err != nil {
			t.Fatalf("set model: %v", err)
		}
		return o
	}

	if err := w.AddObject(newRock(mgl32.Vec3{-5, 0, 10})); !errors.Is(err, ErrOutsideWorld) {
		t.Fatalf("err = %v, want ErrOutsideWorld", err)
	}
	if err := w.AddObject(newRock(mgl32.Vec3{100, 0, 100})); !errors.Is(err, ErrNoTile) {
		t.Fatalf("err = %v, want ErrNoTile", err)
	}

	o := newRock(mgl32.Vec3{10, 10, 10})
	if err := w.AddObject(o); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.AddObject(o); !errors.Is(err, ErrAlreadyAttached) {
		t.Fatalf("err = %v, want ErrAlreadyAttached", err)
	}
	if len(w.Tile(0, 0).Objects(data.ObjStatic)) != 2 {
		t.Fatalf("object not added to the static bucket")
	}

	bad := NewObject(data.ObjStatic)
	if err := bad.SetModelID(f.models, 999); !errors.Is(err, model.ErrUnknownModel) {
		t.Fatalf("err = %v, want ErrUnknownModel", err)
	}
}

func TestSpawnedEffectDeletesItself(t *testing.T) {
	f := demoFixture(t)
	w := f.world

	fx, err := SpawnEffect(w, f.models, sparkID, mgl32.Vec3{30, 12, 30})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if fx.Bucket() != data.ObjEffect {
		t.Fatalf("bucket = %s", fx.Bucket())
	}
	f.flush()

	w.Update(1) // first cull measures the distance
	if !fx.IsEffect() || fx.State() != ObjectAttached {
		t.Fatalf("effect state = %s", fx.State())
	}
	w.Update(2) // plays through both frames
	if fx.State() != ObjectDestroyed {
		t.Fatalf("effect state = %s after its last frame, want destroyed", fx.State())
	}
	for _, o := range w.VisibleEffects() {
		if o == fx {
			t.Fatalf("destroyed effect still listed")
		}
	}
}

func TestPlacementQueries(t *testing.T) {
	f := demoFixture(t)
	w := f.world

	if !w.VecInWorld(0, 0) || w.VecInWorld(128, 5) || w.VecInWorld(-0.5, 5) {
		t.Fatalf("VecInWorld bounds wrong")
	}
	if h := w.LandHeight(12.5, 40.25); h != 10 {
		t.Fatalf("LandHeight = %v, want 10", h)
	}
	if h := w.LandHeightFast(12.5, 40.25); h != 10 {
		t.Fatalf("LandHeightFast = %v, want 10", h)
	}
	if n := w.LandNormal(12.5, 40.25); n != (mgl32.Vec3{0, -1, 0}) {
		t.Fatalf("flat normal = %v", n)
	}
	if r := w.LandRot(12.5, 40.25); r != (mgl32.Vec3{}) {
		t.Fatalf("flat rotation = %v", r)
	}
	wh, ok := w.WaterHeight(3, 3)
	if !ok || wh.Type != WaterWater || wh.Height != 20 {
		t.Fatalf("water under patch 0 = %+v", wh)
	}
	if _, ok := w.WaterHeight(100, 100); ok {
		t.Fatalf("water answered for a missing tile")
	}

	if _, under := w.Underwater(); under {
		t.Fatalf("camera above water reported underwater")
	}
	w.SetCameraPos(mgl32.Vec3{3, 15, 3})
	if wh, under := w.Underwater(); !under || wh.Texture != 3 {
		t.Fatalf("camera below water surface not underwater")
	}
}

func TestLandTriFollowsCellParity(t *testing.T) {
	f := newFixture(t, &Manifest{Width: 1, Height: 1, MPU: 2})
	td := flatTile(0, 0, 0)
	// Raise one corner so the split diagonal shows in the normal.
	td.Heights[1+1*(MapSize+1)] = 4
	f.putTile(td)
	f.world.SetCameraPos(mgl32.Vec3{64, 60, -20})
	f.world.SetCameraTarget(mgl32.Vec3{64, 0, 64})
	f.world.Update(1)
	f.flush()

	// Cell (0,0) is even: lower-right half (fx > fz) uses corners 00, 11, 10.
	tri, ok := f.world.LandTri(1.5, 0.5)
	if !ok {
		t.Fatalf("no triangle")
	}
	if tri[1] != (mgl32.Vec3{2, 4, 2}) || tri[2] != (mgl32.Vec3{2, 0, 0}) {
		t.Fatalf("even cell triangle = %v", tri)
	}
	// Cell (1,0) is odd: fx+fz < 1 uses corners 00, 01, 10.
	tri, _ = f.world.LandTri(2.2, 0.2)
	if tri[0] != (mgl32.Vec3{2, 0, 0}) || tri[1] != (mgl32.Vec3{2, 4, 2}) || tri[2] != (mgl32.Vec3{4, 0, 0}) {
		t.Fatalf("odd cell triangle = %v", tri)
	}

	if rot := f.world.LandRot(1.5, 0.5); rot == (mgl32.Vec3{}) {
		t.Fatalf("sloped ground produced no rotation")
	}
}

func TestWeather(t *testing.T) {
	f := newFixture(t, &Manifest{Width: 1, Height: 1, MPU: 1})
	if !f.world.SetWeather(WeatherRain) || f.world.Weather() != WeatherRain {
		t.Fatalf("weather not switched")
	}
	if f.world.SetWeather(WeatherRain) {
		t.Fatalf("unchanged weather reported a change")
	}

	indoor := newFixture(t, &Manifest{Width: 1, Height: 1, MPU: 1, Indoor: true})
	if indoor.world.SetWeather(WeatherSnow) || indoor.world.Weather() != WeatherNone {
		t.Fatalf("indoor world took weather")
	}

	if w, ok := ParseWeather("snow"); !ok || w != WeatherSnow {
		t.Fatalf("ParseWeather(snow) = %v, %v", w, ok)
	}
	if _, ok := ParseWeather("hail"); ok {
		t.Fatalf("ParseWeather accepted hail")
	}
}

func TestWaterAndCloudAnimation(t *testing.T) {
	f := newFixture(t, &Manifest{Width: 1, Height: 1, MPU: 1})
	f.world.SetCameraPos(mgl32.Vec3{10, 40, 10})
	f.world.SetCameraTarget(mgl32.Vec3{30, 0, 30})
	f.world.Update(100)
	if wf := f.world.WaterFrame(); wf < 14.99 || wf > 15.01 {
		t.Fatalf("water frame = %v, want 15", wf)
	}
	f.world.Update(10)
	if wf := f.world.WaterFrame(); wf < 0.49 || wf > 0.51 {
		t.Fatalf("water frame = %v, want 0.5 after wrap", wf)
	}
	c := f.world.Clouds()
	if c[0] < 0.109 || c[0] > 0.111 || c[1] < 0.164 || c[1] > 0.166 {
		t.Fatalf("cloud offsets = %v", c)
	}
}
