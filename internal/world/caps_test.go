package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/config"
	"github.com/terrastream/terrastream/internal/data"
)

func TestSaturatedLoaderLeavesNoHoles(t *testing.T) {
	const n = 17
	f := newFixtureWithLoader(t, &Manifest{Width: n, Height: n, MPU: 1},
		config.LoaderConfig{Workers: 2, QueueSize: 4, Burst: 1})
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			f.putTile(flatTile(x, z, 0))
		}
	}

	mid := float32(n*MapSize) / 2
	f.world.SetCameraPos(mgl32.Vec3{mid, 60, mid - 40})
	f.world.SetCameraTarget(mgl32.Vec3{mid, 0, mid})
	f.world.Update(1)

	requested := len(f.req.tiles())
	if requested <= 4 {
		t.Fatalf("requested %d tiles, want more than the queue holds", requested)
	}
	if f.loader.Backlog() == 0 {
		t.Fatalf("no backlog with %d requests and a queue of 4", requested)
	}

	for range 3 {
		f.flush()
		f.world.Update(1)
	}

	loaded, failed := 0, 0
	f.world.Tiles(func(l *Landscape) {
		if l.Loaded() {
			loaded++
		}
		if l.Failed() {
			failed++
		}
	})
	if failed != 0 || loaded != requested {
		t.Fatalf("loaded %d of %d requested tiles, %d failed", loaded, requested, failed)
	}
	if bad := len(f.logs.FilterMessage("tile unusable").All()); bad != 0 {
		t.Fatalf("%d tiles logged as unusable", bad)
	}
}

func TestVisibleTileCap(t *testing.T) {
	const n = 8
	f := newFixture(t, &Manifest{Width: n, Height: n, MPU: 1})
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			f.putTile(flatTile(x, z, 0))
		}
	}

	// looking almost straight down from high up covers far more than 16 tiles
	mid := float32(n*MapSize) / 2
	f.world.SetCameraPos(mgl32.Vec3{mid, 400, mid - 1})
	f.world.SetCameraTarget(mgl32.Vec3{mid, 0, mid})
	f.world.Update(1)
	f.flush()
	f.world.Update(1)

	visible := 0
	f.world.Tiles(func(l *Landscape) {
		if l.Loaded() && l.Visible() {
			visible++
		}
	})
	if visible <= MaxCullLands {
		t.Fatalf("only %d tiles visible, the cap is never reached", visible)
	}
	if got := len(f.world.VisibleTiles()); got != MaxCullLands {
		t.Fatalf("visible tile list holds %d, want %d", got, MaxCullLands)
	}
	if f.world.Stats().Tiles != MaxCullLands {
		t.Fatalf("stats tiles = %d", f.world.Stats().Tiles)
	}
}

func TestVisibleObjectCaps(t *testing.T) {
	f := demoFixture(t)
	w := f.world
	pos := mgl32.Vec3{32, 12, 32}

	const extraFx = 10
	for i := 0; i < MaxCullEffects+extraFx; i++ {
		if _, err := SpawnEffect(w, f.models, sparkID, pos); err != nil {
			t.Fatalf("spawn %d: %v", i, err)
		}
	}
	// the fixture already placed one rock
	const extraObjs = 5
	for i := 0; i < MaxCullObjects+extraObjs-1; i++ {
		o := NewObject(data.ObjStatic)
		o.SetPos(pos)
		if err := o.SetModelID(f.models, rockID); err != nil {
			t.Fatalf("set model: %v", err)
		}
		if err := w.AddObject(o); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	f.flush()

	w.CullObjects()
	if got := len(w.VisibleEffects()); got != MaxCullEffects {
		t.Fatalf("visible effects = %d, want %d", got, MaxCullEffects)
	}
	if got := len(w.VisibleObjects()); got != MaxCullObjects {
		t.Fatalf("visible objects = %d, want %d", got, MaxCullObjects)
	}
	st := w.Stats()
	if st.Dropped != extraFx+extraObjs {
		t.Fatalf("dropped = %d, want %d", st.Dropped, extraFx+extraObjs)
	}
	if st.Effects != MaxCullEffects || st.Objects != MaxCullObjects {
		t.Fatalf("stats = %+v", st)
	}
}
