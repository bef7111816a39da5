// Package world streams the tile grid around the camera and decides every
// frame which tiles, patches and objects are visible and in what order
// they are drawn.
package world

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/config"
	"github.com/terrastream/terrastream/internal/core/event"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/model"
	"github.com/terrastream/terrastream/internal/resource"
	"go.uber.org/zap"
)

// Visible list capacities. Entries past a cap are dropped for the frame.
const (
	MaxCullLands   = 16
	MaxCullObjects = 5000
	MaxCullEffects = 500
)

// Fog band used when the manifest leaves it unset.
const (
	defaultFogStart = 70
	defaultFogEnd   = 400
)

// Deps are the collaborators a World needs. Bus, Lights and Quality may be
// nil.
type Deps struct {
	Loader  resource.Requester
	Models  *model.Manager
	Bus     *event.Bus
	Lights  *data.LightTable
	Quality *config.QualityConfig
	Log     *zap.Logger

	Width, Height int // viewport
	StartHour     int
}

// CullStats counts the outcome of the last cull pass.
type CullStats struct {
	Tiles    int `json:"tiles"`
	Objects  int `json:"objects"`
	Effects  int `json:"effects"`
	Skipped  int `json:"skipped"`
	Distance int `json:"distance_culled"`
	Frustum  int `json:"frustum_culled"`
	Dropped  int `json:"dropped"`
}

// World owns the tile grid and the per-frame visibility pipeline. All
// methods run on the frame-loop goroutine.
type World struct {
	*resource.Resource

	name     string
	deps     Deps
	log      *zap.Logger
	manifest *Manifest
	err      error

	width, height int
	lands         []*Landscape

	view      View
	viewDirty bool

	cullLands []*Landscape
	cullObjs  []*Object
	cullFx    []*Object
	deleteQ   []*Object
	stats     CullStats

	waterFrame float32
	clouds     [2]float32
	weather    Weather
	clock      *Clock
	frameNo    uint64
	nextID     uint64
}

// New creates the named world and starts loading its manifest. The world
// stays inert until the manifest arrives; a failed manifest is reported by
// Err.
func New(name string, deps Deps) *World {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	w := &World{
		name:      name,
		deps:      deps,
		log:       deps.Log.With(zap.String("world", name)),
		viewDirty: true,
		cullLands: make([]*Landscape, 0, MaxCullLands),
		cullObjs:  make([]*Object, 0, 256),
		cullFx:    make([]*Object, 0, 64),
		clock:     NewClock(deps.StartHour),
	}
	w.Resource = resource.New(ManifestPath(name), deps.Loader, w.log, w.onLoad)
	w.OnFail(func(err error) {
		w.err = fmt.Errorf("world %s: %w", name, err)
		w.log.Error("world manifest failed", zap.Error(err))
	})
	w.StartLoad()
	return w
}

func (w *World) onLoad(payload []byte) error {
	m, err := DecodeManifest(payload)
	if err != nil {
		return err
	}
	if m.FogStart == 0 && m.FogEnd == 0 {
		m.FogStart, m.FogEnd = defaultFogStart, defaultFogEnd
	}
	w.manifest = m
	w.width, w.height = int(m.Width), int(m.Height)
	w.lands = make([]*Landscape, w.width*w.height)
	w.view.MPU = float32(m.MPU)
	w.viewDirty = true
	w.err = nil

	w.log.Info("world manifest loaded",
		zap.Int("width", w.width),
		zap.Int("height", w.height),
		zap.Int32("mpu", m.MPU),
		zap.Bool("indoor", m.Indoor),
	)
	return nil
}

// Err returns the manifest load failure, if any.
func (w *World) Err() error { return w.err }

func (w *World) Name() string               { return w.name }
func (w *World) Manifest() *Manifest        { return w.manifest }
func (w *World) Size() (int, int)           { return w.width, w.height }
func (w *World) View() *View                { return &w.view }
func (w *World) Clock() *Clock              { return w.clock }
func (w *World) Weather() Weather           { return w.weather }
func (w *World) Stats() CullStats           { return w.stats }
func (w *World) FrameNumber() uint64        { return w.frameNo }
func (w *World) WaterFrame() float32        { return w.waterFrame }
func (w *World) Clouds() [2]float32         { return w.clouds }
func (w *World) VisibleTiles() []*Landscape { return w.cullLands }

// VisibleObjects returns the far-to-near sorted non-effect objects.
func (w *World) VisibleObjects() []*Object { return w.cullObjs }

// VisibleEffects returns the far-to-near sorted effect objects.
func (w *World) VisibleEffects() []*Object { return w.cullFx }

// Indoor reports whether the manifest marks the world as indoor.
func (w *World) Indoor() bool {
	return w.manifest != nil && w.manifest.Indoor
}

// Tile returns the tile at grid coordinate (x, z), nil when it was never
// requested or the coordinate is outside the grid.
func (w *World) Tile(x, z int) *Landscape {
	if x < 0 || z < 0 || x >= w.width || z >= w.height {
		return nil
	}
	return w.lands[x+z*w.width]
}

// Tiles calls fn for every tile that has been requested.
func (w *World) Tiles(fn func(*Landscape)) {
	for _, l := range w.lands {
		if l != nil {
			fn(l)
		}
	}
}

func (w *World) SetCameraPos(p mgl32.Vec3) {
	if w.view.CameraPos != p {
		w.view.CameraPos = p
		w.viewDirty = true
	}
}

func (w *World) SetCameraTarget(p mgl32.Vec3) {
	if w.view.CameraTarget != p {
		w.view.CameraTarget = p
		w.viewDirty = true
	}
}

// SetUpdateView forces the view to be recomputed on the next Update.
func (w *World) SetUpdateView() {
	w.viewDirty = true
}

func (w *World) quality() config.QualityConfig {
	if w.deps.Quality == nil {
		return config.QualityConfig{FieldViewFactor: 1}
	}
	return *w.deps.Quality
}

// TileNeighborhood lists the grid coordinates within radius of (cx, cz),
// z outer and x inner. Coordinates outside [0,w)x[0,h) are skipped.
func TileNeighborhood(cx, cz, radius, w, h int) [][2]int {
	var out [][2]int
	for z := cz - radius; z <= cz+radius; z++ {
		if z < 0 || z >= h {
			continue
		}
		for x := cx - radius; x <= cx+radius; x++ {
			if x < 0 || x >= w {
				continue
			}
			out = append(out, [2]int{x, z})
		}
	}
	return out
}

func (w *World) neighborhood() [][2]int {
	cx, cz := w.view.tileCoord(w.view.CameraPos)
	return TileNeighborhood(cx, cz, w.view.VisibilityLand, w.width, w.height)
}

func (w *World) requestTile(x, z int) *Landscape {
	l := newLandscape(w, x, z)
	w.lands[x+z*w.width] = l
	l.StartLoad()
	return l
}

// updateView recomputes the camera matrices, frustum and fog band, then
// requests missing tiles in range and re-culls the loaded ones.
func (w *World) updateView(q config.QualityConfig) {
	fogStart, fogEnd := float32(defaultFogStart), float32(defaultFogEnd)
	if w.manifest != nil {
		fogStart, fogEnd = w.manifest.FogStart, w.manifest.FogEnd
	}
	w.view.update(q.FieldViewFactor, w.deps.Width, w.deps.Height, fogStart, fogEnd)

	for _, c := range w.neighborhood() {
		l := w.lands[c[0]+c[1]*w.width]
		switch {
		case l == nil:
			w.requestTile(c[0], c[1])
		case l.Loaded():
			l.UpdateCull(&w.view)
		}
	}
	w.viewDirty = false
}

// SelectVisibleTiles rebuilds the visible tile list from the camera's
// neighborhood, requesting any tile not seen before.
func (w *World) SelectVisibleTiles() {
	w.cullLands = w.cullLands[:0]
	for _, c := range w.neighborhood() {
		l := w.lands[c[0]+c[1]*w.width]
		if l == nil {
			w.requestTile(c[0], c[1])
			continue
		}
		if l.Loaded() && l.Visible() && len(w.cullLands) < MaxCullLands {
			w.cullLands = append(w.cullLands, l)
		}
	}
}

// Update runs one simulation step: view, tile selection, water and cloud
// animation, object animation, deletion drain and cull. It does nothing
// until the manifest is loaded.
func (w *World) Update(frames int) {
	if !w.Loaded() {
		return
	}
	w.frameNo++

	q := w.quality()
	if w.viewDirty {
		w.updateView(q)
	}
	w.SelectVisibleTiles()

	f := float32(frames)
	w.waterFrame = fmod(w.waterFrame+0.15*f, 16)
	w.clouds[0] = fmod(w.clouds[0]+0.001*f, 1)
	w.clouds[1] = fmod(w.clouds[1]+0.0015*f, 1)

	w.animate(frames)
	w.drainDeletes()
	w.cullObjects(q.FieldViewFactor)
}

func (w *World) animate(frames int) {
	limit := max(150, w.view.FarPlane/2)
	for _, l := range w.cullLands {
		for t := data.ObjAnimated; t < data.ObjectTypeCount; t++ {
			for _, o := range l.objects[t] {
				if !o.deleted && o.dist < limit {
					o.Update(frames)
				}
			}
		}
	}
}

// drainDeletes unlinks every pending object from its tile bucket and then
// destroys it.
func (w *World) drainDeletes() {
	for _, o := range w.deleteQ {
		if o.land != nil {
			o.land.remove(o)
		}
		ev := event.ObjectDestroyed{ID: o.id, Effect: o.IsEffect()}
		if o.model != nil {
			ev.ModelID = o.model.Prop().ID
		}
		o.destroy()
		emit(w, ev)
	}
	clear(w.deleteQ)
	w.deleteQ = w.deleteQ[:0]
}

// CullObjects culls every live object of every visible tile and rebuilds
// the two far-to-near visible lists.
func (w *World) CullObjects() {
	w.cullObjects(w.quality().FieldViewFactor)
}

func (w *World) cullObjects(fieldViewFactor float32) {
	w.cullObjs = w.cullObjs[:0]
	w.cullFx = w.cullFx[:0]
	stats := CullStats{Tiles: len(w.cullLands)}

	for _, l := range w.cullLands {
		for t := range l.objects {
			for _, o := range l.objects[t] {
				if o.world == nil || o.deleted {
					continue
				}
				switch o.Cull(&w.view, fieldViewFactor) {
				case CullSkipped:
					stats.Skipped++
					continue
				case CullDistance:
					stats.Distance++
					continue
				case CullFrustum:
					stats.Frustum++
					continue
				}
				if o.IsEffect() {
					if len(w.cullFx) < MaxCullEffects {
						w.cullFx = append(w.cullFx, o)
					} else {
						stats.Dropped++
					}
				} else if len(w.cullObjs) < MaxCullObjects {
					w.cullObjs = append(w.cullObjs, o)
				} else {
					stats.Dropped++
				}
			}
		}
	}

	slices.SortStableFunc(w.cullObjs, SortFarToNear)
	slices.SortStableFunc(w.cullFx, SortFarToNear)
	stats.Objects = len(w.cullObjs)
	stats.Effects = len(w.cullFx)
	w.stats = stats
}

// AddObject attaches a free object to the tile under its position.
func (w *World) AddObject(o *Object) error {
	if o.world != nil || o.destroyed {
		return ErrAlreadyAttached
	}
	if o.model == nil {
		return ErrNoModel
	}
	if !w.VecInWorld(o.pos[0], o.pos[2]) {
		return fmt.Errorf("add object at %v: %w", o.pos, ErrOutsideWorld)
	}
	l := w.Landscape(o.pos)
	if l == nil || !l.Loaded() {
		return fmt.Errorf("add object at %v: %w", o.pos, ErrNoTile)
	}
	o.world = w
	o.id = w.nextObjectID()
	l.add(o)
	return nil
}

// DeleteObject marks o for deletion at the next drain. Repeated calls are
// no-ops. The object keeps its bucket slot and its last visibility until
// then.
func (w *World) DeleteObject(o *Object) {
	if o.world != w || o.deleted || o.destroyed {
		return
	}
	o.deleted = true
	w.deleteQ = append(w.deleteQ, o)
}

// PendingDeletes returns the length of the deletion queue.
func (w *World) PendingDeletes() int { return len(w.deleteQ) }

// SetWeather switches the weather. Indoor worlds keep WeatherNone. It
// reports whether the state changed.
func (w *World) SetWeather(wt Weather) bool {
	if w.Indoor() {
		wt = WeatherNone
	}
	if wt == w.weather {
		return false
	}
	emit(w, event.WeatherChanged{From: w.weather.String(), To: wt.String()})
	w.log.Info("weather changed",
		zap.Stringer("from", w.weather),
		zap.Stringer("to", wt),
	)
	w.weather = wt
	return true
}

// Close releases every object and tile. Pending loads finish against
// orphaned resources.
func (w *World) Close() {
	w.drainDeletes()
	for i, l := range w.lands {
		if l == nil {
			continue
		}
		for t := range l.objects {
			for _, o := range l.objects[t] {
				o.destroy()
			}
			l.objects[t] = nil
		}
		l.Release()
		w.lands[i] = nil
	}
	w.cullLands = w.cullLands[:0]
	w.cullObjs = w.cullObjs[:0]
	w.cullFx = w.cullFx[:0]
}

func (w *World) nextObjectID() uint64 {
	w.nextID++
	return w.nextID
}

func emit[T any](w *World, ev T) {
	if w.deps.Bus != nil {
		event.Emit(w.deps.Bus, ev)
	}
}

func fmod(a, b float32) float32 {
	return float32(math.Mod(float64(a), float64(b)))
}
