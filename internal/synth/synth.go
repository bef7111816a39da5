// Package synth generates deterministic demo worlds: a project catalog,
// model files, a world manifest and every tile.
package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/asset"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/model"
	"github.com/terrastream/terrastream/internal/world"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Model ids in the generated catalog.
const (
	RockID     = 1
	TreeID     = 2
	WindmillID = 3
	SparkID    = 7
)

const (
	waterLevel   = 14
	cloudLevel   = 90
	rockLevel    = 28
	waterTexture = 1
)

type Options struct {
	Name           string
	Width, Height  int
	MPU            int32
	Seed           uint64
	Format         asset.Format
	Encoding       encoding.Encoding
	ObjectsPerTile int
	Indoor         bool
	ProjectPath    string
	ModelDir       string
}

// Summary counts what Generate wrote.
type Summary struct {
	Tiles   int
	Objects int
	Effects int
	Assets  int
}

type generator struct {
	ctx   context.Context
	store asset.Store
	opt   Options
	log   *zap.Logger
	sum   Summary
}

// Generate writes a complete world into store.
func Generate(ctx context.Context, store asset.Store, opt Options, log *zap.Logger) (Summary, error) {
	if opt.Width < 1 || opt.Height < 1 {
		return Summary{}, fmt.Errorf("world size %dx%d invalid", opt.Width, opt.Height)
	}
	if opt.MPU < 1 {
		opt.MPU = 1
	}
	if opt.ProjectPath == "" {
		opt.ProjectPath = "project.bin"
	}
	if opt.ModelDir == "" {
		opt.ModelDir = "model"
	}
	g := &generator{ctx: ctx, store: store, opt: opt, log: log}

	if err := g.project(); err != nil {
		return g.sum, err
	}
	if err := g.models(); err != nil {
		return g.sum, err
	}
	m := &world.Manifest{
		Width:    int32(opt.Width),
		Height:   int32(opt.Height),
		MPU:      opt.MPU,
		FogStart: 70,
		FogEnd:   400,
		Indoor:   opt.Indoor,
		Ambient:  mgl32.Vec3{0.3, 0.3, 0.3},
		Diffuse:  mgl32.Vec3{0.6, 0.6, 0.55},
		LightDir: mgl32.Vec3{-0.4, -1, 0.2},
	}
	if err := g.put(world.ManifestPath(opt.Name), world.EncodeManifest(m)); err != nil {
		return g.sum, err
	}
	for z := 0; z < opt.Height; z++ {
		for x := 0; x < opt.Width; x++ {
			if err := g.put(world.TilePath(opt.Name, x, z), world.EncodeTile(g.tile(x, z))); err != nil {
				return g.sum, err
			}
			g.sum.Tiles++
		}
	}
	log.Info("world generated",
		zap.String("world", opt.Name),
		zap.Int("tiles", g.sum.Tiles),
		zap.Int("objects", g.sum.Objects),
		zap.Int("effects", g.sum.Effects),
	)
	return g.sum, nil
}

func (g *generator) put(path string, payload []byte) error {
	raw, err := asset.Encode(payload, g.opt.Format)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := g.store.Put(g.ctx, path, raw); err != nil {
		return err
	}
	g.sum.Assets++
	return nil
}

func (g *generator) project() error {
	props := []data.ModelProp{
		{Type: data.ObjStatic, ID: RockID, File: "rock", ModelType: data.ModelMesh, Distant: 1},
		{Type: data.ObjStatic, ID: TreeID, File: "tree", ModelType: data.ModelMesh, Distant: 0},
		{Type: data.ObjStatic, ID: WindmillID, File: "windmill", ModelType: data.ModelAnimated, Distant: 3},
		{Type: data.ObjEffect, ID: SparkID, File: "spark", ModelType: data.ModelEffect, Distant: 2},
	}
	return g.put(g.opt.ProjectPath, data.EncodeProject(props, g.opt.Encoding))
}

func (g *generator) models() error {
	files := map[string]*model.FileData{
		"rock": {Objects: []model.Object3D{{Name: "rock", BBMin: mgl32.Vec3{-2, 0, -2}, BBMax: mgl32.Vec3{2, 3, 2}}}},
		"tree": {Objects: []model.Object3D{
			{Name: "trunk", BBMin: mgl32.Vec3{-0.5, 0, -0.5}, BBMax: mgl32.Vec3{0.5, 6, 0.5}},
			{Name: "crown", BBMin: mgl32.Vec3{-3, 4, -3}, BBMax: mgl32.Vec3{3, 10, 3}},
		}},
		"windmill": {
			Objects: []model.Object3D{{Name: "mill", BBMin: mgl32.Vec3{-4, 0, -4}, BBMax: mgl32.Vec3{4, 18, 4}}},
			Motion:  &model.Motion{Name: "spin", Frames: 48},
		},
		"spark": {Sfx: &model.SfxDef{Name: "spark", BBMin: mgl32.Vec3{-1, 0, -1}, BBMax: mgl32.Vec3{1, 2, 1}, Frames: 24}},
	}
	for _, name := range []string{"rock", "tree", "windmill", "spark"} {
		if err := g.put(g.opt.ModelDir+"/"+name+".bin", model.EncodeFile(files[name])); err != nil {
			return err
		}
	}
	return nil
}

// height is a smooth field over world grid coordinates, so neighboring
// tiles agree on their shared edge.
func (g *generator) height(gx, gz int) float32 {
	fx, fz := float64(gx), float64(gz)
	s := float64(g.opt.Seed%997) * 0.01
	h := 20 + 12*math.Sin(fx/9+s)*math.Cos(fz/11-s) + 6*math.Sin((fx+fz)/23)
	return float32(h)
}

func (g *generator) tile(tx, tz int) *world.TileData {
	rng := rand.New(rand.NewPCG(g.opt.Seed, uint64(tx)<<32|uint64(tz)))
	td := &world.TileData{X: int32(tx), Z: int32(tz)}

	ox, oz := tx*world.MapSize, tz*world.MapSize
	for z := 0; z <= world.MapSize; z++ {
		for x := 0; x <= world.MapSize; x++ {
			h := g.height(ox+x, oz+z)
			tier := world.TierNone
			if h < waterLevel-4 {
				tier = world.TierNoWalk
			}
			td.Heights[x+z*(world.MapSize+1)] = world.EncodeHeight(h, tier)
		}
	}

	base := world.Layer{TextureID: 100}
	rock := world.Layer{TextureID: 101, LightmapOffset: mgl32.Vec2{0.5, 0}}
	for pz := 0; pz < world.PatchesPerSide; pz++ {
		for px := 0; px < world.PatchesPerSide; px++ {
			i := px + pz*world.PatchesPerSide
			base.PatchEnabled[i] = true
			lo, hi := g.patchRange(ox+px*world.PatchSize, oz+pz*world.PatchSize)
			if hi > rockLevel {
				rock.PatchEnabled[i] = true
			}
			switch {
			case lo < waterLevel:
				td.Water[i] = world.WaterHeight{Type: world.WaterWater, Texture: waterTexture, Height: waterLevel}
			case (px+pz+tx+tz)%13 == 0:
				td.Water[i] = world.WaterHeight{Type: world.WaterCloud, Height: cloudLevel}
			}
		}
	}
	td.Layers = []world.Layer{base, rock}

	td.Lightmap = world.Lightmap{W: world.LightmapSize, H: world.LightmapSize}
	td.Lightmap.Texels = make([]byte, world.LightmapSize*world.LightmapSize*4)
	for i := 0; i < len(td.Lightmap.Texels); i += 4 {
		v := byte(160 + rng.IntN(64))
		td.Lightmap.Texels[i], td.Lightmap.Texels[i+1], td.Lightmap.Texels[i+2], td.Lightmap.Texels[i+3] = v, v, v, 255
	}

	ids := []int32{RockID, TreeID, TreeID, WindmillID}
	for range g.opt.ObjectsPerTile {
		x := rng.Float32() * world.MapSize
		z := rng.Float32() * world.MapSize
		h := g.height(ox+int(x), oz+int(z))
		if h < waterLevel {
			continue
		}
		s := 0.8 + rng.Float32()*0.4
		td.Static = append(td.Static, world.TileObject{
			ModelID: ids[rng.IntN(len(ids))],
			Pos:     mgl32.Vec3{x, h, z},
			Rot:     mgl32.Vec3{0, rng.Float32() * 360, 0},
			Scale:   mgl32.Vec3{s, s, s},
		})
		g.sum.Objects++
	}
	if g.opt.ObjectsPerTile > 0 {
		x, z := rng.Float32()*world.MapSize, rng.Float32()*world.MapSize
		td.Effects = append(td.Effects, world.TileObject{
			ModelID: SparkID,
			Pos:     mgl32.Vec3{x, g.height(ox+int(x), oz+int(z)), z},
			Scale:   mgl32.Vec3{1, 1, 1},
		})
		g.sum.Effects++
	}
	return td
}

func (g *generator) patchRange(gx, gz int) (lo, hi float32) {
	lo, hi = math.MaxFloat32, -math.MaxFloat32
	for z := 0; z <= world.PatchSize; z++ {
		for x := 0; x <= world.PatchSize; x++ {
			h := g.height(gx+x, gz+z)
			lo, hi = min(lo, h), max(hi, h)
		}
	}
	return lo, hi
}
