// tilegen writes a synthetic demo world into an asset directory or pack.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/terrastream/terrastream/internal/asset"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/synth"
	"go.uber.org/zap"
)

func main() {
	var (
		out     = flag.String("out", "assets", "output asset directory")
		pack    = flag.String("pack", "", "write into this sqlite pack instead of a directory")
		name    = flag.String("name", "demo", "world name")
		width   = flag.Int("width", 4, "tiles along x")
		height  = flag.Int("height", 4, "tiles along z")
		mpu     = flag.Int("mpu", 2, "world units per grid cell")
		seed    = flag.Uint64("seed", 1, "generator seed")
		objects = flag.Int("objects", 24, "static objects per tile")
		indoor  = flag.Bool("indoor", false, "generate an indoor world")
		format  = flag.String("format", "zstd", "payload format: zlib or zstd")
		encName = flag.String("encoding", "cp949", "code page for catalog names")
	)
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	if err := run(*out, *pack, synthOptions(*name, *width, *height, *mpu, *seed, *objects, *indoor), *format, *encName, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func synthOptions(name string, w, h, mpu int, seed uint64, objects int, indoor bool) synth.Options {
	return synth.Options{
		Name:           name,
		Width:          w,
		Height:         h,
		MPU:            int32(mpu),
		Seed:           seed,
		ObjectsPerTile: objects,
		Indoor:         indoor,
	}
}

func run(out, packPath string, opt synth.Options, format, encName string, log *zap.Logger) error {
	f, err := asset.ParseFormat(format)
	if err != nil {
		return err
	}
	enc, err := data.ParseEncoding(encName)
	if err != nil {
		return err
	}
	opt.Format = f
	opt.Encoding = enc

	var store asset.Store
	if packPath != "" {
		p, err := asset.OpenPack(packPath)
		if err != nil {
			return err
		}
		defer p.Close()
		store = p
	} else {
		store = asset.NewDirSource(out)
	}

	sum, err := synth.Generate(context.Background(), store, opt, log)
	if err != nil {
		return err
	}
	target := out
	if packPath != "" {
		target = packPath
	}
	fmt.Printf("Wrote %d assets (%d tiles, %d objects, %d effects) to %s\n",
		sum.Assets, sum.Tiles, sum.Objects, sum.Effects, target)
	return nil
}
