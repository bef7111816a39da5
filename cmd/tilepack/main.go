// tilepack imports an asset directory into a sqlite pack or the postgres
// asset store, optionally re-encoding every payload.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/terrastream/terrastream/internal/asset"
	"github.com/terrastream/terrastream/internal/config"
	"github.com/terrastream/terrastream/internal/persist"
	"go.uber.org/zap"
)

const batchSize = 256

func main() {
	var (
		in       = flag.String("in", "assets", "source asset directory")
		pack     = flag.String("pack", "", "destination sqlite pack")
		postgres = flag.Bool("postgres", false, "import into the database from -config")
		cfgPath  = flag.String("config", "config/engine.toml", "engine config, for [database]")
		reencode = flag.String("reencode", "", "re-encode payloads as zlib or zstd")
	)
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	if (*pack == "") == !*postgres {
		fmt.Fprintln(os.Stderr, "Usage: tilepack -in <dir> (-pack <file> | -postgres [-config <toml>]) [-reencode zlib|zstd]")
		os.Exit(1)
	}

	var err error
	if *postgres {
		err = importPostgres(*in, *cfgPath, *reencode, log)
	} else {
		err = importPack(*in, *pack, *reencode, log)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// recoder returns a function that rewrites a stored payload into the
// requested format, or passes it through when format is empty.
func recoder(format string) (func(path string, raw []byte) ([]byte, error), error) {
	if format == "" {
		return func(_ string, raw []byte) ([]byte, error) { return raw, nil }, nil
	}
	f, err := asset.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return func(path string, raw []byte) ([]byte, error) {
		payload, err := asset.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return asset.Encode(payload, f)
	}, nil
}

// walk reads every file under dir and hands it to fn re-encoded.
func walk(ctx context.Context, dir, format string, fn func(path string, raw []byte) error) (int, error) {
	recode, err := recoder(format)
	if err != nil {
		return 0, err
	}
	src := asset.NewDirSource(dir)
	n := 0
	err = src.Walk(func(path string) error {
		raw, err := src.Fetch(ctx, path)
		if err != nil {
			return err
		}
		raw, err = recode(path, raw)
		if err != nil {
			return err
		}
		n++
		return fn(path, raw)
	})
	return n, err
}

func importPack(dir, packPath, format string, log *zap.Logger) error {
	ctx := context.Background()
	p, err := asset.OpenPack(packPath)
	if err != nil {
		return err
	}
	defer p.Close()

	n, err := walk(ctx, dir, format, func(path string, raw []byte) error {
		return p.Put(ctx, path, raw)
	})
	if err != nil {
		return err
	}
	total, err := p.Count(ctx)
	if err != nil {
		return err
	}
	log.Info("pack import done", zap.String("pack", packPath), zap.Int("imported", n), zap.Int("total", total))
	return nil
}

func importPostgres(dir, cfgPath, format string, log *zap.Logger) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	repo := persist.NewAssetRepo(db)

	var batch []persist.Entry
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := repo.PutBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	n, err := walk(ctx, dir, format, func(path string, raw []byte) error {
		batch = append(batch, persist.Entry{Path: path, Data: raw})
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	log.Info("postgres import done", zap.Int("imported", n))
	return nil
}
