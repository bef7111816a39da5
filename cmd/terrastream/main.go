package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/asset"
	"github.com/terrastream/terrastream/internal/config"
	"github.com/terrastream/terrastream/internal/core/event"
	coresys "github.com/terrastream/terrastream/internal/core/system"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/inspect"
	"github.com/terrastream/terrastream/internal/model"
	"github.com/terrastream/terrastream/internal/persist"
	"github.com/terrastream/terrastream/internal/resource"
	"github.com/terrastream/terrastream/internal/scripting"
	"github.com/terrastream/terrastream/internal/system"
	"github.com/terrastream/terrastream/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const lightTablePath = "data/yaml/light_table.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(world string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            terrastream  v0.1.0            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mworld:\033[0m %s\n\n", world)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main engine logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/engine.toml"
	if p := os.Getenv("TERRASTREAM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.World.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Asset source
	printSection("assets")
	src, closeSrc, err := openSource(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("asset source: %w", err)
	}
	defer closeSrc()
	printOK(fmt.Sprintf("source %s ready", cfg.Assets.Source))

	// 4. Static data
	catalog, err := loadProject(ctx, src, cfg, log)
	if err != nil {
		return fmt.Errorf("project: %w", err)
	}
	printStat("model props", catalog.Count())

	lights, err := data.LoadLightTable(lightTablePath)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("light table missing, using built-in colors", zap.String("path", lightTablePath))
		lights = data.DefaultLightTable()
	} else if err != nil {
		return fmt.Errorf("light table: %w", err)
	}
	fmt.Println()

	// 5. Loader, models, world
	printSection("world")
	loader := resource.NewLoader(src, cfg.Loader, log)
	defer loader.Close()

	models := model.NewManager(catalog, loader, cfg.Engine.ModelDir, log)
	defer models.Close()

	bus := event.NewBus()
	event.Subscribe(bus, func(ev event.TileFailed) {
		log.Debug("tile failed event", zap.Int("x", ev.X), zap.Int("z", ev.Z), zap.String("reason", ev.Reason))
	})

	quality := cfg.Quality
	w := world.New(cfg.World.Name, world.Deps{
		Loader:    loader,
		Models:    models,
		Bus:       bus,
		Lights:    lights,
		Quality:   &quality,
		Log:       log,
		Width:     cfg.View.Width,
		Height:    cfg.View.Height,
		StartHour: cfg.World.StartHour,
	})
	defer w.Close()

	if err := waitForManifest(ctx, loader, w, cfg.Loader.FetchTimeout); err != nil {
		return err
	}
	tw, th := w.Size()
	printStat("tiles wide", tw)
	printStat("tiles high", th)
	fmt.Println()

	// 6. Systems
	var renderers []world.Renderer
	if cfg.Inspector.Enabled {
		insp := inspect.NewServer(log)
		renderers = append(renderers, insp)
		go func() {
			if err := insp.ListenAndServe(ctx, cfg.Inspector.BindAddress); err != nil {
				log.Error("inspector stopped", zap.Error(err))
			}
		}()
	}

	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(loader, log))
	runner.Register(system.NewCameraSystem(w,
		mgl32.Vec3(cfg.Camera.Start), mgl32.Vec3(cfg.Camera.Target),
		cfg.Camera.OrbitRadius, cfg.Camera.OrbitSpeed))
	runner.Register(system.NewEventSystem(bus))
	if cfg.Scripting.Enabled {
		engine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer engine.Close()
		runner.Register(system.NewWeatherSystem(w, engine, &quality, cfg.Engine.WeatherEvery, uint64(time.Now().UnixNano()), log))
	}
	runner.Register(system.NewWorldSystem(w))
	runner.Register(system.NewOutputSystem(w, renderers...))
	runner.Register(system.NewCleanupSystem(w, loader, 300, log))

	// 7. Frame loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Engine.FrameRate)
	defer ticker.Stop()

	printSection("running")
	printReady(fmt.Sprintf("frame loop started (frame: %s)", cfg.Engine.FrameRate))
	if cfg.Inspector.Enabled {
		printReady(fmt.Sprintf("inspector on http://%s/debug/frame", cfg.Inspector.BindAddress))
	}
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Engine.FrameRate)
			if cfg.Engine.MaxFrames > 0 && runner.Frames() >= uint64(cfg.Engine.MaxFrames) {
				st := w.Stats()
				log.Info("frame limit reached",
					zap.Uint64("frames", runner.Frames()),
					zap.Int("tiles", st.Tiles),
					zap.Int("objects", st.Objects),
				)
				return nil
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			return nil
		}
	}
}

// openSource builds the configured asset source, wrapped in the fetch
// cache when one is configured.
func openSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (asset.Source, func(), error) {
	var (
		src     asset.Source
		closers []func()
	)
	switch cfg.Assets.Source {
	case "dir":
		src = asset.NewDirSource(cfg.Assets.Dir)
	case "pack":
		p, err := asset.OpenPack(cfg.Assets.PackPath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { p.Close() })
		src = p
	case "postgres":
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := persist.RunMigrations(dbCtx, db.Pool, log); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		closers = append(closers, db.Close)
		src = persist.NewAssetRepo(db)
	}

	if cfg.Assets.CacheBytes > 0 {
		cached, err := asset.NewCachedSource(src, cfg.Assets.CacheBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch cache: %w", err)
		}
		closers = append(closers, cached.Close)
		src = cached
	}

	return src, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

// loadProject reads the model catalog. The engine cannot place any object
// without it, so every error is fatal.
func loadProject(ctx context.Context, src asset.Source, cfg *config.Config, log *zap.Logger) (*data.ModelCatalog, error) {
	raw, err := src.Fetch(ctx, cfg.Engine.ProjectPath)
	if err != nil {
		return nil, err
	}
	payload, err := asset.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Engine.ProjectPath, err)
	}
	enc, err := data.ParseEncoding(cfg.Assets.ManifestEncoding)
	if err != nil {
		return nil, err
	}
	return data.ParseProject(payload, enc, log)
}

// waitForManifest pumps load completions until the world manifest is in.
func waitForManifest(ctx context.Context, loader *resource.Loader, w *world.World, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := loader.Flush(ctx); err != nil {
		return fmt.Errorf("world %s: %w", w.Name(), err)
	}
	if err := w.Err(); err != nil {
		return err
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
