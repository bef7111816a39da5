package system

import (
	"math/rand/v2"
	"time"

	"github.com/terrastream/terrastream/internal/config"
	coresys "github.com/terrastream/terrastream/internal/core/system"
	"github.com/terrastream/terrastream/internal/scripting"
	"github.com/terrastream/terrastream/internal/world"
	"go.uber.org/zap"
)

// WeatherScript picks the next weather by name.
type WeatherScript interface {
	NextWeather(ctx scripting.WeatherContext) (string, bool)
}

// WeatherSystem asks the script for new weather every N frames. Indoor
// worlds and disabled weather effects keep the sky clear. Phase 1
// (PreUpdate).
type WeatherSystem struct {
	world   *world.World
	script  WeatherScript
	quality *config.QualityConfig
	every   int
	rng     *rand.Rand
	log     *zap.Logger
	frames  int
}

func NewWeatherSystem(w *world.World, script WeatherScript, quality *config.QualityConfig, every int, seed uint64, log *zap.Logger) *WeatherSystem {
	return &WeatherSystem{
		world:   w,
		script:  script,
		quality: quality,
		every:   max(every, 1),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:     log,
	}
}

func (s *WeatherSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *WeatherSystem) Update(_ time.Duration) {
	if s.world.Manifest() == nil {
		return
	}
	if s.world.Indoor() || !s.quality.WeatherEffects {
		s.world.SetWeather(world.WeatherNone)
		return
	}

	s.frames++
	if s.frames < s.every {
		return
	}
	s.frames = 0

	now := s.world.Clock().Now()
	name, ok := s.script.NextWeather(scripting.WeatherContext{
		Frame:   s.world.FrameNumber(),
		Hour:    now.Hour,
		Day:     now.Day,
		Night:   now.Night(),
		Indoor:  s.world.Indoor(),
		Current: s.world.Weather().String(),
		Roll:    s.rng.Float64(),
	})
	if !ok {
		return
	}
	wt, ok := world.ParseWeather(name)
	if !ok {
		s.log.Warn("unknown weather from script", zap.String("weather", name))
		return
	}
	s.world.SetWeather(wt)
}
