package system

import (
	"time"

	coresys "github.com/terrastream/terrastream/internal/core/system"
	"github.com/terrastream/terrastream/internal/world"
	"go.uber.org/zap"
)

// LoadCounter reports loads still queued or in flight.
type LoadCounter interface {
	Pending() int
}

// CleanupSystem logs a frame summary every N frames. Phase 4 (Cleanup).
type CleanupSystem struct {
	world  *world.World
	loads  LoadCounter
	every  int
	frames int
	log    *zap.Logger
}

func NewCleanupSystem(w *world.World, loads LoadCounter, every int, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: w, loads: loads, every: max(every, 1), log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.frames++
	if s.frames%s.every != 0 || s.world.Manifest() == nil {
		return
	}
	st := s.world.Stats()
	s.log.Info("frame stats",
		zap.Uint64("frame", s.world.FrameNumber()),
		zap.Int("tiles", st.Tiles),
		zap.Int("objects", st.Objects),
		zap.Int("effects", st.Effects),
		zap.Int("dropped", st.Dropped),
		zap.Int("pending_loads", s.loads.Pending()),
		zap.Stringer("weather", s.world.Weather()),
	)
}
