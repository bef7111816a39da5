package system

import (
	"time"

	coresys "github.com/terrastream/terrastream/internal/core/system"
	"github.com/terrastream/terrastream/internal/world"
)

// WorldSystem advances the game clock and runs one world update.
// Phase 2 (Update).
type WorldSystem struct {
	world *world.World
}

func NewWorldSystem(w *world.World) *WorldSystem {
	return &WorldSystem{world: w}
}

func (s *WorldSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *WorldSystem) Update(dt time.Duration) {
	s.world.Clock().Advance(dt)
	s.world.Update(1)
}
