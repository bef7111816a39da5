package system

import (
	"time"

	coresys "github.com/terrastream/terrastream/internal/core/system"
	"github.com/terrastream/terrastream/internal/world"
)

// OutputSystem snapshots the frame and hands it to every renderer.
// Phase 3 (Output).
type OutputSystem struct {
	world     *world.World
	renderers []world.Renderer
}

func NewOutputSystem(w *world.World, renderers ...world.Renderer) *OutputSystem {
	return &OutputSystem{world: w, renderers: renderers}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	if len(s.renderers) == 0 || s.world.Manifest() == nil {
		return
	}
	f := s.world.BuildFrame()
	for _, r := range s.renderers {
		r.Render(f)
	}
}
