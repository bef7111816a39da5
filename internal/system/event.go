package system

import (
	"time"

	"github.com/terrastream/terrastream/internal/core/event"
	coresys "github.com/terrastream/terrastream/internal/core/system"
)

// EventSystem delivers the events emitted since the previous dispatch.
// Events emitted by handlers wait for the next frame. Phase 1 (PreUpdate).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
