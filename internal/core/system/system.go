package system

import "time"

// Phase defines execution ordering within a single frame.
type Phase int

const (
	PhaseInput     Phase = iota // 0: apply load completions, move the camera
	PhasePreUpdate              // 1: dispatch last frame's events, weather
	PhaseUpdate                 // 2: world update, cull and sort
	PhaseOutput                 // 3: hand the frame to renderers
	PhaseCleanup                // 4: frame counters
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhaseOutput:
		return "output"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is one stage of the frame loop.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
