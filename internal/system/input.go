package system

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	coresys "github.com/terrastream/terrastream/internal/core/system"
	"github.com/terrastream/terrastream/internal/world"
	"go.uber.org/zap"
)

// Drainer applies finished background loads on the calling goroutine.
type Drainer interface {
	Drain() int
}

// InputSystem applies completed resource loads so their callbacks run
// before the world updates. Phase 0 (Input).
type InputSystem struct {
	loader Drainer
	log    *zap.Logger
	total  int
}

func NewInputSystem(loader Drainer, log *zap.Logger) *InputSystem {
	return &InputSystem{loader: loader, log: log}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	n := s.loader.Drain()
	if n > 0 {
		s.total += n
		s.log.Debug("loads applied", zap.Int("count", n), zap.Int("total", s.total))
	}
}

// Applied returns the number of load completions applied so far.
func (s *InputSystem) Applied() int { return s.total }

// CameraSystem flies the camera in a circle around the configured target.
// A zero speed leaves the camera at its start position. Phase 0 (Input).
type CameraSystem struct {
	world  *world.World
	target mgl32.Vec3
	height float32
	radius float32
	speed  float32 // degrees per frame
	angle  float32
}

func NewCameraSystem(w *world.World, start, target mgl32.Vec3, radius, speed float32) *CameraSystem {
	s := &CameraSystem{
		world:  w,
		target: target,
		height: start[1],
		radius: radius,
		speed:  speed,
	}
	w.SetCameraPos(start)
	w.SetCameraTarget(target)
	return s
}

func (s *CameraSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *CameraSystem) Update(_ time.Duration) {
	if s.speed == 0 || s.radius <= 0 {
		return
	}
	s.angle += s.speed
	if s.angle >= 360 {
		s.angle -= 360
	}
	rad := mgl32.DegToRad(s.angle)
	pos := mgl32.Vec3{
		s.target[0] + s.radius*cos32(rad),
		s.height,
		s.target[2] + s.radius*sin32(rad),
	}
	s.world.SetCameraPos(pos)
}
