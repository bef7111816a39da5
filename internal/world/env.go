package world

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/data"
)

// Clock is the deterministic game clock. One game second passes every
// 10 ms of frame time.
type Clock struct {
	ms int64
}

// NewClock starts the clock at the beginning of the given 1-based hour.
func NewClock(startHour int) *Clock {
	h := min(max(startHour, 1), 24) - 1
	return &Clock{ms: int64(h) * 3600 * 10}
}

func (c *Clock) Advance(d time.Duration) {
	c.ms += d.Milliseconds()
}

// GameTime is a broken-down game clock reading.
type GameTime struct {
	Sec, Min int
	Hour     int // 1..24
	Day      int // 1..30
}

func (c *Clock) Now() GameTime {
	cur := c.ms / 10
	return GameTime{
		Sec:  int(cur % 60),
		Min:  int((cur / 60) % 60),
		Hour: int((cur/3600)%24) + 1,
		Day:  int((cur/86400)%30) + 1,
	}
}

func (t GameTime) Night() bool {
	return t.Hour >= 21 || t.Hour <= 6
}

// Environment is the lighting state handed to the renderer.
type Environment struct {
	Time     GameTime
	Fog      mgl32.Vec3
	Diffuse  mgl32.Vec3
	Ambient  mgl32.Vec3
	LightDir mgl32.Vec3
}

// Light computes the environment for the world at time t. Indoor worlds
// use the manifest lighting; outdoor worlds blend the hourly light table
// and derive the sun direction from the clock.
func Light(m *Manifest, table *data.LightTable, t GameTime) Environment {
	env := Environment{Time: t}

	if m.Indoor || table == nil {
		env.Fog = m.Diffuse
		env.Diffuse = m.Diffuse.Add(mgl32.Vec3{0.1, 0.1, 0.1})
		env.Ambient = m.Ambient.Mul(0.9)
		env.LightDir = m.LightDir
	} else {
		diffuse, ambient := table.Blend(min(max(t.Hour-1, 0), 23), t.Min)
		env.Fog = diffuse
		env.Diffuse = env.Fog.Mul(1.1)
		env.Ambient = ambient.Mul(0.9)

		angle := float64(180)
		secs := float64(t.Min*60 + t.Sec)
		switch {
		case t.Hour >= 20 || t.Hour <= 6:
			cur := t.Hour - 20
			if t.Hour <= 6 {
				cur = t.Hour + 4
			}
			angle = 180 - (float64(cur)*3600+secs)/(11*3600)*180
		case t.Hour >= 7 && t.Hour <= 17:
			angle = (float64(t.Hour-7)*3600 + secs) / (11 * 3600) * 180
		}
		rad := angle * math.Pi / 180
		env.LightDir = mgl32.Vec3{float32(-math.Cos(rad)), float32(-math.Sin(rad)), 0}
	}

	if env.LightDir.Len() > 0 {
		env.LightDir = env.LightDir.Normalize()
	}
	env.Ambient = env.Ambient.Mul(2)
	return env
}
