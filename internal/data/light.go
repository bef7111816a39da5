package data

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// LightColor is the outdoor light for one hour of the day.
type LightColor struct {
	Hour    int        `yaml:"hour"` // 0..23
	Diffuse [3]float32 `yaml:"diffuse"`
	Ambient [3]float32 `yaml:"ambient"`
}

// LightTable holds exactly 24 hourly light colors.
type LightTable struct {
	hours [24]LightColor
}

// LoadLightTable loads light_table.yaml. Every hour 0..23 must be present.
func LoadLightTable(path string) (*LightTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read light table: %w", err)
	}
	var entries []LightColor
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse light table: %w", err)
	}

	t := &LightTable{}
	var seen [24]bool
	for _, e := range entries {
		if e.Hour < 0 || e.Hour > 23 {
			return nil, fmt.Errorf("light table: hour %d out of range", e.Hour)
		}
		t.hours[e.Hour] = e
		seen[e.Hour] = true
	}
	for h, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("light table: hour %d missing", h)
		}
	}
	return t, nil
}

// At returns the color for hour h (0..23, clamped).
func (t *LightTable) At(h int) LightColor {
	if h < 0 {
		h = 0
	}
	if h > 23 {
		h = 23
	}
	return t.hours[h]
}

// Blend linearly interpolates from the previous hour's color to hour h by
// min/60 and returns (diffuse, ambient).
func (t *LightTable) Blend(h, min int) (mgl32.Vec3, mgl32.Vec3) {
	cur := t.At(h)
	prv := t.At((h + 23) % 24)
	f := float32(min) / 60

	var diffuse, ambient mgl32.Vec3
	for i := 0; i < 3; i++ {
		diffuse[i] = prv.Diffuse[i] + (cur.Diffuse[i]-prv.Diffuse[i])*f
		ambient[i] = prv.Ambient[i] + (cur.Ambient[i]-prv.Ambient[i])*f
	}
	return diffuse, ambient
}

// DefaultLightTable is used when no light_table.yaml is configured.
func DefaultLightTable() *LightTable {
	night := LightColor{Diffuse: [3]float32{0.4, 0.4, 0.5}, Ambient: [3]float32{0.3, 0.3, 0.4}}
	t := &LightTable{}
	rows := [24]LightColor{
		night, night, night, night, night, night,
		{Diffuse: [3]float32{0.5, 0.5, 0.6}, Ambient: [3]float32{0.4, 0.4, 0.4}},
		{Diffuse: [3]float32{0.7, 0.7, 0.7}, Ambient: [3]float32{0.5, 0.5, 0.5}},
		{Diffuse: [3]float32{0.8, 0.8, 0.8}, Ambient: [3]float32{0.5, 0.5, 0.5}},
		{Diffuse: [3]float32{0.9, 0.9, 0.9}, Ambient: [3]float32{0.5, 0.5, 0.5}},
		{Diffuse: [3]float32{1, 1, 1}, Ambient: [3]float32{0.5, 0.5, 0.5}},
		{Diffuse: [3]float32{1, 1, 1}, Ambient: [3]float32{0.6, 0.6, 0.6}},
		{Diffuse: [3]float32{1, 1, 1}, Ambient: [3]float32{0.6, 0.6, 0.6}},
		{Diffuse: [3]float32{1, 1, 1}, Ambient: [3]float32{0.6, 0.6, 0.6}},
		{Diffuse: [3]float32{1, 1, 1}, Ambient: [3]float32{0.6, 0.6, 0.6}},
		{Diffuse: [3]float32{1, 1, 1}, Ambient: [3]float32{0.5, 0.5, 0.5}},
		{Diffuse: [3]float32{0.9, 0.9, 0.9}, Ambient: [3]float32{0.5, 0.5, 0.5}},
		{Diffuse: [3]float32{0.9, 0.6, 0.2}, Ambient: [3]float32{0.5, 0.5, 0.4}},
		{Diffuse: [3]float32{0.6, 0.6, 0.4}, Ambient: [3]float32{0.4, 0.4, 0.4}},
		{Diffuse: [3]float32{0.5, 0.5, 0.4}, Ambient: [3]float32{0.4, 0.4, 0.4}},
		{Diffuse: [3]float32{0.45, 0.45, 0.4}, Ambient: [3]float32{0.35, 0.35, 0.35}},
		{Diffuse: [3]float32{0.43, 0.43, 0.5}, Ambient: [3]float32{0.33, 0.33, 0.3}},
		{Diffuse: [3]float32{0.41, 0.41, 0.5}, Ambient: [3]float32{0.31, 0.31, 0.3}},
		night,
	}
	for h := range rows {
		rows[h].Hour = h
		t.hours[h] = rows[h]
	}
	return t
}
