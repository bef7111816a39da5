package system

import "math"

func cos32(r float32) float32 { return float32(math.Cos(float64(r))) }
func sin32(r float32) float32 { return float32(math.Sin(float64(r))) }
