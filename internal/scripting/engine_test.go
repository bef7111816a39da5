package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestShippedWeatherScript(t *testing.T) {
	e, err := NewEngine("../../scripts", zap.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer e.Close()

	cases := []struct {
		ctx  WeatherContext
		want string
	}{
		{WeatherContext{Current: "none", Roll: 0.9}, "none"},
		{WeatherContext{Current: "none", Roll: 0.1, Day: 2}, "rain"},
		{WeatherContext{Current: "none", Roll: 0.1, Day: 3, Night: true}, "snow"},
		{WeatherContext{Current: "rain", Roll: 0.3}, "none"},
		{WeatherContext{Current: "rain", Roll: 0.8}, "rain"},
		{WeatherContext{Current: "none", Roll: 0.01, Indoor: true}, "none"},
	}
	for _, c := range cases {
		got, ok := e.NextWeather(c.ctx)
		if !ok || got != c.want {
			t.Fatalf("NextWeather(%+v) = %q, %v; want %q", c.ctx, got, ok, c.want)
		}
	}
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "w.lua"), []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir
}

func TestNextWeatherFallsBack(t *testing.T) {
	e, err := NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, ok := e.NextWeather(WeatherContext{Current: "rain"}); ok || got != "rain" {
		t.Fatalf("missing function: got %q, %v", got, ok)
	}
	e.Close()

	e, err = NewEngine(writeScript(t, `function next_weather(ctx) error("boom") end`), zap.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, ok := e.NextWeather(WeatherContext{Current: "snow"}); ok || got != "snow" {
		t.Fatalf("failing script: got %q, %v", got, ok)
	}
	e.Close()

	e, err = NewEngine(writeScript(t, `function next_weather(ctx) return 42 end`), zap.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer e.Close()
	if _, ok := e.NextWeather(WeatherContext{Current: "none"}); ok {
		t.Fatalf("non-table result accepted")
	}
}

func TestSyntaxErrorFailsLoad(t *testing.T) {
	if _, err := NewEngine(writeScript(t, `function next_weather(`), zap.NewNop()); err == nil {
		t.Fatalf("syntax error accepted")
	}
}
