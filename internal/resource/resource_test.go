package resource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/terrastream/terrastream/internal/asset"
	"github.com/terrastream/terrastream/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flakySource fails the first n fetches of every path.
type flakySource struct {
	mu    sync.Mutex
	next  asset.Source
	fails int
	calls map[string]int
}

func (f *flakySource) Fetch(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	f.calls[path]++
	n := f.calls[path]
	f.mu.Unlock()
	if n <= f.fails {
		return nil, errors.New("connection reset")
	}
	return f.next.Fetch(ctx, path)
}

func (f *flakySource) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func testLoader(t *testing.T, src asset.Source) *Loader {
	t.Helper()
	l := NewLoader(src, config.LoaderConfig{Workers: 2, QueueSize: 8, Burst: 1}, zap.NewNop())
	t.Cleanup(l.Close)
	return l
}

func flush(t *testing.T, l *Loader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func putEncoded(t *testing.T, m *asset.MemSource, path string, payload []byte) {
	t.Helper()
	raw, err := asset.Encode(payload, asset.FormatZlib)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_ = m.Put(context.Background(), path, raw)
}

func TestRetryAfterFailureDoesNotLeak(t *testing.T) {
	mem := asset.NewMemSource()
	putEncoded(t, mem, "model/rock.bin", []byte("rock"))
	src := &flakySource{next: mem, fails: 1, calls: map[string]int{}}
	l := testLoader(t, src)

	destroyed := 0
	var got []byte
	r := New("model/rock.bin", l, zap.NewNop(), func(p []byte) error {
		got = p
		return nil
	})
	r.OnDestroy(func() { destroyed++ })

	r.StartLoad()
	if r.State() != Loading || r.Refs() != 2 {
		t.Fatalf("after StartLoad: state %v refs %d, want loading/2", r.State(), r.Refs())
	}
	flush(t, l)
	if r.State() != NotLoaded || r.Refs() != 1 {
		t.Fatalf("after failure: state %v refs %d, want not_loaded/1", r.State(), r.Refs())
	}

	r.StartLoad()
	flush(t, l)
	if r.State() != Loaded || r.Refs() != 1 {
		t.Fatalf("after retry: state %v refs %d, want loaded/1", r.State(), r.Refs())
	}
	if string(got) != "rock" {
		t.Fatalf("payload = %q", got)
	}
	if destroyed != 0 {
		t.Fatalf("destroyed while still referenced")
	}

	if !r.Release() || destroyed != 1 {
		t.Fatalf("last release must destroy exactly once, destroyed=%d", destroyed)
	}
}

func TestStartLoadIsNoOpWhileLoading(t *testing.T) {
	mem := asset.NewMemSource()
	putEncoded(t, mem, "world/demo/properties.bin", []byte{1})
	src := &flakySource{next: mem, calls: map[string]int{}}
	l := testLoader(t, src)

	r := New("world/demo/properties.bin", l, zap.NewNop(), nil)
	r.StartLoad()
	r.StartLoad()
	if r.Refs() != 2 {
		t.Fatalf("refs = %d, want 2 (one in-flight reference)", r.Refs())
	}
	flush(t, l)
	if n := src.count("world/demo/properties.bin"); n != 1 {
		t.Fatalf("fetched %d times, want 1", n)
	}
	if !r.Loaded() {
		t.Fatalf("state = %v, want loaded", r.State())
	}
}

func TestParseFailureLogsAndResets(t *testing.T) {
	mem := asset.NewMemSource()
	putEncoded(t, mem, "world/demo/p00-00.bin", []byte{0xff})
	l := testLoader(t, mem)

	core, logs := observer.New(zapcore.WarnLevel)
	parseErr := errors.New("bad version")
	var failed error
	r := New("world/demo/p00-00.bin", l, zap.New(core), func([]byte) error { return parseErr })
	r.OnFail(func(err error) { failed = err })

	r.StartLoad()
	flush(t, l)

	if r.State() != NotLoaded {
		t.Fatalf("state = %v, want not_loaded", r.State())
	}
	if !errors.Is(failed, parseErr) {
		t.Fatalf("OnFail got %v", failed)
	}
	if logs.FilterMessage("resource load failed").Len() != 1 {
		t.Fatalf("expected one failure log, got %d entries", logs.Len())
	}
}

func TestMissingAssetFails(t *testing.T) {
	l := testLoader(t, asset.NewMemSource())

	var failed error
	r := New("world/demo/p05-05.bin", l, zap.NewNop(), func([]byte) error {
		t.Fatalf("onLoad must not run for a missing asset")
		return nil
	})
	r.OnFail(func(err error) { failed = err })
	r.StartLoad()
	flush(t, l)

	if !errors.Is(failed, asset.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", failed)
	}
	if r.Refs() != 1 {
		t.Fatalf("refs = %d, want 1", r.Refs())
	}
}

func TestFullQueueBacklogsInsteadOfFailing(t *testing.T) {
	release := make(chan struct{})
	mem := asset.NewMemSource()
	src := gatedSource{release: release, next: mem}
	l := NewLoader(src, config.LoaderConfig{Workers: 1, QueueSize: 1, Burst: 1}, zap.NewNop())
	defer l.Close()

	paths := []string{"a", "b", "c", "d", "e"}
	var res []*Resource
	failed := 0
	for _, p := range paths {
		putEncoded(t, mem, p, []byte(p))
		r := New(p, l, zap.NewNop(), func([]byte) error { return nil })
		r.OnFail(func(error) { failed++ })
		r.StartLoad()
		res = append(res, r)
	}
	if failed != 0 {
		t.Fatalf("%d loads failed while the queue was saturated", failed)
	}
	if l.Pending() != len(paths) {
		t.Fatalf("pending = %d, want %d", l.Pending(), len(paths))
	}
	if l.Backlog() < 2 {
		t.Fatalf("backlog = %d, want at least 2 with one worker and a queue of one", l.Backlog())
	}
	for _, r := range res {
		if !r.Loading() {
			t.Fatalf("%s state = %v, want loading", r.Path(), r.State())
		}
	}

	close(release)
	flush(t, l)
	if l.Backlog() != 0 || l.Pending() != 0 {
		t.Fatalf("backlog = %d, pending = %d after flush", l.Backlog(), l.Pending())
	}
	for _, r := range res {
		if !r.Loaded() {
			t.Fatalf("%s state = %v, want loaded", r.Path(), r.State())
		}
	}
}

func TestDrainFeedsBacklog(t *testing.T) {
	mem := asset.NewMemSource()
	l := NewLoader(mem, config.LoaderConfig{Workers: 1, QueueSize: 1, Burst: 1}, zap.NewNop())
	defer l.Close()

	var res []*Resource
	for _, p := range []string{"a", "b", "c", "d"} {
		putEncoded(t, mem, p, []byte(p))
		r := New(p, l, zap.NewNop(), func([]byte) error { return nil })
		r.StartLoad()
		res = append(res, r)
	}

	deadline := time.Now().Add(5 * time.Second)
	for l.Pending() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("drain never emptied the backlog: pending %d, backlog %d", l.Pending(), l.Backlog())
		}
		l.Drain()
		time.Sleep(time.Millisecond)
	}
	for _, r := range res {
		if !r.Loaded() {
			t.Fatalf("%s not loaded", r.Path())
		}
	}
}

func TestSubmitAfterClose(t *testing.T) {
	l := NewLoader(asset.NewMemSource(), config.LoaderConfig{Workers: 1, QueueSize: 1}, zap.NewNop())
	l.Close()
	var got error
	r := New("x", l, zap.NewNop(), nil)
	r.OnFail(func(err error) { got = err })
	r.StartLoad()
	if !errors.Is(got, ErrLoaderClosed) || r.State() != NotLoaded {
		t.Fatalf("err = %v, state = %v", got, r.State())
	}
}

// gatedSource holds every fetch until release is closed.
type gatedSource struct {
	release chan struct{}
	next    asset.Source
}

func (g gatedSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.next.Fetch(ctx, path)
}
