package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/terrastream/terrastream/internal/asset"
	"github.com/terrastream/terrastream/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrLoaderClosed = errors.New("loader closed")

type completion struct {
	res     *Resource
	payload []byte
	err     error
}

// Loader fetches and decompresses resources on a pool of worker goroutines.
// Workers never touch a Resource's state: results are queued and applied on
// the frame loop by Drain.
type Loader struct {
	src     asset.Source
	log     *zap.Logger
	limiter *rate.Limiter
	timeout time.Duration

	jobs    chan *Resource
	done    chan completion
	backlog []*Resource // waiting for room in jobs; loop goroutine only

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pending int // submitted but not yet drained; loop goroutine only
	closed  bool
}

func NewLoader(src asset.Source, cfg config.LoaderConfig, log *zap.Logger) *Loader {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queue := cfg.QueueSize
	if queue < 1 {
		queue = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		src:     src,
		log:     log,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.FetchTimeout,
		jobs:    make(chan *Resource, queue),
		done:    make(chan completion, queue+workers),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

// Submit queues r for fetching without blocking. When the job queue is
// full the request waits in the backlog and is handed to the workers by a
// later Drain or Flush.
func (l *Loader) Submit(r *Resource) error {
	if l.closed {
		return ErrLoaderClosed
	}
	l.pending++
	if len(l.backlog) == 0 {
		select {
		case l.jobs <- r:
			return nil
		default:
		}
	}
	l.backlog = append(l.backlog, r)
	return nil
}

// Pending returns the number of loads submitted and not yet applied,
// backlogged ones included.
func (l *Loader) Pending() int {
	return l.pending
}

// Backlog returns the number of requests waiting for room in the job queue.
func (l *Loader) Backlog() int {
	return len(l.backlog)
}

// feed moves backlogged requests into the job queue while it has room.
func (l *Loader) feed() {
	n := 0
	for n < len(l.backlog) {
		select {
		case l.jobs <- l.backlog[n]:
			n++
		default:
			goto done
		}
	}
done:
	if n > 0 {
		clear(l.backlog[:n])
		l.backlog = l.backlog[n:]
	}
}

// Drain applies every completion that has arrived so far and returns how
// many it applied. It never blocks.
func (l *Loader) Drain() int {
	n := 0
	l.feed()
	for {
		select {
		case c := <-l.done:
			l.apply(c)
			n++
			l.feed()
		default:
			return n
		}
	}
}

// Flush blocks until every submitted load has been applied, including loads
// submitted by completion handlers.
func (l *Loader) Flush(ctx context.Context) error {
	for l.pending > 0 {
		l.feed()
		select {
		case c := <-l.done:
			l.apply(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Loader) apply(c completion) {
	l.pending--
	c.res.Complete(c.payload, c.err)
}

// Close stops the workers. Backlogged requests and completions not yet
// drained are dropped along with the references they hold.
func (l *Loader) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.backlog = nil
	l.cancel()
	close(l.jobs)
	l.wg.Wait()
}

func (l *Loader) worker() {
	defer l.wg.Done()
	for r := range l.jobs {
		payload, err := l.fetch(r.Path())
		select {
		case l.done <- completion{res: r, payload: payload, err: err}:
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *Loader) fetch(path string) ([]byte, error) {
	if err := l.limiter.Wait(l.ctx); err != nil {
		return nil, fmt.Errorf("throttle %s: %w", path, err)
	}

	ctx := l.ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(l.ctx, l.timeout)
		defer cancel()
	}

	raw, err := l.src.Fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	payload, err := asset.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return payload, nil
}
