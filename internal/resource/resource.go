// Package resource implements the asynchronous load state machine shared by
// the world manifest, tiles and model files.
package resource

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// State is the load state of a Resource.
type State int32

const (
	NotLoaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	}
	return "unknown"
}

// RefCount is an intrusive reference count. It starts at 1 and calls the
// destroy hook when the last reference is released.
type RefCount struct {
	n       atomic.Int32
	destroy func()
}

// InitRefs sets the count to 1 and installs the destroy hook.
func (r *RefCount) InitRefs(destroy func()) {
	r.n.Store(1)
	r.destroy = destroy
}

func (r *RefCount) Retain() {
	r.n.Add(1)
}

// Release drops one reference and reports whether it was the last one.
func (r *RefCount) Release() bool {
	if r.n.Add(-1) != 0 {
		return false
	}
	if r.destroy != nil {
		r.destroy()
	}
	return true
}

func (r *RefCount) Refs() int32 {
	return r.n.Load()
}

// Requester queues a resource for fetching. Implemented by Loader.
type Requester interface {
	Submit(r *Resource) error
}

// Resource is something whose bytes arrive asynchronously. While a load is
// in flight the request holds one strong reference, so dropping every
// other reference never frees a resource out from under a completion.
//
// State transitions happen on the frame-loop goroutine only: StartLoad is
// called from the loop and Complete is applied by Loader.Drain.
type Resource struct {
	RefCount

	path   string
	state  State
	onLoad func(payload []byte) error
	onFail func(err error)
	req    Requester
	log    *zap.Logger
}

// New creates a NotLoaded resource with one reference held by the caller.
// onLoad parses the decoded payload; an error leaves the resource NotLoaded.
func New(path string, req Requester, log *zap.Logger, onLoad func([]byte) error) *Resource {
	r := &Resource{
		path:   path,
		onLoad: onLoad,
		req:    req,
		log:    log,
	}
	r.InitRefs(nil)
	return r
}

// OnDestroy installs a hook run when the last reference is released.
func (r *Resource) OnDestroy(fn func()) {
	r.destroy = fn
}

// OnFail installs a hook run on the loop goroutine after a failed load.
func (r *Resource) OnFail(fn func(err error)) {
	r.onFail = fn
}

func (r *Resource) Path() string  { return r.path }
func (r *Resource) State() State  { return r.state }
func (r *Resource) Loaded() bool  { return r.state == Loaded }
func (r *Resource) Loading() bool { return r.state == Loading }

// StartLoad submits the resource to the loader. It is a no-op while a load
// is already in flight.
func (r *Resource) StartLoad() {
	if r.state == Loading {
		return
	}
	r.state = Loading
	r.Retain()
	if err := r.req.Submit(r); err != nil {
		r.Complete(nil, err)
	}
}

// Complete applies the outcome of a fetch. Any error (transport, decode or
// parse) puts the resource back to NotLoaded; there is no automatic retry.
func (r *Resource) Complete(payload []byte, err error) {
	if err == nil && r.onLoad != nil {
		err = r.onLoad(payload)
	}
	if err != nil {
		r.state = NotLoaded
		r.log.Warn("resource load failed", zap.String("path", r.path), zap.Error(err))
		if r.onFail != nil {
			r.onFail(err)
		}
	} else {
		r.state = Loaded
		r.log.Debug("resource loaded", zap.String("path", r.path), zap.Int("bytes", len(payload)))
	}
	r.Release()
}
