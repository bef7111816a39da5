// Package inspect serves the most recent frame over HTTP and streams
// frames to websocket clients.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/terrastream/terrastream/internal/world"
	"go.uber.org/zap"
)

const clientBuffer = 8

// snapshot is a rendered frame and its JSON encoding.
type snapshot struct {
	frame *world.Frame
	raw   []byte
}

// Server implements world.Renderer. Render runs on the frame goroutine;
// HTTP handlers only read published snapshots.
type Server struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	latest   atomic.Pointer[snapshot]

	mu      sync.Mutex
	clients map[chan []byte]struct{}
	dropped atomic.Uint64
}

func NewServer(log *zap.Logger) *Server {
	return &Server{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[chan []byte]struct{}),
	}
}

// Render publishes f and fans it out to connected websocket clients. Slow
// clients miss frames instead of stalling the loop.
func (s *Server) Render(f *world.Frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		s.log.Error("frame encode failed", zap.Uint64("frame", f.Number), zap.Error(err))
		return
	}
	s.latest.Store(&snapshot{frame: f, raw: raw})

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- raw:
		default:
			s.dropped.Add(1)
		}
	}
}

// Dropped returns how many frames slow clients missed.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Route("/debug", func(r chi.Router) {
		r.Get("/frame", s.handleFrame)
		r.Get("/tiles", s.handleTiles)
		r.Get("/tiles/{x}/{z}", s.handleTile)
	})
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	snap := s.latest.Load()
	if snap == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(snap.raw)
}

// TileSummary is one row of /debug/tiles.
type TileSummary struct {
	X              int `json:"x"`
	Z              int `json:"z"`
	VisiblePatches int `json:"visible_patches"`
	Layers         int `json:"layers"`
	Water          int `json:"water"`
	Clouds         int `json:"clouds"`
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	snap := s.latest.Load()
	if snap == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	out := make([]TileSummary, 0, len(snap.frame.Tiles))
	for _, t := range snap.frame.Tiles {
		ts := TileSummary{X: t.X, Z: t.Z, Layers: len(t.Draws), Water: len(t.Water), Clouds: len(t.Clouds)}
		for _, v := range t.Patches {
			if v {
				ts.VisiblePatches++
			}
		}
		out = append(out, ts)
	}
	writeJSON(w, out)
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	if errX != nil || errZ != nil {
		http.Error(w, "bad tile coordinate", http.StatusBadRequest)
		return
	}
	snap := s.latest.Load()
	if snap == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	for _, t := range snap.frame.Tiles {
		if t.X == x && t.Z == z {
			writeJSON(w, t)
			return
		}
	}
	http.Error(w, "tile not visible", http.StatusNotFound)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan []byte, clientBuffer)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()
	s.log.Debug("inspector client connected", zap.String("remote", r.RemoteAddr))

	if snap := s.latest.Load(); snap != nil {
		ch <- snap.raw
	}

	// Reader goroutine only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case b := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

// ListenAndServe serves the inspector until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("inspector listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
