// Package ofadmin is a small HTTP+WebSocket server exposing the
// controller's observability bus for live introspection, adapted from this
// codebase's outbound WebSocket client role into an inbound server role.
package ofadmin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ofcore/ofcore/internal/ofevents"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON shape streamed to connected admin clients.
type wireEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Server exposes /events (live observability stream) and /healthz.
type Server struct {
	bus    *ofevents.Bus
	logger *slog.Logger
	http   *http.Server
}

// New constructs a Server bound to addr, streaming from bus. Healthy
// reports true while the controller considers itself up.
func New(addr string, bus *ofevents.Bus, healthy func() bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{bus: bus, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("admin websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(sub)

	for ev := range sub {
		payload := wireEvent{
			Timestamp: ev.Timestamp,
			Source:    string(ev.Source),
			Kind:      string(ev.Kind),
			Data:      ev.Data,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Run blocks serving HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
