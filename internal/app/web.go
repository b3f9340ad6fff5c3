package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/imu"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the device serves a local network only
	},
}

// RegisterSource serves register dumps, normally through the device loop.
type RegisterSource interface {
	DumpRegisters(ctx context.Context, device string) ([]imu.RegisterValue, error)
}

// Presser injects button presses. Only the simulator has one.
type Presser interface {
	Press(hold time.Duration)
}

// Server is the read-only status surface of the device.
type Server struct {
	State     *StateStore
	Registers RegisterSource
	Metrics   http.Handler
	Button    Presser

	PushInterval time.Duration
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.Registers != nil {
		mux.HandleFunc("GET /api/registers", s.handleRegisters)
	}
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	if s.Button != nil {
		mux.HandleFunc("POST /api/button", s.handleButton)
	}
	return mux
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.State.Get()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleRegisters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	values, err := s.Registers.DumpRegisters(ctx, r.URL.Query().Get("device"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, values)
}

// handleButton presses the simulated button: hold_ms defaults to a short press.
func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	hold := 100 * time.Millisecond
	if v := r.URL.Query().Get("hold_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 || ms > 10000 {
			http.Error(w, "hold_ms must be 1-10000", http.StatusBadRequest)
			return
		}
		hold = time.Duration(ms) * time.Millisecond
	}
	s.Button.Press(hold)
	w.WriteHeader(http.StatusNoContent)
}

// handleWS pushes a snapshot every PushInterval until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := s.PushInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			snap, ok := s.State.Get()
			if !ok {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(interval * 4))
			if err := conn.WriteJSON(snap); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Printf("web: listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return errors.Wrap(err, "web server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
