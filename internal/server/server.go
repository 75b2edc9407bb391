package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/acheong08/sentinel/internal/metrics"
	"github.com/acheong08/sentinel/internal/scan"
)

// Handler upgrades /ws requests and runs analyses for each connection
type Handler struct {
	Options  scan.Options
	Reviewer Reviewer
	Upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler. Leave reviewer nil to disable AI review.
func NewHandler(options scan.Options, reviewer Reviewer) *Handler {
	return &Handler{
		Options:  options,
		Reviewer: reviewer,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The UI is served from anywhere during demos
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade connection", "err", err)
		return
	}

	client := newClient(conn, h)

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

// Health reports liveness
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// NewMux wires /health, /ws and /metrics behind the request counter.
// m may be nil, in which case /metrics is not served.
func NewMux(h *Handler, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", Health)
	mux.Handle("/ws", h)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	return m.Middleware(mux)
}
