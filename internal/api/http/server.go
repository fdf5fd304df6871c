package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
)

// StreamController is the lifecycle supervisor as seen by the control API.
// Start replaces any active session; Terminate is idempotent per session.
type StreamController interface {
	Start(ctx context.Context, magnet, query string) (domain.Snapshot, string, error)
	Terminate(id domain.SessionID, reason string) error
}

// StreamDirectory is the registry view used for listing and lookups.
type StreamDirectory interface {
	List() []domain.Snapshot
	Get(id domain.SessionID) (domain.Snapshot, bool)
}

// Server is the control API: stream lifecycle, history, health, metrics and
// the websocket status feed. The media endpoints live on the per-session
// MediaServer, not here.
type Server struct {
	controller StreamController
	directory  StreamDirectory
	history    ports.HistoryStore
	logger     *slog.Logger
	handler    http.Handler
	wsHub      *wsHub
}

type ServerOption func(*Server)

func WithDirectory(directory StreamDirectory) ServerOption {
	return func(s *Server) {
		s.directory = directory
	}
}

func WithHistory(store ports.HistoryStore) ServerOption {
	return func(s *Server) {
		s.history = store
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(controller StreamController, opts ...ServerOption) *Server {
	s := &Server{controller: controller}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/streams", s.handleStreams)
	mux.HandleFunc("/streams/", s.handleStreamByID)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "magnetcast",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(corsMiddleware(traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects all websocket clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

// BroadcastStreams pushes the current snapshots to all websocket clients.
func (s *Server) BroadcastStreams(snaps []domain.Snapshot) {
	if s.wsHub != nil {
		s.wsHub.BroadcastStreams(snaps)
	}
}

type startStreamRequest struct {
	Magnet string `json:"magnet"`
	Query  string `json:"query"`
}

type startStreamResponse struct {
	Stream    domain.Snapshot `json:"stream"`
	PlayerURL string          `json:"playerUrl"`
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleStartStream(w, r)
	case http.MethodGet:
		s.handleListStreams(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req startStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	req.Magnet = strings.TrimSpace(req.Magnet)
	if !strings.HasPrefix(req.Magnet, "magnet:?") {
		writeError(w, http.StatusBadRequest, "invalid_request", "magnet link is required")
		return
	}

	snap, playerURL, err := s.controller.Start(r.Context(), req.Magnet, strings.TrimSpace(req.Query))
	if err != nil {
		s.logger.Error("start stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "swarm_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, startStreamResponse{Stream: snap, PlayerURL: playerURL})
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	if s.directory == nil {
		writeJSON(w, http.StatusOK, []domain.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.directory.List())
}

func (s *Server) handleStreamByID(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(strings.TrimPrefix(r.URL.Path, "/streams/"))
	if id == "" || strings.Contains(string(id), "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if s.directory == nil {
			writeDomainError(w, domain.ErrNotFound)
			return
		}
		snap, ok := s.directory.Get(id)
		if !ok {
			writeDomainError(w, domain.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case http.MethodDelete:
		if err := s.controller.Terminate(id, "user"); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, []domain.StreamRecord{})
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := parsePositiveInt(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "repository_error", "history unavailable")
		return
	}
	if records == nil {
		records = []domain.StreamRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}
