// Package server exposes the plane to companion apps over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aeroduel/plane/internal/arbiter"
	"github.com/aeroduel/plane/internal/logging"
	"github.com/aeroduel/plane/internal/match"
	"github.com/aeroduel/plane/internal/monitor"
	"github.com/aeroduel/plane/internal/registry"
	"github.com/aeroduel/plane/pkg/core"
)

const (
	maxBodyBytes      = 4 << 10
	defaultEventLimit = 100
	requestTimeout    = 5 * time.Second
)

// Controller is the match controller surface the API drives.
type Controller interface {
	Do(ctx context.Context, fn func()) error
	RegisterPlane(planeID, userID string) (string, error)
	RequestHit(token, targetID string) (arbiter.Report, error)
	Leave(token string) (string, error)
	StartMatch()
	EndMatch()
	Active() bool
	SnapshotForBroadcast() match.Snapshot
}

// Journal serves recorded events.
type Journal interface {
	Events(limit int) ([]core.Entry, error)
}

// StatusSource reports program health.
type StatusSource interface {
	Status() monitor.Status
}

// Dependencies holds the server's collaborators. Journal, Status and Hub may be nil.
type Dependencies struct {
	Controller Controller
	Journal    Journal
	Status     StatusSource
	Hub        http.Handler
	Logger     *slog.Logger
}

// Config identifies the board on /id.
type Config struct {
	PlaneID string
	Model   string
}

// Server handles the plane's HTTP API.
type Server struct {
	deps Dependencies
	cfg  Config
}

// New creates a server.
func New(deps Dependencies, cfg Config) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{deps: deps, cfg: cfg}
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes adds the API routes to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/hit", s.handleHit)
	mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /api/match", s.handleMatch)
	mux.HandleFunc("POST /api/match/start", s.handleMatchStart)
	mux.HandleFunc("POST /api/match/end", s.handleMatchEnd)
	mux.HandleFunc("GET /api/planes", s.handlePlanes)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /id", s.handleID)
	if s.deps.Hub != nil {
		mux.Handle("GET /ws", s.deps.Hub)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type tokenResponse struct {
	AuthToken string `json:"authToken"`
}

type hitResponse struct {
	Status string `json:"status"`
	To     string `json:"to"`
}

type matchStateResponse struct {
	MatchActive bool `json:"matchActive"`
}

type disconnectResponse struct {
	PlaneID  string `json:"planeId"`
	IsOnline bool   `json:"isOnline"`
}

type idResponse struct {
	Name   string `json:"name"`
	Model  string `json:"model"`
	Status string `json:"status"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	planeID, userID := p["planeId"], p["userId"]
	if planeID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "Missing planeId or userId")
		return
	}

	var (
		token  string
		regErr error
	)
	if err := s.onLoop(r, func() {
		token, regErr = s.deps.Controller.RegisterPlane(planeID, userID)
	}); err != nil {
		s.loopError(w, r, err)
		return
	}
	switch err := regErr; {
	case err == nil:
		writeJSON(w, http.StatusOK, tokenResponse{AuthToken: token})
	case errors.Is(err, registry.ErrFull):
		writeError(w, http.StatusBadRequest, "Max planes reached")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, targetID := p["authToken"], p["targetId"]
	if token == "" || targetID == "" {
		writeError(w, http.StatusBadRequest, "Missing authToken or targetId")
		return
	}

	var (
		report arbiter.Report
		hitErr error
	)
	if err := s.onLoop(r, func() {
		report, hitErr = s.deps.Controller.RequestHit(token, targetID)
	}); err != nil {
		s.loopError(w, r, err)
		return
	}
	switch err := hitErr; {
	case errors.Is(err, match.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Invalid authToken")
	case errors.Is(err, match.ErrUnknownTarget):
		writeError(w, http.StatusNotFound, "Target not found")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	case report.Outcome == arbiter.SendFailed:
		writeError(w, http.StatusBadGateway, fmt.Sprintf("radio transmit failed: %v", report.Err))
	default:
		writeJSON(w, http.StatusOK, hitResponse{Status: "Hit sent", To: targetID})
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token := p["authToken"]
	if token == "" {
		writeError(w, http.StatusBadRequest, "Missing authToken")
		return
	}

	var (
		planeID  string
		leaveErr error
	)
	if err := s.onLoop(r, func() {
		planeID, leaveErr = s.deps.Controller.Leave(token)
	}); err != nil {
		s.loopError(w, r, err)
		return
	}
	if leaveErr != nil {
		writeError(w, http.StatusUnauthorized, "Invalid authToken")
		return
	}
	writeJSON(w, http.StatusOK, disconnectResponse{PlaneID: planeID, IsOnline: false})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.SnapshotForBroadcast())
}

func (s *Server) handlePlanes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.SnapshotForBroadcast().Planes)
}

func (s *Server) handleMatchStart(w http.ResponseWriter, r *http.Request) {
	s.toggleMatch(w, r, s.deps.Controller.StartMatch)
}

func (s *Server) handleMatchEnd(w http.ResponseWriter, r *http.Request) {
	s.toggleMatch(w, r, s.deps.Controller.EndMatch)
}

func (s *Server) toggleMatch(w http.ResponseWriter, r *http.Request, fn func()) {
	var active bool
	err := s.onLoop(r, func() {
		fn()
		active = s.deps.Controller.Active()
	})
	if err != nil {
		s.loopError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchStateResponse{MatchActive: active})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q", v))
			return
		}
		limit = n
	}

	entries, err := s.deps.Journal.Events(limit)
	if err != nil {
		s.deps.Logger.ErrorContext(logging.WithAttrs(r.Context(), slog.String("route", r.Pattern)), "Journal read failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []core.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeError(w, http.StatusNotFound, "status disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Status.Status())
}

func (s *Server) handleID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, idResponse{Name: s.cfg.PlaneID, Model: s.cfg.Model, Status: "ready"})
}

// onLoop runs fn on the control loop, bounded by the request context.
func (s *Server) onLoop(r *http.Request, fn func()) error {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	return s.deps.Controller.Do(ctx, fn)
}

func (s *Server) loopError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := logging.WithAttrs(r.Context(),
		slog.String("route", r.Pattern),
		slog.String("remote", r.RemoteAddr),
	)
	s.deps.Logger.WarnContext(ctx, "Request not served", "error", err)
	writeError(w, http.StatusServiceUnavailable, err.Error())
}

// readParams accepts a JSON object body or form values.
func readParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		p := make(map[string]string, len(r.Form))
		for k := range r.Form {
			p[k] = strings.TrimSpace(r.Form.Get(k))
		}
		return p, nil
	}

	var raw map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	p := make(map[string]string, len(raw))
	for k, v := range raw {
		if str, ok := v.(string); ok {
			p[k] = strings.TrimSpace(str)
		}
	}
	return p, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
