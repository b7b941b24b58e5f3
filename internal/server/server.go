// Package server exposes the round engine over HTTP.
//
// Routes:
//
//	GET    /healthz
//	GET    /conversations
//	POST   /conversations
//	GET    /conversations/{id}
//	DELETE /conversations/{id}
//	POST   /conversations/{id}/messages   build round
//	POST   /conversations/{id}/rounds     one dynamic round
//	POST   /conversations/{id}/cascade    dynamic rounds until they stop
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/engine"
	"github.com/lalomorales22/roundtable/internal/metrics"
	"github.com/lalomorales22/roundtable/logging"
	"github.com/lalomorales22/roundtable/runner"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// Runner drives cascades. Defaults to runner.New(engine).
	Runner *runner.Runner
	// MaxRounds is the round limit used when a request does not set one.
	MaxRounds int
	// Metrics records HTTP request metrics. May be nil.
	Metrics *metrics.Collector
	// Logger provides structured logging. Defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Server serves the conversation API.
type Server struct {
	engine    *engine.Engine
	store     core.Store
	runner    *runner.Runner
	maxRounds int
	metrics   *metrics.Collector
	logger    logging.Logger
}

// New creates a Server for eng.
func New(eng *engine.Engine, optFns ...func(o *Options)) *Server {
	opts := Options{
		MaxRounds: runner.DefaultMaxRounds,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Runner == nil {
		opts.Runner = runner.New(eng, func(o *runner.Options) {
			o.MaxRounds = opts.MaxRounds
			o.Logger = opts.Logger
		})
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = runner.DefaultMaxRounds
	}

	return &Server{
		engine:    eng,
		store:     eng.Store(),
		runner:    opts.Runner,
		maxRounds: opts.MaxRounds,
		metrics:   opts.Metrics,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /conversations", s.handleListConversations)
	mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /conversations/{id}/messages", s.handleBuildRound)
	mux.HandleFunc("POST /conversations/{id}/rounds", s.handleRound)
	mux.HandleFunc("POST /conversations/{id}/cascade", s.handleCascade)

	return s.instrument(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		mux.ServeHTTP(rec, r)

		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, pattern, rec.status, time.Since(start))
		}
		s.logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, Response{
				Success:   false,
				Error:     &ErrorInfo{Code: "unhealthy", Message: err.Error()},
				Timestamp: time.Now(),
			})
			return
		}
	}

	WriteSuccess(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agents": s.engine.Roster().Names(),
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context())
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, convs)
}

type createConversationRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err, s.logger)
		return
	}

	conv, err := s.store.CreateConversation(r.Context(), req.Name)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, http.StatusCreated, conv)
}

// ConversationView is a conversation with its full transcript and
// artifacts.
type ConversationView struct {
	Conversation *core.Conversation `json:"conversation"`
	Messages     []core.Message     `json:"messages"`
	Artifacts    []core.Artifact    `json:"artifacts"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	msgs, err := s.store.Messages(ctx, id)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	arts, err := s.store.ListArtifacts(ctx, id)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, ConversationView{Conversation: conv, Messages: msgs, Artifacts: arts})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, err, s.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type buildRoundRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBuildRound(w http.ResponseWriter, r *http.Request) {
	var req buildRoundRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err, s.logger)
		return
	}

	res, err := s.engine.RunBuildRound(r.Context(), r.PathValue("id"), req.Message)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, res)
}

type roundRequest struct {
	Round     int `json:"round"`
	MaxRounds int `json:"max_rounds"`
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	req := roundRequest{Round: 1, MaxRounds: s.maxRounds}
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err, s.logger)
		return
	}

	res, err := s.engine.RunRound(r.Context(), r.PathValue("id"), req.Round, req.MaxRounds)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, res)
}

type cascadeRequest struct {
	MaxRounds int `json:"max_rounds"`
}

type cascadeResponse struct {
	Rounds []core.RoundResult `json:"rounds"`
}

func (s *Server) handleCascade(w http.ResponseWriter, r *http.Request) {
	req := cascadeRequest{MaxRounds: s.maxRounds}
	if err := decode(w, r, &req); err != nil {
		WriteError(w, err, s.logger)
		return
	}

	rounds, err := s.runner.RunCascade(r.Context(), r.PathValue("id"), req.MaxRounds)
	if err != nil {
		WriteError(w, err, s.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, cascadeResponse{Rounds: rounds})
}
