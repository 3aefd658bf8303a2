// Package api serves a read-only JSON view of the run log.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/runlog"
)

// Reader is the part of runlog.Log the API reads.
type Reader interface {
	Rows(ctx context.Context, stage, runID string) (ledger.Table, error)
	Runs(ctx context.Context, limit int) ([]runlog.Run, error)
}

// Server exposes a Reader over HTTP.
type Server struct {
	log     Reader
	origins []string
}

// New creates a Server. An empty origins list allows every origin.
func New(log Reader, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{log: log, origins: origins}
}

// StageSummary counts the logged rows of one stage.
type StageSummary struct {
	Stage  string `json:"stage"`
	RunID  string `json:"run_id,omitempty"`
	Rows   int    `json:"rows"`
	OK     int    `json:"ok"`
	Failed int    `json:"failed"`
}

// Handler returns the routed handler:
//
//	GET /health
//	GET /runs?limit=N
//	GET /stages/{stage}/rows?run=ID&failed=true
//	GET /stages/{stage}/summary?run=ID
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/runs", s.listRuns)
	r.Route("/stages/{stage}", func(r chi.Router) {
		r.Get("/rows", s.stageRows)
		r.Get("/summary", s.stageSummary)
	})
	return r
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.log.Runs(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) stageRows(w http.ResponseWriter, r *http.Request) {
	rows, err := s.log.Rows(r.Context(), chi.URLParam(r, "stage"), r.URL.Query().Get("run"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := ledger.Table{}
	failedOnly := r.URL.Query().Get("failed") == "true"
	for _, row := range rows {
		if failedOnly && (row.OkOut || row.Note == "") {
			continue
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) stageSummary(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")
	runID := r.URL.Query().Get("run")
	rows, err := s.log.Rows(r.Context(), stage, runID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	sum := StageSummary{Stage: stage, RunID: runID, Rows: len(rows)}
	for _, row := range rows {
		switch {
		case row.OkOut:
			sum.OK++
		case row.Note != "":
			sum.Failed++
		}
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
