// Package webui serves the run history and heap snapshots over HTTP as JSON.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/engine-gc/internal/repository"
	"github.com/engine-gc/internal/snapshot"
	"github.com/engine-gc/internal/statistics"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/filter"
	"github.com/engine-gc/pkg/model"
	"github.com/engine-gc/pkg/utils"
)

const defaultSnapshot = "heap.json.zst"

// Server represents the web UI server
type Server struct {
	runs    repository.RunRepository
	dataDir string
	logger  utils.Logger
	server  *http.Server
	health  func(ctx context.Context) error
}

// NewServer creates a server over runs. dataDir is the simulation output
// directory holding one subdirectory per run; it may be empty when no
// snapshots are served.
func NewServer(runs repository.RunRepository, dataDir string, logger utils.Logger) *Server {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	s := &Server{runs: runs, dataDir: dataDir, logger: logger}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /api/runs/{id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return mux
}

// WithHealthCheck makes /healthz answer 503 while check fails. It must be
// set before Serve.
func (s *Server) WithHealthCheck(check func(ctx context.Context) error) *Server {
	s.health = check
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed: %v", err)
			s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: apperrors.GetErrorCode(err), Message: err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Serving run history at http://%s/api/runs", ln.Addr())
	if s.dataDir != "" {
		s.logger.Info("Serving snapshots from: %s", s.dataDir)
	}
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) listFilter(r *http.Request) (repository.RunFilter, error) {
	q := r.URL.Query()
	f := repository.RunFilter{Name: q.Get("name"), Status: model.RunStatus(q.Get("status")), Limit: 50}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apperrors.Newf(apperrors.CodeInvalidInput, "invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

// handleListRuns returns stored runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	f, err := s.listFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	reports, err := s.runs.ListRuns(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*model.RunReport{}
	}
	s.writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats folds the cycles of the listed runs. ListRuns leaves cycles
// out, so each run is loaded in full.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	f, err := s.listFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	listed, err := s.runs.ListRuns(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	reports := make([]*model.RunReport, 0, len(listed))
	for _, l := range listed {
		full, err := s.runs.GetRun(r.Context(), l.RunID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		reports = append(reports, full)
	}

	var opts []statistics.CycleStatsOption
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts = append(opts, statistics.WithTopN(n))
		}
	}
	s.writeJSON(w, http.StatusOK, statistics.NewCycleStatsCalculator(opts...).Calculate(reports))
}

// handleSnapshot returns the class table of a snapshot saved next to a run's
// report. ?file picks the snapshot file, ?class filters classes and ?top
// limits the classes returned.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.dataDir == "" {
		s.writeError(w, apperrors.New(apperrors.CodeNotFound, "snapshots are not served"))
		return
	}
	id := r.PathValue("id")
	q := r.URL.Query()
	file := q.Get("file")
	if file == "" {
		file = defaultSnapshot
	}
	if strings.ContainsAny(id+file, `/\`) || strings.Contains(id, "..") || strings.Contains(file, "..") {
		s.writeError(w, apperrors.Newf(apperrors.CodeInvalidInput, "invalid snapshot path %s/%s", id, file))
		return
	}

	path := filepath.Join(s.dataDir, id, file)
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, apperrors.Newf(apperrors.CodeNotFound, "snapshot not found: %s/%s", id, file))
		return
	}
	snap, err := snapshot.Load(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if classes := q["class"]; len(classes) > 0 {
		f, err := filter.NewClassFilter(classes...)
		if err != nil {
			s.writeError(w, apperrors.Wrap(apperrors.CodeInvalidInput, "class filter", err))
			return
		}
		snap = snap.Filter(f)
	}
	if v := q.Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(snap.Classes) {
			snap.Classes = snap.Classes[:n]
		}
	}
	// Objects stay on disk; the class table is what the page needs.
	snap.Objects = nil
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeInvalidInput:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	s.writeJSON(w, status, errorBody{Code: code, Message: fmt.Sprint(err)})
}
