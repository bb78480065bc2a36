// Package api exposes the HTTP surface: folder browsing, download
// tasks, health, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/core/downloader"
	"github.com/justin2061/drivefetch/internal/core/loader"
	"github.com/justin2061/drivefetch/internal/infra/drive"
	"github.com/justin2061/drivefetch/internal/infra/storage"
)

// Checker reports the health of one backing component.
type Checker interface {
	Health(ctx context.Context) error
}

// Snapshots shares completed folder listings across processes.
// Implemented by the Redis listing store; optional.
type Snapshots interface {
	SaveListing(ctx context.Context, folderID string, items []*domain.File, complete bool) error
	GetListing(ctx context.Context, folderID string) (items []*domain.File, complete bool, found bool, err error)
	DeleteListing(ctx context.Context, folderID string) error
}

// Server provides the HTTP API.
type Server struct {
	cache           *loader.Cache
	manager         *downloader.Manager
	repo            storage.TaskRepository
	snapshots       Snapshots
	checkers        map[string]Checker
	cleanupInterval time.Duration
	server          *http.Server
}

// NewServer creates the API server. snapshots may be nil; checkers maps
// component names to their health probes, nil entries are skipped.
func NewServer(
	cache *loader.Cache,
	manager *downloader.Manager,
	repo storage.TaskRepository,
	snapshots Snapshots,
	checkers map[string]Checker,
	port int,
	cleanupInterval time.Duration,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cache:           cache,
		manager:         manager,
		repo:            repo,
		snapshots:       snapshots,
		checkers:        checkers,
		cleanupInterval: cleanupInterval,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /folders/{id}/items", s.handleFolderItems)
	mux.HandleFunc("GET /folders/{id}/stats", s.handleFolderStats)
	mux.HandleFunc("DELETE /folders/{id}/cache", s.handleInvalidate)

	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /tasks/{id}/pause", s.handlePauseTask)
	mux.HandleFunc("POST /tasks/{id}/resume", s.handleResumeTask)
	mux.HandleFunc("POST /tasks/{id}/cancel", s.handleCancelTask)

	return s
}

// Start runs the server and the cache cleanup loop until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if s.cleanupInterval > 0 {
		go s.cleanupLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("api server listening", "addr", s.server.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.cache.CleanupExpired(); removed > 0 {
				slog.Debug("expired loaders evicted", "count", removed)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type componentHealth struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	status := "healthy"
	components := make(map[string]componentHealth, len(s.checkers))
	for name, checker := range s.checkers {
		if checker == nil {
			continue
		}
		if err := checker.Health(r.Context()); err != nil {
			status = "degraded"
			components[name] = componentHealth{Status: "down", Error: err.Error()}
		} else {
			components[name] = componentHealth{Status: "up"}
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
	})
}

func (s *Server) handleFolderItems(w http.ResponseWriter, r *http.Request) {
	folderID := r.PathValue("id")
	pageSize := queryInt(r, "page_size", 50)
	refresh := r.URL.Query().Get("refresh") == "true"
	maxPages := queryInt(r, "max_pages", 0)

	l, err := s.cache.GetLoader(folderID, pageSize, refresh)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.snapshots != nil {
		if refresh {
			if err := s.snapshots.DeleteListing(r.Context(), folderID); err != nil {
				slog.Warn("failed to drop listing snapshot", "folder", folderID, "error", err)
			}
		} else if l.State().CurrentPage == 0 {
			// A loader with no pages yet can serve another process's
			// completed listing instead of paging the API again.
			items, complete, found, err := s.snapshots.GetListing(r.Context(), folderID)
			if err == nil && found && complete {
				writeJSON(w, http.StatusOK, map[string]any{
					"folder_id":   folderID,
					"items":       items,
					"total_items": len(items),
					"pages":       0,
					"has_more":    false,
					"progress":    1.0,
				})
				return
			}
		}
	}

	items := l.LoadAll(r.Context(), maxPages, nil)
	state := l.State()
	if state.Status == loader.StatusError && len(items) == 0 {
		// Server errors degrade to an empty listing so a folder browse
		// does not hard-fail over one bad page; everything else propagates.
		if lastErr := l.LastError(); lastErr != nil {
			var apiErr *drive.APIError
			if errors.As(lastErr, &apiErr) && apiErr.StatusCode >= 500 {
				writeJSON(w, http.StatusOK, map[string]any{
					"folder_id":   folderID,
					"items":       []any{},
					"total_items": 0,
					"pages":       state.TotalPages,
					"has_more":    state.HasMore,
					"error":       state.ErrorMessage,
				})
				return
			}
			writeError(w, lastErr)
			return
		}
		writeError(w, errors.New(state.ErrorMessage))
		return
	}

	if s.snapshots != nil {
		if err := s.snapshots.SaveListing(r.Context(), folderID, items, l.IsCompleted()); err != nil {
			slog.Warn("failed to save listing snapshot", "folder", folderID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"folder_id":   folderID,
		"items":       items,
		"total_items": state.TotalItems,
		"pages":       state.TotalPages,
		"has_more":    state.HasMore,
		"progress":    l.Progress(),
	})
}

func (s *Server) handleFolderStats(w http.ResponseWriter, r *http.Request) {
	folderID := r.PathValue("id")
	pageSize := queryInt(r, "page_size", 100)

	l, err := s.cache.GetLoader(folderID, pageSize, false)
	if err != nil {
		writeError(w, err)
		return
	}

	l.LoadAll(r.Context(), 0, nil)
	writeJSON(w, http.StatusOK, l.Statistics())
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	folderID := r.PathValue("id")
	s.cache.Invalidate(folderID)
	if s.snapshots != nil {
		if err := s.snapshots.DeleteListing(r.Context(), folderID); err != nil {
			slog.Warn("failed to drop listing snapshot", "folder", folderID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTaskRequest struct {
	Name            string `json:"name"`
	SourceID        string `json:"source_id"`
	OutputPath      string `json:"output_path"`
	PreferredFormat string `json:"preferred_format"`
	AutoStart       *bool  `json:"auto_start"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	task, err := s.manager.CreateTask(r.Context(), req.Name, req.SourceID, req.OutputPath, req.PreferredFormat)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.AutoStart == nil || *req.AutoStart {
		if err := s.manager.StartTask(r.Context(), task.ID); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := domain.TaskStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 50)

	tasks, err := s.repo.List(r.Context(), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":   tasks,
		"summary": s.manager.Summarize(),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, err := s.manager.GetTask(id)
	if errors.Is(err, storage.ErrTaskNotFound) {
		// Fall back to persisted history for tasks from earlier runs.
		task, err = s.repo.Get(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"task": task}
	if snap, err := s.manager.Progress(id); err == nil {
		resp["progress"] = snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.PauseTask(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.StartTask(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.CancelTask(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError

	var (
		notFound   *drive.NotFoundError
		permission *drive.PermissionError
		validation *drive.ValidationError
		apiErr     *drive.APIError
	)
	switch {
	case errors.Is(err, storage.ErrTaskNotFound), errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.As(err, &permission):
		code = http.StatusForbidden
	case errors.As(err, &validation):
		code = http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 {
			code = apiErr.StatusCode
		}
	}

	writeJSON(w, code, map[string]string{"error": err.Error()})
}
