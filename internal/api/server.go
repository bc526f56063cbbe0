// Package api exposes the traceability pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gortm/app"
	"gortm/internal"
	"gortm/internal/errors"
	"gortm/internal/progress"
	"gortm/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Server holds the HTTP handlers
type Server struct {
	router  *chi.Mux
	service *app.RTMService
	store   *storage.FileStore
	tracker *progress.Tracker
	hub     *SSEHub
	logger  *internal.Logger

	// background runs outlive their request but not the server
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates the HTTP API. hub may be nil to disable event streaming.
func NewServer(service *app.RTMService, store *storage.FileStore, tracker *progress.Tracker, hub *SSEHub) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
		store:   store,
		tracker: tracker,
		hub:     hub,
		logger:  internal.DefaultLogger.With("API"),
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures HTTP middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures all application routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/files/{fileID}/sheets", s.handleSheets)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/download/{fileName}", s.handleDownload)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/progress", s.handleProgress)
		if s.hub != nil {
			r.Get("/runs/{runID}/events", s.hub.HandleSSE)
		}
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown cancels background runs and waits for them to record their outcome
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleUpload stores a workbook sent as the multipart field "file"
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.InvalidInput("no file uploaded (multipart field \"file\")"))
		return
	}
	defer file.Close()

	if err := s.store.ValidateUpload(header.Filename, header.Size); err != nil {
		writeError(w, err)
		return
	}
	stored, err := s.store.Save(r.Context(), file, header.Filename)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "File uploaded successfully",
		"file_id":   stored.ID,
		"file_name": stored.FileName,
		"size":      stored.Size,
	})
}

// handleSheets reports the sheets of an upload and what extraction finds on each
func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	data, file, err := s.store.Read(chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.service.Inspect(data, file.FileName, r.URL.Query().Get("focus_sheet"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":     file.ID,
		"file_name":   file.FileName,
		"focus_sheet": result.FocusSheet,
		"focus_found": result.FocusFound,
		"sheets":      result.Sheets,
		"total":       len(result.Requirements),
	})
}

type analyzeRequest struct {
	FileID           string `json:"file_id"`
	FocusSheet       string `json:"focus_sheet"`
	IncludeAllSheets bool   `json:"include_all_sheets"`
	Async            bool   `json:"async"`
}

// handleAnalyze runs the pipeline on an upload. Synchronous requests return
// the result; asynchronous requests return 202 with the run ID to poll.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("invalid JSON body: "+err.Error()))
		return
	}
	data, file, err := s.store.Read(req.FileID)
	if err != nil {
		writeError(w, err)
		return
	}

	runID := uuid.New().String()
	outputName := storage.OutputName(file.FileName, runID, time.Now())
	pr := app.ProcessRequest{
		RunID:            runID,
		FileID:           file.ID,
		FileName:         file.FileName,
		Data:             data,
		FocusSheet:       req.FocusSheet,
		IncludeAllSheets: req.IncludeAllSheets,
		OutputPath:       s.store.OutputPath(outputName),
	}

	if req.Async {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.service.Process(s.baseCtx, pr); err != nil {
				s.logger.Warn("Background run %s failed: %v", pr.RunID, err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"run_id":       pr.RunID,
			"status_url":   "/api/runs/" + pr.RunID + "/progress",
			"download_url": "/api/download/" + outputName,
		})
		return
	}

	result, err := s.service.Process(r.Context(), pr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":           "RTM generated successfully",
		"run_id":            result.Run.ID,
		"output_file":       outputName,
		"download_url":      "/api/download/" + outputName,
		"total_count":       result.Collection.TotalCount,
		"summary":           result.Collection.Summary,
		"sheets":            result.Collection.Metadata.Sheets,
		"prompt_tokens":     result.Run.PromptTokens,
		"completion_tokens": result.Run.CompletionTokens,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "fileName")
	f, err := s.store.OpenOutput(name)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to stat output file"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(name)+"\"")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	runs, err := s.service.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rn, err := s.service.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rn)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if s.tracker != nil {
		if p, ok := s.tracker.Get(runID); ok {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, errors.NotFound("progress for run "+runID))
}
