package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"finstat/internal"
	"finstat/internal/config"
	"finstat/internal/documents"
	"finstat/internal/extractor"
	"finstat/internal/pipeline"
	"finstat/internal/report"
	"finstat/internal/storage"
)

const maxUploadBytes = 64 << 20

type Server struct {
	db        *storage.DB
	cfg       config.Config
	docs      *documents.Service
	processor *pipeline.ProcessingService
	log       *zap.Logger
}

func New(db *storage.DB, cfg config.Config, schema []internal.MetricDefinition) *Server {
	return &Server{
		db:        db,
		cfg:       cfg,
		docs:      documents.NewService(db, cfg.DataDir),
		processor: pipeline.NewProcessingService(db, cfg, schema),
		log:       zap.L().Named("server"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Post("/upload", s.upload)
		r.Get("/files", s.listFiles)
		r.Get("/files/{id}", s.getFile)
		r.Post("/extract", s.extractPages)
		r.Post("/extract/{id}", s.extractDocument)
		r.Get("/metrics/{id}", s.getMetrics)
		r.Post("/metrics/{extractionID}/review", s.review)
		r.Get("/report", s.report)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.String("addr", s.cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	doc, created, err := s.docs.Add(r.Context(), documents.AddInput{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		Bank:        formValue(r, "bank"),
		Period:      formValue(r, "period"),
		Source:      "upload",
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, doc)
}

func (s *Server) listFiles(w http.ResponseWriter, _ *http.Request) {
	docs, err := s.docs.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) extractDocument(w http.ResponseWriter, r *http.Request) {
	res, err := s.processor.ProcessDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": res.DocumentID,
		"num_metrics": res.NumMetrics,
		"status":      res.Status,
		"trace_id":    res.TraceID,
		"counts":      res.Counts,
	})
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.docs.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if doc.Status == internal.StatusPending {
		writeMessage(w, http.StatusNotFound, "document not processed yet")
		return
	}
	result, err := s.db.GetResult(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type extractRequest struct {
	Pages   []string                    `json:"pages"`
	Metrics []internal.MetricDefinition `json:"metrics"`
}

func (s *Server) extractPages(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.processor.ExtractPages(r.Context(), req.Pages, req.Metrics)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type reviewRequest struct {
	Accepted *bool  `json:"accepted"`
	Reviewer string `json:"reviewer"`
	Note     string `json:"note"`
}

func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "extractionID"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid extraction id")
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Accepted == nil {
		writeMessage(w, http.StatusBadRequest, "accepted is required")
		return
	}
	m, err := s.db.ReviewExtraction(id, *req.Accepted, strings.TrimSpace(req.Reviewer), strings.TrimSpace(req.Note))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	entries, err := report.Collect(s.db, ids)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(entries) == 0 {
		writeMessage(w, http.StatusBadRequest, "ids is required")
		return
	}
	page, err := report.RenderHTML(report.Build(entries, s.processor.Schema()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, extractor.ErrMalformedInput),
		errors.Is(err, documents.ErrUnsupported),
		errors.Is(err, documents.ErrInvalidPDF):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func formValue(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}
