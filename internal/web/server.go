package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"aural/internal/application"
	"aural/internal/domain"
	"aural/internal/infra/research"
)

// Controller is the assistant surface the control panel drives.
type Controller interface {
	Resume()
	Pause()
	StopListening()
	Status() application.Status
	History() []domain.Message
	ClearHistory()
	SaveHistory(path string) error
	LoadHistory(path string) error
	HandleText(ctx context.Context, text string) error
	CheckWeather(ctx context.Context) (string, error)
	ControlDevice(ctx context.Context, entityID, action string) error
	Research(ctx context.Context, query string) ([]domain.ResearchResult, error)
}

// Server exposes the control panel API and the event websocket.
type Server struct {
	controller  Controller
	registry    application.EntityRegistry
	hub         *Hub
	logger      *slog.Logger
	historyFile string
	exportDir   string

	httpServer *http.Server
}

func NewServer(addr string, controller Controller, registry application.EntityRegistry, hub *Hub, historyFile, exportDir string, logger *slog.Logger) *Server {
	s := &Server{
		controller:  controller,
		registry:    registry,
		hub:         hub,
		logger:      logger,
		historyFile: historyFile,
		exportDir:   exportDir,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Post("/listen/start", s.handleListen(controller.Resume))
		r.Post("/listen/pause", s.handleListen(controller.Pause))
		r.Post("/listen/stop", s.handleListen(controller.StopListening))

		r.Post("/command", s.handleCommand)

		r.Get("/conversation", s.handleGetConversation)
		r.Delete("/conversation", s.handleClearConversation)
		r.Post("/conversation/save", s.handleSaveConversation)
		r.Post("/conversation/load", s.handleLoadConversation)

		r.Get("/weather", s.handleWeather)

		r.Get("/research", s.handleResearch)
		r.Post("/research/export", s.handleResearchExport)

		r.Get("/devices", s.handleDevices)
		r.Post("/devices/{entityID}/{action}", s.handleDevice)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("control panel listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleListen(change func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		change()
		writeJSON(w, http.StatusOK, s.controller.Status())
	}
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := s.controller.HandleText(r.Context(), req.Text); err != nil {
		s.logger.Error("command failed", "text", req.Text, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.History())
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	s.controller.ClearHistory()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSaveConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.SaveHistory(s.historyFile); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": s.historyFile})
}

func (s *Server) handleLoadConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.LoadHistory(s.historyFile); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "path": s.historyFile})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	spoken, err := s.controller.CheckWeather(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report": spoken})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	results, err := s.controller.Research(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleResearchExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query  string `json:"query"`
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := s.controller.Research(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	var path string
	switch req.Format {
	case "", "markdown":
		path, err = research.ExportMarkdown(s.exportDir, req.Query, results)
	case "json":
		path, err = research.ExportJSON(s.exportDir, req.Query, results)
	default:
		writeError(w, http.StatusBadRequest, "format must be markdown or json")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"path": path, "results": len(results)})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusOK, []domain.Entity{})
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Entities())
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	action := chi.URLParam(r, "action")

	if err := s.controller.ControlDevice(r.Context(), entityID, action); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
