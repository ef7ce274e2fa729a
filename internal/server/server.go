// Package server отдает статус экспортера по HTTP: список сессий и
// прогресс выгрузок. Сервер только читает, управлять экспортом через
// него нельзя.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"telegram-exporter/internal/domain"
	"telegram-exporter/internal/pkg/config"
	"telegram-exporter/internal/session"
)

// SessionLister перечисляет известные сессии.
type SessionLister interface {
	List() ([]session.Entry, error)
	Exists(name string) bool
}

// ProgressLoader читает прогресс выгрузок одной сессии.
type ProgressLoader interface {
	Load(session string) (domain.ProgressMap, error)
}

// Server представляет HTTP-сервер статуса
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	sessions   SessionLister
	progress   ProgressLoader
}

// New создает новый экземпляр Server
func New(cfg *config.Config, sessions SessionLister, progress ProgressLoader) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		progress: progress,
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.Logger)
	chiRouter.Use(middleware.Recoverer)

	// Конечная точка для проверки работоспособности
	chiRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	})

	// Маршруты API
	chiRouter.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{name}/progress", s.handleProgress)
	})

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// handleSessions отдает список сессий с их метаданными.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.sessions.List()
	if err != nil {
		http.Error(w, "Не удалось получить список сессий", http.StatusInternalServerError)
		return
	}

	type sessionView struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Created  string `json:"created"`
		LastUsed string `json:"last_used"`
	}
	views := make([]sessionView, 0, len(entries))
	for _, e := range entries {
		views = append(views, sessionView{
			Name:     e.Name,
			Phone:    e.Phone,
			Created:  e.Created,
			LastUsed: e.LastUsed,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": views,
	})
}

// handleProgress отдает карту прогресса выгрузок одной сессии.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.sessions.Exists(name) {
		http.Error(w, "Сессия не найдена", http.StatusNotFound)
		return
	}

	progress, err := s.progress.Load(name)
	if err != nil {
		http.Error(w, "Не удалось прочитать прогресс", http.StatusInternalServerError)
		return
	}

	type kindView struct {
		Timestamp string `json:"timestamp"`
		Completed int    `json:"completed"`
		Total     int    `json:"total"`
		Finished  bool   `json:"finished"`
		Percent   int    `json:"percent"`
	}
	views := make(map[string]kindView, len(progress))
	for kind, entry := range progress {
		views[string(kind)] = kindView{
			Timestamp: entry.Timestamp,
			Completed: entry.Completed,
			Total:     entry.Total,
			Finished:  entry.Finished,
			Percent:   entry.Percent(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session":  name,
		"progress": views,
	})
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Завершение работы HTTP-сервера")
	return s.HTTPServer.Shutdown(ctx)
}
