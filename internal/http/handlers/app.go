// Package handlers implements the caller-facing HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fitstudio/internal/composer"
	"fitstudio/internal/domain"
	"fitstudio/internal/events"
	"fitstudio/internal/infra"
	"fitstudio/internal/storage"
)

// JobFinder reads persisted job snapshots.
type JobFinder interface {
	GetByID(ctx context.Context, jobID string) (*domain.CompositionJob, error)
	ListByStore(ctx context.Context, storeID string, limit int) ([]*domain.CompositionJob, error)
}

// App carries the wired collaborators behind every handler.
type App struct {
	Orchestrator *composer.Orchestrator
	Jobs         JobFinder
	Hub          *events.Hub
	Files        *storage.FileStore
	Logger       infra.Logger
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorResponse{Error: kind, Message: message})
}

// failure maps the pipeline error taxonomy onto HTTP statuses.
func (a *App) failure(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case domain.IsRateLimited(err):
		a.error(w, http.StatusTooManyRequests, "provider_rate_limited", "generation capacity exhausted, retry later")
	case isConfiguration(err):
		a.error(w, http.StatusServiceUnavailable, "provider_unavailable", err.Error())
	case isTransform(err):
		a.error(w, http.StatusUnprocessableEntity, "unprocessable_input", err.Error())
	default:
		a.error(w, http.StatusBadGateway, "generation_failed", err.Error())
	}
}

func isConfiguration(err error) bool {
	var ce *domain.ConfigurationError
	return errors.As(err, &ce)
}

func isTransform(err error) bool {
	var te *domain.TransformError
	return errors.As(err, &te)
}
