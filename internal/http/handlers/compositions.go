package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fitstudio/internal/domain"
	"fitstudio/internal/middleware"
)

type productPayload struct {
	ImageURL    string `json:"image_url"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

type createCompositionRequest struct {
	StoreID        string           `json:"store_id"`
	PersonImageURL string           `json:"person_image_url"`
	Products       []productPayload `json:"products"`
	Look           string           `json:"look"`
	ProductURL     string           `json:"product_url"`
	SkipWatermark  bool             `json:"skip_watermark"`
	Quality        string           `json:"quality"`
}

type stepPayload struct {
	Stage    string `json:"stage"`
	Provider string `json:"provider,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type jobPayload struct {
	ID           string        `json:"id"`
	StoreID      string        `json:"store_id"`
	State        string        `json:"state"`
	ResultURLs   []string      `json:"result_urls,omitempty"`
	TotalCost    float64       `json:"total_cost"`
	Currency     string        `json:"currency"`
	Steps        []stepPayload `json:"steps"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    string        `json:"created_at"`
	CompletedAt  string        `json:"completed_at,omitempty"`
	ProcessingMs int64         `json:"processing_ms,omitempty"`
}

func toJobPayload(job *domain.CompositionJob) jobPayload {
	out := jobPayload{
		ID:         job.ID,
		StoreID:    job.Request.StoreID,
		State:      string(job.State),
		ResultURLs: job.ResultURLs,
		TotalCost:  job.TotalCost.Float64(),
		Currency:   job.TotalCost.Currency,
		Error:      job.ErrorDetail,
		CreatedAt:  job.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if out.Currency == "" {
		out.Currency = "USD"
	}
	if !job.CompletedAt.IsZero() {
		out.CompletedAt = job.CompletedAt.Format("2006-01-02T15:04:05.000Z07:00")
		out.ProcessingMs = job.ProcessingTime().Milliseconds()
	}
	for _, step := range job.Steps {
		out.Steps = append(out.Steps, stepPayload{
			Stage:    string(step.Stage),
			Provider: step.Provider,
			Status:   string(step.Status),
			Error:    step.Error,
		})
	}
	return out
}

// CreateComposition runs one composition synchronously and returns the
// terminal job. Failed jobs still return their id and step trail so callers
// can inspect what happened.
func (a *App) CreateComposition(w http.ResponseWriter, r *http.Request) {
	var req createCompositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	storeID := middleware.StoreIDFromContext(r.Context())
	if storeID == "" {
		storeID = req.StoreID
	}
	if storeID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "store_id required")
		return
	}

	domainReq := domain.CompositionRequest{
		StoreID:        storeID,
		PersonImageURL: req.PersonImageURL,
		Look:           domain.LookMode(req.Look),
		ProductURL:     req.ProductURL,
		Options: domain.CompositionOptions{
			SkipWatermark: req.SkipWatermark,
			Quality:       req.Quality,
		},
	}
	if domainReq.Look == "" {
		domainReq.Look = domain.LookNatural
	}
	for _, product := range req.Products {
		category := domain.ProductCategory(product.Category)
		if category == "" {
			category = domain.CategoryAccessory
		}
		domainReq.Products = append(domainReq.Products, domain.ProductRef{
			ImageURL:    product.ImageURL,
			Category:    category,
			Name:        product.Name,
			Description: product.Description,
			Price:       product.Price,
		})
	}

	job, err := a.Orchestrator.Run(r.Context(), domainReq)
	if err != nil {
		w.Header().Set("X-Job-ID", job.ID)
		a.failure(w, err)
		return
	}
	a.json(w, http.StatusCreated, toJobPayload(job))
}

// GetComposition returns one job snapshot.
func (a *App) GetComposition(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: load job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if storeID := middleware.StoreIDFromContext(r.Context()); storeID != "" && storeID != job.Request.StoreID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, toJobPayload(job))
}

// ListCompositions returns recent jobs for a tenant.
func (a *App) ListCompositions(w http.ResponseWriter, r *http.Request) {
	storeID := middleware.StoreIDFromContext(r.Context())
	if storeID == "" {
		storeID = r.URL.Query().Get("store_id")
	}
	if storeID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "store_id required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := a.Jobs.ListByStore(r.Context(), storeID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("store_id", storeID).Msg("handlers: list jobs")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	payload := make([]jobPayload, 0, len(jobs))
	for _, job := range jobs {
		payload = append(payload, toJobPayload(job))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": payload})
}
