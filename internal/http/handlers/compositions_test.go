package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"fitstudio/internal/adapter/repo"
	"fitstudio/internal/composer"
	"fitstudio/internal/domain"
	"fitstudio/internal/providers/image"
)

type fixedGenerator struct {
	result *image.Result
	err    error
}

func (g *fixedGenerator) Name() string { return "fixed" }

func (g *fixedGenerator) Generate(ctx context.Context, in image.Input) (*image.Result, error) {
	if g.err != nil {
		return nil, g.err
	}
	res := *g.result
	return &res, nil
}

func newTestApp(gen image.Generator) (*App, *repo.JobMemory) {
	jobs := repo.NewJobMemory()
	orc := composer.NewOrchestrator(composer.Options{
		Providers: map[composer.ProviderKind]image.Generator{
			composer.ProviderTryOn:     gen,
			composer.ProviderEdit:      gen,
			composer.ProviderComposite: gen,
		},
		Repo:   jobs,
		Logger: zerolog.Nop(),
	})
	return &App{Orchestrator: orc, Jobs: jobs, Logger: zerolog.Nop()}, jobs
}

func createBody() []byte {
	body, _ := json.Marshal(createCompositionRequest{
		StoreID:        "store-1",
		PersonImageURL: "https://img.example.com/person.png",
		Look:           "natural",
		SkipWatermark:  true,
		Products: []productPayload{
			{ImageURL: "https://img.example.com/shirt.png", Category: "garment", Name: "Linen Shirt"},
		},
	})
	return body
}

func TestCreateCompositionReturnsTerminalJob(t *testing.T) {
	app, _ := newTestApp(&fixedGenerator{
		result: &image.Result{ImageURL: "https://out.example.com/raw.png", Cost: domain.USD(70_000)},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", bytes.NewReader(createBody()))
	rec := httptest.NewRecorder()
	app.CreateComposition(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var payload jobPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.State != string(domain.JobStateCompleted) {
		t.Fatalf("state = %s, want completed", payload.State)
	}
	if payload.TotalCost != 0.07 {
		t.Fatalf("total cost = %v, want 0.07", payload.TotalCost)
	}
	if len(payload.ResultURLs) != 1 {
		t.Fatalf("result urls = %v", payload.ResultURLs)
	}
}

func TestCreateCompositionValidationError(t *testing.T) {
	app, _ := newTestApp(&fixedGenerator{result: &image.Result{ImageURL: "x"}})

	body, _ := json.Marshal(createCompositionRequest{StoreID: "store-1", Look: "natural"})
	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	app.CreateComposition(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "invalid_request" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestCreateCompositionRateLimitedMapsTo429(t *testing.T) {
	app, _ := newTestApp(&fixedGenerator{
		err: &domain.ProviderInvocationError{Provider: "composite", Status: 429, RateLimited: true},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", bytes.NewReader(createBody()))
	rec := httptest.NewRecorder()
	app.CreateComposition(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("X-Job-ID") == "" {
		t.Fatal("failed run must still expose its job id")
	}
}

func TestCreateCompositionMissingStore(t *testing.T) {
	app, _ := newTestApp(&fixedGenerator{result: &image.Result{ImageURL: "x"}})

	body, _ := json.Marshal(createCompositionRequest{
		PersonImageURL: "https://img.example.com/person.png",
		Products:       []productPayload{{ImageURL: "https://img.example.com/shirt.png"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	app.CreateComposition(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetCompositionRoundTrip(t *testing.T) {
	app, _ := newTestApp(&fixedGenerator{
		result: &image.Result{ImageURL: "https://out.example.com/raw.png", Cost: domain.USD(70_000)},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", bytes.NewReader(createBody()))
	rec := httptest.NewRecorder()
	app.CreateComposition(rec, req)
	var created jobPayload
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	router := chi.NewRouter()
	router.Get("/v1/compositions/{job_id}", app.GetComposition)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/compositions/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("status = %d", getRec.Code)
	}
	var fetched jobPayload
	_ = json.Unmarshal(getRec.Body.Bytes(), &fetched)
	if fetched.ID != created.ID || fetched.State != string(domain.JobStateCompleted) {
		t.Fatalf("fetched = %+v", fetched)
	}
}

func TestGetCompositionNotFound(t *testing.T) {
	app, _ := newTestApp(&fixedGenerator{result: &image.Result{ImageURL: "x"}})

	router := chi.NewRouter()
	router.Get("/v1/compositions/{job_id}", app.GetComposition)

	req := httptest.NewRequest(http.MethodGet, "/v1/compositions/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListCompositionsFiltersByStore(t *testing.T) {
	app, jobs := newTestApp(&fixedGenerator{
		result: &image.Result{ImageURL: "https://out.example.com/raw.png", Cost: domain.USD(70_000)},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", bytes.NewReader(createBody()))
	rec := httptest.NewRecorder()
	app.CreateComposition(rec, req)

	_ = jobs.Save(context.Background(), &domain.CompositionJob{
		ID:      "other-store-job",
		Request: domain.CompositionRequest{StoreID: "store-2"},
		State:   domain.JobStateCompleted,
	})

	listReq := httptest.NewRequest(http.MethodGet, "/v1/compositions?store_id=store-1", nil)
	listRec := httptest.NewRecorder()
	app.ListCompositions(listRec, listReq)

	var resp struct {
		Jobs []jobPayload `json:"jobs"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(resp.Jobs))
	}
	if resp.Jobs[0].StoreID != "store-1" {
		t.Fatalf("store = %q", resp.Jobs[0].StoreID)
	}
}
