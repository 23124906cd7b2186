package image

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fitstudio/internal/domain"
	"fitstudio/internal/ledger"
)

func tryOnInput() Input {
	return Input{
		JobID:          "job-1",
		StoreID:        "store-1",
		PersonImageURL: "person.png",
		Products: []Product{
			{ImageURL: "garment.png", Name: "Linen Shirt", Garment: true},
		},
	}
}

// newTryOnServer serves the token endpoint, the run endpoint and the two
// source images from one mux. runHandler may be nil for tests that never get
// that far.
func newTryOnServer(t *testing.T, runHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 600})
	})
	mux.HandleFunc("/person.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("person-bytes"))
	})
	mux.HandleFunc("/garment.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("garment-bytes"))
	})
	if runHandler != nil {
		mux.HandleFunc("/tryon/run", runHandler)
	}
	return httptest.NewServer(mux)
}

func newTryOn(server *httptest.Server, recorder ledger.Recorder) *TryOnGenerator {
	return NewTryOnGenerator(TryOnOptions{
		BaseURL:      server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		HTTPClient:   server.Client(),
		Recorder:     recorder,
	})
}

func withServerURLs(server *httptest.Server, in Input) Input {
	in.PersonImageURL = server.URL + "/" + in.PersonImageURL
	for i := range in.Products {
		if in.Products[i].ImageURL != "" {
			in.Products[i].ImageURL = server.URL + "/" + in.Products[i].ImageURL
		}
	}
	return in
}

func TestTryOnSimulatedWithoutCredentials(t *testing.T) {
	recorder := ledger.NewMemory()
	gen := NewTryOnGenerator(TryOnOptions{Recorder: recorder})

	res, err := gen.Generate(context.Background(), tryOnInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Simulated {
		t.Fatal("result should be flagged simulated")
	}
	if res.ImageURL == "" {
		t.Fatal("simulated result must carry a placeholder url")
	}
	if res.Cost.Micros != defaultTryOnCostMicros {
		t.Fatalf("cost = %d, want nominal %d", res.Cost.Micros, defaultTryOnCostMicros)
	}
	events := recorder.EventsForJob("job-1")
	if len(events) != 1 {
		t.Fatalf("cost events = %d, want 1", len(events))
	}
	if events[0].Metadata["simulated"] != true {
		t.Fatalf("cost event metadata = %v, want simulated flag", events[0].Metadata)
	}
}

func TestTryOnMissingPersonImageFailsFast(t *testing.T) {
	recorder := ledger.NewMemory()
	gen := NewTryOnGenerator(TryOnOptions{Recorder: recorder})

	in := tryOnInput()
	in.PersonImageURL = ""
	_, err := gen.Generate(context.Background(), in)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(recorder.Events()) != 0 {
		t.Fatal("validation failure must not emit cost events")
	}
}

func TestTryOnParsesPrimaryShape(t *testing.T) {
	server := newTryOnServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"image_url": "https://img.example.com/out.png"},
		})
	})
	defer server.Close()

	recorder := ledger.NewMemory()
	gen := newTryOn(server, recorder)
	res, err := gen.Generate(context.Background(), withServerURLs(server, tryOnInput()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ImageURL != "https://img.example.com/out.png" {
		t.Fatalf("image url = %q", res.ImageURL)
	}
	if res.Simulated {
		t.Fatal("live result must not be flagged simulated")
	}
	if len(recorder.Events()) != 1 {
		t.Fatalf("cost events = %d, want 1", len(recorder.Events()))
	}
}

func TestTryOnParsesFallbackShapes(t *testing.T) {
	server := newTryOnServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"images": []string{"https://img.example.com/alt.png"}},
		})
	})
	defer server.Close()

	gen := newTryOn(server, ledger.NewMemory())
	res, err := gen.Generate(context.Background(), withServerURLs(server, tryOnInput()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ImageURL != "https://img.example.com/alt.png" {
		t.Fatalf("image url = %q", res.ImageURL)
	}
}

func TestTryOnNoImageInResponse(t *testing.T) {
	server := newTryOnServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"output": map[string]any{}})
	})
	defer server.Close()

	recorder := ledger.NewMemory()
	gen := newTryOn(server, recorder)
	_, err := gen.Generate(context.Background(), withServerURLs(server, tryOnInput()))
	var te *domain.TransformError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransformError", err)
	}
	if len(recorder.Events()) != 0 {
		t.Fatal("failed generation must not emit cost events")
	}
}

func TestTryOnRateLimitClassified(t *testing.T) {
	server := newTryOnServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
	})
	defer server.Close()

	recorder := ledger.NewMemory()
	gen := newTryOn(server, recorder)
	_, err := gen.Generate(context.Background(), withServerURLs(server, tryOnInput()))
	var pe *domain.ProviderInvocationError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderInvocationError", err)
	}
	if !pe.RateLimited {
		t.Fatal("429 must be flagged rate limited")
	}
	if !domain.IsRateLimited(err) {
		t.Fatal("IsRateLimited must report true")
	}
	if len(recorder.Events()) != 0 {
		t.Fatal("rate-limited call must not emit cost events")
	}
}

func TestTryOnUnfetchablePersonImage(t *testing.T) {
	server := newTryOnServer(t, nil)
	defer server.Close()

	recorder := ledger.NewMemory()
	gen := newTryOn(server, recorder)
	in := withServerURLs(server, tryOnInput())
	in.PersonImageURL = server.URL + "/missing.png"
	_, err := gen.Generate(context.Background(), in)
	var te *domain.TransformError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransformError", err)
	}
	if len(recorder.Events()) != 0 {
		t.Fatal("fetch failure must not emit cost events")
	}
}

func TestTryOnTokenFailureIsConfigurationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	gen := newTryOn(server, ledger.NewMemory())
	_, err := gen.Generate(context.Background(), withServerURLs(server, tryOnInput()))
	var ce *domain.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}
