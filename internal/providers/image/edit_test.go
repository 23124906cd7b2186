package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fitstudio/internal/domain"
	"fitstudio/internal/ledger"
)

func editInput() Input {
	return Input{
		JobID:          "job-2",
		StoreID:        "store-1",
		PersonImageURL: "person.png",
		Products: []Product{
			{ImageURL: "watch.png", Name: "Chrono Watch", Description: "silver chronograph"},
		},
		Instruction: "Add a silver chronograph watch on the left wrist.",
	}
}

func newEditServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/person.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("base-bytes"))
	})
	mux.HandleFunc("/services/aigc/multimodal-generation/generation", handler)
	return httptest.NewServer(mux)
}

func newEdit(server *httptest.Server, recorder ledger.Recorder) *EditGenerator {
	return NewEditGenerator(EditOptions{
		BaseURL:    server.URL,
		APIKey:     "key",
		HTTPClient: server.Client(),
		Recorder:   recorder,
	})
}

func TestEditSimulatedWithoutCredentials(t *testing.T) {
	recorder := ledger.NewMemory()
	gen := NewEditGenerator(EditOptions{Recorder: recorder})

	res, err := gen.Generate(context.Background(), editInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Simulated || res.ImageURL == "" {
		t.Fatalf("result = %+v, want simulated placeholder", res)
	}
	if got := recorder.TotalForJob("job-2").Micros; got != defaultEditCostMicros {
		t.Fatalf("recorded cost = %d, want %d", got, defaultEditCostMicros)
	}
}

func TestEditRequiresInstruction(t *testing.T) {
	gen := NewEditGenerator(EditOptions{})
	in := editInput()
	in.Instruction = "  "
	_, err := gen.Generate(context.Background(), in)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Field != "instruction" {
		t.Fatalf("field = %q, want instruction", ve.Field)
	}
}

func TestEditParsesChoicesShape(t *testing.T) {
	server := newEditServer(t, func(w http.ResponseWriter, r *http.Request) {
		var payload editRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(payload.Input.Messages) != 1 || len(payload.Input.Messages[0].Content) != 2 {
			t.Errorf("unexpected message shape: %+v", payload.Input.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"choices": []map[string]any{{
					"message": map[string]any{
						"content": []map[string]string{{"image": "https://img.example.com/edited.png"}},
					},
				}},
			},
		})
	})
	defer server.Close()

	recorder := ledger.NewMemory()
	gen := newEdit(server, recorder)
	in := editInput()
	in.PersonImageURL = server.URL + "/person.png"
	res, err := gen.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ImageURL != "https://img.example.com/edited.png" {
		t.Fatalf("image url = %q", res.ImageURL)
	}
	if len(recorder.Events()) != 1 {
		t.Fatalf("cost events = %d, want 1", len(recorder.Events()))
	}
}

func TestEditParsesResultsShape(t *testing.T) {
	inline := base64.StdEncoding.EncodeToString([]byte("edited-bytes"))
	server := newEditServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"results": []map[string]string{{"b64_image": inline}},
			},
		})
	})
	defer server.Close()

	gen := newEdit(server, ledger.NewMemory())
	in := editInput()
	in.PersonImageURL = server.URL + "/person.png"
	res, err := gen.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Data) != "edited-bytes" {
		t.Fatalf("data = %q, want inline bytes", res.Data)
	}
}

func TestEditEnvelopeThrottlingIsRateLimited(t *testing.T) {
	server := newEditServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "Throttling.RateQuota",
			"message": "Requests rate limit exceeded, please try again later.",
		})
	})
	defer server.Close()

	recorder := ledger.NewMemory()
	gen := newEdit(server, recorder)
	in := editInput()
	in.PersonImageURL = server.URL + "/person.png"
	_, err := gen.Generate(context.Background(), in)
	if !domain.IsRateLimited(err) {
		t.Fatalf("err = %v, want rate limited", err)
	}
	if len(recorder.Events()) != 0 {
		t.Fatal("throttled call must not emit cost events")
	}
}

func TestEditNoImageInResponse(t *testing.T) {
	server := newEditServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"output": map[string]any{}})
	})
	defer server.Close()

	gen := newEdit(server, ledger.NewMemory())
	in := editInput()
	in.PersonImageURL = server.URL + "/person.png"
	_, err := gen.Generate(context.Background(), in)
	var te *domain.TransformError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransformError", err)
	}
}
