package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fitstudio/internal/domain"
	"fitstudio/internal/ledger"
)

const maxImageBytes = 25 * 1024 * 1024

// fetchImage resolves an image reference to binary content. Every failure is
// wrapped as a TransformError; nothing here produces a cost event.
func fetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", &domain.TransformError{Stage: "fetch", Err: fmt.Errorf("invalid image url %q", imageURL)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", &domain.TransformError{Stage: "fetch", Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", &domain.TransformError{Stage: "fetch", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", &domain.TransformError{Stage: "fetch", Err: fmt.Errorf("status %d fetching %s", resp.StatusCode, imageURL)}
	}
	limited := io.LimitReader(resp.Body, maxImageBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", &domain.TransformError{Stage: "fetch", Err: err}
	}
	if len(data) > maxImageBytes {
		return nil, "", &domain.TransformError{Stage: "fetch", Err: fmt.Errorf("image larger than %d bytes", maxImageBytes)}
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	return data, mime, nil
}

// classifyStatus maps a non-2xx provider answer onto the error taxonomy.
// 429 and quota-exhausted payloads are tagged rate limited; nothing is ever
// retried locally.
func classifyStatus(provider string, status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 512 {
		detail = detail[:512]
	}
	rateLimited := status == http.StatusTooManyRequests || looksThrottled(detail)
	return &domain.ProviderInvocationError{
		Provider:    provider,
		Status:      status,
		RateLimited: rateLimited,
		Detail:      detail,
	}
}

func looksThrottled(detail string) bool {
	lower := strings.ToLower(detail)
	return strings.Contains(lower, "throttling") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "resource_exhausted")
}

// decodeInline decodes a base64 image payload from a response body.
func decodeInline(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
		encoded = encoded[idx+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// emitCost records exactly one cost event for a successful generation.
func emitCost(ctx context.Context, recorder ledger.Recorder, provider string, in Input, res *Result) {
	if recorder == nil {
		return
	}
	metadata := map[string]any{"quality": in.Quality}
	for k, v := range res.Metadata {
		metadata[k] = v
	}
	recorder.Record(ctx, ledger.CostEvent{
		StoreID:    in.StoreID,
		JobID:      in.JobID,
		Provider:   provider,
		Operation:  "composition.generate",
		Amount:     res.Cost,
		OccurredAt: time.Now().UTC(),
		Metadata:   metadata,
	})
}
