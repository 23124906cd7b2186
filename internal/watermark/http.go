package watermark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fitstudio/internal/domain"
	"fitstudio/internal/infra"
)

// HTTPOptions configures the remote watermark client.
type HTTPOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// HTTPApplier calls the watermark collaborator over HTTP. A transport or
// batch-level failure degrades every image individually; it never turns into
// a job failure upstream.
type HTTPApplier struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewHTTPApplier wires the remote client.
func NewHTTPApplier(opts HTTPOptions) (*HTTPApplier, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("watermark: base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPApplier{baseURL: baseURL, httpClient: client, logger: opts.Logger}, nil
}

type applyRequest struct {
	Images []string `json:"images"`
	Config Options  `json:"config"`
}

type applyResponse struct {
	Results []struct {
		URL            string `json:"url"`
		WatermarkedURL string `json:"watermarked_url"`
		Error          string `json:"error"`
	} `json:"results"`
}

// Apply implements Applier.
func (a *HTTPApplier) Apply(ctx context.Context, urls []string, opts Options) []ImageResult {
	out := make([]ImageResult, len(urls))
	fail := func(err error) []ImageResult {
		if a.logger != nil {
			a.logger.Warn().Err(err).Msg("watermark: batch degraded")
		}
		for i, u := range urls {
			out[i] = ImageResult{URL: u, Err: &domain.PostProcessingError{ImageURL: u, Err: err}}
		}
		return out
	}

	body, err := json.Marshal(applyRequest{Images: urls, Config: opts})
	if err != nil {
		return fail(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/watermark/apply", bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(err)
	}
	if resp.StatusCode >= 300 {
		return fail(fmt.Errorf("watermark service status %d", resp.StatusCode))
	}
	var decoded applyResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fail(err)
	}
	if len(decoded.Results) != len(urls) {
		return fail(fmt.Errorf("watermark service returned %d results for %d images", len(decoded.Results), len(urls)))
	}

	for i, result := range decoded.Results {
		switch {
		case result.Error != "":
			out[i] = ImageResult{URL: urls[i], Err: &domain.PostProcessingError{ImageURL: urls[i], Err: errors.New(result.Error)}}
		case strings.TrimSpace(result.WatermarkedURL) != "":
			out[i] = ImageResult{URL: result.WatermarkedURL}
		case strings.TrimSpace(result.URL) != "":
			out[i] = ImageResult{URL: result.URL}
		default:
			out[i] = ImageResult{URL: urls[i], Err: &domain.PostProcessingError{ImageURL: urls[i], Err: errors.New("empty result")}}
		}
	}
	return out
}

var _ Applier = (*HTTPApplier)(nil)
