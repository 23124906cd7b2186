package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fitstudio/internal/domain"
	"fitstudio/internal/infra"
	"fitstudio/internal/ledger"
)

const (
	compositeProviderName      = "composite"
	defaultCompositeCostMicros = 39_000 // USD 0.039 per invocation
)

// CompositeOptions configures the multi-image compositing client.
type CompositeOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
	Recorder   ledger.Recorder
	CostMicros int64
}

// CompositeGenerator wraps the multi-image generative compositing capability:
// the person image plus any number of product images and one natural-language
// instruction, producing exactly one output image. This is the quota-
// constrained capability; callers invoke it through the dispatch queue.
type CompositeGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
	recorder   ledger.Recorder
	cost       domain.Money
}

// NewCompositeGenerator wires the compositing adapter with sane defaults.
func NewCompositeGenerator(opts CompositeOptions) *CompositeGenerator {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	cost := opts.CostMicros
	if cost <= 0 {
		cost = defaultCompositeCostMicros
	}
	return &CompositeGenerator{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		httpClient: client,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		cost:       domain.USD(cost),
	}
}

// Name identifies the adapter in step records and cost events.
func (g *CompositeGenerator) Name() string { return compositeProviderName }

// HasCredentials reports whether remote calls are possible.
func (g *CompositeGenerator) HasCredentials() bool { return g.apiKey != "" }

type compositePart struct {
	Text       string               `json:"text,omitempty"`
	InlineData *compositeInlineData `json:"inlineData,omitempty"`
	FileData   *compositeFileData   `json:"fileData,omitempty"`
}

type compositeInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type compositeFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type compositeContent struct {
	Role  string          `json:"role,omitempty"`
	Parts []compositePart `json:"parts,omitempty"`
}

type compositeRequest struct {
	Contents []compositeContent `json:"contents"`
}

type compositeResponse struct {
	Candidates []struct {
		Content compositeContent `json:"content"`
	} `json:"candidates"`
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate fulfils the Generator contract.
func (g *CompositeGenerator) Generate(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.PersonImageURL) == "" {
		return nil, &domain.ValidationError{Field: "person_image_url", Reason: "required"}
	}
	if len(in.Products) == 0 {
		return nil, &domain.ValidationError{Field: "products", Reason: "at least one product is required"}
	}
	instruction := strings.TrimSpace(in.Instruction)
	if instruction == "" {
		return nil, &domain.ValidationError{Field: "instruction", Reason: "required for creative compositing"}
	}

	if !g.HasCredentials() {
		res := simulatedResult(compositeProviderName, in.JobID, g.cost)
		emitCost(ctx, g.recorder, compositeProviderName, in, res)
		return res, nil
	}

	parts := make([]compositePart, 0, len(in.Products)+2)
	personData, personMIME, err := fetchImage(ctx, g.httpClient, in.PersonImageURL)
	if err != nil {
		return nil, err
	}
	parts = append(parts, compositePart{InlineData: &compositeInlineData{
		MimeType: personMIME,
		Data:     base64.StdEncoding.EncodeToString(personData),
	}})
	for _, product := range in.Products {
		if strings.TrimSpace(product.ImageURL) == "" {
			continue
		}
		data, mime, err := fetchImage(ctx, g.httpClient, product.ImageURL)
		if err != nil {
			return nil, err
		}
		parts = append(parts, compositePart{InlineData: &compositeInlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}
	parts = append(parts, compositePart{Text: instruction})

	payload := compositeRequest{Contents: []compositeContent{{Role: "user", Parts: parts}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("composite: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("composite: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("composite: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("composite: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, classifyStatus(compositeProviderName, resp.StatusCode, raw)
	}

	var decoded compositeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &domain.TransformError{Stage: "parse", Err: err}
	}
	if decoded.Error.Message != "" {
		return nil, &domain.ProviderInvocationError{
			Provider:    compositeProviderName,
			Status:      resp.StatusCode,
			RateLimited: looksThrottled(decoded.Error.Status),
			Detail:      decoded.Error.Message,
		}
	}

	res, err := compositeResult(decoded, g.cost)
	if err != nil {
		return nil, err
	}
	if g.logger != nil {
		g.logger.Debug().Str("job_id", in.JobID).Str("model", g.model).Msg("composite: generated composition")
	}
	emitCost(ctx, g.recorder, compositeProviderName, in, res)
	return res, nil
}

// compositeResult walks the known response shapes in a fixed order: inline
// bytes first, then file references.
func compositeResult(decoded compositeResponse, cost domain.Money) (*Result, error) {
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && strings.TrimSpace(part.InlineData.Data) != "" {
				data, err := decodeInline(part.InlineData.Data)
				if err != nil {
					return nil, &domain.TransformError{Stage: "parse", Err: err}
				}
				format := part.InlineData.MimeType
				if format == "" {
					format = "image/png"
				}
				return &Result{Data: data, Format: format, Cost: cost}, nil
			}
		}
	}
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.FileData != nil && strings.TrimSpace(part.FileData.FileURI) != "" {
				format := part.FileData.MimeType
				if format == "" {
					format = "image/png"
				}
				return &Result{ImageURL: part.FileData.FileURI, Format: format, Cost: cost}, nil
			}
		}
	}
	return nil, &domain.TransformError{Stage: "parse", Err: errors.New("no image in response")}
}

var _ Generator = (*CompositeGenerator)(nil)
