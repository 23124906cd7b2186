package image

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
	"fitstudio/internal/ledger"
)

const (
	editProviderName      = "edit"
	defaultEditCostMicros = 35_000 // USD 0.035 per invocation
)

// EditOptions configures the general image-to-image client.
type EditOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
	Recorder   ledger.Recorder
	CostMicros int64
}

// EditGenerator wraps the prompt-driven image-to-image capability: one base
// image plus one descriptive instruction. The capability does not accept a
// second reference image, so product characteristics arrive folded into the
// instruction text.
type EditGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
	recorder   ledger.Recorder
	cost       domain.Money
}

// NewEditGenerator wires the edit adapter with sane defaults.
func NewEditGenerator(opts EditOptions) *EditGenerator {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-edit"
	}
	cost := opts.CostMicros
	if cost <= 0 {
		cost = defaultEditCostMicros
	}
	return &EditGenerator{
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
func (g *EditGenerator) Name() string { return editProviderName }

// HasCredentials reports whether remote calls are possible.
func (g *EditGenerator) HasCredentials() bool { return g.apiKey != "" }

type editRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []editMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Watermark      bool   `json:"watermark"`
		NegativePrompt string `json:"negative_prompt,omitempty"`
	} `json:"parameters"`
}

type editMessage struct {
	Role    string              `json:"role"`
	Content []map[string]string `json:"content"`
}

type editResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []map[string]string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Results []struct {
			URL      string `json:"url"`
			B64Image string `json:"b64_image"`
		} `json:"results"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Generate fulfils the Generator contract.
func (g *EditGenerator) Generate(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.PersonImageURL) == "" {
		return nil, &domain.ValidationError{Field: "person_image_url", Reason: "required"}
	}
	instruction := strings.TrimSpace(in.Instruction)
	if instruction == "" {
		return nil, &domain.ValidationError{Field: "instruction", Reason: "required for image-to-image editing"}
	}

	if !g.HasCredentials() {
		res := simulatedResult(editProviderName, in.JobID, g.cost)
		emitCost(ctx, g.recorder, editProviderName, in, res)
		return res, nil
	}

	baseData, baseMIME, err := fetchImage(ctx, g.httpClient, in.PersonImageURL)
	if err != nil {
		return nil, err
	}

	var payload editRequest
	payload.Model = g.model
	payload.Input.Messages = []editMessage{{
		Role: "user",
		Content: []map[string]string{
			{"image": dataURI(baseMIME, baseData)},
			{"text": instruction},
		},
	}}
	payload.Parameters.Watermark = false

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("edit: encode request: %w", err)
	}
	endpoint := g.baseURL + "/services/aigc/multimodal-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("edit: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edit: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("edit: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, classifyStatus(editProviderName, resp.StatusCode, raw)
	}

	var decoded editResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &domain.TransformError{Stage: "parse", Err: err}
	}
	// The API reports quota and model errors inside a 200 envelope.
	if decoded.Code != "" {
		detail := fmt.Sprintf("%s (%s)", decoded.Message, decoded.Code)
		return nil, &domain.ProviderInvocationError{
			Provider:    editProviderName,
			Status:      resp.StatusCode,
			RateLimited: looksThrottled(decoded.Code) || looksThrottled(decoded.Message),
			Detail:      detail,
		}
	}

	res, err := editResult(decoded, g.cost)
	if err != nil {
		return nil, err
	}
	if g.logger != nil {
		g.logger.Debug().Str("job_id", in.JobID).Str("model", g.model).Msg("edit: generated composition")
	}
	emitCost(ctx, g.recorder, editProviderName, in, res)
	return res, nil
}

func editResult(decoded editResponse, cost domain.Money) (*Result, error) {
	for _, choice := range decoded.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content["image"]); u != "" {
				return &Result{ImageURL: u, Format: "image/png", Cost: cost}, nil
			}
		}
	}
	for _, result := range decoded.Output.Results {
		if u := strings.TrimSpace(result.URL); u != "" {
			return &Result{ImageURL: u, Format: "image/png", Cost: cost}, nil
		}
		if encoded := strings.TrimSpace(result.B64Image); encoded != "" {
			data, err := decodeInline(encoded)
			if err != nil {
				return nil, &domain.TransformError{Stage: "parse", Err: err}
			}
			return &Result{Data: data, Format: "image/png", Cost: cost}, nil
		}
	}
	return nil, &domain.TransformError{Stage: "parse", Err: errors.New("no image in response")}
}

var _ Generator = (*EditGenerator)(nil)
