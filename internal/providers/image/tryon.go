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
	"net/url"
	"strings"
	"sync"
	"time"

	"fitstudio/internal/domain"
	"fitstudio/internal/infra"
	"fitstudio/internal/ledger"
)

const (
	tryOnProviderName      = "tryon"
	defaultTryOnCostMicros = 70_000 // USD 0.07 per invocation
)

// TryOnOptions configures the structured try-on client.
type TryOnOptions struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	Recorder     ledger.Recorder
	CostMicros   int64
}

// TryOnGenerator wraps the structured two-image try-on capability: exactly
// one person image and one garment image, no free-text instruction. Auth
// runs through a short-lived bearer token acquired from the token endpoint.
type TryOnGenerator struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *infra.Logger
	recorder     ledger.Recorder
	cost         domain.Money

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewTryOnGenerator wires the try-on adapter with sane defaults.
func NewTryOnGenerator(opts TryOnOptions) *TryOnGenerator {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.fashn.ai/v1"
	}
	tokenURL := strings.TrimSpace(opts.TokenURL)
	if tokenURL == "" {
		tokenURL = baseURL + "/oauth/token"
	}
	cost := opts.CostMicros
	if cost <= 0 {
		cost = defaultTryOnCostMicros
	}
	return &TryOnGenerator{
		baseURL:      baseURL,
		tokenURL:     tokenURL,
		clientID:     strings.TrimSpace(opts.ClientID),
		clientSecret: strings.TrimSpace(opts.ClientSecret),
		httpClient:   client,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		cost:         domain.USD(cost),
	}
}

// Name identifies the adapter in step records and cost events.
func (g *TryOnGenerator) Name() string { return tryOnProviderName }

// HasCredentials reports whether remote calls are possible.
func (g *TryOnGenerator) HasCredentials() bool {
	return g.clientID != "" && g.clientSecret != ""
}

type tryOnRequest struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
	Category     string `json:"category"`
	Quality      string `json:"quality,omitempty"`
}

// The generated image shows up in different places depending on the
// capability version; parsing tries each known shape in a fixed order.
type tryOnResponse struct {
	Output struct {
		ImageURL string   `json:"image_url"`
		Images   []string `json:"images"`
	} `json:"output"`
	Data struct {
		B64Image string `json:"b64_image"`
	} `json:"data"`
}

// Generate fulfils the Generator contract.
func (g *TryOnGenerator) Generate(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.PersonImageURL) == "" {
		return nil, &domain.ValidationError{Field: "person_image_url", Reason: "required"}
	}
	garment, ok := firstGarment(in.Products)
	if !ok {
		return nil, &domain.ValidationError{Field: "products", Reason: "a garment image is required for try-on"}
	}

	if !g.HasCredentials() {
		res := simulatedResult(tryOnProviderName, in.JobID, g.cost)
		emitCost(ctx, g.recorder, tryOnProviderName, in, res)
		return res, nil
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, &domain.ConfigurationError{Provider: tryOnProviderName, Err: err}
	}

	personData, personMIME, err := fetchImage(ctx, g.httpClient, in.PersonImageURL)
	if err != nil {
		return nil, err
	}
	garmentData, garmentMIME, err := fetchImage(ctx, g.httpClient, garment.ImageURL)
	if err != nil {
		return nil, err
	}

	payload := tryOnRequest{
		ModelImage:   dataURI(personMIME, personData),
		GarmentImage: dataURI(garmentMIME, garmentData),
		Category:     "auto",
		Quality:      strings.TrimSpace(in.Quality),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tryon: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/tryon/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tryon: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tryon: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tryon: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, classifyStatus(tryOnProviderName, resp.StatusCode, raw)
	}

	var decoded tryOnResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &domain.TransformError{Stage: "parse", Err: err}
	}
	res, err := tryOnResult(decoded, g.cost)
	if err != nil {
		return nil, err
	}
	if g.logger != nil {
		g.logger.Debug().Str("job_id", in.JobID).Str("url", res.ImageURL).Msg("tryon: generated composition")
	}
	emitCost(ctx, g.recorder, tryOnProviderName, in, res)
	return res, nil
}

func tryOnResult(decoded tryOnResponse, cost domain.Money) (*Result, error) {
	if u := strings.TrimSpace(decoded.Output.ImageURL); u != "" {
		return &Result{ImageURL: u, Format: "image/png", Cost: cost}, nil
	}
	for _, candidate := range decoded.Output.Images {
		if u := strings.TrimSpace(candidate); u != "" {
			return &Result{ImageURL: u, Format: "image/png", Cost: cost}, nil
		}
	}
	if encoded := strings.TrimSpace(decoded.Data.B64Image); encoded != "" {
		data, err := decodeInline(encoded)
		if err != nil {
			return nil, &domain.TransformError{Stage: "parse", Err: err}
		}
		return &Result{Data: data, Format: "image/png", Cost: cost}, nil
	}
	return nil, &domain.TransformError{Stage: "parse", Err: errors.New("no image in response")}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached bearer token, refreshing it shortly before
// expiry. Acquisition failures surface as ConfigurationError at the caller.
func (g *TryOnGenerator) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Now().Before(g.tokenExpiry.Add(-30*time.Second)) {
		return g.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded tokenResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", errors.New("token endpoint returned no access_token")
	}
	g.token = decoded.AccessToken
	ttl := decoded.ExpiresIn
	if ttl <= 0 {
		ttl = 300
	}
	g.tokenExpiry = time.Now().Add(time.Duration(ttl) * time.Second)
	return g.token, nil
}

func firstGarment(products []Product) (Product, bool) {
	for _, p := range products {
		if p.Garment && strings.TrimSpace(p.ImageURL) != "" {
			return p, true
		}
	}
	return Product{}, false
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var _ Generator = (*TryOnGenerator)(nil)
