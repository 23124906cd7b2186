package watermark

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"fitstudio/internal/domain"
	"fitstudio/internal/infra"
)

// Uploader persists a composited image and returns its storage key.
type Uploader interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// LocalOptions configures the in-process compositor.
type LocalOptions struct {
	Store      Uploader
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// LocalApplier composites a logo onto each image in process. It backs
// development environments where the watermark service is not deployed; the
// contract is identical to the remote collaborator.
type LocalApplier struct {
	store      Uploader
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewLocalApplier wires the in-process compositor.
func NewLocalApplier(opts LocalOptions) *LocalApplier {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &LocalApplier{
		store:      opts.Store,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: client,
		logger:     opts.Logger,
	}
}

// Apply implements Applier.
func (a *LocalApplier) Apply(ctx context.Context, urls []string, opts Options) []ImageResult {
	out := make([]ImageResult, len(urls))

	var logo image.Image
	if strings.TrimSpace(opts.LogoURL) != "" {
		data, err := a.download(ctx, opts.LogoURL)
		if err == nil {
			logo, err = imaging.Decode(bytes.NewReader(data))
		}
		if err != nil && a.logger != nil {
			a.logger.Warn().Err(err).Str("logo_url", opts.LogoURL).Msg("watermark: logo unavailable")
		}
	}

	for i, u := range urls {
		if logo == nil || a.store == nil {
			// Nothing to composite; pass the image through.
			out[i] = ImageResult{URL: u}
			continue
		}
		watermarked, err := a.compositeOne(ctx, u, logo, opts)
		if err != nil {
			out[i] = ImageResult{URL: u, Err: &domain.PostProcessingError{ImageURL: u, Err: err}}
			continue
		}
		out[i] = ImageResult{URL: watermarked}
	}
	return out
}

func (a *LocalApplier) compositeOne(ctx context.Context, imageURL string, logo image.Image, opts Options) (string, error) {
	data, err := a.download(ctx, imageURL)
	if err != nil {
		return "", err
	}
	base, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := base.Bounds()
	mark := imaging.Resize(logo, bounds.Dx()/5, 0, imaging.Lanczos)
	opacity := opts.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 0.85
	}
	composed := imaging.Overlay(base, mark, anchorPoint(bounds, mark.Bounds(), NormalizePosition(string(opts.Position))), opacity)

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, composed, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	sum := sha256.Sum256([]byte(imageURL))
	key := fmt.Sprintf("watermarked/%s.png", hex.EncodeToString(sum[:8]))
	savedKey, err := a.store.Write(ctx, key, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("persist watermarked image: %w", err)
	}
	if a.baseURL == "" {
		return savedKey, nil
	}
	return a.baseURL + "/" + savedKey, nil
}

func (a *LocalApplier) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 25*1024*1024))
}

// anchorPoint places the mark inside the base bounds with a small margin.
func anchorPoint(base, mark image.Rectangle, pos Position) image.Point {
	const margin = 16
	switch pos {
	case PositionBottomLeft:
		return image.Pt(margin, base.Dy()-mark.Dy()-margin)
	case PositionTopRight:
		return image.Pt(base.Dx()-mark.Dx()-margin, margin)
	case PositionTopLeft:
		return image.Pt(margin, margin)
	case PositionBottomCenter:
		return image.Pt((base.Dx()-mark.Dx())/2, base.Dy()-mark.Dy()-margin)
	default:
		return image.Pt(base.Dx()-mark.Dx()-margin, base.Dy()-mark.Dy()-margin)
	}
}

var _ Applier = (*LocalApplier)(nil)
