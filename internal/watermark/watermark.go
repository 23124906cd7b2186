// Package watermark consumes the watermark post-processing collaborator.
// Batches are never all-or-nothing: every image gets its own result, and a
// failed image simply keeps its pre-watermark URL upstream.
package watermark

import (
	"context"
	"strings"
)

// Position anchors the watermark on the image.
type Position string

const (
	PositionBottomRight  Position = "bottom-right"
	PositionBottomLeft   Position = "bottom-left"
	PositionTopRight     Position = "top-right"
	PositionTopLeft      Position = "top-left"
	PositionBottomCenter Position = "bottom-center"
)

// NormalizePosition sanitizes free-form input into a supported anchor.
func NormalizePosition(p string) Position {
	switch Position(strings.ToLower(strings.TrimSpace(p))) {
	case PositionBottomLeft:
		return PositionBottomLeft
	case PositionTopRight:
		return PositionTopRight
	case PositionTopLeft:
		return PositionTopLeft
	case PositionBottomCenter:
		return PositionBottomCenter
	default:
		return PositionBottomRight
	}
}

// Options is the configuration object recognized by the collaborator.
type Options struct {
	LogoURL      string   `json:"logo_url,omitempty"`
	StoreName    string   `json:"store_name,omitempty"`
	ProductName  string   `json:"product_name,omitempty"`
	ProductPrice string   `json:"product_price,omitempty"`
	LegalNotice  string   `json:"legal_notice,omitempty"`
	Position     Position `json:"position,omitempty"`
	Opacity      float64  `json:"opacity,omitempty"`
}

// ImageResult is the per-image outcome of one batch.
type ImageResult struct {
	URL string
	Err error
}

// Applier applies watermarks to a batch of image URLs. The returned slice
// always has one entry per input, in input order.
type Applier interface {
	Apply(ctx context.Context, urls []string, opts Options) []ImageResult
}

// Noop passes every image through untouched. Used when no collaborator is
// configured.
type Noop struct{}

// Apply implements Applier.
func (Noop) Apply(ctx context.Context, urls []string, opts Options) []ImageResult {
	out := make([]ImageResult, len(urls))
	for i, u := range urls {
		out[i] = ImageResult{URL: u}
	}
	return out
}

var _ Applier = Noop{}
