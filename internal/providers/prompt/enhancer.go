// Package prompt turns catalog product attributes into the visual
// instruction text handed to the prompt-driven image-to-image capability.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EnhanceRequest carries the product attributes to fold into an instruction.
type EnhanceRequest struct {
	ProductName        string
	ProductDescription string
	ProductPrice       string
	ProductURL         string
	Quality            string
}

// Enhancer produces one instruction sentence for a product.
type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (string, error)
}

// StaticEnhancer builds a deterministic instruction without any remote call.
// It is the fallback used when no LLM credentials are configured and when
// the remote enhancer fails.
type StaticEnhancer struct{}

// NewStaticEnhancer constructs the deterministic enhancer.
func NewStaticEnhancer() *StaticEnhancer {
	return &StaticEnhancer{}
}

// Enhance implements Enhancer.
func (s *StaticEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (string, error) {
	c := cases.Title(language.Und)
	name := strings.TrimSpace(req.ProductName)
	if name == "" {
		name = "the product"
	} else {
		name = c.String(name)
	}
	parts := []string{fmt.Sprintf("Show the person naturally wearing or using %s.", name)}
	if desc := strings.TrimSpace(req.ProductDescription); desc != "" {
		parts = append(parts, "Visual attributes: "+desc+".")
	}
	if u := strings.TrimSpace(req.ProductURL); u != "" {
		parts = append(parts, "Match the product shown at "+u+".")
	}
	parts = append(parts, "Keep the person's pose, face and lighting unchanged; no distortion.")
	return strings.Join(parts, " "), nil
}

var _ Enhancer = (*StaticEnhancer)(nil)
