package composer

import (
	"context"
	"fmt"
	"strings"

	"fitstudio/internal/domain"
	"fitstudio/internal/providers/prompt"
)

// BuildCreativeInstruction assembles the single natural-language instruction
// handed to the multi-image compositing provider.
func BuildCreativeInstruction(req domain.CompositionRequest) string {
	parts := []string{"Create one styled photo of the person wearing or using every product shown."}
	for idx, product := range req.Products {
		name := strings.TrimSpace(product.Name)
		if name == "" {
			name = fmt.Sprintf("product %d", idx+1)
		}
		line := fmt.Sprintf("Product %d: %s", idx+1, name)
		if desc := strings.TrimSpace(product.Description); desc != "" {
			line += " (" + desc + ")"
		}
		parts = append(parts, line+".")
	}
	parts = append(parts, "Free-form editorial styling is welcome; keep the person recognizable.")
	return strings.Join(parts, " ")
}

// BuildEditInstruction produces the instruction for the prompt-driven
// image-to-image provider. That capability accepts no second reference
// image, so the product's visual attributes have to travel in the text; the
// enhancer does the folding.
func BuildEditInstruction(ctx context.Context, enhancer prompt.Enhancer, req domain.CompositionRequest) (string, error) {
	if enhancer == nil {
		enhancer = prompt.NewStaticEnhancer()
	}
	primary := req.PrimaryProduct()
	return enhancer.Enhance(ctx, prompt.EnhanceRequest{
		ProductName:        primary.Name,
		ProductDescription: primary.Description,
		ProductPrice:       primary.Price,
		ProductURL:         req.ProductURL,
		Quality:            req.Options.Quality,
	})
}
