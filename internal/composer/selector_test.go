package composer

import (
	"testing"

	"fitstudio/internal/domain"
)

func TestSelectProvider(t *testing.T) {
	tests := []struct {
		name          string
		look          domain.LookMode
		garment       bool
		hasProductURL bool
		want          ProviderKind
	}{
		{"creative always composites", domain.LookCreative, false, false, ProviderComposite},
		{"creative ignores garment flag", domain.LookCreative, true, false, ProviderComposite},
		{"creative ignores url override", domain.LookCreative, true, true, ProviderComposite},
		{"natural garment uses try-on", domain.LookNatural, true, false, ProviderTryOn},
		{"natural accessory uses edit", domain.LookNatural, false, false, ProviderEdit},
		{"url override beats garment", domain.LookNatural, true, true, ProviderEdit},
		{"natural accessory with url uses edit", domain.LookNatural, false, true, ProviderEdit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectProvider(tt.look, tt.garment, tt.hasProductURL); got != tt.want {
				t.Fatalf("SelectProvider(%s, %v, %v) = %s, want %s", tt.look, tt.garment, tt.hasProductURL, got, tt.want)
			}
		})
	}
}

func TestSelectForRequest(t *testing.T) {
	req := domain.CompositionRequest{
		Look: domain.LookNatural,
		Products: []domain.ProductRef{
			{ImageURL: "https://img/garment.png", Category: domain.CategoryGarment},
		},
	}
	if got := SelectForRequest(req); got != ProviderTryOn {
		t.Fatalf("got %s, want tryon", got)
	}
	req.ProductURL = "https://shop.example.com/item"
	if got := SelectForRequest(req); got != ProviderEdit {
		t.Fatalf("with url override got %s, want edit", got)
	}
}
