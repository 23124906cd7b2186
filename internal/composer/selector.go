// Package composer drives composition jobs: deterministic provider
// selection, instruction building and the per-job state machine.
package composer

import "fitstudio/internal/domain"

// ProviderKind is the closed set of provider variants the selector can
// choose from.
type ProviderKind string

const (
	ProviderTryOn     ProviderKind = "tryon"
	ProviderEdit      ProviderKind = "edit"
	ProviderComposite ProviderKind = "composite"
)

// SelectProvider maps (look mode, garment-ness of the primary product,
// explicit product URL override) to a provider. The rule table is evaluated
// in order and is total: every valid request lands on exactly one provider.
//
//  1. creative looks always go to multi-image compositing;
//  2. a natural look on a garment with no URL override uses structured
//     try-on;
//  3. everything else uses prompt-driven editing, with the product folded
//     into the instruction text.
func SelectProvider(look domain.LookMode, primaryIsGarment, hasProductURL bool) ProviderKind {
	if look == domain.LookCreative {
		return ProviderComposite
	}
	if primaryIsGarment && !hasProductURL {
		return ProviderTryOn
	}
	return ProviderEdit
}

// SelectForRequest applies the rule table to a full request.
func SelectForRequest(req domain.CompositionRequest) ProviderKind {
	return SelectProvider(req.Look, req.PrimaryProduct().IsGarment(), req.ProductURL != "")
}
