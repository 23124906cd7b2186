// Package image wraps heterogeneous external image-generation capabilities
// behind one Generator contract. Each adapter normalizes auth, input
// encoding, request shape, response parsing and error classification.
package image

import (
	"context"
	"fmt"

	"fitstudio/internal/domain"
)

// Product is one catalog product handed to a provider.
type Product struct {
	ImageURL    string
	Name        string
	Description string
	Price       string
	Garment     bool
}

// Input is the normalized request passed to any provider adapter.
type Input struct {
	JobID          string
	StoreID        string
	PersonImageURL string
	Products       []Product
	Instruction    string
	Quality        string
}

// Result is the normalized outcome of one successful provider invocation.
// Either ImageURL points at a remote asset or Data carries the inline bytes.
type Result struct {
	ImageURL  string
	Data      []byte
	Format    string
	Cost      domain.Money
	Simulated bool
	Metadata  map[string]any
}

// Generator is the contract implemented by all provider adapters.
type Generator interface {
	Name() string
	Generate(ctx context.Context, in Input) (*Result, error)
}

// simulatedResult builds the deterministic placeholder returned when an
// adapter has no credentials. The pipeline must keep running end-to-end in
// environments without live keys, so this is a success, never an error.
func simulatedResult(provider, jobID string, cost domain.Money) *Result {
	return &Result{
		ImageURL:  fmt.Sprintf("https://cdn.fitstudio.dev/simulated/%s/%s.png", provider, jobID),
		Format:    "image/png",
		Cost:      cost,
		Simulated: true,
		Metadata:  map[string]any{"simulated": true},
	}
}
