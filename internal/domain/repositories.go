package domain

import (
	"context"
)

// Source provides the canonical record list. It is trusted for existence and
// content of records, never for ordering.
type Source interface {
	// Fetch returns every record the source currently knows about
	Fetch(ctx context.Context) ([]Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Record, error)

func (f SourceFunc) Fetch(ctx context.Context) ([]Record, error) { return f(ctx) }
