package core

import (
	"context"
	"time"
)

// ModelInfo is a single entry of a remote model catalog
// (`GET {endpoint}/v1/models` → data[i]).
type ModelInfo struct {
	ID      string    `json:"id"`
	OwnedBy string    `json:"owned_by,omitempty"`
	Created time.Time `json:"created,omitempty"`
}

// ModelLister lists the models an inference server currently exposes.
// Implementations must respect ctx cancellation; any error (network,
// non-2xx status, malformed body) is treated by callers as the catalog
// being unavailable.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelListerFunc adapts a function to the ModelLister interface.
type ModelListerFunc func(ctx context.Context) ([]ModelInfo, error)

// ListModels implements ModelLister.
func (f ModelListerFunc) ListModels(ctx context.Context) ([]ModelInfo, error) { return f(ctx) }
