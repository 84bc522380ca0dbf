package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"

	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/model"
)

// Backend resolves model names to chat completion models sharing one client.
type Backend struct {
	client *openai.Client
	optFns []func(o *Options)
}

// NewBackend returns a Backend over client. optFns apply to every Model it
// hands out. The requested model name always wins over an optFn setting it.
func NewBackend(client *openai.Client, optFns ...func(o *Options)) *Backend {
	return &Backend{client: client, optFns: optFns}
}

// Model implements model.Backend.
func (b *Backend) Model(name string) model.Model {
	fns := make([]func(o *Options), 0, len(b.optFns)+1)
	fns = append(fns, b.optFns...)
	fns = append(fns, func(o *Options) { o.Model = name })
	return NewModelFromClient(b.client, fns...)
}

// Lister lists the models a server currently exposes via GET /models.
type Lister struct {
	client *openai.Client
}

// NewLister returns a Lister over client.
func NewLister(client *openai.Client) *Lister {
	return &Lister{client: client}
}

// ListModels implements core.ModelLister.
func (l *Lister) ListModels(ctx context.Context) ([]core.ModelInfo, error) {
	page, err := l.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai list models: %w", err)
	}
	infos := make([]core.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		info := core.ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy}
		if m.Created > 0 {
			info.Created = time.Unix(m.Created, 0).UTC()
		}
		infos = append(infos, info)
	}
	return infos, nil
}
