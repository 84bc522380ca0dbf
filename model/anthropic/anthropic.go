// Package anthropic provides a model wrapper for the Anthropic Claude API
// and a catalog lister over its Models endpoint.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/model"
)

// NewClient builds an SDK client. An empty baseURL keeps the SDK default and
// an empty apiKey leaves the SDK to read ANTHROPIC_API_KEY.
func NewClient(baseURL, apiKey string, opts ...option.RequestOption) *anthropic.Client {
	var clientOpts []option.RequestOption
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	clientOpts = append(clientOpts, opts...)
	client := anthropic.NewClient(clientOpts...)
	return &client
}

// Options configures the Anthropic model adapter. Request fields override
// Temperature and MaxTokens when set.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   2048,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate sends one Messages request. Streaming requests are served by the
// same call and delivered as a single final response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := m.client.Messages.New(ctx, m.buildParams(req))
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.AsText().Text)
			}
		}

		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}

		out <- model.Response{
			ID:           resp.ID,
			Content:      core.NewTextContent("assistant", text.String()),
			FinishReason: finishReason,
			Usage: &model.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	temperature := m.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Contents),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if system := systemBlocks(req); len(system) > 0 {
		params.System = system
	}
	return params
}

// buildMessages converts contents to Anthropic messages. System turns are
// carried separately and unknown roles are treated as user turns.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, c := range contents {
		text := c.Text()
		if c.Role == "system" || text == "" {
			continue
		}
		block := anthropic.NewTextBlock(text)
		if c.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}
	return messages
}

func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, c := range req.Contents {
		if c.Role != "system" {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}
	return blocks
}

// Info returns metadata describing this Anthropic model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: "anthropic",
	}
}

// Backend resolves model names to Anthropic models sharing one client.
type Backend struct {
	client *anthropic.Client
	optFns []func(o *Options)
}

// NewBackend returns a Backend over client.
func NewBackend(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	return &Backend{client: client, optFns: optFns}
}

// Model implements model.Backend.
func (b *Backend) Model(name string) model.Model {
	fns := make([]func(o *Options), 0, len(b.optFns)+1)
	fns = append(fns, b.optFns...)
	fns = append(fns, func(o *Options) { o.Model = anthropic.Model(name) })
	return NewModelFromClient(b.client, fns...)
}

// Lister reads the first page of the Models API.
type Lister struct {
	client *anthropic.Client
	limit  int64
}

// NewLister returns a Lister over client.
func NewLister(client *anthropic.Client) *Lister {
	return &Lister{client: client, limit: 100}
}

// ListModels implements core.ModelLister.
func (l *Lister) ListModels(ctx context.Context) ([]core.ModelInfo, error) {
	page, err := l.client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(l.limit)})
	if err != nil {
		return nil, fmt.Errorf("anthropic list models: %w", err)
	}
	infos := make([]core.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		infos = append(infos, core.ModelInfo{ID: m.ID, OwnedBy: "anthropic", Created: m.CreatedAt})
	}
	return infos, nil
}
