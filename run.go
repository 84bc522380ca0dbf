package modelmesh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/mesh"
	"github.com/simcoestone/modelmesh/model"
	"github.com/simcoestone/modelmesh/retrieval"
)

// Request is one agent task.
type Request struct {
	AgentID   string   `json:"agent_id"`
	Text      string   `json:"text"`
	TaskLabel string   `json:"task_label,omitempty"`
	System    string   `json:"system,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Result is the outcome of Run.
type Result struct {
	RequestID string             `json:"request_id"`
	Route     Route              `json:"route"`
	Text      string             `json:"text"`
	NodeID    string             `json:"node_id"`
	Related   []retrieval.Result `json:"related,omitempty"`
	Usage     *model.TokenUsage  `json:"usage,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Run routes req, dispatches it to the selected model and stores the answer
// as a node. Related nodes already in the mesh are added to the prompt. The
// node is inserted only after the model call returned successfully.
func (m *Mesh) Run(ctx context.Context, req Request) (Result, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		return Result{}, mesh.ErrEmptyAgent
	}
	if m.opts.Backend == nil {
		return Result{}, ErrNoBackend
	}

	res := Result{RequestID: uuid.NewString()}
	route, release := m.acquireRoute(agentID, req.Text, req.TaskLabel)
	defer release()
	res.Route = route
	desc := route.Decision.Model

	res.Related = m.Recall(ctx, req.Text, "")

	mreq := model.Request{
		Instructions: req.System,
		Contents:     buildContents(req.Text, res.Related),
		MaxTokens:    m.maxTokens(desc.ContextLength),
		Temperature:  m.opts.Temperature,
	}

	start := time.Now()
	out, errCh := m.opts.Backend.Model(desc.Name).Generate(ctx, mreq)
	resp, err := model.Collect(ctx, out, errCh)
	res.Duration = time.Since(start)
	m.logCall(agentID, desc.Name, resp.Usage, res.Duration, err)
	if err != nil {
		return res, fmt.Errorf("dispatch to %s: %w", desc.Name, err)
	}

	res.Text = resp.Content.Text()
	res.Usage = resp.Usage

	id, err := m.store.Insert(agentID, mesh.Payload{
		Content: res.Text,
		Tags:    append([]string{agentID, res.Route.Requirement.Domain}, req.Tags...),
		Properties: []string{
			"model:" + desc.Name,
			"rule:" + res.Route.Decision.Rule,
			"request:" + res.RequestID,
		},
	})
	if err != nil {
		return res, fmt.Errorf("store answer: %w", err)
	}
	res.NodeID = id
	return res, nil
}

// maxTokens is MaxTokens lowered to a quarter of the model context.
func (m *Mesh) maxTokens(contextLength int) int64 {
	limit := m.opts.MaxTokens
	if q := int64(contextLength / 4); q > 0 && (limit <= 0 || q < limit) {
		limit = q
	}
	return limit
}

func buildContents(text string, related []retrieval.Result) []core.Content {
	if len(related) == 0 {
		return []core.Content{core.NewTextContent("user", text)}
	}
	var b strings.Builder
	b.WriteString("Related context from earlier answers:\n")
	for _, r := range related {
		fmt.Fprintf(&b, "- %s\n", r.Node.Payload.Content)
	}
	return []core.Content{
		core.NewTextContent("system", b.String()),
		core.NewTextContent("user", text),
	}
}

func (m *Mesh) logCall(agentID, modelName string, usage *model.TokenUsage, dur time.Duration, err error) {
	ml, ok := m.logger.(*logging.MeshLogger)
	if !ok {
		if err != nil {
			m.logger.Error("model call failed", "agent", agentID, "model", modelName, "error", err)
		}
		return
	}
	tokens := 0
	if usage != nil {
		tokens = usage.TotalTokens
	}
	ml.WithAgent(agentID).LogLLMCall(modelName, tokens, dur, err)
}

// Recall returns nodes relevant to text, boosting neighbors of nodeID when
// set. It never fails; a miss is an empty slice.
func (m *Mesh) Recall(ctx context.Context, text, nodeID string) []retrieval.Result {
	return m.retrieval.Query(ctx, retrieval.Query{Text: text, NodeID: nodeID, Limit: m.opts.RecallLimit})
}

// Weave merges the given nodes into a new node owned by agentID.
func (m *Mesh) Weave(agentID string, ids ...string) (mesh.Node, error) {
	id, err := m.store.Weave(agentID, ids...)
	if err != nil {
		return mesh.Node{}, err
	}
	return m.store.Get(id)
}

// CoordinationResult is the outcome of one agent in Coordinate.
type CoordinationResult struct {
	AgentID string `json:"agent_id"`
	Result  Result `json:"result"`
	Err     error  `json:"-"`
}

// coordinationLimit bounds concurrent dispatches of one Coordinate call.
const coordinationLimit = 4

// Coordinate runs task on every agent concurrently. Results keep the order
// of agents; a failing agent records its error and does not cancel the rest.
func (m *Mesh) Coordinate(ctx context.Context, task string, agents ...string) []CoordinationResult {
	results := make([]CoordinationResult, len(agents))

	var g errgroup.Group
	g.SetLimit(coordinationLimit)
	for i, agentID := range agents {
		g.Go(func() error {
			res, err := m.Run(ctx, Request{AgentID: agentID, Text: task})
			results[i] = CoordinationResult{AgentID: agentID, Result: res, Err: err}
			if err != nil {
				m.logger.Warn("agent failed during coordination", "agent", agentID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
