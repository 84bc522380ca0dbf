package modelmesh_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simcoestone/modelmesh"
	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/internal/testutil"
	"github.com/simcoestone/modelmesh/lifecycle"
	"github.com/simcoestone/modelmesh/mesh"
	"github.com/simcoestone/modelmesh/model"
	"github.com/simcoestone/modelmesh/registry"
	"github.com/simcoestone/modelmesh/selector"
)

type mockModel struct{ mock.Mock }

func (m *mockModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	if err := args.Error(0); err != nil {
		errCh <- err
	} else {
		out <- model.Response{Content: core.NewTextContent("assistant", args.String(1)), FinishReason: "stop"}
	}
	close(out)
	close(errCh)
	return out, errCh
}

func (m *mockModel) Info() model.Info { return model.Info{Name: "mock", Provider: "mock"} }

var _ model.Model = (*mockModel)(nil)

func newTierMesh(backend model.Backend, optFns ...func(o *modelmesh.Options)) *modelmesh.Mesh {
	fns := append([]func(o *modelmesh.Options){func(o *modelmesh.Options) {
		o.Catalog = testutil.TierCatalog()
		o.DefaultModel = "m-med"
		o.Assignments = map[string]string{"ollama": "m-med", "coder": "m-slow"}
		o.MemoryBudgetMB = 65536
		o.Backend = backend
	}}, optFns...)
	return modelmesh.New(fns...)
}

func TestNewPerformsNoDiscovery(t *testing.T) {
	lister := testutil.NewFakeLister("m-fast")
	m := newTierMesh(nil, func(o *modelmesh.Options) { o.Lister = lister })

	assert.Equal(t, 0, lister.Calls())
	assert.Equal(t, 3, m.Registry().Len())
}

func TestStartReconcilesAndPreloads(t *testing.T) {
	lister := testutil.NewFakeLister("m-fast", "mistral-7b-instruct-v0.3", "llama-3.2-8b-instruct")
	m := modelmesh.New(func(o *modelmesh.Options) {
		o.Lister = lister
		o.Preload = []string{"llama-3.2-8b-instruct", "not-served"}
	})

	res, err := m.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })

	assert.False(t, res.Degraded())
	assert.Equal(t, registry.DiscoveryRemote, res.Source)
	assert.Equal(t, 1, lister.Calls())

	stats := m.Stats()
	assert.Equal(t, "mistral-7b-instruct-v0.3", stats.Assignments["coder"])
	assert.Equal(t, "llama-3.2-8b-instruct", stats.Assignments["ollama"])
	assert.Equal(t, []string{"llama-3.2-8b-instruct"}, stats.Loaded)

	_, err = m.Start(context.Background())
	assert.ErrorIs(t, err, lifecycle.ErrAlreadyStarted)
}

func TestStartDegradedIsNotAnError(t *testing.T) {
	lister := testutil.NewFakeLister()
	lister.Fail(errors.New("connection refused"))
	m := modelmesh.New(func(o *modelmesh.Options) { o.Lister = lister })

	res, err := m.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })

	assert.True(t, res.Degraded())
	assert.ErrorIs(t, res.Err, registry.ErrDiscoveryUnavailable)
	assert.Len(t, res.Available, len(registry.StaticCatalog()))
	assert.Equal(t, selector.DefaultAssignments(), m.Stats().Assignments)
}

func TestRoute(t *testing.T) {
	m := newTierMesh(nil)

	tests := []struct {
		name  string
		agent string
		text  string
		label string
		model string
		rule  string
	}{
		{"complex coder", "coder", "refactor the quoting module", "", "m-slow", selector.RuleComplex},
		{"emergency is realtime", "emergency", "wall collapsed", "emergency", "m-fast", selector.RuleRealtime},
		{"assignment", "ollama", "hello", "", "m-med", selector.RuleAssignment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := m.Route(tt.agent, tt.text, tt.label)
			assert.Equal(t, tt.model, r.Decision.Model.Name)
			assert.Equal(t, tt.rule, r.Decision.Rule)
			assert.True(t, m.Monitor().IsLoaded(tt.model))
		})
	}
}

func TestRunStoresAnswer(t *testing.T) {
	backend := model.NewMockBackend()
	backend.Mock("m-med").AddResponse("How do I cut granite?", "Granite needs a diamond blade.")
	m := newTierMesh(backend)

	res, err := m.Run(context.Background(), modelmesh.Request{
		AgentID: "ollama",
		Text:    "How do I cut granite?",
		System:  "You are a stonemason.",
		Tags:    []string{"granite"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, "Granite needs a diamond blade.", res.Text)
	assert.Equal(t, "m-med", res.Route.Decision.Model.Name)
	assert.Empty(t, res.Related)

	node, err := m.Store().Get(res.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "ollama", node.AgentID)
	assert.Contains(t, node.Payload.Tags, "granite")
	assert.Contains(t, node.Payload.Properties, "model:m-med")

	reqs := backend.Mock("m-med").Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are a stonemason.", reqs[0].Instructions)
	assert.EqualValues(t, 2048, reqs[0].MaxTokens)
	assert.InDelta(t, 0.7, reqs[0].Temperature, 1e-9)
	assert.Equal(t, 0, m.Monitor().InFlight("m-med"))
}

func TestRunInjectsRelatedNodes(t *testing.T) {
	backend := model.NewMockBackend()
	backend.Mock("m-med").AddResponse("first", "Granite needs a diamond blade.")
	m := newTierMesh(backend)

	first, err := m.Run(context.Background(), modelmesh.Request{AgentID: "ollama", Text: "first"})
	require.NoError(t, err)

	second, err := m.Run(context.Background(), modelmesh.Request{AgentID: "ollama", Text: "diamond blade"})
	require.NoError(t, err)
	require.Len(t, second.Related, 1)
	assert.Equal(t, first.NodeID, second.Related[0].Node.ID)

	reqs := backend.Mock("m-med").Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Contents, 2)
	assert.Equal(t, "system", reqs[1].Contents[0].Role)
	assert.Contains(t, reqs[1].Contents[0].Text(), "Granite needs a diamond blade.")
	assert.Equal(t, "diamond blade", reqs[1].Contents[1].Text())
}

func TestRunMaxTokensFollowsContext(t *testing.T) {
	backend := model.NewMockBackend()
	m := modelmesh.New(func(o *modelmesh.Options) {
		o.Catalog = []registry.Descriptor{testutil.NewDescriptor("tiny").Context(4096).Memory(512).Build()}
		o.DefaultModel = "tiny"
		o.Backend = backend
	})

	_, err := m.Run(context.Background(), modelmesh.Request{AgentID: "ollama", Text: "hi"})
	require.NoError(t, err)
	reqs := backend.Mock("tiny").Requests()
	require.Len(t, reqs, 1)
	assert.EqualValues(t, 1024, reqs[0].MaxTokens)
}

func TestRunErrors(t *testing.T) {
	t.Run("no backend", func(t *testing.T) {
		_, err := newTierMesh(nil).Run(context.Background(), modelmesh.Request{AgentID: "ollama", Text: "x"})
		assert.ErrorIs(t, err, modelmesh.ErrNoBackend)
	})

	t.Run("empty agent", func(t *testing.T) {
		_, err := newTierMesh(model.NewMockBackend()).Run(context.Background(), modelmesh.Request{AgentID: "  "})
		assert.ErrorIs(t, err, mesh.ErrEmptyAgent)
	})

	t.Run("dispatch failure stores nothing", func(t *testing.T) {
		boom := errors.New("server down")
		failing := &mockModel{}
		failing.On("Generate", mock.Anything, mock.Anything).Return(boom, "")
		m := newTierMesh(model.BackendFunc(func(string) model.Model { return failing }))

		_, err := m.Run(context.Background(), modelmesh.Request{AgentID: "ollama", Text: "x"})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, m.Store().Len())
		assert.Equal(t, 0, m.Monitor().InFlight("m-med"))
		failing.AssertExpectations(t)
	})
}

func TestCoordinateCollectsPerAgentErrors(t *testing.T) {
	boom := errors.New("out of memory")
	failing := &mockModel{}
	failing.On("Generate", mock.Anything, mock.Anything).Return(boom, "")
	mocks := model.NewMockBackend()

	m := newTierMesh(model.BackendFunc(func(name string) model.Model {
		if name == "m-slow" {
			return failing
		}
		return mocks.Model(name)
	}))

	results := m.Coordinate(context.Background(), "quote a limestone patio", "ollama", "coder", "emergency")
	require.Len(t, results, 3)

	assert.Equal(t, "ollama", results[0].AgentID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "coder", results[1].AgentID)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, "emergency", results[2].AgentID)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "m-fast", results[2].Result.Route.Decision.Model.Name)

	assert.Equal(t, 2, m.Store().Len())
}

func TestWeaveAndStats(t *testing.T) {
	backend := model.NewMockBackend()
	backend.Mock("m-med").AddResponse("a", "Limestone weathers softly.")
	backend.Mock("m-med").AddResponse("b", "Granite resists frost.")
	m := newTierMesh(backend, func(o *modelmesh.Options) { o.Clock = testutil.NewManualClock(time.Unix(1_700_000_000, 0)).Now })

	ra, err := m.Run(context.Background(), modelmesh.Request{AgentID: "ollama", Text: "a"})
	require.NoError(t, err)
	rb, err := m.Run(context.Background(), modelmesh.Request{AgentID: "ollama", Text: "b"})
	require.NoError(t, err)

	woven, err := m.Weave("writer", ra.NodeID, rb.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "writer", woven.AgentID)
	assert.Contains(t, woven.Payload.Properties, mesh.WovenProperty)
	assert.Equal(t, "Limestone weathers softly.\n\nGranite resists frost.", woven.Payload.Content)

	_, err = m.Weave("writer")
	assert.ErrorIs(t, err, mesh.ErrNothingToWeave)

	stats := m.Stats()
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, []string{"m-med"}, stats.Loaded)
	assert.Equal(t, 4096, stats.UsedMB)
	assert.Equal(t, 3, stats.Registry.Total)
}

// hookModel calls during before answering.
type hookModel struct {
	during func()
	text   string
}

func (h hookModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	h.during()
	out := make(chan model.Response, 1)
	errCh := make(chan error)
	out <- model.Response{Content: core.NewTextContent("assistant", h.text), FinishReason: "stop"}
	close(out)
	close(errCh)
	return out, errCh
}

func (h hookModel) Info() model.Info { return model.Info{Name: "hook", Provider: "test"} }

func TestRunKeepsDispatchedModelLoaded(t *testing.T) {
	var (
		m             *modelmesh.Mesh
		evicted       []string
		loadedDuring  bool
		interleavedTo string
	)
	backend := model.BackendFunc(func(name string) model.Model {
		return hookModel{text: "Lay the pavers on a sand bed.", during: func() {
			interleavedTo = m.Route("two", "hello", "").Decision.Model.Name
			loadedDuring = m.Monitor().IsLoaded(name)
		}}
	})
	m = modelmesh.New(func(o *modelmesh.Options) {
		o.Catalog = []registry.Descriptor{
			testutil.NewDescriptor("a-x").Context(8192).Memory(5000).Build(),
			testutil.NewDescriptor("b-x").Context(8192).Memory(5000).Build(),
		}
		o.DefaultModel = "a-x"
		o.Assignments = map[string]string{"one": "a-x", "two": "b-x"}
		o.MemoryBudgetMB = 8192
		o.OnEvict = func(ev lifecycle.Eviction) { evicted = append(evicted, ev.Model) }
		o.Backend = backend
	})

	res, err := m.Run(context.Background(), modelmesh.Request{AgentID: "one", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "a-x", res.Route.Decision.Model.Name)
	assert.Equal(t, "b-x", interleavedTo)
	assert.True(t, loadedDuring, "a-x must stay loaded while serving")
	assert.NotContains(t, evicted, "a-x")
	assert.Equal(t, 0, m.Monitor().InFlight("a-x"))
}
