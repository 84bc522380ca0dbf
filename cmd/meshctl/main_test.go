package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcoestone/modelmesh"
	"github.com/simcoestone/modelmesh/retrieval"
)

func fakeInference(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[
			{"id":"llama-3.2-3b-instruct","object":"model","created":0,"owned_by":"local"},
			{"id":"qwen2.5-32b-instruct","object":"model","created":0,"owned_by":"local"}]}`)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c","object":"chat.completion","created":0,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Bed the flagstone in sand."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env"), "--provider", "openai"))
	require.NoError(t, root.Execute())
	return out.String()
}

func TestRouteCommand(t *testing.T) {
	srv := fakeInference(t)

	out := execute(t, "route", "coder", "refactor the quote calculator", "--endpoint", srv.URL+"/v1")

	var r modelmesh.Route
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "coder", r.AgentID)
	assert.Equal(t, "qwen2.5-32b-instruct", r.Decision.Model.Name)
}

func TestDiscoverCommand(t *testing.T) {
	srv := fakeInference(t)

	out := execute(t, "discover", "--endpoint", srv.URL+"/v1")
	assert.Contains(t, out, "source: remote")
	assert.Contains(t, out, "llama-3.2-3b-instruct")
	assert.NotContains(t, out, "mistral-7b-instruct ")
}

func TestAskCommand(t *testing.T) {
	srv := fakeInference(t)

	out := execute(t, "ask", "ollama", "how do I lay a patio?", "--endpoint", srv.URL+"/v1")
	assert.Contains(t, out, "Bed the flagstone in sand.")
}

func TestRecallCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.jsonl")
	lines := strings.Join([]string{
		`{"agent_id":"ollama","content":"Granite is a hard igneous stone.","tags":["granite"]}`,
		``,
		`{"agent_id":"coder","content":"func quote() {}"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o600))

	out := execute(t, "recall", "granite", "--nodes", path)

	var results []retrieval.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "ollama", results[0].Node.AgentID)
}

func TestHandler(t *testing.T) {
	srv := fakeInference(t)
	a := &app{}
	require.NoError(t, a.init(&rootFlags{
		envFile:  filepath.Join(t.TempDir(), "none.env"),
		endpoint: srv.URL + "/v1",
		provider: "openai",
	}))
	t.Cleanup(func() { _ = a.mesh.Stop() })

	h := newHandler(a)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run",
		strings.NewReader(`{"agent_id":"ollama","text":"patio base?"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var res modelmesh.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Bed the flagstone in sand.", res.Text)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"agent_id":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats modelmesh.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Nodes)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recall?q=flagstone", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flagstone")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modelmesh_selections_total")
}
