package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simcoestone/modelmesh"
	"github.com/simcoestone/modelmesh/mesh"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the models the endpoint serves and the resulting registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.mesh.Start(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Degraded() {
				fmt.Fprintf(out, "discovery unavailable, using static catalog: %v\n", res.Err)
			}
			fmt.Fprintf(out, "source: %s\n", res.Source)
			for _, d := range a.mesh.Registry().Available() {
				fmt.Fprintf(out, "  %-32s %-6s ctx=%-6d mem=%dMB q=%d src=%s\n",
					d.Name, d.Speed, d.ContextLength, d.MemoryMB, d.Quality, d.Source)
			}
			return printJSON(out, a.mesh.Stats().Assignments)
		},
	}
}

func newRouteCmd(a *app) *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "route <agent> <text>",
		Short: "Show the model a request would be routed to",
		Example: `  meshctl route coder "refactor the quote calculator"
  meshctl route emergency "retaining wall is leaning" --task emergency`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.mesh.Start(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a.mesh.Route(args[0], args[1], task))
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "", "task label (emergency, analysis, detailed, ...)")
	return cmd
}

func newAskCmd(a *app) *cobra.Command {
	var (
		task   string
		system string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask <agent> <text>",
		Short: "Route a request and run it against the selected model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.mesh.Start(cmd.Context()); err != nil {
				return err
			}
			res, err := a.mesh.Run(cmd.Context(), modelmesh.Request{
				AgentID:   args[0],
				Text:      args[1],
				TaskLabel: task,
				System:    system,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s via %s rule]\n%s\n",
				res.Route.Decision.Model.Name, res.Route.Decision.Rule, res.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "", "task label")
	cmd.Flags().StringVarP(&system, "system", "s", "", "system prompt")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print the full result as JSON")
	return cmd
}

// nodeRecord is one line of a recall input file.
type nodeRecord struct {
	AgentID    string   `json:"agent_id"`
	Content    string   `json:"content"`
	Signature  string   `json:"signature,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Properties []string `json:"properties,omitempty"`
}

func newRecallCmd(a *app) *cobra.Command {
	var (
		nodesFile string
		nodeID    string
	)
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Load nodes from a JSON lines file and rank them against a query",
		Example: `  meshctl recall "granite" --nodes answers.jsonl
  meshctl recall "lime mortar" --nodes answers.jsonl --near 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := loadNodes(a.mesh.Store(), nodesFile)
			if err != nil {
				return err
			}
			var near string
			if nodeID != "" {
				if idx, err := strconv.Atoi(nodeID); err == nil && idx >= 1 && idx <= len(ids) {
					near = ids[idx-1]
				} else {
					near = nodeID
				}
			}
			return printJSON(cmd.OutOrStdout(), a.mesh.Recall(cmd.Context(), args[0], near))
		},
	}
	cmd.Flags().StringVarP(&nodesFile, "nodes", "f", "", "JSON lines file of nodes (- for stdin)")
	cmd.Flags().StringVar(&nodeID, "near", "", "context node: a 1-based record index or a node id")
	_ = cmd.MarkFlagRequired("nodes")
	return cmd
}

func loadNodes(store *mesh.Store, path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var ids []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec nodeRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		id, err := store.Insert(rec.AgentID, mesh.Payload{
			Content:    rec.Content,
			Signature:  rec.Signature,
			Tags:       rec.Tags,
			Properties: rec.Properties,
		})
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}
