package mesh

import (
	"fmt"
	"strings"
)

// WovenProperty marks nodes created by Weave.
const WovenProperty = "woven"

// Weave inserts a node for agentID that merges the given nodes: contents are
// joined in argument order, tags, properties and signature tokens are merged.
// The woven node is linked by the normal threshold rule.
func (s *Store) Weave(agentID string, ids ...string) (string, error) {
	if len(ids) == 0 {
		return "", ErrNothingToWeave
	}

	var (
		contents []string
		sig      []string
		tags     []string
		props    = []string{WovenProperty}
	)
	for _, id := range ids {
		n, err := s.Get(id)
		if err != nil {
			return "", fmt.Errorf("weave: %w", err)
		}
		if c := strings.TrimSpace(n.Payload.Content); c != "" {
			contents = append(contents, c)
		}
		sig = append(sig, tokenize(n.Payload.Signature)...)
		tags = append(tags, n.Payload.Tags...)
		props = append(props, n.Payload.Properties...)
	}

	return s.Insert(agentID, Payload{
		Content:    strings.Join(contents, "\n\n"),
		Signature:  strings.Join(distinct(sig), " "),
		Tags:       tags,
		Properties: props,
	})
}
