package mesh

import "errors"

var (
	// ErrEmptyAgent is returned when a node is inserted without an agent id.
	ErrEmptyAgent = errors.New("agent id is required")
	// ErrNodeNotFound is returned for an unknown node id.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNothingToWeave is returned by Weave when no source ids are given.
	ErrNothingToWeave = errors.New("nothing to weave")
)
