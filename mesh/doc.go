// Package mesh holds the semantic nodes agents emit and the entanglement graph
// that links similar nodes.
//
// Nodes are append-only: once inserted they are never edited or pruned, and
// the Store hands out copies. Every node carries a fixed-width feature vector
// built by signed feature hashing of its tokens, so similarity needs no
// external embedding model. On insert the new node is compared with existing
// nodes and linked to every node whose similarity exceeds the link threshold.
// Links are stored on both endpoints under one lock, so the graph is always
// symmetric.
package mesh
