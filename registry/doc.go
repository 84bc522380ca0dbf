// Package registry owns the catalog of model descriptors the selector chooses
// from.
//
// Descriptors come from three places, in order of trust:
//
//  1. The static catalog (StaticCatalog) seeded at construction
//  2. A versioned capability table keyed by model family (CapabilityTable)
//  3. Naming heuristics (InferDescriptor) for names the table does not cover
//
// Discover asks a core.ModelLister (usually an OpenAI compatible
// `/v1/models` endpoint) for the current model ids and extends the catalog.
// Discovery degrades softly: on any failure the static catalog stays
// available and the failure is reported in DiscoveryResult.Err.
//
// The Registry is safe for concurrent use. Every read returns copies; only the
// registry mutates its descriptors.
package registry
