// Package model defines the provider-agnostic generation contract used when
// the mesh dispatches a routed prompt.
//
// A Backend resolves a model name chosen by the selector into a Model, and a
// Model turns a Request into a stream of Responses. Providers (OpenAI
// compatible local servers, Anthropic) live in sub-packages so the rest of
// the module stays decoupled from vendor SDKs. MockModel and MockBackend
// cover tests and examples.
package model
