// Package core holds the small set of value types and contracts shared by the
// modelmesh packages:
//
//   - TaskRequirement (what a request needs from a model)
//   - Content / Part (role based message content handed to model backends)
//   - ModelLister (remote model catalog used by registry discovery)
//
// Concrete behaviour lives elsewhere (registry, selector, lifecycle, mesh,
// retrieval). Keeping the contracts here lets those packages depend on each
// other's shapes without import cycles.
package core
