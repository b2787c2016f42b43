// Package model defines the core value types shared by all coocgo engines.
//
// # Entities
//
//   - Entity: a word, a synthesized word class, or the wildcard marker
//   - Pair: an ordered (left, right) entity tuple under a relation kind
//   - Connector: a directional reference from a germ to another entity
//
// # Composite observations
//
//   - ConnectorSeq: an ordered connector list (a disjunct)
//   - Section: (germ, connector sequence) — one observed usage of a germ
//   - Shape: a section template with exactly one connector slot left open
//   - CrossSection: the dual view (hole entity, shape), used to reach a
//     section through any of its participants rather than only its germ
//
// Every countable object has a stable string Key used as its handle in the
// observation store. Keys quote entity names, so arbitrary corpus tokens
// (including separator characters) round-trip safely.
package model
