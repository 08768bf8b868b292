// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
//
// The core services depend on these interfaces; adapters under
// internal/adapters/driven implement them. External collaborators
// (text extraction, metadata enrichment, embedding, summarisation)
// appear here as opaque contracts.
package driven
