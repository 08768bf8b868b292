// Package domain defines the core business entities for packrat.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An ingested item with structured metadata
//   - Embedding: One vector for one aspect of a document
//   - ModelRegistry: Known embedding models and their vector spaces
//   - Query / ResultItem: Hybrid search input and output
//   - IngestionReport: Per-item outcome of the ingestion pipeline
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
