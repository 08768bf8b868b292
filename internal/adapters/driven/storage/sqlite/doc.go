// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple port interfaces
// through a single database connection:
//
//   - DocumentStore: one row per ingested item, unique source_id
//   - EmbeddingStore: aspect vectors, unique (document_id, chunk_index, embedding_type)
//   - VectorSearcher: model-scoped similarity scan over filtered candidates
//   - KeywordSearcher: FTS5 bm25 search over embedding content
//
// # Schema
//
// The database schema is managed through versioned migrations embedded from the
// migrations/ directory. Embedding vectors are stored as little-endian float32
// BLOBs; the vector space (dimension, distance metric) of each row is fixed by
// its embedding_model column and validated against the model registry on write.
//
// # Data Location
//
// By default, the database is stored at ~/.packrat/data/packrat.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
