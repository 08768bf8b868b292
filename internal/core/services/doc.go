// Package services contains the core application logic: the ingestion
// pipeline, the query planner, hybrid search, and document operations.
// Services speak to the outside world only through the port interfaces,
// so every collaborator can be swapped or faked in tests.
package services
