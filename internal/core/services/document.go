package services

import (
	"context"
	"fmt"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/core/ports/driving"
	"github.com/packrat-labs/packrat/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService exposes direct document operations.
type DocumentService struct {
	docs driven.DocumentStore
	ann  driven.ANNIndex
}

// NewDocumentService creates a document service.
func NewDocumentService(docs driven.DocumentStore) *DocumentService {
	return &DocumentService{docs: docs}
}

// SetANNIndex wires the optional external index so deletes reach it.
func (s *DocumentService) SetANNIndex(ann driven.ANNIndex) {
	s.ann = ann
}

// GetDocument retrieves a document by ID.
func (s *DocumentService) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty document ID", domain.ErrInvalidInput)
	}
	return s.docs.GetByID(ctx, id)
}

// DeleteDocument removes a document, its embeddings, and its entries in
// every index. A failed external-index delete leaves stale points but
// never blocks the store delete.
func (s *DocumentService) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty document ID", domain.ErrInvalidInput)
	}

	if s.ann != nil {
		if err := s.ann.DeleteByDocument(ctx, id); err != nil {
			logger.Warn("External index delete for %s failed: %v", id, err)
		}
	}

	if err := s.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	logger.Info("Deleted document %s", id)
	return nil
}
