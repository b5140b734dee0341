package repositories

import (
	"context"

	"github.com/upb/model-router/models"
)

// DecisionRepository persists routing decision records
type DecisionRepository interface {
	// Insert stores a single decision record
	Insert(ctx context.Context, record *models.DecisionRecord) error

	// ListRecent returns the most recent records, newest first
	ListRecent(ctx context.Context, limit int) ([]*models.DecisionRecord, error)
}
