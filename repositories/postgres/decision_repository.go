package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/model-router/models"
	"github.com/upb/model-router/repositories"
)

// DecisionRepository implements the repositories.DecisionRepository
// interface
type DecisionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *DB, logger *zap.Logger) repositories.DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a single decision record
func (r *DecisionRepository) Insert(ctx context.Context, record *models.DecisionRecord) error {
	query := `
		INSERT INTO routing_decisions (
			id, selected_id, strategy, reason, fallback_used, prompt_hash, decided_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.SelectedID,
		record.Strategy,
		record.Reason,
		record.FallbackUsed,
		record.PromptHash,
		record.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision record: %w", err)
	}

	r.logger.Debug("decision record inserted",
		zap.String("id", record.ID.String()),
		zap.String("selected_id", record.SelectedID))
	return nil
}

// ListRecent returns the most recent records, newest first
func (r *DecisionRepository) ListRecent(ctx context.Context, limit int) ([]*models.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, selected_id, strategy, reason, fallback_used, prompt_hash, decided_at
		FROM routing_decisions
		ORDER BY decided_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision records: %w", err)
	}
	defer rows.Close()

	var records []*models.DecisionRecord
	for rows.Next() {
		record := &models.DecisionRecord{}
		err := rows.Scan(
			&record.ID,
			&record.SelectedID,
			&record.Strategy,
			&record.Reason,
			&record.FallbackUsed,
			&record.PromptHash,
			&record.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision record rows: %w", err)
	}

	return records, nil
}
