package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/model-router/models"
	"github.com/upb/model-router/services/routing"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return &DB{DB: mockDB, logger: zap.NewNop()}, mock
}

func TestDecisionRepository_Insert(t *testing.T) {
	t.Run("inserts a record", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDecisionRepository(db, zap.NewNop())

		record := models.NewDecisionRecord(&routing.Decision{
			SelectedID: "phi3",
			Strategy:   "keyword",
			Reason:     "classifier named it",
			DecidedAt:  time.Now(),
		}, "explain entropy")

		mock.ExpectExec("INSERT INTO routing_decisions").
			WithArgs(
				record.ID,
				record.SelectedID,
				record.Strategy,
				record.Reason,
				record.FallbackUsed,
				record.PromptHash,
				record.DecidedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Insert(context.Background(), record)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database errors", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDecisionRepository(db, zap.NewNop())

		record := models.NewDecisionRecord(&routing.Decision{SelectedID: "phi3"}, "prompt")

		mock.ExpectExec("INSERT INTO routing_decisions").
			WillReturnError(sql.ErrConnDone)

		err := repo.Insert(context.Background(), record)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert decision record")
	})
}

func TestDecisionRepository_ListRecent(t *testing.T) {
	columns := []string{"id", "selected_id", "strategy", "reason", "fallback_used", "prompt_hash", "decided_at"}

	t.Run("returns records newest first", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDecisionRepository(db, zap.NewNop())

		now := time.Now()
		rows := sqlmock.NewRows(columns).
			AddRow(uuid.New().String(), "llama3", "embedding", "closest capability", false, "hash-b", now).
			AddRow(uuid.New().String(), "phi3", "embedding", "closest capability", true, "hash-a", now.Add(-time.Minute))

		mock.ExpectQuery("SELECT id, selected_id, strategy, reason, fallback_used, prompt_hash, decided_at").
			WithArgs(25).
			WillReturnRows(rows)

		records, err := repo.ListRecent(context.Background(), 25)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "llama3", records[0].SelectedID)
		assert.True(t, records[1].FallbackUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("applies the default limit", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDecisionRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT id, selected_id").
			WithArgs(50).
			WillReturnRows(sqlmock.NewRows(columns))

		records, err := repo.ListRecent(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps query errors", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDecisionRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT id, selected_id").
			WillReturnError(sql.ErrConnDone)

		_, err := repo.ListRecent(context.Background(), 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query decision records")
	})
}
