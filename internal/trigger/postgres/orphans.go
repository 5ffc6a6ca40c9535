package postgres

import (
	"context"

	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	"github.com/jmoiron/sqlx"
)

const findOrphansQuery = `
SELECT e.id AS expense_id, e.raw_message_id AS raw_message_id
FROM expenses e
JOIN raw_messages r ON r.id = e.raw_message_id
WHERE r.processed = ?
ORDER BY e.created_at ASC
LIMIT ?`

// OrphanStore finds expenses whose raw message was never flagged processed.
type OrphanStore struct {
	db *sqlx.DB
}

func NewOrphanStore(db *sqlx.DB) *OrphanStore {
	return &OrphanStore{db: db}
}

func (s *OrphanStore) FindOrphans(ctx context.Context, limit int) ([]trigger.Orphan, error) {
	var orphans []trigger.Orphan
	if err := s.db.SelectContext(ctx, &orphans, s.db.Rebind(findOrphansQuery), false, limit); err != nil {
		return nil, err
	}
	return orphans, nil
}
