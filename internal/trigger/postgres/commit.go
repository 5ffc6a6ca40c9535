package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	expensePostgres "github.com/frahmantamala/sms-expense-pipeline/internal/expense/postgres"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	rawPostgres "github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage/postgres"
	"gorm.io/gorm"
)

// Committer implements trigger.Committer with a single gorm transaction. The
// handle must be opened with TranslateError so a unique index violation
// surfaces as gorm.ErrDuplicatedKey.
type Committer struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewCommitter(db *gorm.DB, logger *slog.Logger) *Committer {
	return &Committer{db: db, logger: logger}
}

// Commit reuses the expense already stored for the raw message or inserts a
// new one, then flags the raw message processed. If the flag update matches
// no unprocessed row the whole transaction rolls back and
// internal.ErrAlreadyProcessed is returned.
func (c *Committer) Commit(ctx context.Context, raw *rawmessage.RawMessage, draft expense.Draft) (string, error) {
	expenseID, err := c.commitOnce(ctx, raw, draft)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// a concurrent invocation inserted first; the retry reads its row
		c.logger.Info("expense already inserted for raw message, retrying commit", "raw_message_id", raw.ID)
		expenseID, err = c.commitOnce(ctx, raw, draft)
	}
	return expenseID, err
}

func (c *Committer) commitOnce(ctx context.Context, raw *rawmessage.RawMessage, draft expense.Draft) (string, error) {
	var expenseID string

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := expensePostgres.FindByRawMessageID(tx, raw.ID)
		if err != nil {
			return err
		}

		if existing != nil {
			expenseID = existing.ID
		} else {
			e := expense.NewFromRawMessage(raw, draft)
			if err := expensePostgres.Insert(tx, e); err != nil {
				return err
			}
			expenseID = e.ID
		}

		return rawPostgres.MarkCommitted(tx, raw.ID, expenseID)
	})
	if err != nil {
		return "", err
	}
	return expenseID, nil
}
