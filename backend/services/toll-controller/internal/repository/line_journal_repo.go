package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// LineJournalRepository stores every raw serial line as received.
type LineJournalRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewLineJournalRepository ctor.
func NewLineJournalRepository(db *sql.DB) *LineJournalRepository {
	return &LineJournalRepository{db: db, now: time.Now}
}

// Save stores a line. tag is empty for malformed lines.
func (r *LineJournalRepository) Save(ctx context.Context, tag, raw string, malformed bool) error {
	const query = `
		INSERT INTO toll_serial_lines (id, tag, raw, malformed, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, uuid.New(), tag, raw, malformed, r.now().UTC())
	return err
}
