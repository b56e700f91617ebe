package repository

import (
	"context"
	"database/sql"

	"tollbooth/backend/services/toll-controller/internal/ledger"
)

// TransactionRepository mirrors committed ledger records into Postgres.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository ctor.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Save inserts one record.
func (r *TransactionRepository) Save(ctx context.Context, rec ledger.Record) error {
	const query = `
		INSERT INTO toll_transactions (occurred_at, card_id, amount, balance)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, rec.Timestamp, rec.CardID, rec.Amount, rec.Balance)
	return err
}
