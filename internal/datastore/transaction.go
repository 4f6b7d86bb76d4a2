package datastore

import (
	"context"

	"pointsledger/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableTransaction(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Transaction)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Transaction)(nil)).Index("index_loyalty_transaction_user_id").IfNotExists().Column("user_id", "created_at").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Transaction)(nil)).Index("index_loyalty_transaction_reference_id").IfNotExists().Column("reference_id").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

// InsertTransactions appends transactions, ignoring ids already archived.
func InsertTransactions(ctx context.Context, db bun.IDB, txs []*models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	_, err := db.NewInsert().Model(&txs).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	return err
}

func ListTransactionsByUser(ctx context.Context, db bun.IDB, userID string, limit int, offset int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := db.NewSelect().Model(&txs).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return txs, nil
}

// SumTransactionsByUser returns the signed sum of every archived amount for
// the user, which must equal the account's available points.
func SumTransactionsByUser(ctx context.Context, db bun.IDB, userID string) (int, error) {
	var sum int
	err := db.NewSelect().Model((*models.Transaction)(nil)).
		ColumnExpr("coalesce(sum(amount), 0)").
		Where("user_id = ?", userID).
		Scan(ctx, &sum)
	if err != nil {
		return 0, err
	}

	return sum, nil
}

// TransactionArchive mirrors committed ledger transactions into Postgres.
type TransactionArchive struct {
	db *bun.DB
}

func NewTransactionArchive(db *bun.DB) *TransactionArchive {
	return &TransactionArchive{db}
}

func (archive *TransactionArchive) ArchiveTransactions(ctx context.Context, txs []*models.Transaction) error {
	return InsertTransactions(ctx, archive.db, txs)
}
