package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func itemsDatabase(t *testing.T) Database {
	t.Helper()
	db := newTestDatabase(t)
	require.NoError(t, db.Session(context.Background()).
		Exec("CREATE TABLE test_items (id INTEGER PRIMARY KEY, name TEXT)").Error)
	return db
}

func countItems(t *testing.T, db Database) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Session(context.Background()).Raw("SELECT COUNT(*) FROM test_items").Scan(&count).Error)
	return count
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	db := itemsDatabase(t)
	ctx := context.Background()

	txn, err := NewTransaction(ctx, db)
	require.NoError(t, err)
	require.NoError(t, txn.Session().Exec("INSERT INTO test_items (name) VALUES (?)", "kept").Error)
	require.NoError(t, txn.Commit())
	require.NoError(t, txn.Commit(), "second commit is a no-op")
	require.NoError(t, txn.Rollback(), "rollback after commit is a no-op")

	txn, err = NewTransaction(ctx, db)
	require.NoError(t, err)
	require.NoError(t, txn.Session().Exec("INSERT INTO test_items (name) VALUES (?)", "dropped").Error)
	require.NoError(t, txn.Rollback())

	assert.Equal(t, int64(1), countItems(t, db))
}

func TestWithTransaction(t *testing.T) {
	db := itemsDatabase(t)
	ctx := context.Background()

	err := WithTransaction(ctx, db, func(tx *gorm.DB) error {
		return tx.Exec("INSERT INTO test_items (name) VALUES (?)", "one").Error
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTransaction(ctx, db, func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO test_items (name) VALUES (?)", "two").Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, int64(1), countItems(t, db))
}

func TestWithTransactionResult(t *testing.T) {
	db := itemsDatabase(t)
	ctx := context.Background()

	id, err := WithTransactionResult(ctx, db, func(tx *gorm.DB) (int64, error) {
		if err := tx.Exec("INSERT INTO test_items (name) VALUES (?)", "one").Error; err != nil {
			return 0, err
		}
		var id int64
		err := tx.Raw("SELECT id FROM test_items WHERE name = ?", "one").Scan(&id).Error
		return id, err
	})
	require.NoError(t, err)
	assert.Positive(t, id)
}
