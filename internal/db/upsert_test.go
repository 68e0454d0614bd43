package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "businesses"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_MissingColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "businesses"}, [][]any{{"x"}})
	assert.Error(t, err)
}

func TestBulkUpsert_MissingConflictKeys(t *testing.T) {
	cfg := UpsertConfig{Table: "businesses", Columns: []string{"place_id"}}
	_, err := BulkUpsert(context.TODO(), nil, cfg, [][]any{{"x"}})
	assert.Error(t, err)
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "businesses",
		Columns:      []string{"place_id", "name", "address"},
		ConflictKeys: []string{"place_id"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_businesses"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_businesses"}, cfg.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "businesses"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{
		{"p1", "Ace Plumbing", "1 Main St"},
		{"p2", "Best Dental", "2 Oak Ave"},
	}
	n, err := BulkUpsert(context.Background(), mock, cfg, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
