package db

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertBatch_EmptyRowsIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := UpsertBatch(context.Background(), mock, UpsertConfig{
		Table:        "templates",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_MissingConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"id-1", "name-1"}}

	_, err = UpsertBatch(context.Background(), mock, UpsertConfig{
		Table:        "templates",
		ConflictKeys: []string{"id"},
	}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = UpsertBatch(context.Background(), mock, UpsertConfig{
		Table:   "templates",
		Columns: []string{"id", "name"},
	}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestUpsertBatch_RowWidthMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = UpsertBatch(context.Background(), mock, UpsertConfig{
		Table:        "templates",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"only-one-value"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0")
}

func TestUpsertBatch_BuildsMultiRowStatement(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "templates" \("id", "name"\) VALUES \(\$1, \$2\), \(\$3, \$4\) ON CONFLICT \("id"\) DO UPDATE SET "name" = EXCLUDED\."name"`).
		WithArgs("a", "Vendor Low", "b", "Vendor High").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := UpsertBatch(context.Background(), mock, UpsertConfig{
		Table:        "templates",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"a", "Vendor Low"}, {"b", "Vendor High"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
