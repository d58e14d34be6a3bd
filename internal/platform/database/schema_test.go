package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifiokjr/verily/internal/shared"
)

func TestSchemaIssuesMigratedDatabase(t *testing.T) {
	h := newTestHandle(t)

	issues, err := h.SchemaIssues(context.Background(), Schema)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.NoError(t, SchemaError(issues))
}

func TestSchemaIssuesDrift(t *testing.T) {
	ctx := context.Background()
	h, err := TryNew(ctx, MemoryDSN)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.DB().ExecContext(ctx, `CREATE TABLE users (
		id            TEXT PRIMARY KEY,
		username      BLOB NOT NULL,
		password_hash TEXT,
		created_at    TIMESTAMP NOT NULL,
		nickname      VARCHAR(32)
	)`)
	require.NoError(t, err)

	issues, err := h.SchemaIssues(ctx, Schema)
	require.NoError(t, err)
	assert.Equal(t, []SchemaIssue{
		{Kind: IssueTypeChanged, Table: "users", Column: "username", Want: "text", Got: "BLOB"},
		{Kind: IssueNullabilityChanged, Table: "users", Column: "password_hash", Want: "not null", Got: "null"},
		{Kind: IssueMissingColumn, Table: "users", Column: "deleted_at"},
		{Kind: IssueExtraColumn, Table: "users", Column: "nickname"},
		{Kind: IssueMissingTable, Table: "refresh_tokens"},
	}, issues)

	err = SchemaError(issues)
	var dbErr *shared.DbError
	require.True(t, errors.As(err, &dbErr), "got %v", err)
	assert.Equal(t, shared.DbMigration, dbErr.Kind)
	assert.Contains(t, err.Error(), "type changed: users.username (want text, got BLOB)")
	assert.Contains(t, err.Error(), "missing table: refresh_tokens")
	assert.NotContains(t, err.Error(), "nickname")
}

func TestSchemaErrorToleratesExtraColumns(t *testing.T) {
	issues := []SchemaIssue{{Kind: IssueExtraColumn, Table: "users", Column: "nickname"}}
	assert.NoError(t, SchemaError(issues))
	assert.NoError(t, SchemaError(nil))
}

func TestTypeMatches(t *testing.T) {
	tests := []struct {
		declared string
		want     ColumnType
		dialect  Dialect
		ok       bool
	}{
		{declared: "TEXT", want: ColumnText, dialect: DialectSQLite, ok: true},
		{declared: "varchar(32)", want: ColumnText, dialect: DialectSQLite, ok: true},
		{declared: "BLOB", want: ColumnText, dialect: DialectSQLite, ok: false},
		{declared: "timestamp with time zone", want: ColumnTime, dialect: DialectPostgres, ok: true},
		{declared: "uuid", want: ColumnUUID, dialect: DialectPostgres, ok: true},
		{declared: "text", want: ColumnUUID, dialect: DialectPostgres, ok: false},
		{declared: "bytea", want: ColumnBytes, dialect: DialectPostgres, ok: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect)+"/"+tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.ok, typeMatches(acceptedTypes[tt.dialect][tt.want], tt.declared))
		})
	}
}

func TestSchemaIssuesClosedHandle(t *testing.T) {
	_, err := Handle{}.SchemaIssues(context.Background(), Schema)
	var dbErr *shared.DbError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, shared.DbConnection, dbErr.Kind)
}
