package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ifiokjr/verily/internal/shared"
)

// ColumnType is the storage class a column is expected to have. Each
// dialect accepts a few declared types for the same class.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnUUID
	ColumnTime
	ColumnBytes
)

var columnTypeNames = [...]string{
	ColumnText:  "text",
	ColumnUUID:  "uuid",
	ColumnTime:  "time",
	ColumnBytes: "bytes",
}

func (t ColumnType) String() string {
	if t < 0 || int(t) >= len(columnTypeNames) {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// declared types per dialect, upper case without length modifiers.
var acceptedTypes = map[Dialect]map[ColumnType][]string{
	DialectSQLite: {
		ColumnText:  {"TEXT", "VARCHAR"},
		ColumnUUID:  {"TEXT", "UUID"},
		ColumnTime:  {"TIMESTAMP", "DATETIME", "TEXT"},
		ColumnBytes: {"BLOB"},
	},
	DialectPostgres: {
		ColumnText:  {"TEXT", "CHARACTER VARYING"},
		ColumnUUID:  {"UUID"},
		ColumnTime:  {"TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE"},
		ColumnBytes: {"BYTEA"},
	},
}

// Column is an expected column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Table is the expected shape of a table.
type Table struct {
	Name    string
	Columns []Column
}

// Schema is the shape the embedded migrations produce.
var Schema = []Table{
	{Name: "users", Columns: []Column{
		{Name: "id", Type: ColumnUUID},
		{Name: "username", Type: ColumnText},
		{Name: "password_hash", Type: ColumnText},
		{Name: "created_at", Type: ColumnTime},
		{Name: "deleted_at", Type: ColumnTime, Nullable: true},
	}},
	{Name: "refresh_tokens", Columns: []Column{
		{Name: "id", Type: ColumnUUID},
		{Name: "user_id", Type: ColumnUUID},
		{Name: "expires_at", Type: ColumnTime},
		{Name: "revoked_at", Type: ColumnTime, Nullable: true},
		{Name: "client", Type: ColumnBytes, Nullable: true},
	}},
}

// IssueKind classifies a SchemaIssue.
type IssueKind int

const (
	IssueMissingTable IssueKind = iota
	IssueMissingColumn
	IssueExtraColumn
	IssueTypeChanged
	IssueNullabilityChanged
)

var issueKindNames = [...]string{
	IssueMissingTable:       "missing table",
	IssueMissingColumn:      "missing column",
	IssueExtraColumn:        "extra column",
	IssueTypeChanged:        "type changed",
	IssueNullabilityChanged: "nullability changed",
}

func (k IssueKind) String() string {
	if k < 0 || int(k) >= len(issueKindNames) {
		return fmt.Sprintf("IssueKind(%d)", int(k))
	}
	return issueKindNames[k]
}

// SchemaIssue is one difference between the live schema and the expected
// one. Want and Got are set for type and nullability changes.
type SchemaIssue struct {
	Kind   IssueKind
	Table  string
	Column string
	Want   string
	Got    string
}

func (i SchemaIssue) String() string {
	name := i.Table
	if i.Column != "" {
		name += "." + i.Column
	}
	if i.Want == "" && i.Got == "" {
		return fmt.Sprintf("%s: %s", i.Kind, name)
	}
	return fmt.Sprintf("%s: %s (want %s, got %s)", i.Kind, name, i.Want, i.Got)
}

// Blocking reports whether the application cannot run against a schema
// with this issue. Extra columns are tolerated.
func (i SchemaIssue) Blocking() bool { return i.Kind != IssueExtraColumn }

type liveColumn struct {
	name     string
	declared string
	nullable bool
}

// SchemaIssues compares the live schema with tables and returns every
// difference in table order. Columns of a table are compared by name.
func (h Handle) SchemaIssues(ctx context.Context, tables []Table) ([]SchemaIssue, error) {
	if !h.Valid() {
		return nil, shared.DbConnectionError(errNotOpen)
	}
	accepted, ok := acceptedTypes[h.Dialect()]
	if !ok {
		return nil, shared.DbStorageError(fmt.Errorf("unsupported dialect %q", h.Dialect()))
	}

	var issues []SchemaIssue
	for _, t := range tables {
		live, err := h.columns(ctx, t.Name)
		if err != nil {
			return nil, Classify(err)
		}
		if len(live) == 0 {
			issues = append(issues, SchemaIssue{Kind: IssueMissingTable, Table: t.Name})
			continue
		}

		byName := make(map[string]liveColumn, len(live))
		for _, c := range live {
			byName[c.name] = c
		}
		expected := make(map[string]bool, len(t.Columns))
		for _, want := range t.Columns {
			expected[want.Name] = true
			got, ok := byName[want.Name]
			if !ok {
				issues = append(issues, SchemaIssue{Kind: IssueMissingColumn, Table: t.Name, Column: want.Name})
				continue
			}
			if !typeMatches(accepted[want.Type], got.declared) {
				issues = append(issues, SchemaIssue{
					Kind: IssueTypeChanged, Table: t.Name, Column: want.Name,
					Want: want.Type.String(), Got: got.declared,
				})
			}
			if want.Nullable != got.nullable {
				issues = append(issues, SchemaIssue{
					Kind: IssueNullabilityChanged, Table: t.Name, Column: want.Name,
					Want: nullability(want.Nullable), Got: nullability(got.nullable),
				})
			}
		}
		for _, c := range live {
			if !expected[c.name] {
				issues = append(issues, SchemaIssue{Kind: IssueExtraColumn, Table: t.Name, Column: c.name})
			}
		}
	}
	return issues, nil
}

// SchemaError returns a migration storage error listing the blocking
// issues, or nil when there are none.
func SchemaError(issues []SchemaIssue) error {
	var blocking []string
	for _, i := range issues {
		if i.Blocking() {
			blocking = append(blocking, i.String())
		}
	}
	if len(blocking) == 0 {
		return nil
	}
	return shared.DbMigrationError(errors.New("schema drift: " + strings.Join(blocking, "; ")))
}

func (h Handle) columns(ctx context.Context, table string) ([]liveColumn, error) {
	var query string
	switch h.Dialect() {
	case DialectSQLite:
		// A non-integer PRIMARY KEY column reports notnull = 0 in SQLite
		// but the application never stores NULL there.
		query = `SELECT name, type, "notnull" = 0 AND pk = 0 FROM pragma_table_info($1) ORDER BY cid`
	case DialectPostgres:
		query = `SELECT column_name, data_type, is_nullable = 'YES' FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`
	}

	rows, err := h.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []liveColumn
	for rows.Next() {
		var c liveColumn
		if err := rows.Scan(&c.name, &c.declared, &c.nullable); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func typeMatches(accepted []string, declared string) bool {
	base, _, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(declared)), "(")
	base = strings.TrimSpace(base)
	for _, a := range accepted {
		if base == a {
			return true
		}
	}
	return false
}

func nullability(nullable bool) string {
	if nullable {
		return "null"
	}
	return "not null"
}
