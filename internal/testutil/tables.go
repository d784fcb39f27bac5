//go:build integration

package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/store/clickhouse"
)

// CreateDatabase issues CREATE DATABASE IF NOT EXISTS for database.
func CreateDatabase(t *testing.T, c clickhouse.Client, database string) {
	t.Helper()
	_, err := c.Execute(context.Background(), "CREATE DATABASE IF NOT EXISTS "+database)
	require.NoError(t, err)
}

// CreateValueTable creates a value-resource table (one row per name,
// ReplacingMergeTree keyed on name) with the given non-timestamp
// columns, mirroring the schema pkg/store/clickhouse builds for an
// ingester with resource_type: value.
func CreateValueTable(t *testing.T, c clickhouse.Client, database, table string, columns string) {
	t.Helper()
	ctx := context.Background()

	CreateDatabase(t, c, database)

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			ts DateTime64(3),
			name String,
			%s
		)
		ENGINE = ReplacingMergeTree()
		ORDER BY (name)
	`, database, table, columns)

	_, err := c.Execute(ctx, createTable)
	require.NoError(t, err)
}

// CreateTimeseriesTable creates a timeseries-resource table
// (append-only, ordered by ts), mirroring the schema for an ingester
// with resource_type: timeseries.
func CreateTimeseriesTable(t *testing.T, c clickhouse.Client, database, table string, columns string) {
	t.Helper()
	ctx := context.Background()

	CreateDatabase(t, c, database)

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			ts DateTime64(3),
			%s
		)
		ENGINE = MergeTree()
		ORDER BY (ts)
	`, database, table, columns)

	_, err := c.Execute(ctx, createTable)
	require.NoError(t, err)
}

// CreateSeriesTable creates a series-resource table (append-only,
// unordered), mirroring the schema for an ingester with
// resource_type: series.
func CreateSeriesTable(t *testing.T, c clickhouse.Client, database, table string, columns string) {
	t.Helper()
	ctx := context.Background()

	CreateDatabase(t, c, database)

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			ts DateTime64(3),
			%s
		)
		ENGINE = MergeTree()
		ORDER BY tuple()
	`, database, table, columns)

	_, err := c.Execute(ctx, createTable)
	require.NoError(t, err)
}

// InsertRow inserts a single row of column/value pairs via an INSERT
// ... VALUES statement; values are inserted verbatim, so callers pass
// already-quoted strings for String columns.
func InsertRow(t *testing.T, c clickhouse.Client, database, table string, row map[string]string) {
	t.Helper()

	cols := make([]string, 0, len(row))
	vals := make([]string, 0, len(row))
	for col, val := range row {
		cols = append(cols, col)
		vals = append(vals, val)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		database, table, joinComma(cols), joinComma(vals))

	_, err := c.Execute(context.Background(), insertSQL)
	require.NoError(t, err)
}

// TruncateTable empties table.
func TruncateTable(t *testing.T, c clickhouse.Client, database, table string) {
	t.Helper()
	_, err := c.Execute(context.Background(), fmt.Sprintf("TRUNCATE TABLE %s.%s", database, table))
	require.NoError(t, err)
}

// DropTable drops table if it exists.
func DropTable(t *testing.T, c clickhouse.Client, database, table string) {
	t.Helper()
	_, err := c.Execute(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", database, table))
	require.NoError(t, err)
}

type countRow struct {
	Count uint64 `json:"count"`
}

// GetRowCount returns the row count of table.
func GetRowCount(t *testing.T, c clickhouse.Client, database, table string) uint64 {
	t.Helper()

	var row countRow
	q := fmt.Sprintf("SELECT count() AS count FROM %s.%s", database, table)
	err := c.QueryOne(context.Background(), q, &row)
	require.NoError(t, err)
	return row.Count
}

type latestRow struct {
	TS time.Time `json:"ts"`
}

// GetLatestTS returns the maximum ts column value in table, used to
// assert a tick actually advanced a time-series table's watermark.
func GetLatestTS(t *testing.T, c clickhouse.Client, database, table string) time.Time {
	t.Helper()

	var row latestRow
	q := fmt.Sprintf("SELECT max(ts) AS ts FROM %s.%s", database, table)
	err := c.QueryOne(context.Background(), q, &row)
	require.NoError(t, err)
	return row.TS
}

// GetColumns returns the column-name -> column-type map for table,
// the same query pkg/store/clickhouse uses to diff a table's existing
// schema before evolving it.
func GetColumns(t *testing.T, c clickhouse.Client, database, table string) map[string]string {
	t.Helper()

	type columnRow struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	var rows []columnRow
	q := fmt.Sprintf(
		"SELECT name, type FROM system.columns WHERE database = '%s' AND table = '%s'",
		database, table)
	err := c.QueryMany(context.Background(), q, &rows)
	require.NoError(t, err)

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Type
	}
	return out
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
