package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chomp-dev/chomp/pkg/ingester"
)

// ErrSchemaDrift is returned when a field's configured type no longer
// matches its existing column, which spec.md §4.5 treats as fatal
// rather than something to auto-migrate.
var ErrSchemaDrift = errors.New("schema drift: field type changed")

// columnType maps a Chomp scalar FieldType to its ClickHouse column
// type (spec.md §6).
func columnType(t ingester.FieldType) (string, error) {
	switch t {
	case ingester.TypeInt8:
		return "Int8", nil
	case ingester.TypeUint8:
		return "UInt8", nil
	case ingester.TypeInt16:
		return "Int16", nil
	case ingester.TypeUint16:
		return "UInt16", nil
	case ingester.TypeInt32:
		return "Int32", nil
	case ingester.TypeUint32:
		return "UInt32", nil
	case ingester.TypeInt64:
		return "Int64", nil
	case ingester.TypeUint64:
		return "UInt64", nil
	case ingester.TypeFloat32:
		return "Float32", nil
	case ingester.TypeUFloat32:
		return "Float32", nil
	case ingester.TypeFloat64:
		return "Float64", nil
	case ingester.TypeUFloat64:
		return "Float64", nil
	case ingester.TypeBool:
		return "Bool", nil
	case ingester.TypeTimestamp:
		return "DateTime64(3)", nil
	case ingester.TypeString:
		return "String", nil
	case ingester.TypeBinary, ingester.TypeVarbinary:
		return "String", nil
	default:
		return "", fmt.Errorf("%w: %q", ingester.ErrUnknownFieldType, t)
	}
}

// tableName derives the physical table name for an ingester. Dots in
// namespaced ingester names aren't valid ClickHouse identifiers.
func tableName(ing *ingester.Ingester) string {
	return strings.ReplaceAll(ing.Name, ".", "_")
}

// engineClause picks the MergeTree variant matching the ingester's
// ResourceType (spec.md §4.5): a value table holds a single row per
// ingester, deduplicated on merge; a timeseries table is keyed on ts
// and likewise deduplicated on merge, so a repeated write of the same
// tick leaves one row; a series table is append-only and genuinely unkeyed
// (insertion order only — the "(name, ts)" identity described in
// spec.md §4.5 is already fixed by which table a row lands in, so it
// contributes nothing to the physical ORDER BY here).
func engineClause(ing *ingester.Ingester) (orderBy, engine string) {
	switch ing.ResourceType {
	case ingester.ResourceValue:
		return "(name)", "ReplacingMergeTree"
	case ingester.ResourceSeries:
		return "tuple()", "MergeTree"
	default: // timeseries
		return "(ts)", "ReplacingMergeTree"
	}
}

// buildCreateTable generates the CREATE TABLE IF NOT EXISTS statement
// for ing's non-transient fields.
func buildCreateTable(ing *ingester.Ingester) (string, error) {
	var cols []string
	cols = append(cols, "ts DateTime64(3)")
	if ing.ResourceType == ingester.ResourceValue {
		cols = append(cols, "name String")
	}

	for _, f := range ing.NonTransientFields() {
		ct, err := columnType(f.Type)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", f.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s", f.Name, ct))
	}

	orderBy, engine := engineClause(ing)

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n  ", tableName(ing))
	b.WriteString(strings.Join(cols, ",\n  "))
	fmt.Fprintf(&b, "\n) ENGINE = %s ORDER BY %s", engine, orderBy)

	return b.String(), nil
}

// buildAlterAdds generates one ADD COLUMN IF NOT EXISTS statement per
// field missing from existing, enforcing additive-alter-only schema
// evolution (spec.md §4.5: "fatal on removal/type-change").
func buildAlterAdds(ing *ingester.Ingester, existing map[string]string) ([]string, error) {
	var stmts []string
	for _, f := range ing.NonTransientFields() {
		ct, err := columnType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}

		have, ok := existing[f.Name]
		if !ok {
			stmts = append(stmts, fmt.Sprintf(
				"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", tableName(ing), f.Name, ct))
			continue
		}

		if !strings.EqualFold(have, ct) {
			return nil, fmt.Errorf("%w: field %q changed type from %s to %s",
				ErrSchemaDrift, f.Name, have, ct)
		}
	}
	return stmts, nil
}

type columnRow struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// describeTable fetches the current column set for table via
// system.columns, used to diff against the desired schema before
// altering.
func describeTable(ctx context.Context, c Client, database, table string) (map[string]string, error) {
	var rows []columnRow
	q := fmt.Sprintf(
		"SELECT name, type FROM system.columns WHERE database = '%s' AND table = '%s'",
		database, table)
	if err := c.QueryMany(ctx, q, &rows); err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Type
	}
	return out, nil
}

func tableExists(existing map[string]string) bool {
	return len(existing) > 0
}
