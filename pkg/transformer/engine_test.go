package transformer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/transformer"
)

func buildIngester(t *testing.T, name string, fields ...ingester.FieldSpec) (*ingester.Ingester, *ingester.FieldGraph) {
	t.Helper()

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindHTTPAPI,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Fields:       fields,
	}
	spec.Name = name

	require.NoError(t, spec.Validate())

	ing := ingester.New(spec)
	graph, err := ingester.BuildFieldGraph(ing)
	require.NoError(t, err)

	return ing, graph
}

func field(name string, ftype ingester.FieldType, sel string, transformers ...string) ingester.FieldSpec {
	f := ingester.FieldSpec{}
	f.Name = name
	f.Type = ftype
	f.Selector = sel
	f.Transformers = transformers
	return f
}

// TestEngineInvertsAndRounds mirrors spec.md's worked example S1: a
// USDT rate field inverted and rounded to 6 decimals.
func TestEngineInvertsAndRounds(t *testing.T) {
	ing, graph := buildIngester(t, "A", field("USDT", ingester.TypeFloat64, ".data.rate", "1/{self}", "round6"))

	raw := map[string]interface{}{"data": map[string]interface{}{"rate": 1.0012}}

	eng := transformer.New(nil)
	values, errs := eng.Run(context.Background(), ing, graph, raw)

	require.Empty(t, errs)
	require.Contains(t, values, "USDT")
	assert.InDelta(t, 0.998801, values["USDT"].(float64), 1e-6)
}

// TestEngineCoercesStringSelection mirrors S2's "p": "40000.5" string
// selection coerced via the float() builtin before multiplying.
func TestEngineCoercesStringSelection(t *testing.T) {
	ing, graph := buildIngester(t, "B", field("BTC", ingester.TypeFloat64, ".p", "float({self})*2", "round2"))

	raw := map[string]interface{}{"p": "40000.5"}

	eng := transformer.New(nil)
	values, errs := eng.Run(context.Background(), ing, graph, raw)

	require.Empty(t, errs)
	assert.InDelta(t, 80001.0, values["BTC"].(float64), 1e-2)
}

// TestEngineOrdersSiblingDependencies exercises dependency ordering:
// field B's transformer references field A, which must be computed
// first regardless of declaration order.
func TestEngineOrdersSiblingDependencies(t *testing.T) {
	fieldB := field("B", ingester.TypeFloat64, ".y", "{A}+1")
	fieldA := field("A", ingester.TypeFloat64, ".x", "{self}*2")

	ing, graph := buildIngester(t, "Pair", fieldB, fieldA)

	order := graph.Order()
	idxA, idxB := -1, -1
	for i, n := range order {
		switch n {
		case "A":
			idxA = i
		case "B":
			idxB = i
		}
	}
	require.True(t, idxA < idxB, "A must be ordered before B")

	raw := map[string]interface{}{"x": 3.0, "y": 0.0}

	eng := transformer.New(nil)
	values, errs := eng.Run(context.Background(), ing, graph, raw)

	require.Empty(t, errs)
	assert.InDelta(t, 6.0, values["A"].(float64), 1e-9)
	assert.InDelta(t, 7.0, values["B"].(float64), 1e-9)
}

// TestEngineReportsSelectionFailure ensures a selector that yields
// nothing surfaces as a field-level error, without touching other
// fields (spec.md §7: "Selection... count as failure; skip tick").
func TestEngineReportsSelectionFailure(t *testing.T) {
	ok := field("ok", ingester.TypeFloat64, ".present", "{self}")
	missing := field("missing", ingester.TypeFloat64, ".absent", "{self}")

	ing, graph := buildIngester(t, "Mixed", ok, missing)

	raw := map[string]interface{}{"present": 1.5}

	eng := transformer.New(nil)
	values, errs := eng.Run(context.Background(), ing, graph, raw)

	require.Len(t, errs, 1)
	assert.Equal(t, "missing", errs[0].Field)
	assert.Contains(t, values, "ok")
	assert.NotContains(t, values, "missing")
}

// TestEngineRoutesFieldsByTargetWhenRawIsByTarget mirrors the http_api
// loader's behavior when an ingester's fields span more than one
// distinct target: each field selects against its own target's
// response rather than one shared raw value (spec.md §4.3).
func TestEngineRoutesFieldsByTargetWhenRawIsByTarget(t *testing.T) {
	a := field("a", ingester.TypeFloat64, ".value", "{self}")
	a.Target = "target-a"
	b := field("b", ingester.TypeFloat64, ".value", "{self}")
	b.Target = "target-b"

	ing, graph := buildIngester(t, "Routed", a, b)

	raw := ingester.RawByTarget{
		"target-a": map[string]interface{}{"value": 1.0},
		"target-b": map[string]interface{}{"value": 2.0},
	}

	eng := transformer.New(nil)
	values, errs := eng.Run(context.Background(), ing, graph, raw)

	require.Empty(t, errs)
	assert.InDelta(t, 1.0, values["a"].(float64), 1e-9)
	assert.InDelta(t, 2.0, values["b"].(float64), 1e-9)
}

// TestEngineReducesWildcardProjectionWithAggregationBuiltin mirrors
// evm_logger's series design: a tick with several logs selects one
// positional value out of every log via a wildcard step, then reduces
// that list to a scalar with an aggregation builtin before coercion.
func TestEngineReducesWildcardProjectionWithAggregationBuiltin(t *testing.T) {
	topic0 := field("topic0_count", ingester.TypeUint64, "[*][0]", "count")
	last := field("topic0_last", ingester.TypeString, "[*][0]", "last")

	ing, graph := buildIngester(t, "Logs", topic0, last)

	raw := []interface{}{
		[]interface{}{"0xaaa", "0x01"},
		[]interface{}{"0xbbb", "0x02"},
		[]interface{}{"0xccc", "0x03"},
	}

	eng := transformer.New(nil)
	values, errs := eng.Run(context.Background(), ing, graph, raw)

	require.Empty(t, errs)
	assert.EqualValues(t, 3, values["topic0_count"])
	assert.Equal(t, "0xccc", values["topic0_last"])
}

func TestEngineBuiltinsAbsMeanSum(t *testing.T) {
	f := field("agg", ingester.TypeFloat64, "root", "mean")
	total := field("total", ingester.TypeFloat64, "root", "sum")
	dist := field("dist", ingester.TypeFloat64, "[0]", "{self}-5", "abs")
	ing, graph := buildIngester(t, "Stats", f, total, dist)

	raw := []interface{}{1.0, 2.0, 3.0, 4.0}

	eng := transformer.New(nil)
	values, errs := eng.Run(context.Background(), ing, graph, raw)

	require.Empty(t, errs)
	assert.InDelta(t, 2.5, values["agg"].(float64), 1e-9)
	assert.InDelta(t, 10.0, values["total"].(float64), 1e-9)
	assert.InDelta(t, 4.0, values["dist"].(float64), 1e-9)
}
