package transformer

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/Masterminds/sprig/v3"
)

// ErrUnknownBuiltin is returned when an expression calls a function
// name that isn't registered.
var ErrUnknownBuiltin = errors.New("unknown builtin")

// ErrBuiltinArgs is returned when a builtin is called with the wrong
// number or type of arguments.
var ErrBuiltinArgs = errors.New("invalid arguments for builtin")

type builtinFunc func(args []interface{}) (interface{}, error)

// sprigFuncs is the same function table text/template consumers get
// from sprig.FuncMap(); builtins.go invokes a handful of its entries
// through reflection rather than pinning their concrete signatures,
// the same way html/template itself dispatches FuncMap entries.
//
//nolint:gochecknoglobals // seeded once at package init
var sprigFuncs = sprig.FuncMap()

//nolint:gochecknoglobals // read-only dispatch table
var builtins = map[string]builtinFunc{
	"abs":    builtinAbs,
	"mean":   builtinMean,
	"median": builtinMedian,
	"sum":    builtinSum,
	"float":  builtinFloat,
	"int":    builtinInt,
	"round":  builtinRound,
	"max":    builtinMax,
	"min":    builtinMin,
	"strip":  sprigStringFunc("trim"),
	"trim":   sprigStringFunc("trim"),
	"lower":  sprigStringFunc("lower"),
	"upper":  sprigStringFunc("upper"),
	"count":  builtinCount,
	"first":  builtinFirst,
	"last":   builtinLast,
}

func callBuiltin(name string, args []interface{}) (interface{}, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuiltin, name)
	}
	return fn(args)
}

// callSprig invokes a named entry from sprig's FuncMap via reflection.
// sprig's numeric/string helpers are ordinary typed Go functions, not
// an interface Chomp can target directly, so this follows the same
// invocation pattern text/template uses for any FuncMap entry.
func callSprig(name string, args ...interface{}) (result interface{}, err error) {
	fn, ok := sprigFuncs[name]
	if !ok {
		return nil, fmt.Errorf("%w: sprig has no %q", ErrUnknownBuiltin, name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sprig %q: %v", ErrBuiltinArgs, name, r)
		}
	}()

	fv := reflect.ValueOf(fn)
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}

	out := fv.Call(in)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q returned nothing", ErrUnknownBuiltin, name)
	}
	return out[0].Interface(), nil
}

func sprigStringFunc(name string) builtinFunc {
	return func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s takes exactly one argument", ErrBuiltinArgs, name)
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrBuiltinArgs, name, args[0])
		}
		return callSprig(name, s)
	}
}

func builtinRound(args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: round takes exactly two arguments", ErrBuiltinArgs)
	}
	f, err := toFloat(args[0])
	if err != nil {
		return nil, err
	}
	n, err := toFloat(args[1])
	if err != nil {
		return nil, err
	}
	return callSprig("round", f, int(n))
}

func builtinMax(args []interface{}) (interface{}, error) { return sprigNumeric("maxf", args) }
func builtinMin(args []interface{}) (interface{}, error) { return sprigNumeric("minf", args) }

func sprigNumeric(name string, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: %s requires at least one argument", ErrBuiltinArgs, name)
	}

	floats := make([]interface{}, len(args))
	for i, a := range args {
		f, err := toFloat(a)
		if err != nil {
			return nil, err
		}
		floats[i] = f
	}
	return callSprig(name, floats...)
}

func builtinAbs(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: abs takes exactly one argument", ErrBuiltinArgs)
	}
	f, err := toFloat(args[0])
	if err != nil {
		return nil, err
	}
	return math.Abs(f), nil
}

func builtinFloat(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: float takes exactly one argument", ErrBuiltinArgs)
	}
	return toFloat(args[0])
}

func builtinInt(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: int takes exactly one argument", ErrBuiltinArgs)
	}
	f, err := toFloat(args[0])
	if err != nil {
		return nil, err
	}
	return int64(f), nil
}

// builtinSum, builtinMean and builtinMedian have no sprig equivalent
// (sprig's list helpers don't aggregate numerically), so they're
// plain hand-rolled reductions over the epoch list handed in via
// {self} (spec.md §4.4, ws_api reducers).
func builtinSum(args []interface{}) (interface{}, error) {
	vals, err := toFloatList(args)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, v := range vals {
		total += v
	}
	return total, nil
}

func builtinMean(args []interface{}) (interface{}, error) {
	vals, err := toFloatList(args)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: mean of an empty list", ErrBuiltinArgs)
	}
	var total float64
	for _, v := range vals {
		total += v
	}
	return total / float64(len(vals)), nil
}

func builtinMedian(args []interface{}) (interface{}, error) {
	vals, err := toFloatList(args)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: median of an empty list", ErrBuiltinArgs)
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], nil
	}
	return (sorted[mid-1] + sorted[mid]) / 2, nil
}

// builtinCount, builtinFirst and builtinLast reduce a selector's
// list-valued result to a scalar without assuming it's numeric —
// unlike sum/mean/median, they work over any element type (e.g. the
// hex-string tuples a wildcard selector step projects out of an
// evm_logger tick's several logs).
func builtinCount(args []interface{}) (interface{}, error) {
	list, err := asList(args)
	if err != nil {
		return nil, err
	}
	return int64(len(list)), nil
}

func builtinFirst(args []interface{}) (interface{}, error) {
	list, err := asList(args)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: first of an empty list", ErrBuiltinArgs)
	}
	return list[0], nil
}

func builtinLast(args []interface{}) (interface{}, error) {
	list, err := asList(args)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: last of an empty list", ErrBuiltinArgs)
	}
	return list[len(list)-1], nil
}

func asList(args []interface{}) ([]interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: expects exactly one list argument", ErrBuiltinArgs)
	}
	list, ok := args[0].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expects a list, got %T", ErrBuiltinArgs, args[0])
	}
	return list, nil
}

func toFloatList(args []interface{}) ([]float64, error) {
	if len(args) == 1 {
		switch list := args[0].(type) {
		case []interface{}:
			return floatsFromSlice(list)
		case []float64:
			return list, nil
		}
	}
	return floatsFromSlice(args)
}

func floatsFromSlice(list []interface{}) ([]float64, error) {
	out := make([]float64, len(list))
	for i, v := range list {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrBuiltinArgs, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: cannot convert %T to number", ErrBuiltinArgs, v)
	}
}
