package transformer

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnresolvedSibling is returned when a `{Field}` reference names a
// field with no computed value yet in this tick.
var ErrUnresolvedSibling = errors.New("sibling field has no value for this tick")

// SiblingLookup returns the current-tick value of a same-ingester
// field, or ok=false if it hasn't been computed yet.
type SiblingLookup func(field string) (interface{}, bool)

// evalContext carries everything a single expression evaluation needs.
type evalContext struct {
	ctx      context.Context
	self     interface{}
	siblings SiblingLookup
	cross    *CrossResolver
}

func eval(node Node, ec *evalContext) (interface{}, error) {
	switch n := node.(type) {
	case *NumberLit:
		return n.Value, nil
	case *StringLit:
		return n.Value, nil
	case *BoolLit:
		return n.Value, nil
	case *SelfRef:
		return ec.self, nil
	case *FieldRef:
		v, ok := ec.siblings(n.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedSibling, n.Field)
		}
		return v, nil
	case *CrossRef:
		if ec.cross == nil {
			return nil, fmt.Errorf("%w: no cross-resource resolver configured for {%s.%s}", ErrCrossResourceMiss, n.Ingester, n.Field)
		}
		return ec.cross.Resolve(ec.ctx, n.Ingester, n.Field)
	case *Unary:
		return evalUnary(n, ec)
	case *Binary:
		return evalBinary(n, ec)
	case *Call:
		return evalCall(n, ec)
	case *Index:
		return evalIndex(n, ec)
	case *Member:
		return evalMember(n, ec)
	default:
		return nil, fmt.Errorf("%w: unhandled node %T", ErrParse, node)
	}
}

func evalUnary(n *Unary, ec *evalContext) (interface{}, error) {
	x, err := eval(n.X, ec)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "-":
		f, err := toFloat(x)
		if err != nil {
			return nil, err
		}
		return -f, nil
	case "!":
		b, err := toBool(x)
		if err != nil {
			return nil, err
		}
		return !b, nil
	default:
		return nil, fmt.Errorf("%w: unknown unary operator %q", ErrParse, n.Op)
	}
}

func evalBinary(n *Binary, ec *evalContext) (interface{}, error) {
	x, err := eval(n.X, ec)
	if err != nil {
		return nil, err
	}
	y, err := eval(n.Y, ec)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "+", "-", "*", "/", "%":
		return evalArith(n.Op, x, y)
	case "==", "!=", "<", "<=", ">", ">=":
		return evalCompare(n.Op, x, y)
	case "&&", "||":
		return evalLogical(n.Op, x, y)
	default:
		return nil, fmt.Errorf("%w: unknown binary operator %q", ErrParse, n.Op)
	}
}

func evalArith(op string, x, y interface{}) (interface{}, error) {
	a, err := toFloat(x)
	if err != nil {
		return nil, err
	}
	b, err := toFloat(y)
	if err != nil {
		return nil, err
	}

	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrBuiltinArgs)
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return nil, fmt.Errorf("%w: modulo by zero", ErrBuiltinArgs)
		}
		return float64(int64(a) % int64(b)), nil
	default:
		return nil, fmt.Errorf("%w: unknown arithmetic operator %q", ErrParse, op)
	}
}

func evalCompare(op string, x, y interface{}) (interface{}, error) {
	a, aErr := toFloat(x)
	b, bErr := toFloat(y)
	if aErr != nil || bErr != nil {
		// Fall back to string comparison for non-numeric operands;
		// only equality is meaningful there.
		sx, sy := fmt.Sprintf("%v", x), fmt.Sprintf("%v", y)
		switch op {
		case "==":
			return sx == sy, nil
		case "!=":
			return sx != sy, nil
		default:
			return nil, fmt.Errorf("%w: %s is not comparable with operator %q", ErrBuiltinArgs, sx, op)
		}
	}

	switch op {
	case "==":
		return a == b, nil
	case "!=":
		return a != b, nil
	case "<":
		return a < b, nil
	case "<=":
		return a <= b, nil
	case ">":
		return a > b, nil
	case ">=":
		return a >= b, nil
	default:
		return nil, fmt.Errorf("%w: unknown comparison operator %q", ErrParse, op)
	}
}

func evalLogical(op string, x, y interface{}) (interface{}, error) {
	a, err := toBool(x)
	if err != nil {
		return nil, err
	}
	b, err := toBool(y)
	if err != nil {
		return nil, err
	}

	switch op {
	case "&&":
		return a && b, nil
	case "||":
		return a || b, nil
	default:
		return nil, fmt.Errorf("%w: unknown logical operator %q", ErrParse, op)
	}
}

func evalCall(n *Call, ec *evalContext) (interface{}, error) {
	args := make([]interface{}, len(n.Args))
	for i, a := range n.Args {
		v, err := eval(a, ec)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return callBuiltin(n.Name, args)
}

func evalIndex(n *Index, ec *evalContext) (interface{}, error) {
	x, err := eval(n.X, ec)
	if err != nil {
		return nil, err
	}

	list, ok := x.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: cannot index into %T", ErrBuiltinArgs, x)
	}
	if n.I < 0 || n.I >= len(list) {
		return nil, fmt.Errorf("%w: index %d out of range (len %d)", ErrBuiltinArgs, n.I, len(list))
	}
	return list[n.I], nil
}

func evalMember(n *Member, ec *evalContext) (interface{}, error) {
	x, err := eval(n.X, ec)
	if err != nil {
		return nil, err
	}

	obj, ok := x.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: cannot access member %q of %T", ErrBuiltinArgs, n.Name, x)
	}
	v, found := obj[n.Name]
	if !found {
		return nil, fmt.Errorf("%w: no member %q", ErrBuiltinArgs, n.Name)
	}
	return v, nil
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	default:
		return false, fmt.Errorf("%w: cannot convert %T to bool", ErrBuiltinArgs, v)
	}
}
