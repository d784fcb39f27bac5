package ingester

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrCoercionFailed is returned when a transformed value cannot be
// cast to its field's declared type (spec.md §4.4 Phase 3, §7: a
// tick-level, non-fatal error).
var ErrCoercionFailed = errors.New("coercion failed")

// Coerce casts v to the declared field type t (spec.md §4.4 Phase 3).
func Coerce(t FieldType, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value for type %s", ErrCoercionFailed, t)
	}

	if list, ok := v.([]interface{}); ok {
		return nil, fmt.Errorf("%w: got a %d-element list for scalar type %s; reduce it with an aggregation builtin (count/first/last/sum/mean/median) before coercion", ErrCoercionFailed, len(list), t)
	}

	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return n, nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative value %d for unsigned type %s", ErrCoercionFailed, n, t)
		}
		return uint64(n), nil
	case TypeFloat32, TypeFloat64:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return f, nil
	case TypeUFloat32, TypeUFloat64:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		if f < 0 {
			return nil, fmt.Errorf("%w: negative value %v for unsigned type %s", ErrCoercionFailed, f, t)
		}
		return f, nil
	case TypeBool:
		return toBool(v)
	case TypeTimestamp:
		return toTimestamp(v)
	case TypeString:
		return fmt.Sprintf("%v", v), nil
	case TypeBinary, TypeVarbinary:
		return toBytes(v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFieldType, t)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer: %v", ErrCoercionFailed, n, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: cannot coerce %T to integer", ErrCoercionFailed, v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a float: %v", ErrCoercionFailed, n, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: cannot coerce %T to float", ErrCoercionFailed, v)
	}
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a bool: %v", ErrCoercionFailed, b, err)
		}
		return parsed, nil
	case float64:
		return b != 0, nil
	default:
		return false, fmt.Errorf("%w: cannot coerce %T to bool", ErrCoercionFailed, v)
	}
}

func toTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a timestamp: %v", ErrCoercionFailed, t, err)
		}
		return parsed, nil
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: cannot coerce %T to timestamp", ErrCoercionFailed, v)
	}
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("%w: cannot coerce %T to binary", ErrCoercionFailed, v)
	}
}
