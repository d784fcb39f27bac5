// Package ingester implements the YAML-driven resource/field model,
// its dependency resolution, and the in-cache registry (spec.md §3,
// §4.1): one polymorphic Ingester kind covering every loader type.
package ingester

import (
	"errors"
	"fmt"
)

// Kind identifies which loader implementation an ingester uses.
type Kind string

// The enumerated ingester kinds (spec.md §3).
const (
	KindHTTPAPI   Kind = "http_api"
	KindWSAPI     Kind = "ws_api"
	KindScraper   Kind = "scraper"
	KindEVMCaller Kind = "evm_caller"
	KindEVMLogger Kind = "evm_logger"
	KindSVMCaller Kind = "svm_caller"
	KindSuiCaller Kind = "sui_caller"
	KindProcessor Kind = "processor"
	KindMonitor   Kind = "monitor"
)

// ErrUnknownKind is returned when a configuration file uses a
// top-level key that isn't one of the enumerated kinds.
var ErrUnknownKind = errors.New("unknown ingester kind")

//nolint:gochecknoglobals // read-only lookup table
var validKinds = map[Kind]struct{}{
	KindHTTPAPI:   {},
	KindWSAPI:     {},
	KindScraper:   {},
	KindEVMCaller: {},
	KindEVMLogger: {},
	KindSVMCaller: {},
	KindSuiCaller: {},
	KindProcessor: {},
	KindMonitor:   {},
}

// ValidKind reports whether k is one of the enumerated ingester kinds.
func ValidKind(k Kind) bool {
	_, ok := validKinds[k]
	return ok
}

// ResourceType describes the storage shape of an ingester's table
// (spec.md §3, §4.5).
type ResourceType string

// Enumerated resource types.
const (
	ResourceTimeseries ResourceType = "timeseries"
	ResourceValue       ResourceType = "value"
	ResourceSeries      ResourceType = "series"
)

// ErrUnknownResourceType is returned when resource_type isn't one of
// the three enumerated values.
var ErrUnknownResourceType = errors.New("unknown resource_type")

// Validate checks that r is one of the enumerated resource types.
func (r ResourceType) Validate() error {
	switch r {
	case ResourceTimeseries, ResourceValue, ResourceSeries:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownResourceType, r)
	}
}

// FieldType is one of the enumerated scalar column types (spec.md §6).
type FieldType string

// Enumerated field types.
const (
	TypeInt8      FieldType = "int8"
	TypeUint8     FieldType = "uint8"
	TypeInt16     FieldType = "int16"
	TypeUint16    FieldType = "uint16"
	TypeInt32     FieldType = "int32"
	TypeUint32    FieldType = "uint32"
	TypeInt64     FieldType = "int64"
	TypeUint64    FieldType = "uint64"
	TypeFloat32   FieldType = "float32"
	TypeUFloat32  FieldType = "ufloat32"
	TypeFloat64   FieldType = "float64"
	TypeUFloat64  FieldType = "ufloat64"
	TypeBool      FieldType = "bool"
	TypeTimestamp FieldType = "timestamp"
	TypeString    FieldType = "string"
	TypeBinary    FieldType = "binary"
	TypeVarbinary FieldType = "varbinary"
)

// ErrUnknownFieldType is returned when a field or default type isn't
// one of the enumerated scalar types.
var ErrUnknownFieldType = errors.New("unknown field type")

//nolint:gochecknoglobals // read-only lookup table
var validFieldTypes = map[FieldType]struct{}{
	TypeInt8: {}, TypeUint8: {}, TypeInt16: {}, TypeUint16: {},
	TypeInt32: {}, TypeUint32: {}, TypeInt64: {}, TypeUint64: {},
	TypeFloat32: {}, TypeUFloat32: {}, TypeFloat64: {}, TypeUFloat64: {},
	TypeBool: {}, TypeTimestamp: {}, TypeString: {}, TypeBinary: {}, TypeVarbinary: {},
}

// ValidFieldType reports whether t is one of the enumerated scalar
// types.
func ValidFieldType(t FieldType) bool {
	_, ok := validFieldTypes[t]
	return ok
}

// Status describes an ingester's current health, surfaced in its
// registry record (spec.md §7).
type Status string

// Enumerated health statuses.
const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)
