// Package tensor provides the storage and tensor types persisted by mmpickle.
package tensor

import "fmt"

// DType is a constraint for supported element types.
// It uses Go generics to ensure compile-time type safety.
type DType interface {
	~float64 | ~float32 | ~int64 | ~int32 | ~int16 | ~int8 | ~uint8 | ~bool
}

// DataType represents runtime type information for storages and tensors.
type DataType int

// Supported data types. The set is closed: every storage kind that can be
// persisted has exactly one entry here.
const (
	Float64 DataType = iota
	Float32
	Int64
	Int32
	Int16
	Int8
	Uint8
	Bool

	numDataTypes
)

// dataTypeInfo describes one element kind.
type dataTypeInfo struct {
	name string
	size int
}

var dataTypes = [numDataTypes]dataTypeInfo{
	Float64: {name: "float64", size: 8},
	Float32: {name: "float32", size: 4},
	Int64:   {name: "int64", size: 8},
	Int32:   {name: "int32", size: 4},
	Int16:   {name: "int16", size: 2},
	Int8:    {name: "int8", size: 1},
	Uint8:   {name: "uint8", size: 1},
	Bool:    {name: "bool", size: 1},
}

// Valid reports whether dt is one of the supported data types.
func (dt DataType) Valid() bool {
	return dt >= 0 && dt < numDataTypes
}

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	if !dt.Valid() {
		panic("unknown data type")
	}
	return dataTypes[dt].size
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	if !dt.Valid() {
		return "unknown"
	}
	return dataTypes[dt].name
}

// ParseDataType converts the persisted name of a data type back to its value.
func ParseDataType(name string) (DataType, error) {
	for dt := range numDataTypes {
		if dataTypes[dt].name == name {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", name)
}

// DataTypes returns every supported data type.
func DataTypes() []DataType {
	out := make([]DataType, 0, numDataTypes)
	for dt := range numDataTypes {
		out = append(out, dt)
	}
	return out
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType]() DataType {
	var dummy T
	switch any(dummy).(type) {
	case float64:
		return Float64
	case float32:
		return Float32
	case int64:
		return Int64
	case int32:
		return Int32
	case int16:
		return Int16
	case int8:
		return Int8
	case uint8:
		return Uint8
	case bool:
		return Bool
	default:
		panic("unsupported type")
	}
}
