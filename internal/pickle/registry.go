package pickle

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// Registered concrete types for interface values. Both directions are kept
// so encoding and decoding are each a single lookup.
var (
	nameToType = xsync.NewMap[string, reflect.Type]()
	typeToName = xsync.NewMap[reflect.Type, string]()
)

func init() {
	for _, v := range []any{
		false, "",
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0), complex64(0), complex128(0),
		[]byte(nil), []string(nil), []int(nil), []float32(nil), []float64(nil),
		[]any(nil), map[string]any(nil), map[string]string(nil),
	} {
		Register(v)
	}
}

// Register records the concrete type of value under its default name so it
// can be stored in interface-typed fields. The default name is the package
// path plus type name, prefixed with "*" for pointers to named types.
func Register(value any) {
	RegisterName(defaultName(reflect.TypeOf(value)), value)
}

// RegisterName records the concrete type of value under name.
// Registering a different type under the same name, or the same type under
// a different name, panics.
func RegisterName(name string, value any) {
	if name == "" {
		panic("pickle: attempt to register empty name")
	}
	if strings.HasPrefix(name, "$") {
		panic(fmt.Sprintf("pickle: registered name %q may not start with '$'", name))
	}
	t := reflect.TypeOf(value)
	if t == nil {
		panic("pickle: attempt to register nil value")
	}

	if prev, loaded := nameToType.LoadOrStore(name, t); loaded && prev != t {
		panic(fmt.Sprintf("pickle: registering duplicate types for %q: %s != %s", name, prev, t))
	}
	if prev, loaded := typeToName.LoadOrStore(t, name); loaded && prev != name {
		panic(fmt.Sprintf("pickle: registering duplicate names for %s: %q != %q", t, prev, name))
	}
}

// RegisteredName returns the name a type was registered under.
func RegisteredName(t reflect.Type) (string, bool) {
	return typeToName.Load(t)
}

// RegisteredType returns the type registered under name.
func RegisteredType(name string) (reflect.Type, bool) {
	return nameToType.Load(name)
}

func defaultName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	star := ""
	if t.Name() == "" && t.Kind() == reflect.Pointer {
		star = "*"
		t = t.Elem()
	}
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return star + t.Name()
		}
		return star + t.PkgPath() + "." + t.Name()
	}
	return star + t.String()
}
