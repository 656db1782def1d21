package pickle

import (
	"reflect"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// field describes one encodable struct field.
type field struct {
	name  string
	index int
}

// fieldCache avoids re-walking struct types with reflection on every value.
var fieldCache = xsync.NewMap[reflect.Type, []field]()

// structFields returns the exported fields of t in declaration order.
// A `pickle:"name"` tag renames a field; `pickle:"-"` skips it.
func structFields(t reflect.Type) []field {
	if fields, ok := fieldCache.Load(t); ok {
		return fields
	}

	fields := make([]field, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("pickle"); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" && !strings.HasPrefix(tag, "$") {
				name = tag
			}
		}
		fields = append(fields, field{name: name, index: i})
	}

	fieldCache.Store(t, fields)
	return fields
}
