package pickle

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"
)

// Reserved node keys. Struct field names can never start with '$'.
const (
	keyRef   = "$ref"
	keyPID   = "$pid"
	keyType  = "$type"
	keyValue = "$value"
	keyBytes = "$bytes"
)

var null = json.RawMessage("null")

// Marshaler is implemented by types that replace their encoded form with a
// state value. The state is encoded like any other value, so it may itself
// contain pointers and persistent references.
type Marshaler interface {
	MarshalPickle() (any, error)
}

var (
	marshalerType     = reflect.TypeFor[Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// PersistentIDFunc decides whether a pointer is stored outside the skeleton.
// When ok is true, id is encoded in place of the pointer and the pointee is
// not walked. It is called for every non-nil pointer, including repeated
// encounters of the same pointer.
type PersistentIDFunc func(v reflect.Value) (id any, ok bool, err error)

// EncoderOptions configures an Encoder.
type EncoderOptions struct {
	PersistentID PersistentIDFunc
}

// Encoder turns an object graph into a Skeleton.
type Encoder struct {
	opts    EncoderOptions
	memo    map[ptrKey]int
	objects []json.RawMessage
	path    pathTracker
}

// ptrKey identifies a pointee. The type is part of the key because a struct
// and its first field share an address.
type ptrKey struct {
	addr uintptr
	typ  reflect.Type
}

// NewEncoder creates an Encoder.
func NewEncoder(opts EncoderOptions) *Encoder {
	return &Encoder{opts: opts}
}

// Encode walks root exactly once and returns its skeleton.
func (e *Encoder) Encode(root any) (*Skeleton, error) {
	e.memo = make(map[ptrKey]int)
	e.objects = nil
	e.path = pathTracker{op: "encode"}

	node, err := e.encode(reflect.ValueOf(root))
	if err != nil {
		return nil, err
	}

	objects := e.objects
	if objects == nil {
		objects = []json.RawMessage{}
	}
	return &Skeleton{
		Protocol:  Protocol,
		CreatedAt: time.Now().UTC(),
		Root:      node,
		Objects:   objects,
	}, nil
}

func (e *Encoder) encode(v reflect.Value) (json.RawMessage, error) {
	if !v.IsValid() {
		return null, nil
	}

	t := v.Type()
	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface {
		if m, ok := asMarshaler(v); ok {
			state, err := m.MarshalPickle()
			if err != nil {
				return nil, e.path.wrap(err)
			}
			return e.encode(reflect.ValueOf(state))
		}
		if isTextType(t) {
			text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
			if err != nil {
				return nil, e.path.wrap(err)
			}
			return encodeString(string(text)), nil
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		return strconv.AppendBool(nil, v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.AppendInt(nil, v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.AppendUint(nil, v.Uint(), 10), nil
	case reflect.Float32:
		return encodeFloat(v.Float(), 32), nil
	case reflect.Float64:
		return encodeFloat(v.Float(), 64), nil
	case reflect.Complex64, reflect.Complex128:
		bits := 64
		if t.Kind() == reflect.Complex64 {
			bits = 32
		}
		c := v.Complex()
		out := append([]byte{'['}, encodeFloat(real(c), bits)...)
		out = append(out, ',')
		out = append(out, encodeFloat(imag(c), bits)...)
		return append(out, ']'), nil
	case reflect.String:
		return encodeString(v.String()), nil
	case reflect.Slice:
		if v.IsNil() {
			return null, nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return json.Marshal(v.Bytes())
		}
		return e.encodeList(v)
	case reflect.Array:
		return e.encodeList(v)
	case reflect.Map:
		return e.encodeMap(v)
	case reflect.Struct:
		return e.encodeStruct(v)
	case reflect.Pointer:
		return e.encodePointer(v)
	case reflect.Interface:
		return e.encodeInterface(v)
	default:
		return nil, e.path.wrap(fmt.Errorf("%w: %s", ErrUnsupportedType, t))
	}
}

// asMarshaler returns the Marshaler implemented by v or by its address.
// A value that is not addressable, such as a map element or a field of a
// struct passed by value, is copied so its pointer method can run.
func asMarshaler(v reflect.Value) (Marshaler, bool) {
	if v.Type().Implements(marshalerType) {
		return v.Interface().(Marshaler), true
	}
	if !reflect.PointerTo(v.Type()).Implements(marshalerType) {
		return nil, false
	}
	if !v.CanAddr() {
		c := reflect.New(v.Type()).Elem()
		c.Set(v)
		v = c
	}
	return v.Addr().Interface().(Marshaler), true
}

// encodeString writes s as a JSON string. Strings that are not valid UTF-8
// would be altered by JSON, so they are stored as {"$bytes": base64}.
func encodeString(s string) json.RawMessage {
	if !utf8.ValidString(s) {
		return singleKey(keyBytes, strconv.AppendQuote(nil, base64.StdEncoding.EncodeToString([]byte(s))))
	}
	out, _ := json.Marshal(s)
	return out
}

// isTextType reports whether t round-trips through its text form.
func isTextType(t reflect.Type) bool {
	return t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType)
}

func encodeFloat(f float64, bits int) json.RawMessage {
	switch {
	case math.IsNaN(f):
		return json.RawMessage(`"NaN"`)
	case math.IsInf(f, 1):
		return json.RawMessage(`"+Inf"`)
	case math.IsInf(f, -1):
		return json.RawMessage(`"-Inf"`)
	}
	return strconv.AppendFloat(nil, f, 'g', -1, bits)
}

func (e *Encoder) encodeList(v reflect.Value) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := range v.Len() {
		if i > 0 {
			buf.WriteByte(',')
		}
		e.path.push("[" + strconv.Itoa(i) + "]")
		node, err := e.encode(v.Index(i))
		e.path.pop()
		if err != nil {
			return nil, err
		}
		buf.Write(node)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (e *Encoder) encodeMap(v reflect.Value) (json.RawMessage, error) {
	if v.IsNil() {
		return null, nil
	}

	// Keys are encoded and sorted before any value is walked, so the
	// object numbering does not depend on map iteration order.
	type pair struct {
		key   json.RawMessage
		value json.RawMessage
		elem  reflect.Value
	}
	pairs := make([]pair, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		e.path.push("{key}")
		key, err := e.encode(iter.Key())
		e.path.pop()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{key: key, elem: iter.Value()})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].key, pairs[j].key) < 0
	})
	for i := range pairs {
		e.path.push("{" + string(pairs[i].key) + "}")
		value, err := e.encode(pairs[i].elem)
		e.path.pop()
		if err != nil {
			return nil, err
		}
		pairs[i].value = value
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		buf.Write(p.key)
		buf.WriteByte(',')
		buf.Write(p.value)
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (e *Encoder) encodeStruct(v reflect.Value) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range structFields(v.Type()) {
		if i > 0 {
			buf.WriteByte(',')
		}
		e.path.push("." + f.name)
		node, err := e.encode(v.Field(f.index))
		e.path.pop()
		if err != nil {
			return nil, err
		}
		name, _ := json.Marshal(f.name)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(node)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *Encoder) encodePointer(v reflect.Value) (json.RawMessage, error) {
	if v.IsNil() {
		return null, nil
	}

	if e.opts.PersistentID != nil {
		id, ok, err := e.opts.PersistentID(v)
		if err != nil {
			return nil, e.path.wrap(err)
		}
		if ok {
			node, err := e.encode(reflect.ValueOf(id))
			if err != nil {
				return nil, err
			}
			return singleKey(keyPID, node), nil
		}
	}

	key := ptrKey{addr: v.Pointer(), typ: v.Type()}
	if n, ok := e.memo[key]; ok {
		return refNode(n), nil
	}

	// Reserve the slot before walking so cycles resolve to it.
	n := len(e.objects)
	e.objects = append(e.objects, nil)
	e.memo[key] = n

	e.path.push("*")
	node, err := e.encode(v.Elem())
	e.path.pop()
	if err != nil {
		return nil, err
	}
	e.objects[n] = node
	return refNode(n), nil
}

func (e *Encoder) encodeInterface(v reflect.Value) (json.RawMessage, error) {
	if v.IsNil() {
		return null, nil
	}

	elem := v.Elem()
	name, ok := RegisteredName(elem.Type())
	if !ok {
		return nil, e.path.wrap(fmt.Errorf("%w: %s", ErrUnregisteredType, elem.Type()))
	}
	node, err := e.encode(elem)
	if err != nil {
		return nil, err
	}

	typeName, _ := json.Marshal(name)
	var buf bytes.Buffer
	buf.WriteString(`{"` + keyType + `":`)
	buf.Write(typeName)
	buf.WriteString(`,"` + keyValue + `":`)
	buf.Write(node)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func refNode(n int) json.RawMessage {
	return singleKey(keyRef, strconv.AppendInt(nil, int64(n), 10))
}

func singleKey(key string, node json.RawMessage) json.RawMessage {
	out := make([]byte, 0, len(key)+len(node)+5)
	out = append(out, `{"`...)
	out = append(out, key...)
	out = append(out, `":`...)
	out = append(out, node...)
	return append(out, '}')
}
