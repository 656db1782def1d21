package pickle

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Unmarshaler is implemented by types that restore themselves from the state
// written by their Marshaler. decode fills the pointer it is given from the
// encoded state.
type Unmarshaler interface {
	UnmarshalPickle(decode func(any) error) error
}

var (
	unmarshalerType     = reflect.TypeFor[Unmarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// PersistentLoadFunc turns a persistent record back into a live value.
// decode fills the pointer it is given from the record; want is the type
// the surrounding graph expects at this position.
type PersistentLoadFunc func(decode func(any) error, want reflect.Type) (reflect.Value, error)

// DecoderOptions configures a Decoder.
type DecoderOptions struct {
	PersistentLoad PersistentLoadFunc
}

// Decoder rebuilds an object graph from a Skeleton.
type Decoder struct {
	skeleton *Skeleton
	opts     DecoderOptions
	memo     map[int]reflect.Value
	path     pathTracker
}

// NewDecoder creates a Decoder for s.
func NewDecoder(s *Skeleton, opts DecoderOptions) *Decoder {
	return &Decoder{skeleton: s, opts: opts}
}

// Decode rebuilds the graph into the value pointed to by out.
func (d *Decoder) Decode(out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("pickle: decode target must be a non-nil pointer, got %T", out)
	}

	d.memo = make(map[int]reflect.Value)
	d.path = pathTracker{op: "decode"}
	return d.decode(d.skeleton.Root, rv.Elem())
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), null)
}

func (d *Decoder) decode(raw json.RawMessage, v reflect.Value) error {
	t := v.Type()
	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface {
		if reflect.PointerTo(t).Implements(unmarshalerType) {
			u := v.Addr().Interface().(Unmarshaler)
			return d.path.wrap(u.UnmarshalPickle(func(target any) error {
				tv := reflect.ValueOf(target)
				if tv.Kind() != reflect.Pointer || tv.IsNil() {
					return fmt.Errorf("pickle: state target must be a non-nil pointer, got %T", target)
				}
				return d.decode(raw, tv.Elem())
			}))
		}
		if isTextType(t) {
			text, err := decodeString(raw)
			if err != nil {
				return d.malformed(err)
			}
			u := v.Addr().Interface().(encoding.TextUnmarshaler)
			return d.path.wrap(u.UnmarshalText([]byte(text)))
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return d.malformed(err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, t.Bits())
		if err != nil {
			return d.malformed(err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, t.Bits())
		if err != nil {
			return d.malformed(err)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := decodeFloat(raw, t.Bits())
		if err != nil {
			return d.malformed(err)
		}
		v.SetFloat(f)
	case reflect.Complex64, reflect.Complex128:
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 2 {
			return d.malformed(fmt.Errorf("complex value must be a [re, im] pair: %s", raw))
		}
		re, err := decodeFloat(parts[0], t.Bits()/2)
		if err != nil {
			return d.malformed(err)
		}
		im, err := decodeFloat(parts[1], t.Bits()/2)
		if err != nil {
			return d.malformed(err)
		}
		v.SetComplex(complex(re, im))
	case reflect.String:
		s, err := decodeString(raw)
		if err != nil {
			return d.malformed(err)
		}
		v.SetString(s)
	case reflect.Slice:
		return d.decodeSlice(raw, v)
	case reflect.Array:
		return d.decodeArray(raw, v)
	case reflect.Map:
		return d.decodeMap(raw, v)
	case reflect.Struct:
		return d.decodeStruct(raw, v)
	case reflect.Pointer:
		return d.decodePointer(raw, v)
	case reflect.Interface:
		return d.decodeInterface(raw, v)
	default:
		return d.path.wrap(fmt.Errorf("%w: %s", ErrUnsupportedType, t))
	}
	return nil
}

func (d *Decoder) malformed(err error) error {
	return d.path.wrap(fmt.Errorf("%w: %v", ErrMalformed, err))
}

// decodeString reads a JSON string or a {"$bytes": base64} node.
func decodeString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var node map[string]string
	if err := json.Unmarshal(raw, &node); err != nil {
		return "", err
	}
	enc, ok := node[keyBytes]
	if !ok || len(node) != 1 {
		return "", fmt.Errorf("string node must be a JSON string or a %s object: %s", keyBytes, raw)
	}
	b, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFloat(raw json.RawMessage, bits int) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "+Inf":
			return math.Inf(1), nil
		case "-Inf":
			return math.Inf(-1), nil
		}
		return 0, fmt.Errorf("invalid float %q", s)
	}
	return strconv.ParseFloat(string(raw), bits)
}

func (d *Decoder) decodeSlice(raw json.RawMessage, v reflect.Value) error {
	if isNull(raw) {
		v.SetZero()
		return nil
	}
	t := v.Type()
	if t.Elem().Kind() == reflect.Uint8 {
		var b []byte
		if err := json.Unmarshal(raw, &b); err != nil {
			return d.malformed(err)
		}
		s := reflect.MakeSlice(t, len(b), len(b))
		reflect.Copy(s, reflect.ValueOf(b))
		v.Set(s)
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return d.malformed(err)
	}
	s := reflect.MakeSlice(t, len(items), len(items))
	if err := d.decodeItems(items, s); err != nil {
		return err
	}
	v.Set(s)
	return nil
}

func (d *Decoder) decodeArray(raw json.RawMessage, v reflect.Value) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return d.malformed(err)
	}
	if len(items) != v.Len() {
		return d.path.wrap(fmt.Errorf("%w: array of length %d, got %d items", ErrTypeMismatch, v.Len(), len(items)))
	}
	return d.decodeItems(items, v)
}

func (d *Decoder) decodeItems(items []json.RawMessage, v reflect.Value) error {
	for i, item := range items {
		d.path.push("[" + strconv.Itoa(i) + "]")
		err := d.decode(item, v.Index(i))
		d.path.pop()
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) decodeMap(raw json.RawMessage, v reflect.Value) error {
	if isNull(raw) {
		v.SetZero()
		return nil
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return d.malformed(err)
	}

	t := v.Type()
	m := reflect.MakeMapWithSize(t, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			return d.malformed(errors.New("map entry must be a [key, value] pair"))
		}
		key := reflect.New(t.Key()).Elem()
		d.path.push("{key}")
		err := d.decode(p[0], key)
		d.path.pop()
		if err != nil {
			return err
		}
		value := reflect.New(t.Elem()).Elem()
		d.path.push("{" + string(p[0]) + "}")
		err = d.decode(p[1], value)
		d.path.pop()
		if err != nil {
			return err
		}
		m.SetMapIndex(key, value)
	}
	v.Set(m)
	return nil
}

func (d *Decoder) decodeStruct(raw json.RawMessage, v reflect.Value) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return d.malformed(err)
	}
	for _, f := range structFields(v.Type()) {
		node, ok := obj[f.name]
		if !ok {
			continue
		}
		d.path.push("." + f.name)
		err := d.decode(node, v.Field(f.index))
		d.path.pop()
		if err != nil {
			return err
		}
	}
	return nil
}

type pointerNode struct {
	Ref *int            `json:"$ref"`
	PID json.RawMessage `json:"$pid"`
}

func (d *Decoder) decodePointer(raw json.RawMessage, v reflect.Value) error {
	if isNull(raw) {
		v.SetZero()
		return nil
	}

	var node pointerNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return d.malformed(err)
	}
	t := v.Type()

	switch {
	case node.PID != nil:
		if d.opts.PersistentLoad == nil {
			return d.path.wrap(ErrNoPersistentLoad)
		}
		pv, err := d.opts.PersistentLoad(func(target any) error {
			tv := reflect.ValueOf(target)
			if tv.Kind() != reflect.Pointer || tv.IsNil() {
				return fmt.Errorf("pickle: record target must be a non-nil pointer, got %T", target)
			}
			return d.decode(node.PID, tv.Elem())
		}, t)
		if err != nil {
			return d.path.wrap(err)
		}
		if !pv.IsValid() || !pv.Type().AssignableTo(t) {
			return d.path.wrap(fmt.Errorf("%w: persistent value is not assignable to %s", ErrTypeMismatch, t))
		}
		v.Set(pv)
		return nil

	case node.Ref != nil:
		n := *node.Ref
		if n < 0 || n >= len(d.skeleton.Objects) {
			return d.malformed(fmt.Errorf("object reference %d out of range", n))
		}
		if p, ok := d.memo[n]; ok {
			if !p.Type().AssignableTo(t) {
				return d.path.wrap(fmt.Errorf("%w: object %d is %s, want %s", ErrTypeMismatch, n, p.Type(), t))
			}
			v.Set(p)
			return nil
		}

		// Publish the pointer before filling it so cycles resolve to it.
		p := reflect.New(t.Elem())
		d.memo[n] = p
		v.Set(p)

		d.path.push("*")
		err := d.decode(d.skeleton.Objects[n], p.Elem())
		d.path.pop()
		return err

	default:
		return d.malformed(errors.New("pointer node needs $ref or $pid"))
	}
}

type interfaceNode struct {
	Type  string          `json:"$type"`
	Value json.RawMessage `json:"$value"`
}

func (d *Decoder) decodeInterface(raw json.RawMessage, v reflect.Value) error {
	if isNull(raw) {
		v.SetZero()
		return nil
	}

	var node interfaceNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return d.malformed(err)
	}
	concrete, ok := RegisteredType(node.Type)
	if !ok {
		return d.path.wrap(fmt.Errorf("%w: %q", ErrUnregisteredType, node.Type))
	}
	if !concrete.AssignableTo(v.Type()) {
		return d.path.wrap(fmt.Errorf("%w: %s does not implement %s", ErrTypeMismatch, concrete, v.Type()))
	}

	elem := reflect.New(concrete).Elem()
	if err := d.decode(node.Value, elem); err != nil {
		return err
	}
	v.Set(elem)
	return nil
}
