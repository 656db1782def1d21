package pickle

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	Name     string
	Epochs   int
	LR       float64
	Tags     []string
	Extra    map[string]any
	Weights  [3]float32
	Blob     []byte
	Created  time.Time
	Skipped  string `pickle:"-"`
	Renamed  int8   `pickle:"renamed_field"`
	internal int
}

func TestRoundTripPlainGraph(t *testing.T) {
	in := config{
		Name:    "mlp",
		Epochs:  10,
		LR:      1e-3,
		Tags:    []string{"a", "b"},
		Extra:   map[string]any{"depth": 4, "dropout": 0.1, "names": []string{"x"}},
		Weights: [3]float32{1.5, -2, 0},
		Blob:    []byte{0, 1, 2, 255},
		Created: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Skipped: "dropped",
		Renamed: -7,
	}
	in.internal = 3

	data, err := Marshal(&in)
	require.NoError(t, err)

	var out *config
	require.NoError(t, Unmarshal(data, &out))
	require.NotNil(t, out)

	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Epochs, out.Epochs)
	assert.Equal(t, in.LR, out.LR)
	assert.Equal(t, in.Tags, out.Tags)
	assert.Equal(t, in.Extra, out.Extra)
	assert.Equal(t, in.Weights, out.Weights)
	assert.Equal(t, in.Blob, out.Blob)
	assert.True(t, in.Created.Equal(out.Created))
	assert.Empty(t, out.Skipped)
	assert.Equal(t, int8(-7), out.Renamed)
	assert.Zero(t, out.internal)

	assert.Contains(t, string(data), `"renamed_field"`)
}

func TestRoundTripNilsAndEmpties(t *testing.T) {
	type holder struct {
		NilSlice   []int
		EmptySlice []int
		NilMap     map[string]int
		NilPtr     *int
		NilIface   any
	}
	in := holder{EmptySlice: []int{}}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out holder
	require.NoError(t, Unmarshal(data, &out))
	assert.Nil(t, out.NilSlice)
	assert.NotNil(t, out.EmptySlice)
	assert.Empty(t, out.EmptySlice)
	assert.Nil(t, out.NilMap)
	assert.Nil(t, out.NilPtr)
	assert.Nil(t, out.NilIface)
}

func TestNonFiniteFloatsAndComplex(t *testing.T) {
	in := []any{math.Inf(1), math.Inf(-1), float32(2.5), complex128(complex(1, -2))}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out []any
	require.NoError(t, Unmarshal(data, &out))
	require.Len(t, out, 4)
	assert.True(t, math.IsInf(out[0].(float64), 1))
	assert.True(t, math.IsInf(out[1].(float64), -1))
	assert.Equal(t, float32(2.5), out[2])
	assert.Equal(t, complex(1, -2), out[3])

	data, err = Marshal(math.NaN())
	require.NoError(t, err)
	var f float64
	require.NoError(t, Unmarshal(data, &f))
	assert.True(t, math.IsNaN(f))
}

type node struct {
	Name     string
	Next     *node
	Children []*node
}

func TestSharedPointersStayShared(t *testing.T) {
	leaf := &node{Name: "leaf"}
	root := &node{Name: "root", Children: []*node{leaf, leaf}}

	data, err := Marshal(root)
	require.NoError(t, err)

	var out *node
	require.NoError(t, Unmarshal(data, &out))
	require.Len(t, out.Children, 2)
	assert.Same(t, out.Children[0], out.Children[1])

	out.Children[0].Name = "changed"
	assert.Equal(t, "changed", out.Children[1].Name)
}

func TestCyclesAreSupported(t *testing.T) {
	a := &node{Name: "a"}
	b := &node{Name: "b", Next: a}
	a.Next = b

	data, err := Marshal(a)
	require.NoError(t, err)

	var out *node
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, "a", out.Name)
	assert.Equal(t, "b", out.Next.Name)
	assert.Same(t, out, out.Next.Next)
}

type shape interface{ Area() float64 }

type square struct{ Side float64 }

func (s square) Area() float64 { return s.Side * s.Side }

type circle struct{ R float64 }

func (c *circle) Area() float64 { return math.Pi * c.R * c.R }

type unregistered struct{ X int }

func (unregistered) Area() float64 { return 0 }

func init() {
	Register(square{})
	Register(&circle{})
}

func TestInterfaceValues(t *testing.T) {
	c := &circle{R: 2}
	in := []shape{square{Side: 3}, c, c, nil}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out []shape
	require.NoError(t, Unmarshal(data, &out))
	require.Len(t, out, 4)
	assert.Equal(t, square{Side: 3}, out[0])
	assert.IsType(t, &circle{}, out[1])
	assert.Same(t, out[1], out[2])
	assert.Nil(t, out[3])

	_, err = Marshal([]shape{unregistered{}})
	assert.ErrorIs(t, err, ErrUnregisteredType)
}

func TestRegisterConflictsPanic(t *testing.T) {
	squareName, ok := RegisteredName(reflect.TypeOf(square{}))
	require.True(t, ok)
	assert.Panics(t, func() { RegisterName(squareName, circle{}) })
	assert.Panics(t, func() { RegisterName("", square{}) })
	assert.Panics(t, func() { RegisterName("$bad", square{}) })
	assert.NotPanics(t, func() { Register(square{}) })

	name, ok := RegisteredName(reflect.TypeOf(&circle{}))
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(name, "*"), name)
}

type celsius struct {
	Degrees float64
	scale   string
}

func (c *celsius) MarshalPickle() (any, error) {
	return []float64{c.Degrees}, nil
}

func (c *celsius) UnmarshalPickle(decode func(any) error) error {
	var state []float64
	if err := decode(&state); err != nil {
		return err
	}
	if len(state) != 1 {
		return errors.New("bad state")
	}
	c.Degrees = state[0]
	c.scale = "C"
	return nil
}

func TestMarshalerState(t *testing.T) {
	in := &celsius{Degrees: 21.5}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[21.5]")

	var out *celsius
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, 21.5, out.Degrees)
	assert.Equal(t, "C", out.scale)
}

func TestMarshalerOnUnaddressableValues(t *testing.T) {
	type holder struct {
		Temp celsius
	}

	data, err := Marshal(holder{Temp: celsius{Degrees: 3.5}})
	require.NoError(t, err)
	assert.Contains(t, string(data), "[3.5]")

	var out holder
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, 3.5, out.Temp.Degrees)
	assert.Equal(t, "C", out.Temp.scale)

	readings := map[string]celsius{"in": {Degrees: 20}, "out": {Degrees: -4}}
	data, err = Marshal(readings)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[-4]")

	var got map[string]celsius
	require.NoError(t, Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, float64(20), got["in"].Degrees)
	assert.Equal(t, float64(-4), got["out"].Degrees)
	assert.Equal(t, "C", got["out"].scale)
}

func TestInvalidUTF8Strings(t *testing.T) {
	type record struct {
		Label string
		Index map[string]int
	}
	in := record{
		Label: "\xffab",
		Index: map[string]int{"\xffab": 1, "\ufffdab": 2, "plain": 3},
	}

	data, err := Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"$bytes"`)

	var out record
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
	assert.Len(t, out.Index, 3)
}

type blob struct {
	Key  string
	Data []byte
}

type withBlobs struct {
	First  *blob
	Second *blob
	Other  *blob
}

func TestPersistentHooks(t *testing.T) {
	shared := &blob{Key: "k1", Data: []byte("payload")}
	other := &blob{Key: "k2"}
	in := withBlobs{First: shared, Second: shared, Other: other}

	calls := 0
	enc := NewEncoder(EncoderOptions{
		PersistentID: func(v reflect.Value) (any, bool, error) {
			b, ok := v.Interface().(*blob)
			if !ok {
				return nil, false, nil
			}
			calls++
			return []string{"blob", b.Key}, true, nil
		},
	})
	sk, err := enc.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "hook runs for every encounter")
	assert.Empty(t, sk.Objects, "claimed pointees are not walked")

	ids, err := sk.PersistentIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	data, err := sk.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "payload")

	parsed, err := ParseSkeleton(data)
	require.NoError(t, err)

	loaded := map[string]*blob{}
	dec := NewDecoder(parsed, DecoderOptions{
		PersistentLoad: func(decode func(any) error, want reflect.Type) (reflect.Value, error) {
			var rec []string
			if err := decode(&rec); err != nil {
				return reflect.Value{}, err
			}
			assert.Equal(t, reflect.TypeOf(&blob{}), want)
			b, ok := loaded[rec[1]]
			if !ok {
				b = &blob{Key: rec[1]}
				loaded[rec[1]] = b
			}
			return reflect.ValueOf(b), nil
		},
	})

	var out withBlobs
	require.NoError(t, dec.Decode(&out))
	assert.Same(t, out.First, out.Second)
	assert.NotSame(t, out.First, out.Other)
	assert.Len(t, loaded, 2)
}

func TestPersistentReferenceWithoutLoader(t *testing.T) {
	enc := NewEncoder(EncoderOptions{
		PersistentID: func(v reflect.Value) (any, bool, error) {
			return "id", true, nil
		},
	})
	sk, err := enc.Encode(&blob{})
	require.NoError(t, err)

	var out *blob
	err = NewDecoder(sk, DecoderOptions{}).Decode(&out)
	assert.ErrorIs(t, err, ErrNoPersistentLoad)
}

func TestHookErrorCarriesPath(t *testing.T) {
	boom := errors.New("boom")
	enc := NewEncoder(EncoderOptions{
		PersistentID: func(v reflect.Value) (any, bool, error) {
			if _, ok := v.Interface().(*blob); ok {
				return nil, false, boom
			}
			return nil, false, nil
		},
	})
	_, err := enc.Encode(withBlobs{Second: &blob{}})

	require.ErrorIs(t, err, boom)
	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "root.Second", pe.Path)
	assert.Equal(t, "encode", pe.Op)
}

func TestParseSkeletonProtocol(t *testing.T) {
	data, err := Marshal(42)
	require.NoError(t, err)

	var sk map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &sk))
	assert.Equal(t, "2", string(sk["protocol"]))

	sk["protocol"] = json.RawMessage("3")
	future, err := json.Marshal(sk)
	require.NoError(t, err)
	_, err = ParseSkeleton(future)
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)

	_, err = ParseSkeleton([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseSkeleton([]byte(`{"protocol":2}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		root    string
		out     any
		wantErr error
	}{
		{"int overflow", `300`, new(int8), ErrMalformed},
		{"string into int", `"x"`, new(int), ErrMalformed},
		{"bad bytes string", `{"$bytes":"%%%"}`, new(string), ErrMalformed},
		{"object at string", `{"other":"x"}`, new(string), ErrMalformed},
		{"array length", `[1,2]`, new([3]int), ErrTypeMismatch},
		{"dangling ref", `{"$ref":5}`, new(*int), ErrMalformed},
		{"bare object at pointer", `{}`, new(*int), ErrMalformed},
		{"unknown type", `{"$type":"nope","$value":1}`, new(any), ErrUnregisteredType},
		{"wrong interface", `{"$type":"int","$value":1}`, new(shape), ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sk := &Skeleton{Protocol: Protocol, Root: json.RawMessage(tt.root)}
			err := NewDecoder(sk, DecoderOptions{}).Decode(tt.out)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	sk := &Skeleton{Protocol: Protocol, Root: json.RawMessage(`1`)}
	var notPtr int
	assert.Error(t, NewDecoder(sk, DecoderOptions{}).Decode(notPtr))
}

func TestUnsupportedKinds(t *testing.T) {
	_, err := Marshal(struct{ C chan int }{C: make(chan int)})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Marshal(func() {})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestMapOutputIsDeterministic(t *testing.T) {
	m := map[string]int{"z": 1, "a": 2, "m": 3}

	first, err := Marshal(m)
	require.NoError(t, err)
	sk1, err := ParseSkeleton(first)
	require.NoError(t, err)

	second, err := Marshal(m)
	require.NoError(t, err)
	sk2, err := ParseSkeleton(second)
	require.NoError(t, err)

	assert.Equal(t, `[["a",2],["m",3],["z",1]]`, string(sk1.Root))
	assert.Equal(t, string(sk1.Root), string(sk2.Root))

	var out map[string]int
	require.NoError(t, Unmarshal(first, &out))
	assert.Equal(t, m, out)
}

func TestMapObjectNumberingFollowsKeys(t *testing.T) {
	type item struct{ N int }
	m := map[string]*item{}
	for i, k := range []string{"q", "c", "x", "a", "m", "f", "z", "b"} {
		m[k] = &item{N: i}
	}

	first, err := Marshal(m)
	require.NoError(t, err)
	sk1, err := ParseSkeleton(first)
	require.NoError(t, err)

	for range 10 {
		again, err := Marshal(m)
		require.NoError(t, err)
		sk2, err := ParseSkeleton(again)
		require.NoError(t, err)
		assert.Equal(t, string(sk1.Root), string(sk2.Root))
		assert.Equal(t, sk1.Objects, sk2.Objects)
	}

	assert.True(t, strings.HasPrefix(string(sk1.Root), `[["a",{"$ref":0}],["b",{"$ref":1}]`), string(sk1.Root))
	assert.JSONEq(t, `{"N":3}`, string(sk1.Objects[0]))
}
