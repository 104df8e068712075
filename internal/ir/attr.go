package ir

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// AttrKind identifies which value an Attr holds.
type AttrKind int

// Attribute kinds.
const (
	KindInt AttrKind = iota
	KindFloat
	KindBool
	KindString
	KindInts
	KindFloats
	KindStrings
)

// String returns the kind name.
func (k AttrKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindInts:
		return "ints"
	case KindFloats:
		return "floats"
	case KindStrings:
		return "strings"
	default:
		return "unknown"
	}
}

// Attr is an operator parameter. Exactly one payload field is meaningful,
// selected by kind. Values are immutable: sequence getters return copies.
type Attr struct {
	kind AttrKind
	i    int
	f    float64
	b    bool
	s    string
	is   []int
	fs   []float64
	ss   []string
}

// IntAttr creates an int attribute.
func IntAttr(v int) Attr { return Attr{kind: KindInt, i: v} }

// FloatAttr creates a float attribute.
func FloatAttr(v float64) Attr { return Attr{kind: KindFloat, f: v} }

// BoolAttr creates a bool attribute.
func BoolAttr(v bool) Attr { return Attr{kind: KindBool, b: v} }

// StringAttr creates a string attribute.
func StringAttr(v string) Attr { return Attr{kind: KindString, s: v} }

// IntsAttr creates an int sequence attribute.
func IntsAttr(v []int) Attr { return Attr{kind: KindInts, is: slices.Clone(v)} }

// FloatsAttr creates a float sequence attribute.
func FloatsAttr(v []float64) Attr { return Attr{kind: KindFloats, fs: slices.Clone(v)} }

// StringsAttr creates a string sequence attribute.
func StringsAttr(v []string) Attr { return Attr{kind: KindStrings, ss: slices.Clone(v)} }

// Kind returns the stored kind.
func (a Attr) Kind() AttrKind { return a.kind }

func (a Attr) check(want AttrKind) error {
	if a.kind != want {
		return fmt.Errorf("%w: requested %s, stored %s", ErrTypeMismatch, want, a.kind)
	}
	return nil
}

// AsInt returns the int payload.
func (a Attr) AsInt() (int, error) {
	if err := a.check(KindInt); err != nil {
		return 0, err
	}
	return a.i, nil
}

// AsFloat returns the float payload.
func (a Attr) AsFloat() (float64, error) {
	if err := a.check(KindFloat); err != nil {
		return 0, err
	}
	return a.f, nil
}

// AsBool returns the bool payload.
func (a Attr) AsBool() (bool, error) {
	if err := a.check(KindBool); err != nil {
		return false, err
	}
	return a.b, nil
}

// AsString returns the string payload.
func (a Attr) AsString() (string, error) {
	if err := a.check(KindString); err != nil {
		return "", err
	}
	return a.s, nil
}

// AsInts returns a copy of the int sequence payload.
func (a Attr) AsInts() ([]int, error) {
	if err := a.check(KindInts); err != nil {
		return nil, err
	}
	return slices.Clone(a.is), nil
}

// AsFloats returns a copy of the float sequence payload.
func (a Attr) AsFloats() ([]float64, error) {
	if err := a.check(KindFloats); err != nil {
		return nil, err
	}
	return slices.Clone(a.fs), nil
}

// AsStrings returns a copy of the string sequence payload.
func (a Attr) AsStrings() ([]string, error) {
	if err := a.check(KindStrings); err != nil {
		return nil, err
	}
	return slices.Clone(a.ss), nil
}

// Equal reports whether two attributes hold the same kind and value.
func (a Attr) Equal(b Attr) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindInts:
		return slices.Equal(a.is, b.is)
	case KindFloats:
		return slices.Equal(a.fs, b.fs)
	case KindStrings:
		return slices.Equal(a.ss, b.ss)
	}
	return false
}

// String renders the value the way it appears in program listings.
func (a Attr) String() string {
	switch a.kind {
	case KindInt:
		return strconv.Itoa(a.i)
	case KindFloat:
		return strconv.FormatFloat(a.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(a.b)
	case KindString:
		return strconv.Quote(a.s)
	case KindInts:
		parts := make([]string, len(a.is))
		for i, v := range a.is {
			parts[i] = strconv.Itoa(v)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindFloats:
		parts := make([]string, len(a.fs))
		for i, v := range a.fs {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindStrings:
		parts := make([]string, len(a.ss))
		for i, v := range a.ss {
			parts[i] = strconv.Quote(v)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return "?"
}

// Attrs maps attribute names to values.
type Attrs map[string]Attr

// Get returns the named attribute.
func (as Attrs) Get(name string) (Attr, bool) {
	a, ok := as[name]
	return a, ok
}

// Keys returns attribute names in sorted order.
func (as Attrs) Keys() []string {
	keys := make([]string, 0, len(as))
	for k := range as {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy; Attr values are immutable so this is enough.
func (as Attrs) Clone() Attrs {
	out := make(Attrs, len(as))
	for k, v := range as {
		out[k] = v
	}
	return out
}

// String renders "k1=v1, k2=v2" in key order.
func (as Attrs) String() string {
	keys := as.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + as[k].String()
	}
	return strings.Join(parts, ", ")
}

// Int returns the named int attribute, or def when absent.
func (as Attrs) Int(name string, def int) (int, error) {
	a, ok := as[name]
	if !ok {
		return def, nil
	}
	return a.AsInt()
}

// Float returns the named float attribute, or def when absent.
func (as Attrs) Float(name string, def float64) (float64, error) {
	a, ok := as[name]
	if !ok {
		return def, nil
	}
	return a.AsFloat()
}

// Bool returns the named bool attribute, or def when absent.
func (as Attrs) Bool(name string, def bool) (bool, error) {
	a, ok := as[name]
	if !ok {
		return def, nil
	}
	return a.AsBool()
}

// Str returns the named string attribute, or def when absent.
func (as Attrs) Str(name, def string) (string, error) {
	a, ok := as[name]
	if !ok {
		return def, nil
	}
	return a.AsString()
}

// Ints returns the named int sequence, or nil when absent.
func (as Attrs) Ints(name string) ([]int, error) {
	a, ok := as[name]
	if !ok {
		return nil, nil
	}
	return a.AsInts()
}

// RequireInts returns the named int sequence or ErrMissingAttribute.
func (as Attrs) RequireInts(op OpType, name string) ([]int, error) {
	a, ok := as[name]
	if !ok {
		return nil, opErr(op, ErrMissingAttribute, "%q", name)
	}
	return a.AsInts()
}
