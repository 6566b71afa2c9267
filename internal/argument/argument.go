// Package argument implements the tagged argument value and the
// declarative (name, value) list that every component's Create receives.
package argument

import (
	"fmt"
	"reflect"
)

// Kind identifies the dynamic type held by a Value.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindInt
	KindList
)

// Value is a tagged argument: String, Int (unsigned 64-bit), List, or None.
// None is the zero value.
type Value struct {
	kind Kind
	str  string
	num  uint64
	list []Value
}

func String(s string) Value   { return Value{kind: KindString, str: s} }
func Int(n uint64) Value      { return Value{kind: KindInt, num: n} }
func ListValue(v []Value) Value { return Value{kind: KindList, list: v} }

var None = Value{kind: KindNone}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsInt() (uint64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) TypeName() string {
	switch v.kind {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindList:
		return "list"
	default:
		return "none"
	}
}

// Pair is a single (name, value) entry in a component's argument list.
// An empty Name marks a positional entry.
type Pair struct {
	Name  string
	Value Value
}

// List is the ordered argument list a component's Create receives,
// including the two reserved entries FunctionName and Outputs that the
// compiler always appends (spec.md §4.1).
type List []Pair

// Get returns the first keyed entry with the given name.
func (l List) Get(name string) (Value, bool) {
	for _, p := range l {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Reserved keys every component receives.
const (
	KeyFunctionName = "function_name"
	KeyOutputs      = "outputs"
)

// FunctionName returns the synthesized function_name entry.
func (l List) FunctionName() string {
	v, _ := l.Get(KeyFunctionName)
	s, _ := v.AsString()
	return s
}

// OutputNames returns the synthesized outputs entry (names of output
// slots; unnamed slots are empty strings).
func (l List) OutputNames() []string {
	v, _ := l.Get(KeyOutputs)
	items, _ := v.AsList()
	names := make([]string, len(items))
	for i, it := range items {
		names[i], _ = it.AsString()
	}
	return names
}

// ParseError is returned by Parse when an argument list cannot be bound
// to a schema struct.
type ParseError struct {
	Kind string
	Msg  string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func errTooManyPositional() error {
	return &ParseError{Kind: "TooManyPositionalArguments", Msg: "too many positional arguments"}
}

func errTooManyArguments(supplied, expected int) error {
	return &ParseError{Kind: "TooManyArguments", Msg: fmt.Sprintf("expecting at most %d arguments, received %d", expected, supplied)}
}

func errTypeError(expected, supplied string) error {
	return &ParseError{Kind: "TypeError", Msg: fmt.Sprintf("expecting %s, received %s", expected, supplied)}
}

func errUnknownKey(name string) error {
	return &ParseError{Kind: "TooManyArguments", Msg: fmt.Sprintf("unknown keyword argument %q", name)}
}

// field tag controls: `arg:"name"` overrides the field name used for
// keyword matching; the struct field's Go name (lower-cased) is used
// otherwise. Bool fields are presence flags (spec.md §4.1): appearing
// with a None value yields true, absence yields false.
//
// Parse fills dst (a pointer to a struct) from args by the contract in
// spec.md §4.1: keyed entries fill same-named fields; positional entries
// (empty Name) fill the remaining declared fields in declaration order.
func Parse(args List, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("argument.Parse: dst must be a pointer to a struct")
	}
	sv := rv.Elem()
	st := sv.Type()

	type fieldSlot struct {
		name  string
		index int
		used  bool
	}
	slots := make([]fieldSlot, 0, st.NumField())
	byName := make(map[string]int)
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("arg")
		if name == "" {
			name = lowerFirst(f.Name)
		}
		byName[name] = len(slots)
		slots = append(slots, fieldSlot{name: name, index: i})
	}

	// First pass: bind every keyed argument.
	var positional []Value
	for _, p := range args {
		if p.Name == "" {
			positional = append(positional, p.Value)
			continue
		}
		idx, ok := byName[p.Name]
		if !ok {
			if p.Name == KeyFunctionName || p.Name == KeyOutputs {
				continue
			}
			return errUnknownKey(p.Name)
		}
		if slots[idx].used {
			return errTooManyArguments(len(args), len(slots))
		}
		slots[idx].used = true
		if err := bindField(sv.Field(slots[idx].index), p.Value, p.Name); err != nil {
			return err
		}
	}

	// Second pass: fill remaining declared fields, in declaration order,
	// with positional entries.
	pos := 0
	for i := range slots {
		if slots[i].used {
			continue
		}
		if pos >= len(positional) {
			continue
		}
		if err := bindField(sv.Field(slots[i].index), positional[pos], slots[i].name); err != nil {
			return err
		}
		slots[i].used = true
		pos++
	}

	if pos < len(positional) {
		return errTooManyPositional()
	}

	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

func bindField(fv reflect.Value, v Value, name string) error {
	switch fv.Kind() {
	case reflect.Bool:
		if !v.IsNone() {
			return errTypeError("none (presence flag)", v.TypeName())
		}
		fv.SetBool(true)
		return nil
	case reflect.String:
		s, ok := v.AsString()
		if !ok {
			return errTypeError("string", v.TypeName())
		}
		fv.SetString(s)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := v.AsInt()
		if !ok {
			return errTypeError("int", v.TypeName())
		}
		fv.SetUint(n)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := v.AsInt()
		if !ok {
			return errTypeError("int", v.TypeName())
		}
		fv.SetInt(int64(n))
		return nil
	case reflect.Slice:
		switch fv.Type().Elem().Kind() {
		case reflect.String:
			items, ok := v.AsList()
			if !ok {
				return errTypeError("list", v.TypeName())
			}
			out := make([]string, len(items))
			for i, it := range items {
				s, ok := it.AsString()
				if !ok {
					return errTypeError("string", it.TypeName())
				}
				out[i] = s
			}
			fv.Set(reflect.ValueOf(out))
			return nil
		case reflect.Uint64:
			items, ok := v.AsList()
			if !ok {
				return errTypeError("list", v.TypeName())
			}
			out := make([]uint64, len(items))
			for i, it := range items {
				n, ok := it.AsInt()
				if !ok {
					return errTypeError("int", it.TypeName())
				}
				out[i] = n
			}
			fv.Set(reflect.ValueOf(out))
			return nil
		case reflect.Struct:
			if fv.Type().Elem() == reflect.TypeOf(Value{}) {
				items, ok := v.AsList()
				if !ok {
					return errTypeError("list", v.TypeName())
				}
				fv.Set(reflect.ValueOf(items))
				return nil
			}
		}
	case reflect.Ptr:
		if fv.Type().Elem().Kind() == reflect.String {
			s, ok := v.AsString()
			if !ok {
				return errTypeError("string", v.TypeName())
			}
			fv.Set(reflect.ValueOf(&s))
			return nil
		}
		switch elem := fv.Type().Elem(); elem.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n, ok := v.AsInt()
			if !ok {
				return errTypeError("int", v.TypeName())
			}
			p := reflect.New(elem)
			p.Elem().SetUint(n)
			fv.Set(p)
			return nil
		}
	}
	return fmt.Errorf("argument.Parse: unsupported field kind %s for %q", fv.Kind(), name)
}
