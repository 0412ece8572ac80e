package message

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind identifies the type of a Value.
type Kind uint32

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// ErrUnsupportedValue is returned by FromAny for Go values that have no
// Value representation.
var ErrUnsupportedValue = errors.New("unsupported value type")

// Value is a self-describing value carried in Execute parameters, results
// and notification user data. The zero Value is null.
//
// Only the field matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	String string
	Bytes  []byte
	List   []Value
}

func Null() Value                { return Value{} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func StringValue(s string) Value { return Value{Kind: KindString, String: s} }
func BytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }

// ListValue creates a list value holding items.
func ListValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, List: items}
}

// StringList creates a list value of strings.
func StringList(items []string) Value {
	values := make([]Value, len(items))
	for i, s := range items {
		values[i] = StringValue(s)
	}
	return ListValue(values...)
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Any converts v back to a plain Go value: nil, bool, int64, float64,
// string, []byte or []any.
func (v Value) Any() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.String
	case KindBytes:
		return v.Bytes
	case KindList:
		items := make([]any, len(v.List))
		for i, item := range v.List {
			items[i] = item.Any()
		}
		return items
	default:
		return nil
	}
}

// FromAny converts a plain Go value into a Value.
//
// Supported inputs are nil, bool, every integer width, float32/float64,
// string, []byte, []string, []any (recursively), Value, time.Time (encoded
// as an RFC 3339 string) and fmt.Stringer (encoded via String).
func FromAny(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return BoolValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint:
		return fromUnsigned(uint64(x))
	case uint8:
		return IntValue(int64(x)), nil
	case uint16:
		return IntValue(int64(x)), nil
	case uint32:
		return IntValue(int64(x)), nil
	case uint64:
		return fromUnsigned(x)
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case string:
		return StringValue(x), nil
	case []byte:
		return BytesValue(x), nil
	case []string:
		return StringList(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("list item %d: %w", i, err)
			}
			items[i] = v
		}
		return ListValue(items...), nil
	case time.Time:
		return StringValue(x.Format(time.RFC3339Nano)), nil
	case time.Duration:
		return IntValue(int64(x)), nil
	case fmt.Stringer:
		return StringValue(x.String()), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, in)
	}
}

func fromUnsigned(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("%w: unsigned value %d overflows int64", ErrUnsupportedValue, u)
	}
	return IntValue(int64(u)), nil
}

func (v Value) GoString() string {
	return fmt.Sprintf("message.Value{%s: %v}", v.Kind, v.Any())
}
