package message

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringerName struct{}

func (stringerName) String() string { return "domain:type=Test" }

func TestFromAny(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		in       any
		expected Value
	}{
		{"nil", nil, Null()},
		{"bool", true, BoolValue(true)},
		{"int", 42, IntValue(42)},
		{"int32", int32(-7), IntValue(-7)},
		{"uint16", uint16(9), IntValue(9)},
		{"float32", float32(1.5), FloatValue(1.5)},
		{"float64", 2.25, FloatValue(2.25)},
		{"string", "hello", StringValue("hello")},
		{"bytes", []byte{1, 2}, BytesValue([]byte{1, 2})},
		{"strings", []string{"a", "b"}, ListValue(StringValue("a"), StringValue("b"))},
		{"nested list", []any{1, []any{"x"}}, ListValue(IntValue(1), ListValue(StringValue("x")))},
		{"time", now, StringValue("2026-01-02T03:04:05Z")},
		{"duration", time.Second, IntValue(int64(time.Second))},
		{"stringer", stringerName{}, StringValue("domain:type=Test")},
		{"value passthrough", IntValue(3), IntValue(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestFromAny_Unsupported(t *testing.T) {
	t.Run("RejectsStruct", func(t *testing.T) {
		_, err := FromAny(struct{ A int }{A: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedValue))
	})

	t.Run("RejectsUnsignedOverflow", func(t *testing.T) {
		_, err := FromAny(uint64(math.MaxUint64))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedValue))
	})

	t.Run("RejectsNestedUnsupported", func(t *testing.T) {
		_, err := FromAny([]any{1, make(chan int)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list item 1")
	})
}

func TestValueAny(t *testing.T) {
	assert.Nil(t, Null().Any())
	assert.Equal(t, int64(42), IntValue(42).Any())
	assert.Equal(t, []any{"a", int64(1)}, ListValue(StringValue("a"), IntValue(1)).Any())
	assert.Equal(t, []any{}, ListValue().Any())
}

func TestErrorDescriptor(t *testing.T) {
	t.Run("IsMatchesByKind", func(t *testing.T) {
		err := NewError(KindNotLoggedOn, "logon first")
		assert.True(t, errors.Is(err, ErrNotLoggedOn))
		assert.False(t, errors.Is(err, ErrInvalidCredentials))
	})

	t.Run("WrapKeepsTypeAndMessage", func(t *testing.T) {
		cause := errors.New("boom")
		d := WrapError(KindInvocationFailure, cause)
		assert.Equal(t, KindInvocationFailure, d.Kind)
		assert.Equal(t, "*errors.errorString", d.Type)
		assert.Equal(t, "boom", d.Message)
	})

	t.Run("WrapPassesDescriptorThrough", func(t *testing.T) {
		inner := NewError(KindTargetNotFound, "missing")
		d := WrapError(KindInvocationFailure, inner)
		assert.Same(t, inner, d)
	})
}

func TestRequestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewExecute("getDomains", nil, nil).RequestID()
		require.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
}
