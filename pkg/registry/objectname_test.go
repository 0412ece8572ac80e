package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectName(t *testing.T) {
	t.Run("CanonicalSortsKeys", func(t *testing.T) {
		name, err := ParseObjectName("app:type=Cache,name=users")
		require.NoError(t, err)
		assert.Equal(t, "app", name.Domain())
		assert.Equal(t, "users", name.Property("name"))
		assert.Equal(t, "app:name=users,type=Cache", name.String())
		assert.False(t, name.IsPattern())
	})

	t.Run("EqualRegardlessOfOrder", func(t *testing.T) {
		a := MustParseObjectName("app:type=Cache,name=users")
		b := MustParseObjectName("app:name=users,type=Cache")
		assert.Equal(t, a.String(), b.String())
		assert.True(t, a.Matches(b))
	})

	t.Run("Patterns", func(t *testing.T) {
		for _, s := range []string{"*:*", "app:*", "app:type=Cache,*", "a?p:type=C*"} {
			name, err := ParseObjectName(s)
			require.NoError(t, err, s)
			assert.True(t, name.IsPattern(), s)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, s := range []string{
			"",
			"no-colon",
			":type=x",
			"app:",
			"app:type",
			"app:type=",
			"app:=x",
			"app:type=a,type=b",
			"app:*,*",
			"app:ty*pe=x",
		} {
			_, err := ParseObjectName(s)
			assert.True(t, errors.Is(err, ErrInvalidObjectName), "expected %q to be invalid", s)
		}
	})
}

func TestObjectNameMatches(t *testing.T) {
	target := MustParseObjectName("dittomx:type=Properties,name=app")

	tests := []struct {
		pattern string
		match   bool
	}{
		{"*:*", true},
		{"dittomx:*", true},
		{"ditto*:*", true},
		{"other:*", false},
		{"dittomx:type=Properties,*", true},
		{"dittomx:type=Properties", false},
		{"dittomx:type=Prop*,name=a?p", true},
		{"dittomx:type=Properties,name=ap", false},
		{"dittomx:type=Properties,name=app", true},
		{"dittomx:type=Properties,name=app,extra=1,*", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.match, MustParseObjectName(tt.pattern).Matches(target))
		})
	}
}

func TestWildcardMatch(t *testing.T) {
	assert.True(t, wildcardMatch("", ""))
	assert.True(t, wildcardMatch("*", ""))
	assert.True(t, wildcardMatch("a*b*c", "aXXbYYc"))
	assert.False(t, wildcardMatch("a*b*c", "aXXbYY"))
	assert.True(t, wildcardMatch("??", "ab"))
	assert.False(t, wildcardMatch("??", "abc"))
}
