package fieldval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		check func(t *testing.T, v Value)
	}{
		{"number", "10000", func(t *testing.T, v Value) {
			n, ok := v.(Number)
			require.True(t, ok)
			assert.Equal(t, "10000", n.String())
		}},
		{"decimal number", "1530.25", func(t *testing.T, v Value) {
			n, ok := v.(Number)
			require.True(t, ok)
			assert.Equal(t, "1530.25", n.String())
		}},
		{"bool", "true", func(t *testing.T, v Value) {
			assert.Equal(t, Bool(true), v)
		}},
		{"null", "null", func(t *testing.T, v Value) {
			assert.Equal(t, Null{}, v)
		}},
		{"quoted string", `"single"`, func(t *testing.T, v Value) {
			assert.Equal(t, String("single"), v)
		}},
		{"bare word is a string", "single", func(t *testing.T, v Value) {
			assert.Equal(t, String("single"), v)
		}},
		{"ssn stays a string", "123-45-6789", func(t *testing.T, v Value) {
			assert.Equal(t, String("123-45-6789"), v)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Parse(tt.in))
		})
	}
}

func TestFromJSON_PrecisionPreserved(t *testing.T) {
	// A value this large would be mangled by a float64 round trip.
	v, err := FromJSON([]byte("123456789012345678901234567890"))
	require.NoError(t, err)
	n, ok := v.(Number)
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234567890", n.String())
}

func TestFromJSON_TrailingData(t *testing.T) {
	_, err := FromJSON([]byte("1 2"))
	assert.Error(t, err)
}

func TestFromJSON_Composite(t *testing.T) {
	v, err := FromJSON([]byte(`{"dependents":[{"age":12},{"age":17}]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	list, ok := obj["dependents"].(List)
	require.True(t, ok)
	require.Len(t, list, 2)

	first, ok := list[0].(Object)
	require.True(t, ok)
	age, ok := AsDecimal(first["age"])
	require.True(t, ok)
	assert.Equal(t, "12", age.Text('f'))
}

func TestAsDecimal(t *testing.T) {
	d, ok := AsDecimal(NumberFromInt64(42))
	require.True(t, ok)
	assert.Equal(t, "42", d.Text('f'))

	// Numeric strings convert; UIs frequently send amounts as text.
	d, ok = AsDecimal(String("1530.25"))
	require.True(t, ok)
	assert.Equal(t, "1530.25", d.Text('f'))

	_, ok = AsDecimal(String("abc"))
	assert.False(t, ok)
	_, ok = AsDecimal(Bool(true))
	assert.False(t, ok)
}

func TestAsBool(t *testing.T) {
	b, ok := AsBool(Bool(true))
	require.True(t, ok)
	assert.True(t, b)

	b, ok = AsBool(String("false"))
	require.True(t, ok)
	assert.False(t, b)

	_, ok = AsBool(String("yes"))
	assert.False(t, ok)
	_, ok = AsBool(NumberFromInt64(1))
	assert.False(t, ok)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(Null{}))
	assert.True(t, IsEmpty(String("")))
	assert.False(t, IsEmpty(String("x")))
	assert.False(t, IsEmpty(NumberFromInt64(0)))
	assert.False(t, IsEmpty(Bool(false)))
}

func TestNumberFromDecimal_Copies(t *testing.T) {
	n, err := NumberFromString("100")
	require.NoError(t, err)
	got := n.Decimal()
	got.SetInt64(999)
	assert.Equal(t, "100", n.String(), "mutating the returned decimal must not affect the Number")
}
