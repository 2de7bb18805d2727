package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callMethod(t *testing.T, recv string, name string, args ...Value) (Value, *StringError) {
	t.Helper()
	fn, ok := StringMethods[name]
	require.True(t, ok, "method %q not registered", name)
	return fn(Intern(recv), args)
}

func TestStringSplitShape(t *testing.T) {
	v, serr := callMethod(t, "a,b,c", "split", NewString(","))
	require.Nil(t, serr)
	arr := v.(*ObjArray)
	require.Equal(t, 3, arr.Len())
	assert.Equal(t, NewString("b"), arr.Elems[1])
}

func TestStringFindReturnsRuneIndex(t *testing.T) {
	v, serr := callMethod(t, "héllo", "find", NewString("llo"))
	require.Nil(t, serr)
	assert.Equal(t, NewNumber(2), v)

	v, serr = callMethod(t, "héllo", "find", NewString("zzz"))
	require.Nil(t, serr)
	assert.Equal(t, NewNumber(-1), v)
}

func TestStringSliceBoundsRaiseSliceError(t *testing.T) {
	_, serr := callMethod(t, "abc", "slice", NewNumber(1), NewNumber(9))
	require.NotNil(t, serr)
	assert.Equal(t, StrSlice, serr.Sub)

	v, serr := callMethod(t, "abcdef", "slice", NewNumber(1), NewNumber(-1))
	require.Nil(t, serr)
	assert.Equal(t, NewString("bcde"), v)
}

func TestStringCharAtOutOfBounds(t *testing.T) {
	_, serr := callMethod(t, "ab", "char_at", NewNumber(5))
	require.NotNil(t, serr)
	assert.Equal(t, StrIndexOutOfBounds, serr.Sub)
}

func TestStringLenCountsRunesAndBytes(t *testing.T) {
	v, serr := callMethod(t, "héllo", "len")
	require.Nil(t, serr)
	assert.Equal(t, NewNumber(5), v)

	v, serr = callMethod(t, "héllo", "byte_len")
	require.Nil(t, serr)
	assert.Equal(t, NewNumber(6), v)
}
