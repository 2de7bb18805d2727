package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternedStringsShareIdentity(t *testing.T) {
	a := Intern("hello")
	b := Intern("hello")
	assert.Same(t, a, b)
	assert.True(t, a.Equal(b))
}

func TestNaNComparesUnequalToItself(t *testing.T) {
	nan := Number(math.NaN())
	assert.False(t, nan.Equal(nan))
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := NewEmptyMap()
	m.Set("z", NewNumber(1))
	m.Set("a", NewNumber(2))
	m.Set("m", NewNumber(3))
	assert.Equal(t, []string{"z", "a", "m"}, m.Keys())

	m.Set("a", NewNumber(9)) // update keeps position
	assert.Equal(t, []string{"z", "a", "m"}, m.Keys())

	require.True(t, m.Delete("a"))
	assert.Equal(t, []string{"z", "m"}, m.Keys())
}

func TestDeepCopyIsolatesMutableGraph(t *testing.T) {
	inner := NewArray([]Value{NewNumber(1)})
	m := NewEmptyMap()
	m.Set("xs", inner)

	copied := DeepCopyValue(m).(*ObjMap)
	copiedInner, ok := copied.Get("xs")
	require.True(t, ok)

	inner.Elems[0] = NewNumber(99)
	assert.Equal(t, NewNumber(1), copiedInner.(*ObjArray).Elems[0])
}

func TestClosureCapturesMutableStateDetection(t *testing.T) {
	fn := NewFunction("f", 0)
	fn.UpvalueInfo = []UpvalueInfo{{IsLocal: true, Index: 1}}
	cl := NewClosure(fn)

	cl.Upvalues[0] = &Upvalue{Closed: NewNumber(1)}
	assert.False(t, cl.CapturesMutableState())

	cl.Upvalues[0] = &Upvalue{Closed: NewArray(nil)}
	assert.True(t, cl.CapturesMutableState())
}

func TestMatchesTagAcceptsCallableFamily(t *testing.T) {
	fn := NewFunction("f", 0)
	assert.True(t, MatchesTag(TFunction, NewClosure(fn)))
	assert.True(t, MatchesTag(TFunction, &NativeFn{Name: "n"}))
	assert.False(t, MatchesTag(TFunction, NewNumber(1)))
	assert.True(t, MatchesTag(TNumber, NewNumber(1)))
}
