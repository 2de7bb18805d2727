package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutron/parser"
	"neutron/types"
	"neutron/vm"
)

func run(t *testing.T, src string) types.Value {
	t.Helper()
	p := parser.NewParser(src)
	stmts := p.ParseProgram()
	require.Empty(t, p.Errors())
	fn, errs := vm.CompileProgram(stmts)
	require.Empty(t, errs)
	machine := vm.New()
	result, err := machine.Run(fn)
	require.NoError(t, err)
	return result
}

func TestArithmetic(t *testing.T) {
	result := run(t, `
		var x = 1 + 2 * 3;
		return x;
	`)
	assert.Equal(t, types.NewNumber(7), result)
}

func TestZeroOverZeroIsNaN(t *testing.T) {
	result := run(t, `return 0 / 0;`)
	n, ok := result.(types.Number)
	require.True(t, ok)
	// NaN compares unequal to itself.
	assert.False(t, n.Equal(n))
}

func TestNonzeroDividendOverZeroRaises(t *testing.T) {
	p := parser.NewParser(`return 1 / 0;`)
	stmts := p.ParseProgram()
	fn, _ := vm.CompileProgram(stmts)
	machine := vm.New()
	_, err := machine.Run(fn)
	require.Error(t, err)
	var rerr *types.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, types.ErrDivByZero, rerr.Kind)
}

func TestClosureCapturesMutableLocal(t *testing.T) {
	result := run(t, `
		func makeCounter() {
			var count = 0;
			func increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		counter();
		counter();
		return counter();
	`)
	assert.Equal(t, types.NewNumber(3), result)
}

func TestClosuresOverSameLocalAreIndependent(t *testing.T) {
	// Each call to makeCounter must capture its own "count" local as a
	// fresh upvalue, not alias a shared binding across invocations.
	result := run(t, `
		func makeCounter() {
			var count = 0;
			func increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var a = makeCounter();
		var b = makeCounter();
		a();
		a();
		a();
		return b();
	`)
	assert.Equal(t, types.NewNumber(1), result)
}

func TestTypedLocalReassignmentRejectsMismatch(t *testing.T) {
	p := parser.NewParser(`
		func run() {
			var count: number = 0;
			count = "oops";
			return count;
		}
		return run();
	`)
	stmts := p.ParseProgram()
	require.Empty(t, p.Errors())
	fn, errs := vm.CompileProgram(stmts)
	require.Empty(t, errs)
	machine := vm.New()
	_, err := machine.Run(fn)
	require.Error(t, err)
	var rerr *types.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, types.ErrType, rerr.Kind)
}

func TestTryCatchRecoversThrow(t *testing.T) {
	result := run(t, `
		var out = 0;
		try {
			throw "boom";
		} catch (e) {
			out = 1;
		}
		return out;
	`)
	assert.Equal(t, types.NewNumber(1), result)
}

func TestClassInstanceMethod(t *testing.T) {
	result := run(t, `
		class Counter {
			init() {
				this.n = 0;
			}
			bump() {
				this.n = this.n + 1;
				return this.n;
			}
		}
		var c = Counter();
		c.bump();
		return c.bump();
	`)
	assert.Equal(t, types.NewNumber(2), result)
}

func TestArrayNegativeIndexRaises(t *testing.T) {
	p := parser.NewParser(`
		var xs = [1, 2, 3];
		return xs[-1];
	`)
	stmts := p.ParseProgram()
	require.Empty(t, p.Errors())
	fn, errs := vm.CompileProgram(stmts)
	require.Empty(t, errs)
	machine := vm.New()
	_, err := machine.Run(fn)
	require.Error(t, err)
	var rerr *types.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, types.ErrIndex, rerr.Kind)
}

func TestStringNegativeIndexCountsFromEnd(t *testing.T) {
	result := run(t, `
		var s = "abc";
		return s[-1];
	`)
	assert.Equal(t, types.NewString("c"), result)
}
