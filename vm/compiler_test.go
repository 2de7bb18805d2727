package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutron/parser"
	"neutron/types"
	"neutron/vm"
)

func compileSource(t *testing.T, src string) (*types.Function, []*types.CompileError) {
	t.Helper()
	p := parser.NewParser(src)
	stmts := p.ParseProgram()
	require.Empty(t, p.Errors())
	return vm.CompileProgram(stmts)
}

func TestChunkCodeAndLinesStayParallel(t *testing.T) {
	fn, errs := compileSource(t, `
		var a = 1;
		var b = 2;
		func mul(x, y) { return x * y; }
		say mul(a, b);
	`)
	require.Empty(t, errs)

	var check func(fn *types.Function)
	check = func(fn *types.Function) {
		assert.Equal(t, len(fn.Chunk.Code), len(fn.Chunk.Lines), "chunk %q", fn.Name)
		for _, c := range fn.Chunk.Constants {
			if nested, ok := c.(*types.Function); ok {
				check(nested)
			}
		}
	}
	check(fn)
}

func TestBreakOutsideLoopIsCompileError(t *testing.T) {
	_, errs := compileSource(t, `break;`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "break")
}

func TestContinueOutsideLoopIsCompileError(t *testing.T) {
	_, errs := compileSource(t, `continue;`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "continue")
}

func TestDuplicateLocalDeclarationIsCompileError(t *testing.T) {
	_, errs := compileSource(t, `
		func f() {
			var x = 1;
			var x = 2;
		}
	`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "already declared")
}

func TestLocalSelfReferenceInInitializerIsCompileError(t *testing.T) {
	_, errs := compileSource(t, `
		func f() {
			var x = x;
		}
	`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "own initializer")
}

func TestSafeBlockRequiresTypeAnnotations(t *testing.T) {
	_, errs := compileSource(t, `
		safe {
			var n = 1;
		}
	`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "type annotation")
}

func TestSafeBlockAcceptsAnnotatedBindings(t *testing.T) {
	_, errs := compileSource(t, `
		safe {
			var n: number = 1;
			var s: string = "ok";
		}
	`)
	assert.Empty(t, errs)
}

func TestNestedFunctionDeclarationKeepsLocalSlots(t *testing.T) {
	// A local `func` declaration must occupy exactly one slot so the
	// locals that follow it still resolve to the right stack positions.
	result := run(t, `
		func outer() {
			var before = 10;
			func helper() { return 1; }
			var after = 20;
			return before + helper() + after;
		}
		return outer();
	`)
	assert.Equal(t, types.NewNumber(31), result)
}

func TestWhileLoopWithBreakAndContinue(t *testing.T) {
	result := run(t, `
		var total = 0;
		var i = 0;
		while (i < 10) {
			i = i + 1;
			if (i % 2 == 0) { continue; }
			if (i > 7) { break; }
			total = total + i;
		}
		return total;
	`)
	// 1 + 3 + 5 + 7, then i=9 breaks out.
	assert.Equal(t, types.NewNumber(16), result)
}

func TestBreakDiscardsLoopBodyLocals(t *testing.T) {
	result := run(t, `
		var hits = 0;
		var i = 0;
		while (i < 5) {
			var tmp = i * 2;
			i = i + 1;
			if (tmp > 4) { break; }
			hits = hits + 1;
		}
		return hits;
	`)
	assert.Equal(t, types.NewNumber(3), result)
}

func TestDoWhileExecutesBodyAtLeastOnce(t *testing.T) {
	result := run(t, `
		var n = 0;
		do {
			n = n + 1;
		} while (false);
		return n;
	`)
	assert.Equal(t, types.NewNumber(1), result)
}

func TestMatchSelectsArmByEquality(t *testing.T) {
	result := run(t, `
		var out = "";
		match (2) {
			case 1 => out = "one";
			case 2 => out = "two";
			else => out = "many";
		}
		return out;
	`)
	assert.Equal(t, types.NewString("two"), result)
}

func TestTernaryAndLogicalOperators(t *testing.T) {
	result := run(t, `
		var x = 5;
		return x > 3 and x < 10 ? "mid" : "out";
	`)
	assert.Equal(t, types.NewString("mid"), result)
}

func TestStringConcatenationCoercesNonStrings(t *testing.T) {
	result := run(t, `return "n=" + 5;`)
	assert.Equal(t, types.NewString("n=5"), result)
}

func TestUpvaluesSurviveStackGrowth(t *testing.T) {
	// Deep call activity after capture forces the operand stack to grow
	// past its initial allocation; the open upvalue must still reference
	// the captured slot afterwards.
	result := run(t, `
		func noisy(depth) {
			if (depth == 0) { return 0; }
			return noisy(depth - 1) + 1;
		}
		func make() {
			var n = 0;
			func bump() { n = n + 1; return n; }
			noisy(40);
			bump();
			return bump();
		}
		return make();
	`)
	assert.Equal(t, types.NewNumber(2), result)
}
