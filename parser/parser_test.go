package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutron/types"
)

func parseOK(t *testing.T, src string) []Stmt {
	t.Helper()
	p := NewParser(src)
	stmts := p.ParseProgram()
	require.Empty(t, p.Errors())
	return stmts
}

func TestParseVarWithTypeAnnotation(t *testing.T) {
	stmts := parseOK(t, `var count: number = 3;`)
	require.Len(t, stmts, 1)
	v, ok := stmts[0].(*VarStmt)
	require.True(t, ok)
	assert.Equal(t, "count", v.Name)
	assert.Equal(t, "number", v.TypeTag)
	lit, ok := v.Value.(*LiteralExpr)
	require.True(t, ok)
	assert.Equal(t, types.NewNumber(3), lit.Value)
}

func TestParseFunKeywordAlias(t *testing.T) {
	stmts := parseOK(t, `fun add(a, b) { return a + b; }`)
	require.Len(t, stmts, 1)
	fs, ok := stmts[0].(*FunctionStmt)
	require.True(t, ok)
	assert.Equal(t, "add", fs.Fn.Name)
	require.Len(t, fs.Fn.Params, 2)
}

func TestParseMatchWithDefaultArm(t *testing.T) {
	stmts := parseOK(t, `
		match (x) {
			case 1 => say "one";
			else => say "other";
		}
	`)
	require.Len(t, stmts, 1)
	m, ok := stmts[0].(*MatchStmt)
	require.True(t, ok)
	require.Len(t, m.Cases, 2)
	assert.NotNil(t, m.Cases[0].Pattern)
	assert.Nil(t, m.Cases[1].Pattern)
}

func TestParseTryCatchBindsName(t *testing.T) {
	stmts := parseOK(t, `try { throw "x"; } catch (e) { say e; }`)
	require.Len(t, stmts, 1)
	ts, ok := stmts[0].(*TryStmt)
	require.True(t, ok)
	assert.Equal(t, "e", ts.CatchName)
	assert.NotNil(t, ts.CatchBody)
}

func TestParseErrorOnInvalidAssignmentTarget(t *testing.T) {
	p := NewParser(`1 = 2;`)
	p.ParseProgram()
	require.NotEmpty(t, p.Errors())
	assert.Contains(t, p.Errors()[0].Message, "assignment target")
}

func TestUnparseRoundTripPreservesShape(t *testing.T) {
	src := `
		var n = 0;
		func bump(by) {
			n = n + by;
			return n;
		}
		while (n < 10) {
			bump(2);
		}
		say n;
	`
	first := parseOK(t, src)
	rendered := Unparse(first)
	second := parseOK(t, rendered)

	// Statement-level shape survives the round trip even though
	// formatting does not.
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.IsType(t, first[i], second[i])
	}
}
