package engine_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutron/engine"
	"neutron/types"
)

func TestEvalArithmeticReturn(t *testing.T) {
	e := engine.New(engine.Config{})
	result, err := e.Eval(`return 6 * 7;`)
	require.NoError(t, err)
	assert.Equal(t, types.NewNumber(42), result)
}

func TestSayWritesToConfiguredOutput(t *testing.T) {
	var out bytes.Buffer
	e := engine.New(engine.Config{Output: &out})
	_, err := e.Eval(`say 1 + 2;`)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out.String())
}

func TestCompileErrorSurfacesAsParseErrors(t *testing.T) {
	e := engine.New(engine.Config{})
	_, err := e.Eval(`break;`)
	require.Error(t, err)
	var perrs engine.ParseErrors
	require.ErrorAs(t, err, &perrs)
	assert.Contains(t, perrs.Error(), "break")
}

func TestUseFilePathLoadsModuleExports(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "lib.ntrn")
	require.NoError(t, os.WriteFile(libPath, []byte(`
		func double(n) { return n * 2; }
		var answer = 21;
	`), 0o644))

	e := engine.New(engine.Config{})
	result, err := e.Eval(`
		use "` + libPath + `" = lib;
		return lib.double(lib.answer);
	`)
	require.NoError(t, err)
	assert.Equal(t, types.NewNumber(42), result)
}

func TestCyclicFileImportIsRejected(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.ntrn")
	bPath := filepath.Join(dir, "b.ntrn")
	require.NoError(t, os.WriteFile(aPath, []byte(`use "`+bPath+`" = b;`), 0o644))
	require.NoError(t, os.WriteFile(bPath, []byte(`use "`+aPath+`" = a;`), 0o644))

	e := engine.New(engine.Config{})
	_, err := e.Eval(`use "` + aPath + `" = a;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic import")
}

func TestNativeModuleImportAndStringMethods(t *testing.T) {
	e := engine.New(engine.Config{})
	result, err := e.Eval(`
		use "math";
		var s = "  Hello, World  ";
		return s.trim().upper() + " " + math.floor(2.9);
	`)
	require.NoError(t, err)
	assert.Equal(t, types.NewString("HELLO, WORLD 2"), result)
}
