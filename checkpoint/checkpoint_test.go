package checkpoint_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutron/checkpoint"
	"neutron/parser"
	"neutron/types"
	"neutron/vm"
)

func compile(t *testing.T, src string) *types.Function {
	t.Helper()
	p := parser.NewParser(src)
	stmts := p.ParseProgram()
	require.Empty(t, p.Errors())
	fn, errs := vm.CompileProgram(stmts)
	require.Empty(t, errs)
	return fn
}

func TestRoundTripPrimitivesAndContainers(t *testing.T) {
	fn := compile(t, `
		var name = "ripley";
		var nums = [1, 2, 3];
		var profile = {"role": "warrant officer", "alive": true};
	`)
	machine := vm.New()
	_, err := machine.Run(fn)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, checkpoint.Save(&buf, "ripley.ntrn", machine))

	snap, err := checkpoint.Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, "ripley.ntrn", snap.SourceName)

	name, ok := snap.Globals["name"].(*types.ObjString)
	require.True(t, ok)
	assert.Equal(t, "ripley", string(name.Bytes()))

	nums, ok := snap.Globals["nums"].(*types.ObjArray)
	require.True(t, ok)
	require.Equal(t, 3, nums.Len())
	assert.Equal(t, types.NewNumber(1), nums.Elems[0])
	assert.Equal(t, types.NewNumber(2), nums.Elems[1])
	assert.Equal(t, types.NewNumber(3), nums.Elems[2])

	profile, ok := snap.Globals["profile"].(*types.ObjMap)
	require.True(t, ok)
	role, ok := profile.Get("role")
	require.True(t, ok)
	assert.Equal(t, "warrant officer", string(role.(*types.ObjString).Bytes()))
	alive, ok := profile.Get("alive")
	require.True(t, ok)
	assert.Equal(t, types.Bool(true), alive)
}

func TestRoundTripClosureCapturingUpvalue(t *testing.T) {
	fn := compile(t, `
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
	`)
	machine := vm.New()
	_, err := machine.Run(fn)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, checkpoint.Save(&buf, "counter.ntrn", machine))

	snap, err := checkpoint.Load(&buf)
	require.NoError(t, err)

	counter, ok := snap.Globals["counter"].(*types.Closure)
	require.True(t, ok)
	require.Len(t, counter.Upvalues, 1)
	assert.Equal(t, types.NewNumber(1), counter.Upvalues[0].Get())
}

func TestLoadRejectsBadMagic(t *testing.T) {
	_, err := checkpoint.Load(bytes.NewReader([]byte("not a checkpoint at all")))
	require.Error(t, err)
	var cerr *types.CheckpointError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "read-header", cerr.Stage)
}

func TestSharedArrayIdentityPreservedAcrossReferences(t *testing.T) {
	fn := compile(t, `
		var shared = [1, 2];
		var wrapper = {"first": shared, "second": shared};
	`)
	machine := vm.New()
	_, err := machine.Run(fn)
	require.NoError(t, err)

	data, err := checkpoint.Bytes("shared.ntrn", machine)
	require.NoError(t, err)

	snap, err := checkpoint.Load(bytes.NewReader(data))
	require.NoError(t, err)

	wrapper := snap.Globals["wrapper"].(*types.ObjMap)
	first, _ := wrapper.Get("first")
	second, _ := wrapper.Get("second")
	assert.Same(t, first.(*types.ObjArray), second.(*types.ObjArray))
}
