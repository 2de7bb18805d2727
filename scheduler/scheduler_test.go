package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutron/builtins"
	"neutron/parser"
	"neutron/scheduler"
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

func newScheduler(workers, budget int) *scheduler.Scheduler {
	reg := builtins.NewRegistry()
	reg.Install()
	return scheduler.New(reg, workers, budget)
}

func TestRunSimpleProgramReturnsValue(t *testing.T) {
	fn := compile(t, `return 1 + 2;`)
	s := newScheduler(2, 100)
	result, err := s.Run(fn)
	require.NoError(t, err)
	assert.Equal(t, types.NewNumber(3), result)
}

func TestSpawnSendReceiveRoundTrip(t *testing.T) {
	fn := compile(t, `
		func echoer() {
			var msg = receive();
			send(msg, 99);
		}
		var child = spawn(echoer);
		send(child, self());
		var reply = receive(2000);
		return reply;
	`)
	s := newScheduler(4, 200)
	result, err := s.Run(fn)
	require.NoError(t, err)
	assert.Equal(t, types.NewNumber(99), result)
}

func TestReceiveTimeoutReturnsNil(t *testing.T) {
	fn := compile(t, `return receive(10);`)
	s := newScheduler(2, 100)
	start := time.Now()
	result, err := s.Run(fn)
	require.NoError(t, err)
	assert.Equal(t, types.NilValue, result)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestSleepDelaysCompletion(t *testing.T) {
	fn := compile(t, `
		sleep(20);
		return true;
	`)
	s := newScheduler(2, 100)
	start := time.Now()
	result, err := s.Run(fn)
	require.NoError(t, err)
	assert.Equal(t, types.Bool(true), result)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestProcessCountDuringSpawn(t *testing.T) {
	reg := builtins.NewRegistry()
	reg.Install()
	s := scheduler.New(reg, 4, 200)
	fn := compile(t, `
		func sleeper() { sleep(50); }
		spawn(sleeper);
		spawn(sleeper);
		return process_count();
	`)
	result, err := s.Run(fn)
	require.NoError(t, err)
	// The entry process observes itself plus the two sleepers still alive.
	assert.GreaterOrEqual(t, result.(types.Number), types.Number(1))
}

func TestThousandMessagesRoundTripThroughCollector(t *testing.T) {
	fn := compile(t, `
		use "arrays";
		func collector() {
			var i = 0;
			while (i < 1000) {
				var msg = receive();
				send(msg["from"], msg["n"]);
				i = i + 1;
			}
		}
		var coll = spawn(collector);
		var i = 0;
		while (i < 1000) {
			send(coll, {"from": self(), "n": i});
			i = i + 1;
		}
		var results = [];
		i = 0;
		while (i < 1000) {
			arrays.push(results, receive());
			i = i + 1;
		}
		return results;
	`)
	s := newScheduler(8, 500)
	result, err := s.Run(fn)
	require.NoError(t, err)

	arr, ok := result.(*types.ObjArray)
	require.True(t, ok)
	require.Equal(t, 1000, arr.Len())

	seen := make(map[int]bool, 1000)
	for _, v := range arr.Elems {
		n, ok := v.(types.Number)
		require.True(t, ok)
		seen[int(n)] = true
	}
	assert.Len(t, seen, 1000)
	for i := 0; i < 1000; i++ {
		assert.True(t, seen[i], "missing %d in round-tripped multiset", i)
	}
}

func TestSleepThenReceiveTenMessagesInSenderOrder(t *testing.T) {
	fn := compile(t, `
		use "arrays";
		func sender(target) {
			var i = 0;
			while (i < 10) {
				send(target, i);
				i = i + 1;
			}
		}
		spawn(sender, self());
		sleep(50);
		var out = [];
		var i = 0;
		while (i < 10) {
			arrays.push(out, receive());
			i = i + 1;
		}
		return out;
	`)
	s := newScheduler(4, 200)
	result, err := s.Run(fn)
	require.NoError(t, err)

	arr, ok := result.(*types.ObjArray)
	require.True(t, ok)
	require.Equal(t, 10, arr.Len())
	for i := 0; i < 10; i++ {
		assert.Equal(t, types.NewNumber(float64(i)), arr.Elems[i])
	}
}

func TestKillStopsAProcess(t *testing.T) {
	fn := compile(t, `
		func forever() {
			while (true) {
				sleep(5);
			}
		}
		var child = spawn(forever);
		sleep(10);
		var alive_before = is_alive(child);
		kill(child);
		sleep(10);
		var alive_after = is_alive(child);
		return alive_before and !alive_after;
	`)
	s := newScheduler(4, 100)
	result, err := s.Run(fn)
	require.NoError(t, err)
	assert.Equal(t, types.Bool(true), result)
}
