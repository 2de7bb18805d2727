package scheduler

import (
	"context"
	"io"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"neutron/builtins"
	"neutron/trace"
	"neutron/types"
	"neutron/vm"
)

// DefaultBudget is the reduction budget handed to each process's Step
// call; a scheduler parameter, not a language-visible constant (spec.md
// §5).
const DefaultBudget = 2000

// readyQueueCapacity bounds the scheduler's internal ready channel. It is
// sized well past the "spawn 1000 processes" scenario spec.md's
// conformance notes call out; a full channel only back-pressures
// enqueueReady, it never drops work.
const readyQueueCapacity = 1 << 16

// Scheduler owns the process table, the ready queue, and the worker pool
// that drives every Process's VM forward in reduction-budget slices. The
// pool is a fixed set of goroutines pulled from golang.org/x/sync's
// errgroup, gated by a semaphore.Weighted limiting how many processes
// may be stepping concurrently.
type Scheduler struct {
	mu        sync.Mutex
	processes map[int64]*Process
	nextPID   int64
	ready     chan int64

	budget  int
	workers int
	sem     *semaphore.Weighted

	registry *builtins.Registry
	output   io.Writer

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	started bool
}

// New builds a Scheduler. workers <= 0 defaults to runtime.GOMAXPROCS(0)
// (spec.md §5: "size defaults to hardware concurrency if not
// configured"); budget <= 0 defaults to DefaultBudget.
func New(registry *builtins.Registry, workers, budget int) *Scheduler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	// Wire the native module bridge's re-entrant call hook to the real
	// VM now that one exists, unblocking arrays.map/filter/reduce's
	// callback invocation (builtins/arrays.go).
	registry.CallClosure = func(vmAny any, fn types.Value, args []types.Value) (types.Value, error) {
		machine, ok := vmAny.(*vm.VM)
		if !ok {
			return nil, types.NewRuntimeError(types.ErrScheduler, 0, "CallClosure: invalid vm handle")
		}
		return machine.CallValue(fn, args)
	}
	return &Scheduler{
		processes: make(map[int64]*Process),
		nextPID:   1,
		ready:     make(chan int64, readyQueueCapacity),
		budget:    budget,
		workers:   workers,
		sem:       semaphore.NewWeighted(int64(workers)),
		registry:  registry,
	}
}

// Start launches the worker pool. Safe to call once; Run calls it lazily.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	s.ctx, s.cancel, s.group = gctx, cancel, group
	for i := 0; i < s.workers; i++ {
		group.Go(s.workerLoop)
	}
}

// Stop cancels all workers and waits for them to drain.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	_ = s.group.Wait()
}

func (s *Scheduler) workerLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case pid, ok := <-s.ready:
			if !ok {
				return nil
			}
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return nil
			}
			s.runOnce(pid)
			s.sem.Release(1)
		}
	}
}

func (s *Scheduler) enqueueReady(pid int64) {
	if s.ctx == nil {
		// Spawn before Start: the queue is far from full, so this cannot
		// block; workers drain it once Start runs.
		s.ready <- pid
		return
	}
	select {
	case s.ready <- pid:
	case <-s.ctx.Done():
	}
}

// newVM builds a process's VM, wiring module resolution to the shared
// native registry exactly as the top-level interpreter does, so `use
// "arrays"` and friends resolve the same way inside a spawned process.
func (s *Scheduler) newVM() *vm.VM {
	machine := vm.New()
	machine.Importer = func(name string) (*types.Module, error) {
		if mod, ok := s.registry.Lookup(name); ok {
			return mod, nil
		}
		if s.registry.FileLoader != nil {
			return s.registry.FileLoader(name)
		}
		return nil, types.NewRuntimeError(types.ErrImport, 0, "unknown module %q", name)
	}
	if s.output != nil {
		machine.Output = s.output
	}
	return machine
}

// SetOutput redirects every process VM's `say` output to w. Must be
// called before Run/Spawn; it has no effect on already-spawned processes.
func (s *Scheduler) SetOutput(w io.Writer) {
	s.output = w
}

// bindGlobals installs the scheduler operations exposed to script code
// (spec.md §6) as bare globals on proc's VM, each closed over proc
// itself. Because a Process owns exactly one VM for its whole lifetime,
// closing over proc at creation time is equivalent to (and simpler than)
// threading worker-local "current pid" state through every call — only
// that VM ever evaluates these closures.
func (s *Scheduler) bindGlobals(proc *Process) {
	g := proc.VM

	g.DefineGlobal("self", &types.NativeFn{Name: "self", Arity: 0, Fn: func(_ any, _ []types.Value) (types.Value, error) {
		return types.NewNumber(float64(proc.PID)), nil
	}})

	g.DefineGlobal("spawn", &types.NativeFn{Name: "spawn", Arity: -1, Fn: func(_ any, args []types.Value) (types.Value, error) {
		if len(args) == 0 {
			return nil, types.NewRuntimeError(types.ErrArity, 0, "spawn requires a callable argument")
		}
		pid, err := s.Spawn(args[0], args[1:])
		if err != nil {
			return nil, err
		}
		return types.NewNumber(float64(pid)), nil
	}})

	g.DefineGlobal("send", &types.NativeFn{Name: "send", Arity: 2, Fn: func(_ any, args []types.Value) (types.Value, error) {
		if len(args) < 2 {
			return nil, types.NewRuntimeError(types.ErrArity, 0, "send requires (pid, value)")
		}
		pid, ok := args[0].(types.Number)
		if !ok {
			return nil, types.NewRuntimeError(types.ErrType, 0, "send: pid must be a number")
		}
		if c, ok := args[1].(*types.Closure); ok && c.CapturesMutableState() {
			return nil, types.NewRuntimeError(types.ErrSendNotAllowed, 0, "send: closure captures mutable state")
		}
		ok2 := s.Send(int64(pid), proc.PID, types.DeepCopyValue(args[1]))
		return types.Bool(ok2), nil
	}})

	g.DefineGlobal("receive", &types.NativeFn{Name: "receive", Arity: -1, Fn: func(_ any, args []types.Value) (types.Value, error) {
		timeoutMs := int64(-1)
		if len(args) > 0 {
			if n, ok := args[0].(types.Number); ok {
				timeoutMs = int64(n)
			}
		}
		return receiveStep(proc, timeoutMs)
	}})

	g.DefineGlobal("is_alive", &types.NativeFn{Name: "is_alive", Arity: 1, Fn: func(_ any, args []types.Value) (types.Value, error) {
		if len(args) < 1 {
			return nil, types.NewRuntimeError(types.ErrArity, 0, "is_alive requires a pid")
		}
		pid, ok := args[0].(types.Number)
		if !ok {
			return nil, types.NewRuntimeError(types.ErrType, 0, "is_alive: pid must be a number")
		}
		return types.Bool(s.IsAlive(int64(pid))), nil
	}})

	g.DefineGlobal("kill", &types.NativeFn{Name: "kill", Arity: 1, Fn: func(_ any, args []types.Value) (types.Value, error) {
		if len(args) < 1 {
			return nil, types.NewRuntimeError(types.ErrArity, 0, "kill requires a pid")
		}
		pid, ok := args[0].(types.Number)
		if !ok {
			return nil, types.NewRuntimeError(types.ErrType, 0, "kill: pid must be a number")
		}
		return types.Bool(s.Kill(int64(pid))), nil
	}})

	g.DefineGlobal("process_count", &types.NativeFn{Name: "process_count", Arity: 0, Fn: func(_ any, _ []types.Value) (types.Value, error) {
		return types.NewNumber(float64(s.ProcessCount())), nil
	}})

	g.DefineGlobal("sleep", &types.NativeFn{Name: "sleep", Arity: 1, Fn: func(_ any, args []types.Value) (types.Value, error) {
		ms := float64(0)
		if len(args) > 0 {
			if n, ok := args[0].(types.Number); ok {
				ms = float64(n)
			}
		}
		return sleepStep(proc, ms)
	}})
}

// receiveStep implements receive's suspend-and-retry protocol. On a
// process's first pass through a given receive call it records a
// deadline (if any) on proc; subsequent retries (driven by the scheduler
// resuming a WAITING process) re-check the mailbox and the deadline
// without resetting it, matching the single BlockSignal-per-call
// contract vm.Step relies on.
func receiveStep(proc *Process, timeoutMs int64) (types.Value, error) {
	if msg, ok := proc.Mailbox.TryDequeue(); ok {
		proc.hasDeadline = false
		proc.receiveDeadline = time.Time{}
		return msg.Data, nil
	}
	if !proc.hasDeadline && timeoutMs >= 0 {
		proc.receiveDeadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}
	if timeoutMs >= 0 {
		proc.hasDeadline = true
		if time.Now().After(proc.receiveDeadline) || time.Now().Equal(proc.receiveDeadline) {
			proc.hasDeadline = false
			proc.receiveDeadline = time.Time{}
			return types.NilValue, nil
		}
	}
	return nil, &types.BlockSignal{Status: types.StatusWaitingReceive, ReceiveTimeoutMs: timeoutMs}
}

func sleepStep(proc *Process, ms float64) (types.Value, error) {
	if proc.WakeAt.IsZero() {
		proc.WakeAt = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}
	if !time.Now().Before(proc.WakeAt) {
		proc.WakeAt = time.Time{}
		return types.NilValue, nil
	}
	return nil, &types.BlockSignal{Status: types.StatusSleeping, WakeAt: proc.WakeAt}
}

// Spawn allocates a PID, builds a fresh VM primed with callee(args...),
// and enqueues it READY (spec.md §5's spawn semantics).
func (s *Scheduler) Spawn(callee types.Value, args []types.Value) (int64, error) {
	switch callee.(type) {
	case *types.Closure, *types.NativeFn, *types.BoundMethod, *types.Class:
	default:
		return 0, types.NewRuntimeError(types.ErrType, 0, "spawn: %s is not callable", callee.Type())
	}

	s.mu.Lock()
	pid := s.nextPID
	s.nextPID++
	machine := s.newVM()
	proc := newProcess(pid, machine)
	s.bindGlobals(proc)
	s.processes[pid] = proc
	s.mu.Unlock()

	argsCopy := make([]types.Value, len(args))
	copy(argsCopy, args)

	done, result, err := machine.Prime(callee, argsCopy)
	trace.ProcessEvent("spawn", pid, proc.DebugID.String())
	if done {
		s.mu.Lock()
		if err != nil {
			proc.state = StateDead
			proc.Err = err
		} else {
			proc.state = StateFinished
			proc.Result = result
		}
		s.mu.Unlock()
		return pid, nil
	}

	s.mu.Lock()
	proc.state = StateReady
	s.mu.Unlock()
	s.enqueueReady(pid)
	return pid, nil
}

// Send deep-copies and enqueues data onto pid's mailbox, waking it if it
// was parked in a receive. Returns false if pid is unknown or dead.
func (s *Scheduler) Send(pid, fromPID int64, data types.Value) bool {
	s.mu.Lock()
	proc, ok := s.processes[pid]
	s.mu.Unlock()
	if !ok || proc.state == StateDead {
		return false
	}
	proc.Mailbox.Enqueue(Message{SenderPID: fromPID, Data: data, SentAt: time.Now()})
	trace.ProcessEvent("send", pid, proc.DebugID.String())
	s.wake(pid)
	return true
}

// wake moves a WAITING or SLEEPING process back to READY. It is a no-op
// if the process has already been woken by a racing timer/send, which
// keeps a process from being enqueued twice.
func (s *Scheduler) wake(pid int64) {
	s.mu.Lock()
	proc, ok := s.processes[pid]
	if !ok || (proc.state != StateWaiting && proc.state != StateSleeping) {
		s.mu.Unlock()
		return
	}
	proc.state = StateReady
	s.mu.Unlock()
	s.enqueueReady(pid)
}

// IsAlive reports whether pid names a process that has not finished,
// errored, or been killed.
func (s *Scheduler) IsAlive(pid int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	proc, ok := s.processes[pid]
	if !ok {
		return false
	}
	return proc.state != StateFinished && proc.state != StateDead
}

// Kill marks pid DEAD. A killed process's worker notices on its next
// Step call and retires it; Kill itself never touches the process's VM
// state directly, since only the worker currently running it may do
// that (spec.md §5's "Shared resources" ownership rule).
func (s *Scheduler) Kill(pid int64) bool {
	s.mu.Lock()
	proc, ok := s.processes[pid]
	if !ok || proc.state == StateDead || proc.state == StateFinished {
		s.mu.Unlock()
		return false
	}
	wasParked := proc.state == StateWaiting || proc.state == StateSleeping
	proc.state = StateDead
	s.mu.Unlock()
	trace.ProcessEvent("kill", pid, proc.DebugID.String())
	if wasParked {
		// A parked process has no pending ready-queue entry; step it once
		// more so the worker pool notices the DEAD state and retires it.
		s.enqueueReady(pid)
	}
	return true
}

// ProcessCount returns the number of non-terminal (not FINISHED/DEAD)
// processes.
func (s *Scheduler) ProcessCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.processes {
		if p.state != StateFinished && p.state != StateDead {
			n++
		}
	}
	return n
}

// Get returns the process table entry for pid, for checkpoint/inspection
// callers outside the scheduler's own worker loop.
func (s *Scheduler) Get(pid int64) (*Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[pid]
	return p, ok
}

func (s *Scheduler) runOnce(pid int64) {
	s.mu.Lock()
	proc, ok := s.processes[pid]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	if proc.state == StateDead {
		s.mu.Unlock()
		return
	}
	proc.state = StateRunning
	s.mu.Unlock()

	result := proc.VM.Step(s.budget)

	s.mu.Lock()
	killed := proc.state == StateDead
	s.mu.Unlock()
	if killed {
		// kill() landed while this slice ran: retire the process instead
		// of letting the slice's outcome overwrite its DEAD state.
		return
	}

	switch result.Status {
	case types.StatusRunning:
		s.mu.Lock()
		proc.state = StateReady
		s.mu.Unlock()
		s.enqueueReady(pid)
	case types.StatusDone:
		s.mu.Lock()
		proc.state = StateFinished
		proc.Result = result.ReturnValue
		s.mu.Unlock()
		trace.ProcessEvent("finish", pid, proc.DebugID.String())
	case types.StatusKilled:
		s.mu.Lock()
		proc.state = StateDead
		proc.Err = result.Err
		s.mu.Unlock()
		trace.ProcessEvent("killed", pid, proc.DebugID.String())
	case types.StatusWaitingReceive:
		s.mu.Lock()
		proc.state = StateWaiting
		s.mu.Unlock()
		if proc.Mailbox.Len() > 0 {
			// A send raced in between the empty mailbox check and parking;
			// its wake() saw state RUNNING and was a no-op, so wake again.
			s.wake(pid)
			return
		}
		if result.ReceiveTimeoutMs >= 0 {
			d := time.Duration(result.ReceiveTimeoutMs) * time.Millisecond
			time.AfterFunc(d, func() { s.wake(pid) })
		}
	case types.StatusSleeping:
		s.mu.Lock()
		proc.state = StateSleeping
		s.mu.Unlock()
		d := time.Until(proc.WakeAt)
		if d < 0 {
			d = 0
		}
		time.AfterFunc(d, func() { s.wake(pid) })
	}
}

// Run spawns fn as a new process, runs the worker pool until that
// process finishes (or errors), and stops the pool. Any other processes
// that fn spawned and which are still live are killed as part of
// shutdown — this scheduler is a script runner's engine, not a
// long-lived node, so it does not keep running once its entry process is
// done.
func (s *Scheduler) Run(fn *types.Function) (types.Value, error) {
	s.Start()
	closure := types.NewClosure(fn)
	pid, err := s.Spawn(closure, nil)
	if err != nil {
		s.Stop()
		return nil, err
	}

	for {
		s.mu.Lock()
		proc := s.processes[pid]
		state := proc.state
		s.mu.Unlock()
		if state == StateFinished || state == StateDead {
			result, rerr := proc.Result, proc.Err
			s.shutdown()
			return result, rerr
		}
		time.Sleep(time.Millisecond)
	}
}

// shutdown kills every remaining live process and stops the pool.
func (s *Scheduler) shutdown() {
	s.mu.Lock()
	for _, p := range s.processes {
		if p.state != StateFinished && p.state != StateDead {
			p.state = StateDead
		}
	}
	s.mu.Unlock()
	s.Stop()
}
