// Package scheduler implements the M:N cooperative runtime described in
// spec.md §5: a process table of lightweight processes, each owning its
// own vm.VM, multiplexed over a fixed worker pool via reduction-budget
// preemption. The worker pool is built on golang.org/x/sync's errgroup
// and semaphore for bounded concurrent work and graceful shutdown.
package scheduler

import (
	"time"

	"github.com/google/uuid"

	"neutron/types"
	"neutron/vm"
)

// State is a Process's scheduling state (spec.md §5's "Process" type).
type State int

const (
	StateReady State = iota
	StateRunning
	StateWaiting
	StateSleeping
	StateFinished
	StateDead
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateSleeping:
		return "sleeping"
	case StateFinished:
		return "finished"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Process is one lightweight process: a PID, its own VM, a mailbox, and
// the bookkeeping the scheduler needs to park and resume it. DebugID is a
// uuid attached to every trace.ProcessEvent for this process, a
// correlation id independent of the PID counter.
type Process struct {
	PID     int64
	DebugID uuid.UUID

	VM      *vm.VM
	Mailbox *Mailbox

	state State

	// WakeAt is the earliest time a sleeping or receive-timed-out process
	// may run again.
	WakeAt time.Time

	// receiveDeadline is set while a process is parked in a timed
	// receive; the scheduler uses it to decide when a receive should give
	// up and hand the waiting native function a timeout instead of a
	// message.
	receiveDeadline time.Time
	hasDeadline     bool

	Result types.Value
	Err    error
}

func newProcess(pid int64, machine *vm.VM) *Process {
	return &Process{
		PID:     pid,
		DebugID: uuid.New(),
		VM:      machine,
		Mailbox: NewMailbox(),
		state:   StateReady,
	}
}

func (p *Process) State() State { return p.state }

// DeadlineExpired reports whether a timed receive's deadline has passed.
func (p *Process) DeadlineExpired(now time.Time) bool {
	return p.hasDeadline && !p.receiveDeadline.IsZero() && now.After(p.receiveDeadline)
}
