package sched

import "fmt"

// Status is a thread's scheduling state.
type Status int

const (
	New Status = iota
	Ready
	Running
	Blocked
	Finished
)

func (s Status) String() string {
	switch s {
	case New:
		return "NEW"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Finished:
		return "FINISHED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

const (
	// MaxPriority caps a thread's priority; aging saturates here.
	MaxPriority = 149

	// AgingThreshold is how many ticks a READY thread waits before its
	// priority is boosted.
	AgingThreshold = 1500

	// PriorityBoost is the aging increment.
	PriorityBoost = 10

	// RRQuantum is the round-robin time slice for L3 threads, in ticks.
	RRQuantum = 100
)

// Thread is the handle the scheduler dispatches. The stack, address
// space, and context-switch machinery live outside the scheduler; the
// handle carries only what queueing decisions need.
type Thread struct {
	ID   int
	Name string

	priority   int
	burst      int    // predicted next CPU burst, in ticks
	waiting    uint64 // ticks spent READY since last boost
	executed   uint64 // accumulated CPU ticks
	startTick  uint64 // tick of last dispatch
	status     Status
	seq        uint64 // insertion order, for tie-breaks
	queueLevel level  // queue currently holding the thread, or levelNone
}

func MkThread(id int, name string, priority int, burst int) *Thread {
	if priority < 0 || priority > MaxPriority {
		panic(fmt.Errorf("sched: priority %d out of range", priority))
	}
	return &Thread{ID: id, Name: name, priority: priority, burst: burst, status: New}
}

func (t *Thread) Priority() int { return t.priority }

func (t *Thread) SetPriority(p int) {
	if p < 0 {
		p = 0
	}
	if p > MaxPriority {
		p = MaxPriority
	}
	t.priority = p
}

func (t *Thread) Burst() int { return t.burst }

func (t *Thread) SetBurst(b int) { t.burst = b }

func (t *Thread) Status() Status { return t.status }

func (t *Thread) SetStatus(s Status) { t.status = s }

func (t *Thread) WaitingTicks() uint64 { return t.waiting }

// ExecutedTicks returns the CPU time the thread has accumulated.
func (t *Thread) ExecutedTicks() uint64 { return t.executed }

func (t *Thread) String() string {
	return fmt.Sprintf("thread %d (%s) pri %d burst %d %v", t.ID, t.Name, t.priority, t.burst, t.status)
}
