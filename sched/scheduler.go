// Package sched implements the three-level feedback scheduler.
//
// READY threads live in exactly one of three queues picked by
// priority: L1 (priority >= 100, shortest-job-first by burst estimate),
// L2 (50..99, highest priority first), L3 (<= 49, round-robin). Ties
// keep insertion order. L1 strictly dominates L2, L2 dominates L3.
// Aging boosts long-waiting threads so L3 cannot starve.
//
// All operations assume interrupts are already disabled: on a
// uniprocessor that gives mutual exclusion, and the scheduler cannot
// take locks anyway, since waiting for one would recurse into
// FindNextToRun.
package sched

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/tinyos-edu/tinyos/interrupt"
	"github.com/tinyos-edu/tinyos/stats"
)

// level identifies which ready queue holds or produced a thread.
type level int

const (
	levelNone level = 0
	levelL1   level = 1
	levelL2   level = 2
	levelL3   level = 3
)

func levelFor(priority int) level {
	if priority >= 100 {
		return levelL1
	}
	if priority >= 50 {
		return levelL2
	}
	return levelL3
}

// Switcher is the machine-dependent context switch primitive. Switch
// suspends old and resumes next; it returns when old is scheduled
// again.
type Switcher interface {
	Switch(old, next *Thread)
}

// SwitchFunc adapts a function to the Switcher interface.
type SwitchFunc func(old, next *Thread)

func (f SwitchFunc) Switch(old, next *Thread) { f(old, next) }

// Scheduler picks the next thread to run. Shared state (the queues,
// current, toBeDestroyed) is only touched with interrupts off.
type Scheduler struct {
	irq   *interrupt.Controller
	st    *stats.Stats
	trace io.Writer
	sw    Switcher

	l1 *sortedList
	l2 *sortedList
	l3 *sortedList

	current       *Thread
	lastLevel     level // queue that produced current
	toBeDestroyed *Thread
	seq           uint64
}

func MkScheduler(irq *interrupt.Controller, st *stats.Stats, trace io.Writer, sw Switcher) *Scheduler {
	if trace == nil {
		trace = ioutil.Discard
	}
	return &Scheduler{
		irq:   irq,
		st:    st,
		trace: trace,
		sw:    sw,
		l1:    mkSortedList(compareSJF),
		l2:    mkSortedList(comparePriority),
		l3:    mkSortedList(compareRR),
	}
}

func (s *Scheduler) assertIntOff() {
	if !s.irq.Disabled() {
		panic("sched: called with interrupts enabled")
	}
}

// CurrentThread returns the running thread, nil before Start.
func (s *Scheduler) CurrentThread() *Thread {
	return s.current
}

// Start installs the bootstrap thread as the running thread without a
// context switch.
func (s *Scheduler) Start(t *Thread) {
	s.assertIntOff()
	if s.current != nil {
		panic("sched: Start with a thread already running")
	}
	t.status = Running
	t.startTick = s.st.TotalTicks
	s.current = t
	s.lastLevel = levelFor(t.priority)
}

func (s *Scheduler) queue(lvl level) *sortedList {
	switch lvl {
	case levelL1:
		return s.l1
	case levelL2:
		return s.l2
	case levelL3:
		return s.l3
	}
	panic(fmt.Errorf("sched: no queue for level %d", lvl))
}

// ReadyToRun marks t runnable and enqueues it by priority. Enqueueing a
// thread that is already queued or has finished is a kernel bug.
func (s *Scheduler) ReadyToRun(t *Thread) {
	s.assertIntOff()
	if t.queueLevel != levelNone {
		panic(fmt.Errorf("sched: %v is already on a ready queue", t))
	}
	if t.status == Finished {
		panic(fmt.Errorf("sched: %v is finished", t))
	}
	t.status = Ready
	t.waiting = 0
	t.seq = s.seq
	s.seq++
	lvl := levelFor(t.priority)
	s.queue(lvl).Insert(t)
	t.queueLevel = lvl
	fmt.Fprintf(s.trace, "Tick [%d]: Thread [%d] is inserted into queue L[%d]\n",
		s.st.TotalTicks, t.ID, int(lvl))
}

// FindNextToRun dequeues the head of the first non-empty queue, L1
// first, and returns nil if all are empty. It records which queue
// produced the thread; IsPreemptive consults that.
func (s *Scheduler) FindNextToRun() *Thread {
	s.assertIntOff()
	for _, lvl := range []level{levelL1, levelL2, levelL3} {
		q := s.queue(lvl)
		if !q.Empty() {
			t := q.RemoveFront()
			t.queueLevel = levelNone
			s.lastLevel = lvl
			return t
		}
	}
	return nil
}

// Run dispatches next. If finishing, the outgoing thread is staged in
// toBeDestroyed and torn down once we are no longer on its stack. The
// switch itself is the injected machine primitive; on return the
// outgoing thread is running again.
func (s *Scheduler) Run(next *Thread, finishing bool) {
	s.assertIntOff()
	old := s.current
	if old == nil {
		panic("sched: Run before Start")
	}

	if finishing {
		if s.toBeDestroyed != nil {
			panic("sched: a finished thread is already pending teardown")
		}
		old.status = Finished
		s.toBeDestroyed = old
	}

	old.executed += s.st.TotalTicks - old.startTick
	s.current = next
	next.status = Running
	next.startTick = s.st.TotalTicks
	fmt.Fprintf(s.trace, "Tick [%d]: Thread [%d] is now selected for execution, thread [%d] is replaced, and it has executed [%d] ticks\n",
		s.st.TotalTicks, next.ID, old.ID, old.executed)

	if s.sw != nil {
		s.sw.Switch(old, next)
	}

	// we are back on old's stack; tear down whatever finished before us
	s.CheckToBeDestroyed()
}

// CheckToBeDestroyed releases the carcass of a finished thread. The
// thread could not be torn down in Run, since we were still running on
// its stack.
func (s *Scheduler) CheckToBeDestroyed() {
	if s.toBeDestroyed != nil {
		s.toBeDestroyed = nil
	}
}

// IsPreemptive reports whether the running thread could be displaced by
// the current ready-queue contents: an L3 thread yields to any L1 or L2
// arrival, an L2 thread only to L1, and an L1 thread only to an L1
// arrival with a strictly smaller burst estimate.
func (s *Scheduler) IsPreemptive() bool {
	s.assertIntOff()
	switch s.lastLevel {
	case levelL1:
		head := s.l1.Front()
		return head != nil && s.current != nil && head.burst < s.current.burst
	case levelL2:
		return !s.l1.Empty()
	case levelL3:
		return !s.l1.Empty() || !s.l2.Empty()
	}
	return false
}

// QuantumExpired reports whether the running thread came from L3 and
// has used up its round-robin slice; the timer handler re-queues it at
// the L3 tail.
func (s *Scheduler) QuantumExpired() bool {
	return s.lastLevel == levelL3 && s.current != nil &&
		s.st.TotalTicks-s.current.startTick >= RRQuantum
}

// AgeUpdate advances every READY thread's waiting time by one tick and
// boosts those that crossed the aging threshold, re-homing them into
// the queue that matches the new priority. Threads that move obey the
// destination queue's ordering, not their old position.
func (s *Scheduler) AgeUpdate() {
	s.assertIntOff()
	var moved []*Thread
	for _, lvl := range []level{levelL1, levelL2, levelL3} {
		q := s.queue(lvl)
		for _, t := range q.Snapshot() {
			t.waiting++
			if t.waiting < AgingThreshold {
				continue
			}
			old := t.priority
			t.SetPriority(old + PriorityBoost)
			t.waiting = 0
			if t.priority != old {
				fmt.Fprintf(s.trace, "Tick [%d]: Thread [%d] changes its priority from [%d] to [%d]\n",
					s.st.TotalTicks, t.ID, old, t.priority)
				// re-insert even when the band is unchanged, so the
				// queue's comparator sees the new priority
				q.Remove(t)
				t.queueLevel = levelNone
				moved = append(moved, t)
			}
		}
	}
	for _, t := range moved {
		lvl := levelFor(t.priority)
		s.queue(lvl).Insert(t)
		t.queueLevel = lvl
	}
}

// Print dumps the ready queues for debugging.
func (s *Scheduler) Print(w io.Writer) {
	fmt.Fprintf(w, "Ready list contents:\n")
	for _, lvl := range []level{levelL1, levelL2, levelL3} {
		fmt.Fprintf(w, "L%d:", int(lvl))
		for _, t := range s.queue(lvl).Snapshot() {
			fmt.Fprintf(w, " %v;", t)
		}
		fmt.Fprintf(w, "\n")
	}
}
