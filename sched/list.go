package sched

// compareFn orders two threads; negative means x runs before y. Equal
// keys keep insertion order: Insert places a new thread after every
// element it does not strictly precede.
type compareFn func(x, y *Thread) int

func compareSJF(x, y *Thread) int {
	return x.burst - y.burst
}

func comparePriority(x, y *Thread) int {
	return y.priority - x.priority
}

// compareRR appends unconditionally, making the queue FIFO.
func compareRR(x, y *Thread) int {
	return 1
}

type sortedList struct {
	cmp   compareFn
	items []*Thread
}

func mkSortedList(cmp compareFn) *sortedList {
	return &sortedList{cmp: cmp}
}

func (l *sortedList) Empty() bool {
	return len(l.items) == 0
}

func (l *sortedList) Len() int {
	return len(l.items)
}

func (l *sortedList) Insert(t *Thread) {
	at := len(l.items)
	for i, item := range l.items {
		if l.cmp(t, item) < 0 {
			at = i
			break
		}
	}
	l.items = append(l.items, nil)
	copy(l.items[at+1:], l.items[at:])
	l.items[at] = t
}

func (l *sortedList) Front() *Thread {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

func (l *sortedList) RemoveFront() *Thread {
	t := l.items[0]
	l.items = l.items[1:]
	return t
}

func (l *sortedList) Remove(t *Thread) bool {
	for i, item := range l.items {
		if item == t {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the current contents in queue order; safe to iterate
// while mutating the list.
func (l *sortedList) Snapshot() []*Thread {
	out := make([]*Thread, len(l.items))
	copy(out, l.items)
	return out
}
