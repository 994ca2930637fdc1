// Package stats tracks simulated machine time. The timer advances
// TotalTicks; the scheduler reads it for traces and quantum accounting.
package stats

type Stats struct {
	TotalTicks  uint64
	IdleTicks   uint64
	SystemTicks uint64
	UserTicks   uint64
}

func MkStats() *Stats {
	return &Stats{}
}

// Advance moves simulated time forward by n ticks.
func (st *Stats) Advance(n uint64) {
	st.TotalTicks += n
}
