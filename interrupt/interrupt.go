// Package interrupt models the single-CPU interrupt flag. Scheduler
// and free-map critical sections run with interrupts off; entry points
// assert the discipline instead of taking locks.
package interrupt

// Level is the hardware interrupt state.
type Level int

const (
	IntOff Level = iota
	IntOn
)

// Controller is the one-level interrupt enable flag.
type Controller struct {
	level Level
}

func MkController() *Controller {
	return &Controller{level: IntOn}
}

// SetLevel changes the interrupt state and returns the previous level,
// so critical sections can restore it on exit.
func (c *Controller) SetLevel(level Level) Level {
	old := c.level
	c.level = level
	return old
}

func (c *Controller) GetLevel() Level {
	return c.level
}

// Disabled reports whether interrupts are off.
func (c *Controller) Disabled() bool {
	return c.level == IntOff
}
