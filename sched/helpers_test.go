package sched_test

import (
	"context"

	"github.com/pjferrell/bess/core/resource"
	"github.com/pjferrell/bess/sched/tc"
)

// countdownTask runs to completion n times, reporting usage each time, then
// removes itself from leaf so the leaf (and, transitively, its ancestors)
// becomes blocked. A zero n never exhausts.
type countdownTask struct {
	leaf      *tc.Leaf
	remaining int
	usage     resource.Usage
	log       *[]string
	name      string
}

func (c *countdownTask) Run(ctx context.Context) resource.Usage {
	if c.log != nil {
		*c.log = append(*c.log, c.name)
	}
	if c.remaining > 0 {
		c.remaining--
		if c.remaining == 0 {
			c.leaf.RemoveTask(c)
		}
	}
	return c.usage
}

// fakeClock is a monotonically increasing tsc that advances by step on
// every read, simulating a free-running cycle counter independent of
// whether the prior Step dispatched anything.
type fakeClock struct {
	now  uint64
	step uint64
}

func (c *fakeClock) Next() uint64 {
	c.now += c.step
	return c.now
}
