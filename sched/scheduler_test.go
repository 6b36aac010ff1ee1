package sched_test

import (
	"context"
	"testing"

	"github.com/pjferrell/bess/core/resource"
	"github.com/pjferrell/bess/core/testenv"
	"github.com/pjferrell/bess/sched"
	"github.com/pjferrell/bess/sched/tc"
)

// TestPriorityScenario reproduces S1: a higher-priority leaf's backlog must
// drain completely before a lower-priority sibling is ever dispatched.
func TestPriorityScenario(t *testing.T) {
	assert, require := testenv.MakeAR(t)

	reg := tc.NewRegistry()
	root, err := tc.NewPriority("root", reg)
	require.NoError(err)

	leafHi, err := tc.NewLeaf("hi", reg)
	require.NoError(err)
	leafLo, err := tc.NewLeaf("lo", reg)
	require.NoError(err)

	var log []string
	leafHi.AddTask(&countdownTask{leaf: leafHi, remaining: 100, usage: resource.Usage{resource.Packets: 1}, log: &log, name: "hi"}, 0)
	leafLo.AddTask(&countdownTask{leaf: leafLo, remaining: 100, usage: resource.Usage{resource.Packets: 1}, log: &log, name: "lo"}, 0)

	require.NoError(root.AddChild(leafHi, 10, 0))
	require.NoError(root.AddChild(leafLo, 1, 0))

	clk := &fakeClock{step: 1}
	s := sched.New(root, clk.Next)

	for i := 0; i < 200 && !root.Blocked(); i++ {
		s.Step(context.Background())
	}

	require.Len(log, 200)
	for i := 0; i < 100; i++ {
		assert.Equal("hi", log[i], "dispatch %d should be the high-priority leaf", i)
	}
	for i := 100; i < 200; i++ {
		assert.Equal("lo", log[i], "dispatch %d should be the low-priority leaf", i)
	}
}

// TestWeightedFairScenario reproduces S2: two leaves with share 3 and 1
// converge to a 3:1 dispatch ratio over a long run.
func TestWeightedFairScenario(t *testing.T) {
	assert, require := testenv.MakeAR(t)

	reg := tc.NewRegistry()
	root, err := tc.NewWeightedFair("root", reg, resource.Packets)
	require.NoError(err)

	leaf3, err := tc.NewLeaf("share3", reg)
	require.NoError(err)
	leaf1, err := tc.NewLeaf("share1", reg)
	require.NoError(err)

	var log []string
	leaf3.AddTask(&countdownTask{leaf: leaf3, usage: resource.Usage{resource.Packets: 1}, log: &log, name: "share3"}, 0)
	leaf1.AddTask(&countdownTask{leaf: leaf1, usage: resource.Usage{resource.Packets: 1}, log: &log, name: "share1"}, 0)

	require.NoError(root.AddChild(leaf3, 3, 0))
	require.NoError(root.AddChild(leaf1, 1, 0))

	clk := &fakeClock{step: 1}
	s := sched.New(root, clk.Next)

	const total = 4000
	for i := 0; i < total; i++ {
		s.Step(context.Background())
	}

	count3, count1 := 0, 0
	for _, name := range log {
		if name == "share3" {
			count3++
		} else {
			count1++
		}
	}

	assert.InDelta(3000, count3, 40)
	assert.InDelta(1000, count1, 40)
}

// TestRoundRobinFairness reproduces property 10: with K runnable leaves and
// unit-cost tasks, within any K consecutive dispatches each leaf is picked
// exactly once.
func TestRoundRobinFairness(t *testing.T) {
	assert, require := testenv.MakeAR(t)

	reg := tc.NewRegistry()
	root, err := tc.NewRoundRobin("root", reg)
	require.NoError(err)

	const k = 5
	var log []string
	leaves := make([]*tc.Leaf, k)
	for i := 0; i < k; i++ {
		name := string(rune('a' + i))
		leaf, err := tc.NewLeaf(name, reg)
		require.NoError(err)
		leaf.AddTask(&countdownTask{leaf: leaf, usage: resource.Usage{resource.Packets: 1}, log: &log, name: name}, 0)
		require.NoError(root.AddChild(leaf, 0))
		leaves[i] = leaf
	}

	clk := &fakeClock{step: 1}
	s := sched.New(root, clk.Next)

	for i := 0; i < k*20; i++ {
		s.Step(context.Background())
	}

	for round := 0; round < 20; round++ {
		window := log[round*k : (round+1)*k]
		seen := make(map[string]bool)
		for _, name := range window {
			seen[name] = true
		}
		assert.Len(seen, k, "round %d should dispatch every leaf exactly once: %v", round, window)
	}
}

// TestRateLimitScenario reproduces property 11: over any window, a
// RateLimit subtree consumes no more than limit*window + maxBurst of its
// billed resource, under a persistently backlogged child.
func TestRateLimitScenario(t *testing.T) {
	assert, require := testenv.MakeAR(t)

	reg := tc.NewRegistry()
	const limitPerCycle = 1
	const maxBurst = 3
	root, err := tc.NewRateLimit("root", reg, resource.Packets, uint64(limitPerCycle)<<32, uint64(maxBurst)<<32)
	require.NoError(err)

	leaf, err := tc.NewLeaf("leaf", reg)
	require.NoError(err)
	leaf.AddTask(&countdownTask{leaf: leaf, usage: resource.Usage{resource.Packets: 1}}, 0)
	require.NoError(root.AddChild(leaf, 0))

	clk := &fakeClock{step: 1}
	s := sched.New(root, clk.Next)

	const window = 1000
	dispatchesBefore := s.Dispatches()
	for i := 0; i < window; i++ {
		s.Step(context.Background())
	}
	dispatched := s.Dispatches() - dispatchesBefore

	assert.LessOrEqual(dispatched, uint64(limitPerCycle*window+maxBurst))
	assert.GreaterOrEqual(dispatched, uint64(window*9/10))
}

// TestRateLimitOnDestroyClearsThrottledSet reproduces the scheduler's
// throttled-set bookkeeping across a destroy: a RateLimit node that is
// currently throttled must be removed from the scheduler's throttled set
// before it tears down, or a later reclaim pass would dereference its
// (now nil) child.
func TestRateLimitOnDestroyClearsThrottledSet(t *testing.T) {
	assert, require := testenv.MakeAR(t)

	reg := tc.NewRegistry()
	root, err := tc.NewRateLimit("root", reg, resource.Packets, 1, 1)
	require.NoError(err)

	leaf, err := tc.NewLeaf("leaf", reg)
	require.NoError(err)
	leaf.AddTask(&countdownTask{leaf: leaf, usage: resource.Usage{resource.Packets: 10}}, 0)
	require.NoError(root.AddChild(leaf, 0))

	clk := &fakeClock{step: 1}
	s := sched.New(root, clk.Next)

	// One dispatch, with a cost far exceeding limit and maxBurst, drives
	// root into the throttled set.
	require.True(s.Step(context.Background()))
	require.Equal(1, s.ThrottledCount())

	root.OnDestroy(s)
	assert.Equal(0, s.ThrottledCount())

	// A subsequent Step must not panic despite root's throttle expiration
	// having been set before the destroy: the entry is gone, so
	// reclaimThrottled never reaches it.
	assert.NotPanics(func() {
		s.Step(context.Background())
	})
}
