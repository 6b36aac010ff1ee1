// Package sched drives a traffic-class tree (package tc) to completion:
// one goroutine, one tree, one iteration at a time, with no locking on the
// hot path. Structural changes to the tree must be made between calls to
// Run/Step, never concurrently with them.
package sched

import (
	"container/heap"
	"context"

	"github.com/pjferrell/bess/core/logging"
	"github.com/pjferrell/bess/sched/tc"
)

var logger = logging.New("sched")

// Clock returns the current tsc-like monotonic cycle count the scheduler
// should use for this iteration. Tests supply a fake; production code
// wires in a real cycle counter.
type Clock func() uint64

// throttled is the tc.RateLimit-shaped subset the scheduler needs to
// reclaim a throttled node without importing a concrete type cycle.
type throttled interface {
	tc.Node
	ThrottleExpiration() uint64
	Reclaim(tsc uint64)
}

type throttledEntry struct {
	node  throttled
	index int
}

// throttledHeap is a min-heap over ThrottleExpiration: the node due to
// unthrottle soonest is reclaimed first.
type throttledHeap []*throttledEntry

func (h throttledHeap) Len() int { return len(h) }
func (h throttledHeap) Less(i, j int) bool {
	return h[i].node.ThrottleExpiration() < h[j].node.ThrottleExpiration()
}
func (h throttledHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *throttledHeap) Push(x any) {
	e := x.(*throttledEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *throttledHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler runs one traffic-class tree to completion, one task dispatch
// per iteration. It owns the throttled set: a min-heap of RateLimit nodes
// keyed by throttle expiration, with membership tracked so AddThrottled is
// idempotent per node.
type Scheduler struct {
	root  tc.Node
	clock Clock

	throttledSet   throttledHeap
	throttledIndex map[tc.Node]*throttledEntry

	dispatches uint64
}

// New creates a Scheduler rooted at root, using clock to timestamp
// iterations.
func New(root tc.Node, clock Clock) *Scheduler {
	return &Scheduler{
		root:           root,
		clock:          clock,
		throttledIndex: make(map[tc.Node]*throttledEntry),
	}
}

// AddThrottled registers n in the throttled set if it is not already
// present. Called by tc.RateLimit nodes when a dispatch drives their token
// bucket negative.
func (s *Scheduler) AddThrottled(n tc.Node) {
	if _, ok := s.throttledIndex[n]; ok {
		return
	}
	rl, ok := n.(throttled)
	if !ok {
		return
	}
	e := &throttledEntry{node: rl}
	heap.Push(&s.throttledSet, e)
	s.throttledIndex[n] = e
}

// RemoveThrottled de-registers n from the throttled set, if present. Called
// by tc.RateLimit.OnDestroy before the node tears itself down, so a later
// reclaimThrottled pass never dereferences a destroyed node.
func (s *Scheduler) RemoveThrottled(n tc.Node) {
	e, ok := s.throttledIndex[n]
	if !ok {
		return
	}
	heap.Remove(&s.throttledSet, e.index)
	delete(s.throttledIndex, n)
}

// ThrottledCount returns the number of nodes currently registered in the
// throttled set. Exposed for tests.
func (s *Scheduler) ThrottledCount() int {
	return len(s.throttledIndex)
}

// Dispatches returns the number of task dispatches performed so far.
func (s *Scheduler) Dispatches() uint64 {
	return s.dispatches
}

// reclaimThrottled pops every node whose throttle expiration has passed
// and unblocks it towards the root.
func (s *Scheduler) reclaimThrottled(now uint64) {
	for len(s.throttledSet) > 0 && s.throttledSet[0].node.ThrottleExpiration() <= now {
		e := heap.Pop(&s.throttledSet).(*throttledEntry)
		delete(s.throttledIndex, e.node)
		e.node.Reclaim(now)
	}
}

// Step runs exactly one scheduler iteration: reclaim throttled nodes,
// descend to a runnable leaf, dispatch one task, and account the result
// towards the root. It returns false without dispatching if the tree has
// no runnable work at this instant (the caller should spin or back off).
func (s *Scheduler) Step(ctx context.Context) bool {
	now := s.clock()
	s.reclaimThrottled(now)

	if s.root.Blocked() {
		return false
	}

	node := s.root
	for {
		next := node.PickNextChild()
		if next == nil {
			break
		}
		node = next
	}

	leaf, ok := node.(*tc.Leaf)
	if !ok {
		logger.Panic("descended to a non-leaf with no children")
		return false
	}

	task := leaf.NextTask()
	usage := task.Run(ctx)
	s.dispatches++

	leaf.FinishAndAccountTowardsRoot(s, leaf, usage, now)
	return true
}

// Run calls Step in a loop until ctx is done, spin-waiting (via an
// immediate re-check of the clock) whenever the tree has no runnable
// leaf. There is no blocking syscall on this path, matching a worker
// thread that owns its tree exclusively.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.Step(ctx)
	}
}
