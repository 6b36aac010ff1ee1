// Package tc implements the traffic-class tree: a tree of scheduling nodes
// whose interior nodes choose among children by one of four policies
// (strict priority, weighted-fair/stride, round-robin, rate-limit) and
// whose leaves hold runnable tasks.
//
// The tree is never accessed concurrently: one worker thread owns one
// tree, with no locks on the hot path. Structural mutation (AddChild,
// Destroy) must be serialized against PickNextChild/FinishAndAccountTowardsRoot
// by the caller, typically by performing it between scheduler iterations.
package tc

import (
	"errors"
	"fmt"

	"github.com/pjferrell/bess/core/logging"
	"github.com/pjferrell/bess/core/resource"
)

var logger = logging.New("sched/tc")

var (
	// ErrAlreadyAttached is returned by AddChild when the child already has
	// a parent.
	ErrAlreadyAttached = errors.New("tc: child already attached")
	// ErrDuplicatePriority is returned by Priority.AddChild when another
	// child already holds the given priority.
	ErrDuplicatePriority = errors.New("tc: duplicate priority")
	// ErrSlotOccupied is returned by RateLimit.AddChild when it already has
	// a child.
	ErrSlotOccupied = errors.New("tc: slot already occupied")
	// ErrDuplicateName is returned by the Registry when a name is reused.
	ErrDuplicateName = errors.New("tc: duplicate name")
)

// Node is the shared capability interface every traffic-class variant
// implements. Dispatch is by ordinary interface method call rather than a
// tagged-union match, which keeps each policy's state colocated with its
// behavior and keeps the tree made of concrete, independently testable
// types (Priority, WeightedFair, RoundRobin, RateLimit, Leaf).
type Node interface {
	// Name returns the node's registered name, unique within its Registry.
	Name() string
	// Parent returns the parent, or nil for the root.
	Parent() Node
	setParent(Node)
	// Blocked reports whether the node can currently yield a runnable leaf.
	Blocked() bool
	// Stats returns the node's cumulative usage.
	Stats() resource.Usage

	// PickNextChild returns the child to descend into next, or nil for a
	// Leaf.
	PickNextChild() Node
	// FinishAndAccountTowardsRoot accumulates usage into this node and its
	// ancestors, updating policy-specific runnable/blocked state, after
	// child finished one dispatch at tsc cycles.
	FinishAndAccountTowardsRoot(sched Throttler, child Node, usage resource.Usage, tsc uint64)
	// UnblockTowardsRoot recomputes this node's blocked state (a descendant
	// just became runnable) and propagates the recomputation upward.
	UnblockTowardsRoot(tsc uint64)
	// Traverse depth-first visits this node and its descendants.
	Traverse(fn func(Node))
	// Destroy recursively destroys children then removes this node from
	// the registry.
	Destroy()
}

// Throttler is the subset of Scheduler that RateLimit nodes need: a place
// to register themselves while throttled, and to de-register before being
// destroyed so a later reclaim pass never touches a torn-down node.
type Throttler interface {
	AddThrottled(n Node)
	RemoveThrottled(n Node)
}

// base holds the state and behavior common to every node variant.
type base struct {
	name     string
	parent   Node
	blocked  bool
	stats    resource.Usage
	registry *Registry
}

func (b *base) Name() string          { return b.name }
func (b *base) Parent() Node          { return b.parent }
func (b *base) setParent(p Node)      { b.parent = p }
func (b *base) Blocked() bool         { return b.blocked }
func (b *base) Stats() resource.Usage { return b.stats }

// unblockTowardsRootSetBlocked sets self's blocked flag and, if it changed
// or regardless, forwards the recomputation to the parent. Mirrors the
// original TrafficClass::UnblockTowardsRootSetBlocked helper: every variant
// calls this once it has recomputed its own predicate.
func unblockTowardsRootSetBlocked(self Node, b *base, tsc uint64, blocked bool) {
	b.blocked = blocked
	if b.parent != nil {
		b.parent.UnblockTowardsRoot(tsc)
	}
}

func finishTowardsParent(b *base, sched Throttler, self Node, usage resource.Usage, tsc uint64) {
	if b.parent == nil {
		return
	}
	b.parent.FinishAndAccountTowardsRoot(sched, self, usage, tsc)
}

func attachCheck(child Node) error {
	if child.Parent() != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, child.Name())
	}
	return nil
}

// validateShare panics on a non-positive share; stride scheduling divides
// by it, and a builder-time bug here is not a runtime-recoverable error.
func validateShare(share int64) {
	if share <= 0 {
		panic(fmt.Sprintf("tc: non-positive WeightedFair share %d", share))
	}
}
