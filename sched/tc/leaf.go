package tc

import (
	"context"
	"io"

	"github.com/pjferrell/bess/core/resource"
)

// Task is the scheduler<->module contract: one task invocation runs to
// completion and reports the resources it consumed. There is no
// cooperative suspension inside a call.
type Task interface {
	Run(ctx context.Context) resource.Usage
}

// Leaf holds an ordered list of runnable tasks. It is blocked iff it holds
// no tasks. Task execution order within a leaf is round-robin across
// dispatches.
type Leaf struct {
	base
	tasks  []Task
	cursor int
}

// NewLeaf creates and registers a Leaf.
func NewLeaf(name string, reg *Registry) (*Leaf, error) {
	l := &Leaf{base: base{name: name, blocked: true, registry: reg}}
	if err := reg.register(name, l); err != nil {
		return nil, err
	}
	return l, nil
}

// PickNextChild always returns nil: a Leaf has no TC children.
func (l *Leaf) PickNextChild() Node { return nil }

// AddTask appends t to the leaf's task list and unblocks the path to root
// if the leaf was previously empty.
func (l *Leaf) AddTask(t Task, tsc uint64) {
	l.tasks = append(l.tasks, t)
	l.UnblockTowardsRoot(tsc)
}

// RemoveTask removes t by identity. Returns whether it was present. It
// updates only this leaf's own blocked flag; ancestors are not touched.
// A removal made by a task during its own dispatch reaches the ancestors
// through the FinishAndAccountTowardsRoot call that follows it; after an
// out-of-band removal the caller calls UnblockTowardsRoot(tsc) to
// recompute the ancestors.
func (l *Leaf) RemoveTask(t Task) bool {
	for i, cur := range l.tasks {
		if cur == t {
			l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
			if l.cursor >= len(l.tasks) {
				l.cursor = 0
			}
			l.blocked = len(l.tasks) == 0
			return true
		}
	}
	return false
}

// NextTask returns the task the scheduler should dispatch next, advancing
// the round-robin cursor. Panics if the leaf is blocked (the scheduler
// must never descend into a blocked leaf).
func (l *Leaf) NextTask() Task {
	if len(l.tasks) == 0 {
		panic("tc: NextTask called on an empty leaf")
	}
	t := l.tasks[l.cursor]
	l.cursor = (l.cursor + 1) % len(l.tasks)
	return t
}

// FinishAndAccountTowardsRoot accumulates usage and forwards to the parent.
// child is ignored (a Leaf has no TC children; the scheduler passes the
// leaf itself); the parameter exists to satisfy Node.
func (l *Leaf) FinishAndAccountTowardsRoot(sched Throttler, _ Node, usage resource.Usage, tsc uint64) {
	l.stats.Add(usage)
	finishTowardsParent(&l.base, sched, l, usage, tsc)
}

// UnblockTowardsRoot recomputes blocked (false iff the leaf holds tasks)
// and propagates to the parent.
func (l *Leaf) UnblockTowardsRoot(tsc uint64) {
	unblockTowardsRootSetBlocked(l, &l.base, tsc, len(l.tasks) == 0)
}

// Traverse visits this leaf. A leaf has no descendants.
func (l *Leaf) Traverse(fn func(Node)) {
	fn(l)
}

// Destroy closes every owned task (if it implements io.Closer) and
// de-registers the leaf.
func (l *Leaf) Destroy() {
	for _, t := range l.tasks {
		if c, ok := t.(io.Closer); ok {
			c.Close()
		}
	}
	l.tasks = nil
	l.registry.clear(l.name)
}
