package tc

import "github.com/pjferrell/bess/core/resource"

// RoundRobin is an interior node whose runnable children form a FIFO;
// PickNextChild returns the child at the cursor and FinishAndAccountTowardsRoot
// advances it, wrapping around.
type RoundRobin struct {
	base
	children        []Node // runnable, FIFO order
	blockedChildren []Node
	nextChild       int
}

// NewRoundRobin creates and registers a RoundRobin node.
func NewRoundRobin(name string, reg *Registry) (*RoundRobin, error) {
	r := &RoundRobin{base: base{name: name, blocked: true, registry: reg}}
	if err := reg.register(name, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddChild attaches child, placing it on the blocked list if it starts out
// blocked.
func (r *RoundRobin) AddChild(child Node, tsc uint64) error {
	if err := attachCheck(child); err != nil {
		return err
	}
	child.setParent(r)
	if child.Blocked() {
		r.blockedChildren = append(r.blockedChildren, child)
	} else {
		r.children = append(r.children, child)
	}
	r.UnblockTowardsRoot(tsc)
	return nil
}

// PickNextChild returns the child at the round-robin cursor.
func (r *RoundRobin) PickNextChild() Node {
	return r.children[r.nextChild]
}

// UnblockTowardsRoot moves any now-runnable blocked children back into the
// FIFO and recomputes the blocked predicate.
func (r *RoundRobin) UnblockTowardsRoot(tsc uint64) {
	kept := r.blockedChildren[:0]
	for _, c := range r.blockedChildren {
		if c.Blocked() {
			kept = append(kept, c)
		} else {
			r.children = append(r.children, c)
		}
	}
	r.blockedChildren = kept

	unblockTowardsRootSetBlocked(r, &r.base, tsc, len(r.children) == 0)
}

// FinishAndAccountTowardsRoot accumulates usage. If the dispatched child
// became blocked it is moved to the blocked list; otherwise the cursor
// advances and wraps.
func (r *RoundRobin) FinishAndAccountTowardsRoot(sched Throttler, child Node, usage resource.Usage, tsc uint64) {
	r.stats.Add(usage)

	if child.Blocked() {
		r.children = append(r.children[:r.nextChild], r.children[r.nextChild+1:]...)
		r.blockedChildren = append(r.blockedChildren, child)
		r.blocked = len(r.children) == 0
	} else {
		r.nextChild++
	}

	if len(r.children) == 0 {
		r.nextChild = 0
	} else if r.nextChild >= len(r.children) {
		r.nextChild = 0
	}

	finishTowardsParent(&r.base, sched, r, usage, tsc)
}

// Traverse visits this node, runnable children, then blocked children.
func (r *RoundRobin) Traverse(fn func(Node)) {
	fn(r)
	for _, c := range r.children {
		c.Traverse(fn)
	}
	for _, c := range r.blockedChildren {
		c.Traverse(fn)
	}
}

// Destroy recursively destroys every child, then de-registers.
func (r *RoundRobin) Destroy() {
	for _, c := range r.children {
		c.Destroy()
	}
	for _, c := range r.blockedChildren {
		c.Destroy()
	}
	r.children = nil
	r.blockedChildren = nil
	r.registry.clear(r.name)
}
