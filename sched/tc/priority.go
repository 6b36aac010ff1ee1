package tc

import (
	"sort"

	"github.com/pjferrell/bess/core/resource"
)

type priorityChild struct {
	priority int32
	child    Node
}

// Priority is an interior node that always picks its highest-priority
// runnable child. Children are kept sorted by descending priority;
// firstRunnable indexes the first non-blocked child, or len(children) if
// none is runnable.
type Priority struct {
	base
	children      []priorityChild
	firstRunnable int
}

// NewPriority creates and registers a Priority node.
func NewPriority(name string, reg *Registry) (*Priority, error) {
	p := &Priority{base: base{name: name, blocked: true, registry: reg}}
	if err := reg.register(name, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddChild attaches child at priority. Priorities must be distinct among
// siblings.
func (p *Priority) AddChild(child Node, priority int32, tsc uint64) error {
	if err := attachCheck(child); err != nil {
		return err
	}
	for _, c := range p.children {
		if c.priority == priority {
			return ErrDuplicatePriority
		}
	}

	child.setParent(p)
	p.children = append(p.children, priorityChild{priority, child})
	sort.SliceStable(p.children, func(i, j int) bool {
		return p.children[i].priority > p.children[j].priority
	})

	p.UnblockTowardsRoot(tsc)
	return nil
}

// PickNextChild returns the highest-priority runnable child.
func (p *Priority) PickNextChild() Node {
	return p.children[p.firstRunnable].child
}

// UnblockTowardsRoot recomputes firstRunnable and the blocked predicate,
// then propagates.
func (p *Priority) UnblockTowardsRoot(tsc uint64) {
	n := len(p.children)
	for p.firstRunnable = 0; p.firstRunnable < n; p.firstRunnable++ {
		if !p.children[p.firstRunnable].child.Blocked() {
			break
		}
	}
	unblockTowardsRootSetBlocked(p, &p.base, tsc, p.firstRunnable >= n)
}

// FinishAndAccountTowardsRoot accumulates usage and, if the dispatched
// child became blocked, advances firstRunnable past it.
func (p *Priority) FinishAndAccountTowardsRoot(sched Throttler, child Node, usage resource.Usage, tsc uint64) {
	p.stats.Add(usage)

	if child.Blocked() {
		n := len(p.children)
		for p.firstRunnable < n && p.children[p.firstRunnable].child.Blocked() {
			p.firstRunnable++
		}
		p.blocked = p.firstRunnable == n
	}

	finishTowardsParent(&p.base, sched, p, usage, tsc)
}

// Traverse visits this node, then each child in priority order.
func (p *Priority) Traverse(fn func(Node)) {
	fn(p)
	for _, c := range p.children {
		c.child.Traverse(fn)
	}
}

// Destroy recursively destroys every child, then de-registers.
func (p *Priority) Destroy() {
	for _, c := range p.children {
		c.child.Destroy()
	}
	p.children = nil
	p.registry.clear(p.name)
}
