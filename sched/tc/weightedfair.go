package tc

import (
	"container/heap"

	"github.com/pjferrell/bess/core/resource"
)

const (
	// stride1 is the stride assigned to a child of share 1; a child's
	// stride is stride1/share, so higher shares advance pass more slowly
	// and so get picked more often.
	stride1 = 1 << 32
	// quantum scales how much of a child's stride is actually charged per
	// dispatch: pass advances by stride*consumed/quantum, so a dispatch
	// that consumes fewer than quantum units of the billed resource
	// advances pass proportionally less than a full stride.
	quantum = 1 << 16
)

type wfEntry struct {
	child  Node
	share  int64
	stride uint64
	pass   uint64
	index  int
}

// wfHeap is a min-heap over pass: the child with the smallest pass has
// fallen furthest behind its fair share and runs next.
type wfHeap []*wfEntry

func (h wfHeap) Len() int           { return len(h) }
func (h wfHeap) Less(i, j int) bool { return h[i].pass < h[j].pass }
func (h wfHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *wfHeap) Push(x any) {
	e := x.(*wfEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *wfHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// WeightedFair is an interior node that schedules children by stride
// scheduling: each child advances a virtual "pass" clock by
// stride*consumed/quantum on every dispatch, where stride is stride1/share
// and consumed is the dispatch's usage in resourceKind. The child with the
// smallest pass runs next, so children converge to dispatch rates
// proportional to their share.
type WeightedFair struct {
	base
	resourceKind resource.Kind
	runnable     wfHeap
	blocked      []*wfEntry
	byChild      map[Node]*wfEntry
}

// NewWeightedFair creates and registers a WeightedFair node that bills
// stride advancement against resourceKind (typically resource.Packets or
// resource.Cycles).
func NewWeightedFair(name string, reg *Registry, resourceKind resource.Kind) (*WeightedFair, error) {
	w := &WeightedFair{
		base:         base{name: name, blocked: true, registry: reg},
		resourceKind: resourceKind,
		byChild:      make(map[Node]*wfEntry),
	}
	if err := reg.register(name, w); err != nil {
		return nil, err
	}
	return w, nil
}

// AddChild attaches child with the given share (must be positive), seeding
// its pass to the current minimum so it neither starves nor monopolizes
// its siblings.
func (w *WeightedFair) AddChild(child Node, share int64, tsc uint64) error {
	if err := attachCheck(child); err != nil {
		return err
	}
	validateShare(share)

	child.setParent(w)
	e := &wfEntry{
		child:  child,
		share:  share,
		stride: stride1 / uint64(share),
		pass:   w.currentPass(),
	}
	w.byChild[child] = e
	if child.Blocked() {
		w.blocked = append(w.blocked, e)
	} else {
		heap.Push(&w.runnable, e)
	}

	w.UnblockTowardsRoot(tsc)
	return nil
}

// PickNextChild returns the child with the smallest pass.
func (w *WeightedFair) PickNextChild() Node {
	return w.runnable[0].child
}

// PassOf returns child's current virtual-time pass. Panics if child is not
// attached to w.
func (w *WeightedFair) PassOf(child Node) uint64 {
	return w.byChild[child].pass
}

// currentPass returns the pass a newly-runnable child should rejoin the
// heap at: the current minimum (so it neither starves nor, by entering at
// virtual-time zero, cuts ahead of every sibling until the rest of the
// heap catches up), or 0 if the heap is empty.
func (w *WeightedFair) currentPass() uint64 {
	if len(w.runnable) > 0 {
		return w.runnable[0].pass
	}
	return 0
}

// UnblockTowardsRoot moves any now-runnable blocked children back into the
// heap at the current minimum pass and recomputes the blocked predicate.
func (w *WeightedFair) UnblockTowardsRoot(tsc uint64) {
	kept := w.blocked[:0]
	for _, e := range w.blocked {
		if e.child.Blocked() {
			kept = append(kept, e)
			continue
		}
		e.pass = w.currentPass()
		heap.Push(&w.runnable, e)
	}
	w.blocked = kept

	unblockTowardsRootSetBlocked(w, &w.base, tsc, len(w.runnable) == 0)
}

// FinishAndAccountTowardsRoot advances the dispatched child's pass in
// proportion to the resource it actually consumed and re-establishes the
// heap invariant, or moves it to the blocked list if it became blocked.
func (w *WeightedFair) FinishAndAccountTowardsRoot(sched Throttler, child Node, usage resource.Usage, tsc uint64) {
	w.stats.Add(usage)

	e := w.byChild[child]
	if child.Blocked() {
		heap.Remove(&w.runnable, e.index)
		w.blocked = append(w.blocked, e)
		w.base.blocked = len(w.runnable) == 0
	} else {
		consumed := usage.Get(w.resourceKind)
		e.pass += e.stride * consumed / quantum
		heap.Fix(&w.runnable, e.index)
	}

	finishTowardsParent(&w.base, sched, w, usage, tsc)
}

// Traverse visits this node, then runnable children, then blocked
// children.
func (w *WeightedFair) Traverse(fn func(Node)) {
	fn(w)
	for _, e := range w.runnable {
		e.child.Traverse(fn)
	}
	for _, e := range w.blocked {
		e.child.Traverse(fn)
	}
}

// Destroy recursively destroys every child, then de-registers.
func (w *WeightedFair) Destroy() {
	for _, e := range w.runnable {
		e.child.Destroy()
	}
	for _, e := range w.blocked {
		e.child.Destroy()
	}
	w.runnable = nil
	w.blocked = nil
	w.byChild = nil
	w.registry.clear(w.name)
}
