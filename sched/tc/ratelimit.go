package tc

import (
	"github.com/pjferrell/bess/core/resource"
	"github.com/zyedidia/generic"
)

// usageAmplifierPow left-shifts consumed usage before comparing it against
// the token bucket, giving the bucket sub-unit precision on limit_ (a
// tokens-per-cycle rate that would otherwise round to zero for any
// low-throughput child).
const usageAmplifierPow = 32

// RateLimit is an interior node with exactly one child, gated by a token
// bucket: limit tokens accrue per cycle, a dispatch costs consumed<<
// usageAmplifierPow tokens, and once the bucket runs dry the node reports
// itself blocked until enough cycles have passed to refill it, registering
// with the scheduler's throttled set so the reclaim pass can find it
// without the tree being walked.
type RateLimit struct {
	base
	child        Node
	resourceKind resource.Kind

	limit    uint64 // tokens accrued per cycle
	maxBurst uint64 // token bucket capacity
	tokens   uint64
	lastTSC  uint64

	throttleExpiration uint64 // tsc at which tokens_ becomes sufficient again; 0 if not throttled
	cntThrottled       uint64
}

// NewRateLimit creates and registers a RateLimit node. limit is in tokens
// per cycle (after the usageAmplifierPow scaling); maxBurst caps how many
// tokens can accumulate while idle.
func NewRateLimit(name string, reg *Registry, resourceKind resource.Kind, limit, maxBurst uint64) (*RateLimit, error) {
	r := &RateLimit{
		base:         base{name: name, blocked: true, registry: reg},
		resourceKind: resourceKind,
		limit:        limit,
		maxBurst:     maxBurst,
		tokens:       maxBurst,
	}
	if err := reg.register(name, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddChild attaches the node's single child.
func (r *RateLimit) AddChild(child Node, tsc uint64) error {
	if err := attachCheck(child); err != nil {
		return err
	}
	if r.child != nil {
		return ErrSlotOccupied
	}

	r.child = child
	child.setParent(r)
	r.UnblockTowardsRoot(tsc)
	return nil
}

// PickNextChild returns the governed child.
func (r *RateLimit) PickNextChild() Node {
	return r.child
}

// UnblockTowardsRoot recomputes the blocked predicate: blocked while
// throttled or while the child itself is blocked.
func (r *RateLimit) UnblockTowardsRoot(tsc uint64) {
	r.lastTSC = tsc
	blocked := r.throttleExpiration != 0 || r.child.Blocked()
	unblockTowardsRootSetBlocked(r, &r.base, tsc, blocked)
}

// FinishAndAccountTowardsRoot refills the bucket for the elapsed cycles,
// charges it for the dispatch's resource consumption, and throttles the
// node (registering it with sched's throttled set) if that charge would
// drive the bucket negative.
func (r *RateLimit) FinishAndAccountTowardsRoot(sched Throttler, child Node, usage resource.Usage, tsc uint64) {
	r.stats.Add(usage)

	elapsed := tsc - r.lastTSC
	r.lastTSC = tsc

	tokens := r.tokens + r.limit*elapsed
	consumed := usage.Get(r.resourceKind) << usageAmplifierPow

	if tokens < consumed {
		r.tokens = 0
		r.blocked = true
		r.cntThrottled++

		waitTSC := (consumed - tokens) / r.limit
		r.throttleExpiration = tsc + waitTSC
		sched.AddThrottled(r)
	} else {
		r.tokens = generic.Clamp(tokens-consumed, uint64(0), r.maxBurst)
	}

	r.blocked = r.blocked || child.Blocked()

	finishTowardsParent(&r.base, sched, r, usage, tsc)
}

// Reclaim is called by the scheduler once tsc has passed throttleExpiration:
// it clears the throttle and re-derives the blocked predicate towards the
// root.
func (r *RateLimit) Reclaim(tsc uint64) {
	r.throttleExpiration = 0
	r.UnblockTowardsRoot(tsc)
}

// ThrottleExpiration returns the tsc at which the node's token bucket is
// expected to next hold enough tokens, or 0 if the node is not throttled.
func (r *RateLimit) ThrottleExpiration() uint64 {
	return r.throttleExpiration
}

// CountThrottled returns the number of dispatches that have driven this
// node's bucket negative over its lifetime.
func (r *RateLimit) CountThrottled() uint64 {
	return r.cntThrottled
}

// Traverse visits this node, then its child.
func (r *RateLimit) Traverse(fn func(Node)) {
	fn(r)
	r.child.Traverse(fn)
}

// Destroy destroys the child, then de-registers. A throttled node must go
// through OnDestroy instead, so the scheduler's throttled set is cleared
// before the node's state disappears.
func (r *RateLimit) Destroy() {
	r.child.Destroy()
	r.child = nil
	r.registry.clear(r.name)
}

// OnDestroy de-registers r from sched's throttled set, if it is currently
// throttled, then destroys it. A throttled RateLimit that skipped this and
// called Destroy directly would leave a stale entry in the throttled set;
// a later reclaim pass would then call Reclaim on a node whose child is
// nil, panicking on the nil dereference in UnblockTowardsRoot.
func (r *RateLimit) OnDestroy(sched Throttler) {
	sched.RemoveThrottled(r)
	r.Destroy()
}
