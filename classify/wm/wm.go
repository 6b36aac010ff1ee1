// Package wm implements the wildcard-match classifier: rules are grouped
// into tuples sharing an identical mask, each backed by one cuckoo hash
// table of masked key -> (priority, gate). A lookup tries every tuple and
// keeps the highest-priority hit, ties broken in favor of the
// earlier-inserted tuple.
package wm

import (
	"errors"

	"github.com/pjferrell/bess/classify"
	"github.com/pjferrell/bess/container/cuckoo"
	"github.com/pjferrell/bess/core/logging"
	"go.uber.org/zap"
)

var logger = logging.New("classify/wm")

// MaxTuples bounds how many distinct masks a Classifier may hold at once.
const MaxTuples = 8

// Data is the value stored per masked key: the priority used to break
// ties among tuples, and the gate to route to.
type Data struct {
	Priority int
	Gate     classify.GateIndex
}

type tuple struct {
	mask  cuckoo.Key
	table *cuckoo.Table[Data]
}

// Classifier holds the field list and the ordered set of mask tuples.
type Classifier struct {
	fields      []classify.Field
	totalKeyLen int
	defaultGate classify.GateIndex
	tuples      []*tuple
}

// ErrTableFull is returned by Add when MaxTuples distinct masks are
// already in use and the new rule's mask does not match any of them.
var ErrTableFull = errors.New("wm: tuple table full")

// ErrNotFound is returned by Delete when the key is absent from the
// matching tuple.
var ErrNotFound = errors.New("wm: rule not found")

// Init validates fields and configures the classifier.
func Init(fields []classify.Field) (*Classifier, error) {
	totalKeyLen, err := classify.ResolveFields(fields)
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		fields:      append([]classify.Field(nil), fields...),
		totalKeyLen: totalKeyLen,
	}
	logger.Debug("initialized", zap.Int("fields", len(c.fields)), zap.Int("keyLen", totalKeyLen))
	return c, nil
}

// SetDefaultGate sets the gate used when no rule matches.
func (c *Classifier) SetDefaultGate(gate classify.GateIndex) {
	c.defaultGate = gate
}

func (c *Classifier) packKeyMask(values, masks [][]byte) (key, mask cuckoo.Key, err error) {
	key, err = classify.PackFields(c.fields, values)
	if err != nil {
		return key, mask, err
	}
	mask, err = classify.PackFields(c.fields, masks)
	if err != nil {
		return key, mask, err
	}
	return maskKey(key, mask, c.totalKeyLen), mask, nil
}

// maskKey applies a bitwise AND of key and mask, per 8-byte limb, over the
// first keyLen bytes.
func maskKey(key, mask cuckoo.Key, keyLen int) cuckoo.Key {
	var out cuckoo.Key
	for limb := 0; limb < keyLen/8; limb++ {
		out[limb] = key[limb] & mask[limb]
	}
	return out
}

func (c *Classifier) findTuple(mask cuckoo.Key) *tuple {
	for _, t := range c.tuples {
		if t.mask == mask {
			return t
		}
	}
	return nil
}

// Add masks key with mask and inserts (masked key -> {priority, gate})
// into the tuple with an identical mask, allocating a new tuple if none
// exists and the table is not full.
func (c *Classifier) Add(values, masks [][]byte, priority int, gate classify.GateIndex) error {
	maskedKey, mask, err := c.packKeyMask(values, masks)
	if err != nil {
		return err
	}

	t := c.findTuple(mask)
	if t == nil {
		if len(c.tuples) >= MaxTuples {
			return ErrTableFull
		}
		t = &tuple{mask: mask, table: cuckoo.New[Data](c.totalKeyLen)}
		c.tuples = append(c.tuples, t)
		logger.Debug("new tuple", zap.Int("tuples", len(c.tuples)))
	}
	t.table.Insert(maskedKey, Data{Priority: priority, Gate: gate})
	return nil
}

// Delete removes the rule matching key and mask from its tuple. The tuple
// itself is retained even if emptied (it may be reclaimed by Clear).
func (c *Classifier) Delete(values, masks [][]byte) error {
	maskedKey, mask, err := c.packKeyMask(values, masks)
	if err != nil {
		return err
	}
	t := c.findTuple(mask)
	if t == nil || !t.table.Remove(maskedKey) {
		return ErrNotFound
	}
	return nil
}

// Clear removes all rules and all tuples.
func (c *Classifier) Clear() {
	c.tuples = nil
}

// LookupEntry masks key with every tuple's mask and returns the gate of
// the highest-priority hit, ties broken by earliest-inserted tuple. defGate
// is returned if no tuple matches.
func (c *Classifier) LookupEntry(key cuckoo.Key, defGate classify.GateIndex) classify.GateIndex {
	best := defGate
	bestPriority := -1
	found := false
	for _, t := range c.tuples {
		masked := maskKey(key, t.mask, c.totalKeyLen)
		if d, ok := t.table.Find(masked); ok {
			if !found || d.Priority > bestPriority {
				best = d.Gate
				bestPriority = d.Priority
				found = true
			}
		}
	}
	return best
}

// Lookup gathers the key from pkt and calls LookupEntry against the
// configured default gate.
func (c *Classifier) Lookup(pkt classify.Packet) classify.GateIndex {
	key := classify.GatherKey(pkt, c.fields)
	return c.LookupEntry(key, c.defaultGate)
}

// ProcessBatch partitions an input batch into per-gate sub-batches by
// wildcard-match lookup.
func (c *Classifier) ProcessBatch(batch classify.Batch) map[classify.GateIndex]classify.Batch {
	out := make(map[classify.GateIndex]classify.Batch)
	for _, pkt := range batch {
		gate := c.Lookup(pkt)
		out[gate] = append(out[gate], pkt)
	}
	return out
}
