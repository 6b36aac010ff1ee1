// Package em implements the exact-match classifier: a fixed-shape key
// gathered from a packet is mapped to an output gate via a cuckoo hash
// table.
package em

import (
	"errors"

	"github.com/pjferrell/bess/classify"
	"github.com/pjferrell/bess/container/cuckoo"
	"github.com/pjferrell/bess/core/logging"
	"go.uber.org/zap"
)

var logger = logging.New("classify/em")

// Classifier gathers fields from each packet in a batch and routes it to
// the gate registered for the matching key, or to the default gate.
type Classifier struct {
	fields      []classify.Field
	totalKeyLen int
	defaultGate classify.GateIndex
	table       *cuckoo.Table[classify.GateIndex]
}

// Init validates fields and configures the classifier. Fields whose Pos is
// left nil are packed consecutively in the order given.
func Init(fields []classify.Field) (*Classifier, error) {
	totalKeyLen, err := classify.ResolveFields(fields)
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		fields:      append([]classify.Field(nil), fields...),
		totalKeyLen: totalKeyLen,
		table:       cuckoo.New[classify.GateIndex](totalKeyLen),
	}
	logger.Debug("initialized", zap.Int("fields", len(c.fields)), zap.Int("keyLen", c.totalKeyLen))
	return c, nil
}

// SetDefaultGate sets the gate used when no rule matches.
func (c *Classifier) SetDefaultGate(gate classify.GateIndex) {
	c.defaultGate = gate
}

// Add inserts or overwrites the rule key -> gate. key must have one entry
// per field, in field order.
func (c *Classifier) Add(values [][]byte, gate classify.GateIndex) error {
	key, err := c.packKey(values)
	if err != nil {
		return err
	}
	c.table.Insert(key, gate)
	return nil
}

// ErrNotFound is returned by Delete when the key is absent.
var ErrNotFound = errors.New("em: rule not found")

// Delete removes the rule for key. Returns ErrNotFound if absent.
func (c *Classifier) Delete(values [][]byte) error {
	key, err := c.packKey(values)
	if err != nil {
		return err
	}
	if !c.table.Remove(key) {
		return ErrNotFound
	}
	return nil
}

// Clear removes all rules, leaving the default gate unchanged.
func (c *Classifier) Clear() {
	c.table.Clear()
}

func (c *Classifier) packKey(values [][]byte) (cuckoo.Key, error) {
	return classify.PackFields(c.fields, values)
}

// Lookup gathers the key from pkt and returns the matching gate, or the
// default gate.
func (c *Classifier) Lookup(pkt classify.Packet) classify.GateIndex {
	key := classify.GatherKey(pkt, c.fields)
	if gate, ok := c.table.Find(key); ok {
		return gate
	}
	return c.defaultGate
}

// ProcessBatch partitions an input batch into per-gate sub-batches by
// exact-match lookup.
func (c *Classifier) ProcessBatch(batch classify.Batch) map[classify.GateIndex]classify.Batch {
	out := make(map[classify.GateIndex]classify.Batch)
	for _, pkt := range batch {
		gate := c.Lookup(pkt)
		out[gate] = append(out[gate], pkt)
	}
	return out
}
