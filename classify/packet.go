// Package classify holds the field-descriptor and key-gathering machinery
// shared by the exact-match (classify/em) and wildcard-match (classify/wm)
// classifiers.
package classify

// Packet is the minimal read interface the classifiers need from a packet
// handle. Buffer management, NIC I/O, and packet construction are external
// collaborators (out of scope); this module only reads bytes.
type Packet interface {
	// ReadAttr returns size bytes of a named metadata attribute.
	ReadAttr(attrID int, size int) []byte
	// ReadBytes returns size bytes starting at offset from the packet's
	// data start.
	ReadBytes(offset int, size int) []byte
}

// MaxBurst is the typical NIC burst size, the usual upper length of a
// Batch. ProcessBatch does not check a Batch's length against it.
const MaxBurst = 32

// Batch is the slice of packets flowing through one ProcessBatch call.
type Batch []Packet

// GateIndex identifies an output gate of a module.
type GateIndex int
