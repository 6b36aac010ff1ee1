package classify

import (
	"errors"
	"fmt"

	"github.com/pjferrell/bess/container/cuckoo"
)

// MaxFields is the largest number of fields a classifier key may gather.
const MaxFields = 8

// MaxFieldSize is the largest size, in bytes, of a single field.
const MaxFieldSize = 8

// Field describes one piece of packet data gathered into a classifier key:
// either a named metadata attribute (AttrID >= 0) or a byte range at a
// fixed Offset from the packet's data start (AttrID == -1). Pos is the
// field's byte position within the packed key, or nil to have
// ResolveFields pack it consecutively after the preceding field (0 is a
// valid explicit position, so a plain int zero value can't stand in for
// "unspecified"). Size is 1..MaxFieldSize.
type Field struct {
	AttrID int
	Offset int
	Pos    *int
	Size   int
}

// ErrInvalidConfig reports a malformed field descriptor list.
var ErrInvalidConfig = errors.New("classify: invalid field configuration")

// ResolveFields validates fields, fills in Pos for any field left nil by
// packing fields in order, and returns the total key size in bytes,
// rounded up to a multiple of 8 (the cuckoo.Table limb size).
func ResolveFields(fields []Field) (totalKeySize int, err error) {
	if len(fields) == 0 || len(fields) > MaxFields {
		return 0, fmt.Errorf("%w: field count %d out of range 1..%d", ErrInvalidConfig, len(fields), MaxFields)
	}

	pos := 0
	occupied := make([]bool, MaxFields*MaxFieldSize)
	for i := range fields {
		f := &fields[i]
		if f.Size < 1 || f.Size > MaxFieldSize {
			return 0, fmt.Errorf("%w: field %d size %d out of range 1..%d", ErrInvalidConfig, i, f.Size, MaxFieldSize)
		}
		if f.AttrID < 0 && f.Offset < 0 {
			return 0, fmt.Errorf("%w: field %d has neither attr_id nor offset", ErrInvalidConfig, i)
		}
		if f.Pos == nil {
			p := pos
			f.Pos = &p
		}
		if *f.Pos < 0 || *f.Pos+f.Size > len(occupied) {
			return 0, fmt.Errorf("%w: field %d position %d+%d exceeds key capacity", ErrInvalidConfig, i, *f.Pos, f.Size)
		}
		for b := *f.Pos; b < *f.Pos+f.Size; b++ {
			if occupied[b] {
				return 0, fmt.Errorf("%w: field %d overlaps another field at byte %d", ErrInvalidConfig, i, b)
			}
			occupied[b] = true
		}
		pos = *f.Pos + f.Size
		if pos > totalKeySize {
			totalKeySize = pos
		}
	}

	totalKeySize = roundUp8(totalKeySize)
	if totalKeySize > cuckoo.MaxKeySize {
		return 0, fmt.Errorf("%w: total key size %d exceeds %d", ErrInvalidConfig, totalKeySize, cuckoo.MaxKeySize)
	}
	return totalKeySize, nil
}

func roundUp8(n int) int {
	return (n + 7) &^ 7
}

// PackFields packs one byte value per field (in field order) into a
// cuckoo.Key at each field's Pos, the same little-endian layout GatherKey
// produces from a live packet. Used by classifier Add/Delete commands that
// take literal field values instead of reading a packet.
func PackFields(fields []Field, values [][]byte) (cuckoo.Key, error) {
	if len(values) != len(fields) {
		return cuckoo.Key{}, fmt.Errorf("%w: expected %d field values, got %d", ErrInvalidConfig, len(fields), len(values))
	}
	var buf [MaxFields * MaxFieldSize]byte
	for i, f := range fields {
		if len(values[i]) != f.Size {
			return cuckoo.Key{}, fmt.Errorf("%w: field %d expects %d bytes, got %d", ErrInvalidConfig, i, f.Size, len(values[i]))
		}
		copy(buf[*f.Pos:*f.Pos+f.Size], values[i])
	}
	return packBytes(buf), nil
}

func packBytes(buf [MaxFields * MaxFieldSize]byte) cuckoo.Key {
	var key cuckoo.Key
	for limb := 0; limb < cuckoo.Limbs; limb++ {
		o := limb * 8
		key[limb] = uint64(buf[o]) | uint64(buf[o+1])<<8 | uint64(buf[o+2])<<16 |
			uint64(buf[o+3])<<24 | uint64(buf[o+4])<<32 | uint64(buf[o+5])<<40 |
			uint64(buf[o+6])<<48 | uint64(buf[o+7])<<56
	}
	return key
}

// GatherKey packs the bytes described by fields out of pkt into a
// zero-initialized cuckoo.Key, little-endian, at each field's Pos.
func GatherKey(pkt Packet, fields []Field) cuckoo.Key {
	var buf [MaxFields * MaxFieldSize]byte

	for _, f := range fields {
		var b []byte
		if f.AttrID >= 0 {
			b = pkt.ReadAttr(f.AttrID, f.Size)
		} else {
			b = pkt.ReadBytes(f.Offset, f.Size)
		}
		copy(buf[*f.Pos:*f.Pos+f.Size], b)
	}
	return packBytes(buf)
}
