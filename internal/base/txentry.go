package base

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// SlotStatus is the transaction slot state machine of spec.md §4.4:
//
//	EMPTY --init--> PROCESSING --commit--> COMMITTED --execute--> EMPTY
//	                     |                       |
//	                     +-----abort-------------+---> ABORTED --> EMPTY
type SlotStatus uint8

const (
	SlotEmpty SlotStatus = iota
	SlotProcessing
	SlotCommitted
	SlotAborted
)

// OpKind is the kind of operation recorded in a transaction slot entry.
type OpKind uint8

const (
	OpWrite OpKind = iota
	OpUpdate
	OpUpdInPlace
	OpRemove
)

// SlotHeaderSize is checksum(8) + status(1) + size(4). The `size` field is
// an absolute byte offset into the slot buffer marking the end of the used
// region (header + entries + inline payloads); it starts at SlotHeaderSize
// itself, matching the C original's `slot->size = sizeof(tx_slot)` at init.
const SlotHeaderSize = 13

// EntryHeaderSize is op(1) + id1(8) + id2(8). UPDINPLACE entries are
// followed immediately by their inline payload, whose length is packed
// into id2 (see PackUpdInPlace).
const EntryHeaderSize = 17

const (
	slotOffStatus = 8
	slotOffSize   = 9
)

func DecodeSlotStatus(buf []byte) SlotStatus { return SlotStatus(buf[slotOffStatus]) }
func PutSlotStatus(buf []byte, s SlotStatus)  { buf[slotOffStatus] = byte(s) }

func DecodeSlotSize(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[slotOffSize:])
}
func PutSlotSize(buf []byte, size uint32) {
	binary.LittleEndian.PutUint32(buf[slotOffSize:], size)
}

// InitSlotHeader writes {checksum: 0, status: SlotProcessing, size:
// SlotHeaderSize} — the state of a freshly-begun transaction slot.
func InitSlotHeader(buf []byte) {
	PutChecksum(buf, 0)
	PutSlotStatus(buf, SlotProcessing)
	PutSlotSize(buf, SlotHeaderSize)
}

// Entry is the decoded form of one tx_entry.
type Entry struct {
	Op  OpKind
	ID1 uint64
	ID2 uint64
}

func DecodeEntry(buf []byte) Entry {
	_ = buf[EntryHeaderSize-1]
	return Entry{
		Op:  OpKind(buf[0]),
		ID1: binary.LittleEndian.Uint64(buf[1:]),
		ID2: binary.LittleEndian.Uint64(buf[9:]),
	}
}

func PutEntry(buf []byte, e Entry) {
	_ = buf[EntryHeaderSize-1]
	buf[0] = byte(e.Op)
	binary.LittleEndian.PutUint64(buf[1:], e.ID1)
	binary.LittleEndian.PutUint64(buf[9:], e.ID2)
}

// IsTerminator reports whether an entry is the implicit zero terminator
// (id1==0 && id2==0) that recovery's replay walker stops at as a secondary
// bound alongside the slot's persisted size.
func (e Entry) IsTerminator() bool { return e.ID1 == 0 && e.ID2 == 0 }

// PackUpdInPlace encodes (size, offset) into an UPDINPLACE entry's id2, per
// spec.md §3: "id2 := (size << 32) | offset".
func PackUpdInPlace(size, offset uint32) uint64 {
	return uint64(size)<<32 | uint64(offset)
}

// UnpackUpdInPlace is the inverse of PackUpdInPlace.
func UnpackUpdInPlace(id2 uint64) (size, offset uint32) {
	return uint32(id2 >> 32), uint32(id2 & 0xffffffff)
}

// SlotChecksum computes a slot's checksum over bytes [8, size) of its
// buffer — status, size, and every staged entry, but not the checksum
// field itself. This mirrors the C original's literal
// util_checksum(slot, slot->size, &slot->flch64, 1), which the block
// checksum convention (see base.Checksum) also follows: the checksum field
// is always excluded from its own input.
func SlotChecksum(buf []byte) uint64 {
	size := DecodeSlotSize(buf)
	d := xxhash.New()
	d.Write(buf[8:size])
	return d.Sum64()
}
