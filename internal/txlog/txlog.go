// Package txlog implements the transaction log component of spec.md §4.4:
// a fixed array of slots, each progressing EMPTY -> PROCESSING -> COMMITTED
// -> EMPTY (or PROCESSING|COMMITTED -> ABORTED -> EMPTY), carrying the
// staged entries that Execute applies to the data and meta regions.
package txlog

import (
	"github.com/pmbackend/pmbackend/internal/base"
	"github.com/pmbackend/pmbackend/internal/pmpool"
	"github.com/pmbackend/pmbackend/internal/rangeset"
)

// Log owns the pool's tx-log region and the allocators that retired blocks
// are returned to. It holds no lock of its own beyond what rangeset.Set
// already provides: a given slot is only ever touched by the Tx that owns
// it, so slot buffers need no additional synchronization.
type Log struct {
	pool      *pmpool.Pool
	freeSlots *rangeset.Set
	dataFree  *rangeset.Set
	metaFree  *rangeset.Set
	maxKeyLen uint32
}

// New builds a Log over an already-mapped pool. freeSlots is the caller's
// responsibility to seed correctly: a freshly created pool seeds every
// slot index [1, TxSlotsCount]; reopening an existing pool must instead
// seed it with whatever Phase R1 recovery determined was left idle, since
// some slots may still hold in-flight transactions.
func New(pool *pmpool.Pool, freeSlots, dataFree, metaFree *rangeset.Set) *Log {
	return &Log{
		pool:      pool,
		freeSlots: freeSlots,
		dataFree:  dataFree,
		metaFree:  metaFree,
		maxKeyLen: pool.Layout.MaxKeyLen,
	}
}

// ReleaseSlot returns idx to the free list without touching its contents,
// used by recovery once a slot has been fully replayed.
func (l *Log) ReleaseSlot(idx uint64) {
	l.freeSlots.Push(idx)
}

// SlotBuf exposes the raw buffer backing a 1-based slot index, for
// recovery's Phase R1 scan, which must inspect every slot's status
// directly rather than through a claimed Tx.
func (l *Log) SlotBuf(idx uint64) []byte {
	return l.pool.TxDirect(idx - 1)
}

// Tx is one in-flight transaction: a claimed slot accumulating entries.
type Tx struct {
	log     *Log
	slotIdx uint64
}

// Begin claims a free slot and initializes it to PROCESSING, empty of
// entries. It fails with base.ErrNoSpace if every slot is already in use.
func (l *Log) Begin() (*Tx, error) {
	idx, ok := l.freeSlots.Pop()
	if !ok {
		return nil, base.Wrapf(base.ErrNoSpace, "no free transaction slots")
	}
	buf := l.pool.TxDirect(idx - 1)
	if buf == nil {
		return nil, base.Wrapf(base.ErrGeneric, "tx slot %d not mapped", idx)
	}
	base.InitSlotHeader(buf)
	l.persistSlotRange(idx, 0, base.SlotHeaderSize)
	return &Tx{log: l, slotIdx: idx}, nil
}

// Resume wraps an already-claimed slot (status PROCESSING, COMMITTED or
// ABORTED) as a Tx, for recovery to finish replaying a transaction that
// was interrupted mid-commit, mid-execute or mid-abort by a crash.
func (l *Log) Resume(idx uint64) *Tx {
	return &Tx{log: l, slotIdx: idx}
}

// Slot reports the 1-based slot index backing this transaction, for
// logging and metrics labels.
func (t *Tx) Slot() uint64 { return t.slotIdx }

func (l *Log) persistSlotRange(idx uint64, relOffset, length uint64) {
	off, ok := l.pool.Layout.TxSlotOffset(idx - 1)
	if !ok {
		return
	}
	l.pool.Persist(off+relOffset, length)
}

func (t *Tx) buf() []byte { return t.log.pool.TxDirect(t.slotIdx - 1) }

func (t *Tx) appendEntry(e base.Entry, payload []byte) error {
	buf := t.buf()
	if base.DecodeSlotStatus(buf) != base.SlotProcessing {
		return base.Wrapf(base.ErrGeneric, "tx slot %d is not PROCESSING", t.slotIdx)
	}
	size := base.DecodeSlotSize(buf)
	need := uint64(size) + base.EntryHeaderSize + uint64(len(payload))
	if need > uint64(len(buf)) {
		return base.Wrapf(base.ErrSizeExceeded, "tx slot %d: out of entry space", t.slotIdx)
	}

	base.PutEntry(buf[size:], e)
	if len(payload) > 0 {
		copy(buf[uint64(size)+base.EntryHeaderSize:], payload)
	}
	base.PutSlotSize(buf, uint32(need))
	t.log.persistSlotRange(t.slotIdx, uint64(size), need-uint64(size))
	return nil
}

// RecordWrite stages a WRITE entry: id names a block already written
// directly (outside the log). Commit/Execute leave it untouched; Abort
// retires and frees it.
func (t *Tx) RecordWrite(id base.ID) error {
	return t.appendEntry(base.Entry{Op: base.OpWrite, ID1: uint64(id)}, nil)
}

// RecordUpdate stages an UPDATE entry: newID has already been written and
// is live. On Execute, oldID is retired and freed. On Abort, newID is
// retired and freed instead, leaving oldID the live version.
func (t *Tx) RecordUpdate(oldID, newID base.ID) error {
	return t.appendEntry(base.Entry{Op: base.OpUpdate, ID1: uint64(oldID), ID2: uint64(newID)}, nil)
}

// RecordRemove stages a REMOVE entry: id is retired and freed on Execute.
// An abort leaves id live and untouched.
func (t *Tx) RecordRemove(id base.ID) error {
	return t.appendEntry(base.Entry{Op: base.OpRemove, ID1: uint64(id)}, nil)
}

// RecordSmallUpdate stages an UPDINPLACE entry: payload is copied into the
// log now, and applied to id's live block at the given value offset only
// once the transaction commits and executes — the small-value fast path of
// spec.md §4.5 that avoids allocating a whole new block.
func (t *Tx) RecordSmallUpdate(id base.ID, payload []byte, offset uint32) error {
	e := base.Entry{
		Op:  base.OpUpdInPlace,
		ID1: uint64(id),
		ID2: base.PackUpdInPlace(uint32(len(payload)), offset),
	}
	return t.appendEntry(e, payload)
}

// Commit marks the slot COMMITTED and persists its checksum. This is the
// durability point: once Commit returns, the transaction's effects survive
// a crash even if Execute never runs (recovery's Phase R1 finishes it).
func (t *Tx) Commit() error {
	buf := t.buf()
	if base.DecodeSlotStatus(buf) != base.SlotProcessing {
		return base.Wrapf(base.ErrGeneric, "tx slot %d is not PROCESSING", t.slotIdx)
	}
	base.PutSlotStatus(buf, base.SlotCommitted)
	return t.checksumAndPersist(buf)
}

func (t *Tx) checksumAndPersist(buf []byte) error {
	size := base.DecodeSlotSize(buf)
	base.PutChecksum(buf, base.SlotChecksum(buf))
	t.log.persistSlotRange(t.slotIdx, 0, uint64(size))
	return nil
}

// metaBump is the deferred per-id version/val_len update that the C
// original's tx_slot_meta_upd_add accumulates and tx_slot_meta_upd_process
// flushes once per Execute, so a block touched by several UPDINPLACE
// entries in one transaction pays for a single header rewrite and a single
// checksum recompute rather than one per entry.
type metaBump struct {
	versionDelta uint32
	valLen       uint32
}

// Execute applies a COMMITTED transaction: frees blocks superseded by
// UPDATE/REMOVE entries, writes staged UPDINPLACE payloads into their live
// targets, flushes the accumulated version/val_len bumps, and empties the
// slot. Calling it on a slot that is not COMMITTED is a caller error.
func (t *Tx) Execute() error {
	buf := t.buf()
	if base.DecodeSlotStatus(buf) != base.SlotCommitted {
		return base.Wrapf(base.ErrGeneric, "tx slot %d is not COMMITTED", t.slotIdx)
	}

	size := base.DecodeSlotSize(buf)
	bumps := make(map[base.ID]*metaBump)

	pos := uint32(base.SlotHeaderSize)
	for pos < size {
		e := base.DecodeEntry(buf[pos:])
		if e.IsTerminator() {
			break
		}
		switch e.Op {
		case base.OpUpdate:
			t.log.retire(base.ID(e.ID1))
			pos += base.EntryHeaderSize
		case base.OpRemove:
			t.log.retire(base.ID(e.ID1))
			pos += base.EntryHeaderSize
		case base.OpUpdInPlace:
			payloadLen, offset := base.UnpackUpdInPlace(e.ID2)
			payload := buf[pos+base.EntryHeaderSize : pos+base.EntryHeaderSize+payloadLen]
			if err := t.log.applySmallUpdate(base.ID(e.ID1), payload, offset); err != nil {
				return err
			}
			b := bumps[base.ID(e.ID1)]
			if b == nil {
				b = &metaBump{}
				bumps[base.ID(e.ID1)] = b
			}
			b.versionDelta++
			if need := offset + payloadLen; need > b.valLen {
				b.valLen = need
			}
			pos += base.EntryHeaderSize + payloadLen
		default: // OpWrite: already live, nothing to apply on commit.
			pos += base.EntryHeaderSize
		}
	}

	for id, b := range bumps {
		if err := t.log.flushMetaBump(id, *b); err != nil {
			return err
		}
	}

	return t.retireSlot()
}

// Abort undoes a transaction's new, not-yet-superseding writes: a WRITE's
// block and an UPDATE's new block are retired and freed, since the
// transaction never reached the point where they became the live version.
// REMOVE and UPDINPLACE entries only ever touch blocks that were already
// live before the transaction began, so they need no undo.
// Abort tolerates being re-entered against a slot it already marked
// ABORTED: recovery's Phase R1 resumes a slot that crashed after the status
// flip but before the undo loop below finished, and simply re-walks the
// same entries (each retire is idempotent against an already-freed id).
func (t *Tx) Abort() error {
	buf := t.buf()
	switch status := base.DecodeSlotStatus(buf); status {
	case base.SlotProcessing, base.SlotCommitted:
		base.PutSlotStatus(buf, base.SlotAborted)
		if err := t.checksumAndPersist(buf); err != nil {
			return err
		}
	case base.SlotAborted:
		// Resuming a crash that landed between the status flip and the
		// undo loop completing; fall through to the entry walk below.
	default:
		return base.Wrapf(base.ErrGeneric, "tx slot %d cannot be aborted from its current state", t.slotIdx)
	}

	size := base.DecodeSlotSize(buf)
	pos := uint32(base.SlotHeaderSize)
	for pos < size {
		e := base.DecodeEntry(buf[pos:])
		if e.IsTerminator() {
			break
		}
		switch e.Op {
		case base.OpWrite:
			t.log.retire(base.ID(e.ID1))
			pos += base.EntryHeaderSize
		case base.OpUpdate:
			t.log.retire(base.ID(e.ID2))
			pos += base.EntryHeaderSize
		case base.OpUpdInPlace:
			payloadLen, _ := base.UnpackUpdInPlace(e.ID2)
			pos += base.EntryHeaderSize + payloadLen
		default:
			pos += base.EntryHeaderSize
		}
	}

	return t.retireSlot()
}

// retireSlot zeroes the entire slot buffer (checksum, status, size, and
// every staged entry all become zero at once, landing on SlotEmpty) and
// returns the slot to the free list.
func (t *Tx) retireSlot() error {
	buf := t.buf()
	for i := range buf {
		buf[i] = 0
	}
	t.log.persistSlotRange(t.slotIdx, 0, uint64(len(buf)))
	t.log.freeSlots.Push(t.slotIdx)
	return nil
}

func (l *Log) retire(id base.ID) {
	buf := l.pool.Direct(id)
	if buf == nil {
		return
	}
	base.ZeroChecksum(buf)
	off, _, region, ok := l.pool.Layout.BlockOffset(id)
	if !ok {
		return
	}
	l.pool.Persist(off, 8)
	if region == base.RegionData {
		l.dataFree.Push(uint64(id))
	} else {
		l.metaFree.Push(uint64(id))
	}
}

func (l *Log) applySmallUpdate(id base.ID, payload []byte, offset uint32) error {
	buf := l.pool.Direct(id)
	if buf == nil {
		return base.Wrapf(base.ErrGeneric, "small update: block %d not mapped", id)
	}
	off, _, region, ok := l.pool.Layout.BlockOffset(id)
	if !ok {
		return base.Wrapf(base.ErrGeneric, "small update: block %d out of range", id)
	}
	h := base.DecodeHeader(buf)
	valOff := base.ValueOffset(region, h, l.maxKeyLen)
	l.pool.Memcpy(off+valOff+uint64(offset), payload)
	return nil
}

func (l *Log) flushMetaBump(id base.ID, bump metaBump) error {
	buf := l.pool.Direct(id)
	if buf == nil {
		return base.Wrapf(base.ErrGeneric, "meta bump: block %d not mapped", id)
	}
	off, _, region, ok := l.pool.Layout.BlockOffset(id)
	if !ok {
		return base.Wrapf(base.ErrGeneric, "meta bump: block %d out of range", id)
	}
	h := base.DecodeHeader(buf)
	h.Version += bump.versionDelta
	if bump.valLen > h.ValLen {
		h.ValLen = bump.valLen
	}
	base.PutHeader(buf, h)

	key, val := base.Spans(region, buf, h, l.maxKeyLen)
	base.PutChecksum(buf, base.Checksum(h, key, val))

	valOff := base.ValueOffset(region, h, l.maxKeyLen)
	l.pool.Persist(off, valOff+uint64(h.ValLen))
	return nil
}
