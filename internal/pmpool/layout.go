// Package pmpool implements the "Pool mapping" component of spec.md §4.1:
// create/open the single backing file, map it, establish the region
// layout, and provide the persist/flush/memcpy primitives the rest of the
// engine is built on.
package pmpool

import "github.com/pmbackend/pmbackend/internal/base"

// SyncType selects the durability policy applied to block writes, per
// spec.md §5.
type SyncType uint8

const (
	SyncSync SyncType = iota
	SyncAsync
	SyncSelSync
	SyncThSync
	SyncNoSync
)

// Layout is the derived, computed-not-stored region geometry of spec.md §6:
// header -> tx-log -> data -> meta, each region's size a function of the
// pool header fields.
type Layout struct {
	DataBSize     uint32
	MetaBSize     uint32
	MaxKeyLen     uint32
	MaxValLen     uint32
	MetaMaxKeyLen uint32
	MetaMaxValLen uint32
	TxSlotsCount  uint8
	TxSlotSize    uint32
	SyncType      SyncType

	TxLogOffset  uint64
	DataOffset   uint64
	MetaOffset   uint64
	DataNLBA     uint64
	MetaNLBA     uint64
	TotalSize    uint64
}

// DataBlockSize is the aligned size of a data-region block: header + the
// fixed max-key slot + the fixed max-val slot, rounded up to 4 KiB so that
// the value slot starts at a stable, aligned offset for in-place updates.
func DataBlockSize(maxKeyLen, maxValLen uint32) uint32 {
	return uint32(base.RoundUp4KiB(uint64(base.HeaderSize) + uint64(maxKeyLen) + uint64(maxValLen)))
}

// MetaBlockSize is the aligned size of a meta-region block: header + the
// actual key bytes + the value bytes packed immediately after (no fixed
// key slot, unlike the data region).
func MetaBlockSize(metaMaxKeyLen, metaMaxValLen uint32) uint32 {
	return uint32(base.RoundUp4KiB(uint64(base.HeaderSize) + uint64(metaMaxKeyLen) + uint64(metaMaxValLen)))
}

// ComputeLayout derives a Layout from a pool header and the caller's
// requested region byte budgets. The tx-log slot size is pinned to the
// data block size, matching the C original's tx_log_init, which sizes a
// slot's entry capacity off get_block_size(max_key_len, max_val_len).
func ComputeLayout(h base.PoolHeader, dataSize, metaSize uint64) Layout {
	l := Layout{
		DataBSize:     h.DataBSize,
		MetaBSize:     h.MetaBSize,
		MaxKeyLen:     h.MaxKeyLen,
		MaxValLen:     h.MaxValLen,
		MetaMaxKeyLen: h.MetaMaxKeyLen,
		MetaMaxValLen: h.MetaMaxValLen,
		TxSlotsCount:  h.TxSlotsCount,
		TxSlotSize:    h.TxSlotSize,
		SyncType:      SyncType(h.SyncType),
	}
	l.DataNLBA = dataSize / uint64(l.DataBSize)
	l.MetaNLBA = metaSize / uint64(l.MetaBSize)

	l.TxLogOffset = base.HeaderAligned
	txLogBytes := uint64(l.TxSlotsCount) * uint64(l.TxSlotSize)
	l.DataOffset = l.TxLogOffset + txLogBytes
	dataBytes := l.DataNLBA * uint64(l.DataBSize)
	l.MetaOffset = l.DataOffset + dataBytes
	metaBytes := l.MetaNLBA * uint64(l.MetaBSize)

	total := l.MetaOffset + metaBytes
	if total < base.MinPoolSize {
		total = base.MinPoolSize
	}
	l.TotalSize = total
	return l
}

// BlockOffset returns the byte offset of block id within the mapping, or
// ok=false if id is out of range (including id == 0, which is reserved).
func (l Layout) BlockOffset(id base.ID) (offset uint64, size uint32, region base.Region, ok bool) {
	if id == 0 {
		return 0, 0, 0, false
	}
	if uint64(id) <= l.DataNLBA {
		return l.DataOffset + (uint64(id)-1)*uint64(l.DataBSize), l.DataBSize, base.RegionData, true
	}
	metaIdx := uint64(id) - l.DataNLBA - 1
	if metaIdx < l.MetaNLBA {
		return l.MetaOffset + metaIdx*uint64(l.MetaBSize), l.MetaBSize, base.RegionMeta, true
	}
	return 0, 0, 0, false
}

// TxSlotOffset returns the byte offset of the zero-based tx slot index.
func (l Layout) TxSlotOffset(idx uint64) (offset uint64, ok bool) {
	if idx >= uint64(l.TxSlotsCount) {
		return 0, false
	}
	return l.TxLogOffset + idx*uint64(l.TxSlotSize), true
}

// FirstID and LastID bound the full addressable block id space, used by
// recovery's Phase R2 live-set scan.
func (l Layout) FirstID() base.ID { return 1 }
func (l Layout) LastID() base.ID  { return base.ID(l.DataNLBA + l.MetaNLBA) }
