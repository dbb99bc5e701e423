package base

import "encoding/binary"

// Signature identifies a pmbackend pool file.
const Signature = "PMBACKEN"

// Format version persisted at create and verified at open. An incompat
// mismatch is fatal; compat/ro-compat mismatches are accepted (future
// growth hooks, unused today).
const (
	FormatMajor    = 1
	FormatCompat   = 0
	FormatIncompat = 0
	FormatROCompat = 0
)

// HeaderAligned is the size reserved for the pool header on disk: the
// header is small, but the tx-log region starts on a 4 KiB boundary so
// that block-sized regions never straddle it awkwardly.
const HeaderAligned = 4096

// MinPoolSize is the smallest backing file pmbackend will create.
const MinPoolSize = 20 * 1024 * 1024

// DataAlign is the rounding unit for block sizes and the tx slot size.
const DataAlign = 4096

const (
	poolOffSig            = 0
	poolOffMajor          = 8
	poolOffCompat         = 12
	poolOffIncompat       = 16
	poolOffROCompat       = 20
	poolOffDataBSize      = 24
	poolOffMetaBSize      = 28
	poolOffMaxKeyLen      = 32
	poolOffMaxValLen      = 36
	poolOffMetaMaxKeyLen  = 40
	poolOffMetaMaxValLen  = 44
	poolOffTxSlotsCount   = 48
	poolOffTxSlotSize     = 49
	poolOffSyncType       = 53
	poolHeaderEncodedSize = 54
)

// PoolHeader is the decoded form of the superblock stored at file offset 0.
type PoolHeader struct {
	Major, Compat, Incompat, ROCompat uint32
	DataBSize                         uint32
	MetaBSize                         uint32
	MaxKeyLen                         uint32
	MaxValLen                         uint32
	MetaMaxKeyLen                     uint32
	MetaMaxValLen                     uint32
	TxSlotsCount                      uint8
	TxSlotSize                        uint32
	SyncType                          uint8
}

// Encode writes h into the first poolHeaderEncodedSize bytes of buf. The
// remainder of the HeaderAligned region is left untouched (callers zero it
// once at create time).
func (h PoolHeader) Encode(buf []byte) {
	_ = buf[poolHeaderEncodedSize-1]
	copy(buf[poolOffSig:], Signature)
	binary.LittleEndian.PutUint32(buf[poolOffMajor:], h.Major)
	binary.LittleEndian.PutUint32(buf[poolOffCompat:], h.Compat)
	binary.LittleEndian.PutUint32(buf[poolOffIncompat:], h.Incompat)
	binary.LittleEndian.PutUint32(buf[poolOffROCompat:], h.ROCompat)
	binary.LittleEndian.PutUint32(buf[poolOffDataBSize:], h.DataBSize)
	binary.LittleEndian.PutUint32(buf[poolOffMetaBSize:], h.MetaBSize)
	binary.LittleEndian.PutUint32(buf[poolOffMaxKeyLen:], h.MaxKeyLen)
	binary.LittleEndian.PutUint32(buf[poolOffMaxValLen:], h.MaxValLen)
	binary.LittleEndian.PutUint32(buf[poolOffMetaMaxKeyLen:], h.MetaMaxKeyLen)
	binary.LittleEndian.PutUint32(buf[poolOffMetaMaxValLen:], h.MetaMaxValLen)
	buf[poolOffTxSlotsCount] = h.TxSlotsCount
	binary.LittleEndian.PutUint32(buf[poolOffTxSlotSize:], h.TxSlotSize)
	buf[poolOffSyncType] = h.SyncType
}

// DecodePoolHeader reads a PoolHeader out of buf, returning ok=false if the
// signature does not match.
func DecodePoolHeader(buf []byte) (PoolHeader, bool) {
	if len(buf) < poolHeaderEncodedSize || string(buf[poolOffSig:poolOffSig+8]) != Signature {
		return PoolHeader{}, false
	}
	return PoolHeader{
		Major:         binary.LittleEndian.Uint32(buf[poolOffMajor:]),
		Compat:        binary.LittleEndian.Uint32(buf[poolOffCompat:]),
		Incompat:      binary.LittleEndian.Uint32(buf[poolOffIncompat:]),
		ROCompat:      binary.LittleEndian.Uint32(buf[poolOffROCompat:]),
		DataBSize:     binary.LittleEndian.Uint32(buf[poolOffDataBSize:]),
		MetaBSize:     binary.LittleEndian.Uint32(buf[poolOffMetaBSize:]),
		MaxKeyLen:     binary.LittleEndian.Uint32(buf[poolOffMaxKeyLen:]),
		MaxValLen:     binary.LittleEndian.Uint32(buf[poolOffMaxValLen:]),
		MetaMaxKeyLen: binary.LittleEndian.Uint32(buf[poolOffMetaMaxKeyLen:]),
		MetaMaxValLen: binary.LittleEndian.Uint32(buf[poolOffMetaMaxValLen:]),
		TxSlotsCount:  buf[poolOffTxSlotsCount],
		TxSlotSize:    binary.LittleEndian.Uint32(buf[poolOffTxSlotSize:]),
		SyncType:      buf[poolOffSyncType],
	}, true
}
