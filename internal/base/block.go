package base

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Region distinguishes the data region (variable-sized values, up to
// MaxValLen) from the meta region (small, tightly packed records).
type Region uint8

const (
	RegionData Region = iota
	RegionMeta
)

func (r Region) String() string {
	if r == RegionMeta {
		return "meta"
	}
	return "data"
}

// ID is a 1-based dense block identifier. 0 means "no such block".
type ID uint64

// HeaderSize is the on-media size of a block header:
// checksum(8) + version(4) + idTag(4) + keyLen(4) + valLen(4).
const HeaderSize = 24

const (
	offChecksum = 0
	offVersion  = 8
	offIDTag    = 12
	offKeyLen   = 16
	offValLen   = 20
)

// Header is the decoded form of a block's fixed header.
type Header struct {
	Checksum uint64
	Version  uint32
	IDTag    uint32
	KeyLen   uint32
	ValLen   uint32
}

// DecodeHeader reads a Header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) Header {
	_ = buf[HeaderSize-1]
	return Header{
		Checksum: binary.LittleEndian.Uint64(buf[offChecksum:]),
		Version:  binary.LittleEndian.Uint32(buf[offVersion:]),
		IDTag:    binary.LittleEndian.Uint32(buf[offIDTag:]),
		KeyLen:   binary.LittleEndian.Uint32(buf[offKeyLen:]),
		ValLen:   binary.LittleEndian.Uint32(buf[offValLen:]),
	}
}

// PutHeader encodes h into the first HeaderSize bytes of buf, leaving the
// checksum field untouched (callers install it last via PutChecksum).
func PutHeader(buf []byte, h Header) {
	_ = buf[HeaderSize-1]
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offIDTag:], h.IDTag)
	binary.LittleEndian.PutUint32(buf[offKeyLen:], h.KeyLen)
	binary.LittleEndian.PutUint32(buf[offValLen:], h.ValLen)
}

// PutChecksum writes the checksum field alone. Writers must call this last:
// a zero checksum field is how a block is retired, and the live predicate
// is "stored checksum equals recomputed checksum", which is trivially false
// while the checksum field is still zero.
func PutChecksum(buf []byte, checksum uint64) {
	binary.LittleEndian.PutUint64(buf[offChecksum:], checksum)
}

func ReadChecksum(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[offChecksum:])
}

// ZeroChecksum retires a block: the checksum field becomes zero, which is
// trivially dead under the live predicate regardless of the rest of the
// block's bytes.
func ZeroChecksum(buf []byte) {
	binary.LittleEndian.PutUint64(buf[offChecksum:], 0)
}

// Checksum computes the deterministic 64-bit fold over a block's content:
// the header fields after the checksum field itself (version, idTag,
// keyLen, valLen), followed by the key bytes and the value bytes. The key
// and value are passed as separate spans because in the data region they
// are not contiguous in the mapped file (the value sits at a fixed offset
// so that small in-place updates keep it aligned); in the meta region they
// happen to be contiguous, but the computation does not need to know that.
func Checksum(h Header, key, val []byte) uint64 {
	var tail [HeaderSize - 8]byte
	binary.LittleEndian.PutUint32(tail[offVersion-8:], h.Version)
	binary.LittleEndian.PutUint32(tail[offIDTag-8:], h.IDTag)
	binary.LittleEndian.PutUint32(tail[offKeyLen-8:], h.KeyLen)
	binary.LittleEndian.PutUint32(tail[offValLen-8:], h.ValLen)

	d := xxhash.New()
	d.Write(tail[:])
	d.Write(key)
	d.Write(val)
	return d.Sum64()
}

// IsLive reports whether the stored checksum equals the checksum computed
// over the header/key/val triple — the sole integrity witness for a block.
// A zeroed checksum (checksum == 0) is trivially dead without even hashing
// the rest of the block.
func IsLive(h Header, key, val []byte) bool {
	if h.Checksum == 0 {
		return false
	}
	return h.Checksum == Checksum(h, key, val)
}

// Spans locates the key and value byte ranges within a decoded block's raw
// buffer, following the header. The data region reserves a fixed maxKeyLen
// slot ahead of the value regardless of the actual key length, so that a
// small in-place value update never has to move the value's start offset;
// the meta region has no such reservation and packs the value immediately
// after the actual key bytes.
func Spans(region Region, buf []byte, h Header, maxKeyLen uint32) (key, val []byte) {
	key = buf[HeaderSize : HeaderSize+uint64(h.KeyLen)]
	if region == RegionData {
		valOff := uint64(HeaderSize) + uint64(maxKeyLen)
		val = buf[valOff : valOff+uint64(h.ValLen)]
		return key, val
	}
	valOff := uint64(HeaderSize) + uint64(h.KeyLen)
	val = buf[valOff : valOff+uint64(h.ValLen)]
	return key, val
}

// ValueOffset returns the byte offset of the value span relative to the
// start of a block's raw buffer, for callers (the small in-place update
// path) that need to address into the value without re-deriving KeyLen.
func ValueOffset(region Region, h Header, maxKeyLen uint32) uint64 {
	if region == RegionData {
		return uint64(HeaderSize) + uint64(maxKeyLen)
	}
	return uint64(HeaderSize) + uint64(h.KeyLen)
}

// RoundUp4KiB rounds n up to the next multiple of 4096.
func RoundUp4KiB(n uint64) uint64 {
	const align = 4096
	return (n + align - 1) &^ (align - 1)
}
