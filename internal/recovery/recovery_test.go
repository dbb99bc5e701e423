package recovery_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmbackend/pmbackend/internal/base"
	"github.com/pmbackend/pmbackend/internal/pmpool"
	"github.com/pmbackend/pmbackend/internal/recovery"
)

func newTestPool(t *testing.T) (*pmpool.Pool, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.pmb")
	p, err := pmpool.Create(pmpool.CreateOpts{
		Path:          path,
		DataSize:      256 * 1024,
		MetaSize:      64 * 1024,
		TxSlotsCount:  4,
		MaxKeyLen:     16,
		MaxValLen:     64,
		MetaMaxKeyLen: 16,
		MetaMaxValLen: 32,
		SyncType:      pmpool.SyncNoSync,
	})
	require.NoError(t, err)
	return p, path
}

func writeLiveBlock(t *testing.T, p *pmpool.Pool, id base.ID, key, val []byte) {
	t.Helper()
	buf := p.Direct(id)
	require.NotNil(t, buf)
	h := base.Header{Version: 1, KeyLen: uint32(len(key)), ValLen: uint32(len(val))}
	base.PutHeader(buf, h)
	_, _, region, ok := p.Layout.BlockOffset(id)
	require.True(t, ok)
	copy(buf[base.HeaderSize:], key)
	valOff := base.ValueOffset(region, h, p.Layout.MaxKeyLen)
	copy(buf[valOff:], val)
	key2, val2 := base.Spans(region, buf, h, p.Layout.MaxKeyLen)
	base.PutChecksum(buf, base.Checksum(h, key2, val2))
}

func TestRecoveryOfFreshPoolFreesEverything(t *testing.T) {
	p, path := newTestPool(t)
	defer func() { p.Close(); os.Remove(path) }()

	res, err := recovery.Run(context.Background(), p)
	require.NoError(t, err)
	require.EqualValues(t, p.Layout.DataNLBA, res.DataFree.Size())
	require.EqualValues(t, p.Layout.MetaNLBA, res.MetaFree.Size())
	require.EqualValues(t, p.Layout.TxSlotsCount, res.FreeSlots.Size())
}

func TestRecoveryExecutesCommittedSlot(t *testing.T) {
	p, path := newTestPool(t)
	defer func() { p.Close(); os.Remove(path) }()

	// Simulate: a write of a new version (id 2) already live, an UPDATE
	// entry recorded and committed in slot 1, but the crash happened before
	// Execute ran to retire the old version (id 1).
	writeLiveBlock(t, p, base.ID(1), []byte("k"), []byte("old"))
	writeLiveBlock(t, p, base.ID(2), []byte("k"), []byte("new"))

	slot := p.TxDirect(0)
	base.InitSlotHeader(slot)
	base.PutEntry(slot[base.SlotHeaderSize:], base.Entry{Op: base.OpUpdate, ID1: 1, ID2: 2})
	base.PutSlotSize(slot, base.SlotHeaderSize+base.EntryHeaderSize)
	base.PutSlotStatus(slot, base.SlotCommitted)
	base.PutChecksum(slot, base.SlotChecksum(slot))

	res, err := recovery.Run(context.Background(), p)
	require.NoError(t, err)

	// id 1 must have been retired by the replayed Execute.
	buf1 := p.Direct(base.ID(1))
	h1 := base.DecodeHeader(buf1)
	require.EqualValues(t, 0, h1.Checksum)

	require.EqualValues(t, p.Layout.TxSlotsCount, res.FreeSlots.Size())
}

func TestRecoveryAbortsProcessingSlot(t *testing.T) {
	p, path := newTestPool(t)
	defer func() { p.Close(); os.Remove(path) }()

	writeLiveBlock(t, p, base.ID(1), []byte("k"), []byte("v"))

	slot := p.TxDirect(0)
	base.InitSlotHeader(slot)
	base.PutEntry(slot[base.SlotHeaderSize:], base.Entry{Op: base.OpWrite, ID1: 1})
	base.PutSlotSize(slot, base.SlotHeaderSize+base.EntryHeaderSize)
	// status stays PROCESSING: the transaction never reached commit.

	res, err := recovery.Run(context.Background(), p)
	require.NoError(t, err)

	buf1 := p.Direct(base.ID(1))
	h1 := base.DecodeHeader(buf1)
	require.EqualValues(t, 0, h1.Checksum, "an uncommitted WRITE must be undone on recovery")
	require.EqualValues(t, p.Layout.TxSlotsCount, res.FreeSlots.Size())
}
