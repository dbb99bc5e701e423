package txlog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmbackend/pmbackend/internal/base"
	"github.com/pmbackend/pmbackend/internal/pmpool"
	"github.com/pmbackend/pmbackend/internal/rangeset"
	"github.com/pmbackend/pmbackend/internal/txlog"
)

func newTestPool(t *testing.T) *pmpool.Pool {
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
	t.Cleanup(func() { p.Close(); os.Remove(path) })
	return p
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

func isLive(p *pmpool.Pool, id base.ID) bool {
	buf := p.Direct(id)
	h := base.DecodeHeader(buf)
	_, _, region, _ := p.Layout.BlockOffset(id)
	key, val := base.Spans(region, buf, h, p.Layout.MaxKeyLen)
	return base.IsLive(h, key, val)
}

func setup(t *testing.T) (*pmpool.Pool, *txlog.Log, *rangeset.Set, *rangeset.Set) {
	t.Helper()
	p := newTestPool(t)
	dataFree, err := rangeset.New(1, p.Layout.DataNLBA)
	require.NoError(t, err)
	metaFree, err := rangeset.New(p.Layout.DataNLBA+1, p.Layout.DataNLBA+p.Layout.MetaNLBA)
	require.NoError(t, err)
	freeSlots, err := rangeset.New(1, uint64(p.Layout.TxSlotsCount))
	require.NoError(t, err)
	log := txlog.New(p, freeSlots, dataFree, metaFree)
	return p, log, dataFree, metaFree
}

func TestWriteCommitExecute(t *testing.T) {
	p, log, dataFree, _ := setup(t)

	id, ok := dataFree.Pop()
	require.True(t, ok)
	writeLiveBlock(t, p, base.ID(id), []byte("hello"), []byte("world"))
	require.True(t, isLive(p, base.ID(id)))

	tx, err := log.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.RecordWrite(base.ID(id)))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Execute())

	// A WRITE entry is a no-op on execute: the block stays live as-is.
	require.True(t, isLive(p, base.ID(id)))
}

func TestSmallUpdateAppliesAndBumpsVersion(t *testing.T) {
	p, log, dataFree, _ := setup(t)

	id, ok := dataFree.Pop()
	require.True(t, ok)
	writeLiveBlock(t, p, base.ID(id), []byte("k"), []byte("original-value"))

	tx, err := log.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.RecordSmallUpdate(base.ID(id), []byte("patched"), 0))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Execute())

	require.True(t, isLive(p, base.ID(id)))
	buf := p.Direct(base.ID(id))
	h := base.DecodeHeader(buf)
	require.EqualValues(t, 2, h.Version) // 1 at write + 1 bump from the small update
	_, _, region, _ := p.Layout.BlockOffset(base.ID(id))
	_, val := base.Spans(region, buf, h, p.Layout.MaxKeyLen)
	require.Equal(t, "patched", string(val[:len("patched")]))
}

func TestAbortFreesNewWrite(t *testing.T) {
	p, log, dataFree, _ := setup(t)

	id, ok := dataFree.Pop()
	require.True(t, ok)
	writeLiveBlock(t, p, base.ID(id), []byte("k"), []byte("v"))

	tx, err := log.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.RecordWrite(base.ID(id)))
	require.NoError(t, tx.Abort())

	require.False(t, isLive(p, base.ID(id)))
	got, ok := dataFree.Pop()
	require.True(t, ok)
	require.EqualValues(t, id, got)
}

func TestAbortPreservesUpdateOldVersion(t *testing.T) {
	p, log, dataFree, _ := setup(t)

	oldID, ok := dataFree.Pop()
	require.True(t, ok)
	writeLiveBlock(t, p, base.ID(oldID), []byte("k"), []byte("old"))

	newID, ok := dataFree.Pop()
	require.True(t, ok)
	writeLiveBlock(t, p, base.ID(newID), []byte("k"), []byte("new"))

	tx, err := log.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.RecordUpdate(base.ID(oldID), base.ID(newID)))
	require.NoError(t, tx.Abort())

	require.True(t, isLive(p, base.ID(oldID)), "old version must survive an aborted update")
	require.False(t, isLive(p, base.ID(newID)), "new version must be retired on abort")
}

func TestSlotReuseAfterExecute(t *testing.T) {
	_, log, dataFree, _ := setup(t)

	id, ok := dataFree.Pop()
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		tx, err := log.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.RecordRemove(base.ID(id))) // harmless against a zeroed block
		require.NoError(t, tx.Commit())
		require.NoError(t, tx.Execute())
	}
}
