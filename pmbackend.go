// Package pmbackend implements an embedded, crash-consistent key-value
// storage engine over a single memory-mapped file: fixed-size block slots
// with a checksum-last durability protocol, a transaction log for
// multi-block atomicity, and two-phase crash recovery on open.
package pmbackend

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pmbackend/pmbackend/internal/base"
	"github.com/pmbackend/pmbackend/internal/metrics"
	"github.com/pmbackend/pmbackend/internal/pmpool"
	"github.com/pmbackend/pmbackend/internal/rangeset"
	"github.com/pmbackend/pmbackend/internal/recovery"
	"github.com/pmbackend/pmbackend/internal/txlog"
)

// ID is a 1-based block identifier, re-exported from internal/base so
// callers never hold an internal type.
type ID = base.ID

// Region distinguishes the data region from the meta region.
type Region = base.Region

const (
	RegionData = base.RegionData
	RegionMeta = base.RegionMeta
)

// Store is one open pool.
type Store struct {
	id   uuid.UUID
	opts Options

	pool     *pmpool.Pool
	log      *txlog.Log
	dataFree *rangeset.Set
	metaFree *rangeset.Set

	metrics *metrics.Collector
}

// Open creates the backing file at opts.Path if it does not yet exist, or
// maps and recovers an existing one. Reopening a pool with key/value
// limits or a different TxSlotsCount than the ones it was created with
// fails with an error whose code is CodeSuperblockInvalid.
func Open(opts Options) (*Store, error) {
	opts.ensureDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	_, statErr := os.Stat(opts.Path)
	switch {
	case os.IsNotExist(statErr):
		return create(opts)
	case statErr != nil:
		return nil, base.Wrapf(base.ErrCreateFailed, "stat %s: %s", opts.Path, statErr)
	default:
		return reopen(opts)
	}
}

func create(opts Options) (*Store, error) {
	pool, err := pmpool.Create(pmpool.CreateOpts{
		Path:          opts.Path,
		DataSize:      opts.DataSize,
		MetaSize:      opts.MetaSize,
		TxSlotsCount:  opts.TxSlotsCount,
		MaxKeyLen:     opts.MaxKeyLen,
		MaxValLen:     opts.MaxValLen,
		MetaMaxKeyLen: opts.MetaMaxKeyLen,
		MetaMaxValLen: opts.MetaMaxValLen,
		SyncType:      opts.SyncType,
		ThSyncPeriod:  opts.ThSyncPeriod,
	})
	if err != nil {
		return nil, err
	}

	dataFree, err := rangeset.New(1, pool.Layout.DataNLBA)
	if err != nil {
		pool.Close()
		return nil, err
	}
	metaFree, err := rangeset.New(pool.Layout.DataNLBA+1, pool.Layout.DataNLBA+pool.Layout.MetaNLBA)
	if err != nil {
		pool.Close()
		return nil, err
	}
	freeSlots, err := rangeset.New(1, uint64(pool.Layout.TxSlotsCount))
	if err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{
		id:       uuid.New(),
		opts:     opts,
		pool:     pool,
		log:      txlog.New(pool, freeSlots, dataFree, metaFree),
		dataFree: dataFree,
		metaFree: metaFree,
		metrics:  metrics.New(opts.MetricsNamespace),
	}
	s.refreshGauges()
	opts.Logger.Infof("pmbackend: created pool %s session=%s", opts.Path, s.id)
	return s, nil
}

func reopen(opts Options) (*Store, error) {
	pool, h, err := pmpool.OpenSized(opts.Path, opts.DataSize, opts.MetaSize)
	if err != nil {
		return nil, err
	}
	if err := validateHeader(h, opts); err != nil {
		pool.Close()
		return nil, err
	}

	res, err := recovery.Run(context.Background(), pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{
		id:       uuid.New(),
		opts:     opts,
		pool:     pool,
		log:      res.Log,
		dataFree: res.DataFree,
		metaFree: res.MetaFree,
		metrics:  metrics.New(opts.MetricsNamespace),
	}
	s.refreshGauges()
	opts.Logger.Infof("pmbackend: recovered pool %s session=%s", opts.Path, s.id)
	return s, nil
}

func validateHeader(h base.PoolHeader, opts Options) error {
	if h.MaxKeyLen != opts.MaxKeyLen || h.MaxValLen != opts.MaxValLen ||
		h.MetaMaxKeyLen != opts.MetaMaxKeyLen || h.MetaMaxValLen != opts.MetaMaxValLen {
		return base.Wrapf(base.ErrSuperblockInvalid,
			"pool %s was created with different key/value length limits", opts.Path)
	}
	if opts.TxSlotsCount != 0 && h.TxSlotsCount != opts.TxSlotsCount {
		return base.Wrapf(base.ErrSuperblockInvalid,
			"pool %s was created with %d tx slots, opened requesting %d",
			opts.Path, h.TxSlotsCount, opts.TxSlotsCount)
	}
	return nil
}

// Close flushes and unmaps the pool.
func (s *Store) Close() error {
	s.opts.Logger.Infof("pmbackend: closing pool %s session=%s", s.opts.Path, s.id)
	return s.pool.Close()
}

// Metrics exposes the store's prometheus collectors and latency snapshot.
func (s *Store) Metrics() *metrics.Collector { return s.metrics }

// NFree reports the number of currently free blocks in region.
func (s *Store) NFree(region Region) int64 {
	if region == RegionMeta {
		return int64(s.metaFree.Size())
	}
	return int64(s.dataFree.Size())
}

// NTotal reports the number of addressable blocks in region.
func (s *Store) NTotal(region Region) uint64 {
	if region == RegionMeta {
		return s.pool.Layout.MetaNLBA
	}
	return s.pool.Layout.DataNLBA
}

// Path returns the backing file path the store was opened with, for
// maintenance tooling (poolutil.Checkpoint, poolutil.Backup) that needs to
// read the file out from under the mapping.
func (s *Store) Path() string { return s.opts.Path }

// Flush is an explicit whole-pool durability fence, regardless of the
// configured SyncType — poolutil calls this before copying the backing
// file so a checkpoint or backup never observes writes the mapping has
// acknowledged but the sync policy hasn't yet pushed to the file.
func (s *Store) Flush() error { return s.pool.PersistAll() }

// FileRegions describes the backing file's byte ranges, for maintenance
// tooling (poolutil) that treats the transaction log and the bulk
// data+meta regions with different archival strategies: the tx-log is
// mostly zero bytes in steady state, the bulk regions are not.
type FileRegions struct {
	HeaderLength             uint64
	TxLogOffset, TxLogLength uint64
	BulkOffset, BulkLength   uint64
	TotalSize                uint64
}

// FileRegions reports s's current on-disk layout.
func (s *Store) FileRegions() FileRegions {
	l := s.pool.Layout
	return FileRegions{
		HeaderLength: l.TxLogOffset,
		TxLogOffset:  l.TxLogOffset,
		TxLogLength:  l.DataOffset - l.TxLogOffset,
		BulkOffset:   l.DataOffset,
		BulkLength:   l.TotalSize - l.DataOffset,
		TotalSize:    l.TotalSize,
	}
}

// ResolveConflict picks the winner between two candidate ids for the same
// logical key: the higher version wins, and a tie breaks toward the higher
// id for determinism. The loser is retired — its checksum zeroed and its id
// returned to the free allocator — so it stops being live and its block is
// reusable, mirroring the original's backend_set_zero/caslist_push pair. A
// missing side loses unconditionally with nothing to retire.
func (s *Store) ResolveConflict(id1, id2 ID) ID {
	b1, b2 := s.pool.Direct(id1), s.pool.Direct(id2)
	if b1 == nil {
		return id2
	}
	if b2 == nil {
		return id1
	}
	h1, h2 := base.DecodeHeader(b1), base.DecodeHeader(b2)

	winner, loser := id1, id2
	if h1.Version < h2.Version || (h1.Version == h2.Version && id2 > id1) {
		winner, loser = id2, id1
	}
	s.retire(loser)
	s.refreshGauges()
	return winner
}

// retire zeros id's checksum, persists the change, and returns id to the
// free allocator for the region it belongs to.
func (s *Store) retire(id ID) {
	buf := s.pool.Direct(id)
	off, size, region, ok := s.pool.Layout.BlockOffset(id)
	if !ok || buf == nil {
		return
	}
	base.ZeroChecksum(buf)
	s.pool.Persist(off, uint64(size))
	if region == RegionMeta {
		s.metaFree.Push(uint64(id))
	} else {
		s.dataFree.Push(uint64(id))
	}
}

// Get returns a copy of the live key and value stored at id. It fails with
// ErrNotFound if id is out of range or its block is not currently live.
func (s *Store) Get(id ID) (key, val []byte, err error) {
	buf := s.pool.Direct(id)
	off, _, region, ok := s.pool.Layout.BlockOffset(id)
	_ = off
	if buf == nil || !ok {
		return nil, nil, base.Wrapf(base.ErrNotFound, "get: block %d out of range", id)
	}

	maxKeyLen := s.opts.MaxKeyLen
	if region == RegionMeta {
		maxKeyLen = s.opts.MetaMaxKeyLen
	}
	h := base.DecodeHeader(buf)
	k, v := base.Spans(region, buf, h, maxKeyLen)
	if !base.IsLive(h, k, v) {
		return nil, nil, base.Wrapf(base.ErrNotFound, "get: block %d is not live", id)
	}

	s.metrics.Gets.Inc()
	keyOut, valOut := make([]byte, len(k)), make([]byte, len(v))
	copy(keyOut, k)
	copy(valOut, v)
	return keyOut, valOut, nil
}

// Inspect renders a block's header fields and liveness for debugging,
// mirroring the original's pmb_inspect stdout dump.
func (s *Store) Inspect(id ID) string {
	buf := s.pool.Direct(id)
	off, size, region, ok := s.pool.Layout.BlockOffset(id)
	if buf == nil || !ok {
		return fmt.Sprintf("id=%d: out of range", id)
	}

	maxKeyLen := s.opts.MaxKeyLen
	if region == RegionMeta {
		maxKeyLen = s.opts.MetaMaxKeyLen
	}
	h := base.DecodeHeader(buf)
	key, val := base.Spans(region, buf, h, maxKeyLen)
	live := base.IsLive(h, key, val)

	return fmt.Sprintf("id=%d region=%s offset=%d size=%d version=%d key_len=%d val_len=%d live=%t",
		id, region, off, size, h.Version, h.KeyLen, h.ValLen, live)
}

func (s *Store) refreshGauges() {
	s.metrics.FreeData.Set(float64(s.dataFree.Size()))
	s.metrics.LiveData.Set(float64(s.pool.Layout.DataNLBA - s.dataFree.Size()))
	s.metrics.FreeMeta.Set(float64(s.metaFree.Size()))
	s.metrics.LiveMeta.Set(float64(s.pool.Layout.MetaNLBA - s.metaFree.Size()))
}

// Tx is one in-flight transaction obtained from Store.Begin.
type Tx struct {
	store *Store
	tx    *txlog.Tx
}

// Begin claims a transaction slot. It fails with ErrNoSpace if every slot
// is already in use.
func (s *Store) Begin() (*Tx, error) {
	t, err := s.log.Begin()
	if err != nil {
		s.metrics.NoSpace.Inc()
		return nil, err
	}
	return &Tx{store: s, tx: t}, nil
}

// Slot reports the transaction's 1-based slot index.
func (tx *Tx) Slot() uint64 { return tx.tx.Slot() }

// Put writes key/val as a new data-region block, or — when updateID is
// non-zero — as a versioned successor to updateID. An update merges in
// updateID's existing bytes outside [offset, offset+len(val)), so a
// partial-region update never loses the untouched surrounding bytes. A
// non-zero updateID with a value shorter than Options.SmallUpdateThreshold
// instead takes the in-place fast path of spec.md §4.5: no new block is
// allocated, and the old block is patched directly once the transaction
// executes.
func (tx *Tx) Put(key, val []byte, offset uint32, updateID ID) (ID, error) {
	s := tx.store
	if len(key) == 0 || uint32(len(key)) > s.opts.MaxKeyLen {
		return 0, base.Wrapf(base.ErrBadArgs, "put: invalid key length %d", len(key))
	}
	if offset+uint32(len(val)) > s.opts.MaxValLen {
		return 0, base.Wrapf(base.ErrSizeExceeded, "put: value exceeds max_val_len")
	}
	if len(val) == 0 && offset != 0 {
		return 0, base.Wrapf(base.ErrBadArgs, "put: offset %d with empty value", offset)
	}

	if updateID != 0 && uint32(len(val)) < s.opts.SmallUpdateThreshold {
		if err := tx.tx.RecordSmallUpdate(updateID, val, offset); err != nil {
			return 0, err
		}
		s.opts.Logger.Infof("put(small) %s -> id %d", redactKey(key), updateID)
		return updateID, nil
	}

	var oldBuf []byte
	var oldHeader base.Header
	if updateID != 0 {
		oldBuf = s.pool.Direct(updateID)
		if oldBuf == nil {
			return 0, base.Wrapf(base.ErrNotFound, "put: update target %d not mapped", updateID)
		}
		oldHeader = base.DecodeHeader(oldBuf)
	}

	rawID, ok := s.dataFree.Pop()
	if !ok {
		s.metrics.NoSpace.Inc()
		return 0, base.Wrapf(base.ErrNoSpace, "put: no free data blocks")
	}
	newID := ID(rawID)
	buf := s.pool.Direct(newID)

	dataLen := offset + uint32(len(val))
	valLen := dataLen
	if updateID != 0 && oldHeader.ValLen > valLen {
		valLen = oldHeader.ValLen
	}

	h := base.Header{KeyLen: uint32(len(key)), ValLen: valLen, Version: 1}
	if updateID != 0 {
		h.Version = oldHeader.Version + 1
	}
	base.PutHeader(buf, h)
	copy(buf[base.HeaderSize:], key)

	valOff := base.ValueOffset(RegionData, h, s.opts.MaxKeyLen)
	if updateID != 0 && oldHeader.ValLen > 0 {
		_, oldVal := base.Spans(RegionData, oldBuf, oldHeader, s.opts.MaxKeyLen)
		beginning := offset
		if oldHeader.ValLen < beginning {
			beginning = oldHeader.ValLen
		}
		copy(buf[valOff:], oldVal[:beginning])
		if oldHeader.ValLen > dataLen {
			copy(buf[valOff+uint64(dataLen):], oldVal[dataLen:oldHeader.ValLen])
		}
	}
	if len(val) > 0 {
		copy(buf[valOff+uint64(offset):], val)
	}

	key2, val2 := base.Spans(RegionData, buf, h, s.opts.MaxKeyLen)
	base.PutChecksum(buf, base.Checksum(h, key2, val2))
	off, size, _, _ := s.pool.Layout.BlockOffset(newID)
	s.pool.Persist(off, uint64(size))

	if updateID != 0 {
		if err := tx.tx.RecordUpdate(updateID, newID); err != nil {
			return 0, err
		}
	} else if err := tx.tx.RecordWrite(newID); err != nil {
		return 0, err
	}

	s.metrics.Puts.Inc()
	s.opts.Logger.Infof("put %s -> id %d", redactKey(key), newID)
	return newID, nil
}

// PutMeta writes key/val as a new meta-region block, or a versioned
// successor to updateID. Unlike Put, there is no partial-region merge: a
// meta update always replaces the whole value.
func (tx *Tx) PutMeta(key, val []byte, updateID ID) (ID, error) {
	s := tx.store
	if len(key) == 0 || uint32(len(key)) > s.opts.MetaMaxKeyLen {
		return 0, base.Wrapf(base.ErrBadArgs, "put_meta: invalid key length %d", len(key))
	}
	if uint32(len(val)) > s.opts.MetaMaxValLen {
		return 0, base.Wrapf(base.ErrSizeExceeded, "put_meta: value exceeds meta_max_val_len")
	}

	version := uint32(1)
	if updateID != 0 {
		_, _, region, ok := s.pool.Layout.BlockOffset(updateID)
		if !ok || region != RegionMeta {
			return 0, base.Wrapf(base.ErrWrongRegion, "put_meta: update target %d is not a meta block", updateID)
		}
		oldBuf := s.pool.Direct(updateID)
		if oldBuf == nil {
			return 0, base.Wrapf(base.ErrNotFound, "put_meta: update target %d not mapped", updateID)
		}
		version = base.DecodeHeader(oldBuf).Version + 1
	}

	rawID, ok := s.metaFree.Pop()
	if !ok {
		s.metrics.NoSpace.Inc()
		return 0, base.Wrapf(base.ErrNoSpace, "put_meta: no free meta blocks")
	}
	newID := ID(rawID)
	buf := s.pool.Direct(newID)

	h := base.Header{KeyLen: uint32(len(key)), ValLen: uint32(len(val)), Version: version}
	base.PutHeader(buf, h)
	copy(buf[base.HeaderSize:], key)
	copy(buf[uint64(base.HeaderSize)+uint64(len(key)):], val)

	key2, val2 := base.Spans(RegionMeta, buf, h, s.opts.MetaMaxKeyLen)
	base.PutChecksum(buf, base.Checksum(h, key2, val2))
	off, size, _, _ := s.pool.Layout.BlockOffset(newID)
	s.pool.Persist(off, uint64(size))

	if updateID != 0 {
		if err := tx.tx.RecordUpdate(updateID, newID); err != nil {
			return 0, err
		}
	} else if err := tx.tx.RecordWrite(newID); err != nil {
		return 0, err
	}

	s.metrics.Puts.Inc()
	return newID, nil
}

// Delete stages the removal of id. It is a no-op with no error if id does
// not currently address a live block.
func (tx *Tx) Delete(id ID) error {
	if err := tx.tx.RecordRemove(id); err != nil {
		return err
	}
	tx.store.metrics.Deletes.Inc()
	return nil
}

// Commit marks the transaction COMMITTED and persists its checksum: the
// point after which its effects survive a crash even before Execute runs.
func (tx *Tx) Commit() error {
	start := time.Now()
	err := tx.tx.Commit()
	tx.store.metrics.ObserveCommit(time.Since(start))
	if err != nil {
		return err
	}
	tx.store.metrics.Commits.Inc()
	return nil
}

// Execute applies a committed transaction's effects and frees its slot.
func (tx *Tx) Execute() error {
	start := time.Now()
	err := tx.tx.Execute()
	tx.store.metrics.ObserveExecute(time.Since(start))
	if err != nil {
		return err
	}
	tx.store.metrics.Executes.Inc()
	tx.store.refreshGauges()
	return nil
}

// Abort undoes the transaction's new writes and frees its slot.
func (tx *Tx) Abort() error {
	if err := tx.tx.Abort(); err != nil {
		return err
	}
	tx.store.metrics.Aborts.Inc()
	tx.store.refreshGauges()
	return nil
}
