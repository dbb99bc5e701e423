// Package recovery implements the two-phase crash recovery of spec.md §7,
// run once when a pool is opened: Phase R1 single-threadedly replays every
// non-empty transaction slot to a terminal state, and Phase R2 scans the
// full block id space in parallel to rebuild the free-id allocators from
// the blocks' own checksums, the sole source of truth for liveness.
package recovery

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pmbackend/pmbackend/internal/base"
	"github.com/pmbackend/pmbackend/internal/pmpool"
	"github.com/pmbackend/pmbackend/internal/rangeset"
	"github.com/pmbackend/pmbackend/internal/txlog"
)

// Shards is the fan-out of Phase R2's live-set scan across the block id
// space. It only affects how long reopen takes, never correctness, so it
// is a package constant rather than something plumbed through Options.
const Shards = 8

// Result is everything a freshly opened store needs before it can serve
// requests.
type Result struct {
	DataFree  *rangeset.Set
	MetaFree  *rangeset.Set
	FreeSlots *rangeset.Set
	Log       *txlog.Log
}

// Run executes both recovery phases against a freshly mapped pool.
func Run(ctx context.Context, pool *pmpool.Pool) (*Result, error) {
	dataFree, metaFree, err := scanLiveSet(ctx, pool)
	if err != nil {
		return nil, base.Wrapf(base.ErrGeneric, "live-set scan: %s", err)
	}

	freeSlots, err := rangeset.New(1, uint64(pool.Layout.TxSlotsCount))
	if err != nil {
		return nil, base.Wrapf(base.ErrGeneric, "tx slot scan: %s", err)
	}
	log := txlog.New(pool, freeSlots, dataFree, metaFree)

	if err := replaySlotLog(pool, log); err != nil {
		return nil, base.Wrapf(base.ErrGeneric, "tx log replay: %s", err)
	}

	return &Result{DataFree: dataFree, MetaFree: metaFree, FreeSlots: freeSlots, Log: log}, nil
}

// replaySlotLog is Phase R1: a single-threaded walk of every transaction
// slot. A COMMITTED slot's transaction was durable but never finished
// applying; Execute finishes it. A PROCESSING slot never reached commit and
// is discarded; an ABORTED slot crashed mid-undo. Both resume through
// Abort, which tolerates being re-entered against an already-ABORTED slot.
// This must run before any concurrent access begins: Execute/Abort mutate
// the very free lists Phase R2 just built, and slots are replayed in a
// fixed, deterministic order.
func replaySlotLog(pool *pmpool.Pool, log *txlog.Log) error {
	for idx := uint64(1); idx <= uint64(pool.Layout.TxSlotsCount); idx++ {
		buf := log.SlotBuf(idx)
		if buf == nil {
			continue
		}
		switch base.DecodeSlotStatus(buf) {
		case base.SlotEmpty:
			continue
		case base.SlotCommitted:
			if err := log.Resume(idx).Execute(); err != nil {
				return err
			}
		case base.SlotProcessing, base.SlotAborted:
			if err := log.Resume(idx).Abort(); err != nil {
				return err
			}
		}
	}
	return nil
}

// scanLiveSet is Phase R2: every block id in the pool is checked against
// its own checksum, sharded across Shards concurrent workers since each
// id's liveness is independent of every other's. A block not live (dead or
// never written — a freshly created pool's blocks all have a zero
// checksum, the cheapest possible case, so this doubles as the "nothing
// has ever been written here" fast path) is added to its region's free
// list.
func scanLiveSet(ctx context.Context, pool *pmpool.Pool) (dataFree, metaFree *rangeset.Set, err error) {
	dataFree, err = rangeset.New(0, 0)
	if err != nil {
		return nil, nil, err
	}
	metaFree, err = rangeset.New(0, 0)
	if err != nil {
		return nil, nil, err
	}

	last := uint64(pool.Layout.LastID())
	if last == 0 {
		return dataFree, metaFree, nil
	}

	g, _ := errgroup.WithContext(ctx)
	shardLen := (last + Shards - 1) / Shards
	for s := uint64(0); s < Shards; s++ {
		begin := s*shardLen + 1
		if begin > last {
			break
		}
		end := begin + shardLen - 1
		if end > last {
			end = last
		}
		begin, end := begin, end
		g.Go(func() error {
			return scanShard(pool, base.ID(begin), base.ID(end), dataFree, metaFree)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return dataFree, metaFree, nil
}

func scanShard(pool *pmpool.Pool, begin, end base.ID, dataFree, metaFree *rangeset.Set) error {
	for id := begin; id <= end; id++ {
		buf := pool.Direct(id)
		if buf == nil {
			continue
		}
		_, _, region, ok := pool.Layout.BlockOffset(id)
		if !ok {
			continue
		}
		h := base.DecodeHeader(buf)
		key, val := base.Spans(region, buf, h, pool.Layout.MaxKeyLen)
		if base.IsLive(h, key, val) {
			continue
		}
		if region == base.RegionData {
			dataFree.Push(uint64(id))
		} else {
			metaFree.Push(uint64(id))
		}
	}
	return nil
}
