package pmbackend

import "github.com/pmbackend/pmbackend/internal/base"

// Pair is one key/value entry staged for batch ingest.
type Pair struct {
	Key []byte
	Val []byte
}

func ingestValidatePair(opts *Options, region Region, p Pair) error {
	if len(p.Key) == 0 {
		return base.Wrapf(base.ErrBadArgs, "ingest: empty key")
	}
	maxKeyLen, maxValLen := opts.MaxKeyLen, opts.MaxValLen
	if region == RegionMeta {
		maxKeyLen, maxValLen = opts.MetaMaxKeyLen, opts.MetaMaxValLen
	}
	if uint32(len(p.Key)) > maxKeyLen {
		return base.Wrapf(base.ErrSizeExceeded, "ingest: key length %d exceeds max %d", len(p.Key), maxKeyLen)
	}
	if uint32(len(p.Val)) > maxValLen {
		return base.Wrapf(base.ErrSizeExceeded, "ingest: value length %d exceeds max %d", len(p.Val), maxValLen)
	}
	return nil
}

// IngestStats reports how a batch was split across transaction slots, for
// callers that want to size their own retry/backoff around no-space errors.
type IngestStats struct {
	Written      int
	Transactions int
}

// IngestPairs validates and writes every pair in pairs as a fresh block in
// region, splitting the batch across as many transaction slots as needed —
// each slot accumulates writes until its entry buffer is full or the batch
// ends, then commits and executes before the next slot is claimed. A
// validation failure on any pair aborts that pair's in-flight transaction
// (if one was open) and returns immediately, leaving every earlier
// already-executed transaction's writes in place: IngestPairs has no
// all-or-nothing contract across the whole batch, only within the
// transaction slot it happened to land in.
func IngestPairs(s *Store, region Region, pairs []Pair) ([]ID, IngestStats, error) {
	ids := make([]ID, 0, len(pairs))
	stats := IngestStats{}

	var tx *Tx
	flush := func() error {
		if tx == nil {
			return nil
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		if err := tx.Execute(); err != nil {
			return err
		}
		tx = nil
		return nil
	}

	for _, p := range pairs {
		if err := ingestValidatePair(&s.opts, region, p); err != nil {
			if tx != nil {
				_ = tx.Abort()
			}
			return ids, stats, err
		}

		if tx == nil {
			var err error
			tx, err = s.Begin()
			if err != nil {
				return ids, stats, err
			}
			stats.Transactions++
		}

		var id ID
		var err error
		if region == RegionMeta {
			id, err = tx.PutMeta(p.Key, p.Val, 0)
		} else {
			id, err = tx.Put(p.Key, p.Val, 0, 0)
		}
		if base.AsCode(err) == base.CodeSizeExceeded {
			// Slot ran out of entry-log space for this pair specifically;
			// flush what is staged and retry it against a fresh slot.
			if ferr := flush(); ferr != nil {
				return ids, stats, ferr
			}
			tx, err = s.Begin()
			if err != nil {
				return ids, stats, err
			}
			stats.Transactions++
			if region == RegionMeta {
				id, err = tx.PutMeta(p.Key, p.Val, 0)
			} else {
				id, err = tx.Put(p.Key, p.Val, 0, 0)
			}
		}
		if err != nil {
			_ = tx.Abort()
			return ids, stats, err
		}

		ids = append(ids, id)
		stats.Written++
	}

	if err := flush(); err != nil {
		return ids, stats, err
	}
	return ids, stats, nil
}
