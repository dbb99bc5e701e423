package pmbackend

import (
	"time"

	"github.com/pmbackend/pmbackend/internal/base"
	"github.com/pmbackend/pmbackend/internal/pmpool"
)

// SyncType selects the durability policy applied to block writes, per
// spec.md §5. It mirrors internal/pmpool.SyncType one-for-one so callers
// never need to import an internal package just to configure a pool.
type SyncType = pmpool.SyncType

const (
	SyncSync    = pmpool.SyncSync
	SyncAsync   = pmpool.SyncAsync
	SyncSelSync = pmpool.SyncSelSync
	SyncThSync  = pmpool.SyncThSync
	SyncNoSync  = pmpool.SyncNoSync
)

// Logger is the minimal structured-logging seam the store writes through.
// A caller that wants its own log sink (e.g. routed through its own
// cockroachdb/errors-aware logger) implements this instead of accepting
// the default.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Options configures Open. TxSlotsCount and every *Len field are persisted
// in the pool's on-media header the first time a pool is created;
// reopening with a mismatched value is rejected (see Open). Path, DataSize
// and MetaSize are not stored: a reopen uses the DataSize and MetaSize it
// is given without checking them against the ones the pool was created
// with.
type Options struct {
	Path string

	DataSize uint64
	MetaSize uint64

	TxSlotsCount  uint8
	MaxKeyLen     uint32
	MaxValLen     uint32
	MetaMaxKeyLen uint32
	MetaMaxValLen uint32

	SyncType     SyncType
	ThSyncPeriod time.Duration

	// SmallUpdateThreshold caps the value length eligible for the
	// in-place small-update fast path of spec.md §4.5. Zero means
	// MaxValLen/2, the C original's literal threshold.
	SmallUpdateThreshold uint32

	Logger Logger

	// MetricsNamespace prefixes every exported prometheus metric name. An
	// empty value uses "pmbackend".
	MetricsNamespace string
}

func (o *Options) ensureDefaults() {
	if o.TxSlotsCount == 0 {
		o.TxSlotsCount = 16
	}
	if o.SmallUpdateThreshold == 0 {
		o.SmallUpdateThreshold = o.MaxValLen / 2
	}
	if o.MetricsNamespace == "" {
		o.MetricsNamespace = "pmbackend"
	}
	if o.Logger == nil {
		o.Logger = newStdLogger()
	}
}

func (o *Options) validate() error {
	if o.Path == "" {
		return base.Wrapf(base.ErrBadArgs, "options: path is required")
	}
	if o.MaxKeyLen == 0 || o.MetaMaxKeyLen == 0 {
		return base.Wrapf(base.ErrBadArgs, "options: max key length must be non-zero")
	}
	if o.DataSize == 0 && o.MetaSize == 0 {
		return base.Wrapf(base.ErrBadArgs, "options: data_size and meta_size cannot both be zero")
	}
	return nil
}

