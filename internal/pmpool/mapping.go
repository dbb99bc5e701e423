package pmpool

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pmbackend/pmbackend/internal/base"
)

// CreateOpts configures a freshly created pool. See Options in the top
// level package for the public-facing equivalent; this is the subset
// pmpool needs to lay out the file.
type CreateOpts struct {
	Path          string
	DataSize      uint64
	MetaSize      uint64
	TxSlotsCount  uint8
	MaxKeyLen     uint32
	MaxValLen     uint32
	MetaMaxKeyLen uint32
	MetaMaxValLen uint32
	SyncType      SyncType
	ThSyncPeriod  time.Duration
}

// Pool owns the backing file and its memory mapping. It is the sole piece
// of the engine that does pointer arithmetic into mapped memory; everything
// above it works with []byte slices it hands out, scoped to one operation.
type Pool struct {
	ID     uuid.UUID
	Layout Layout

	file *os.File
	data []byte // the full mapping, file offset 0 == data[0]
	mu   sync.Mutex

	isPmem bool

	thsyncCancel context.CancelFunc
	thsyncDone   chan struct{}
}

// Create makes a brand new pool file, writes and persists its header, and
// maps it. It fails with base.ErrCreateFailed if the file already exists or
// cannot be allocated, or base.ErrBadArgs for a nonsensical size request.
func Create(opts CreateOpts) (*Pool, error) {
	if opts.MaxKeyLen == 0 || opts.MetaMaxKeyLen == 0 {
		return nil, base.Wrapf(base.ErrBadArgs, "max key length must be non-zero")
	}

	dataBSize := DataBlockSize(opts.MaxKeyLen, opts.MaxValLen)
	metaBSize := MetaBlockSize(opts.MetaMaxKeyLen, opts.MetaMaxValLen)

	h := base.PoolHeader{
		Major:         base.FormatMajor,
		Compat:        base.FormatCompat,
		Incompat:      base.FormatIncompat,
		ROCompat:      base.FormatROCompat,
		DataBSize:     dataBSize,
		MetaBSize:     metaBSize,
		MaxKeyLen:     opts.MaxKeyLen,
		MaxValLen:     opts.MaxValLen,
		MetaMaxKeyLen: opts.MetaMaxKeyLen,
		MetaMaxValLen: opts.MetaMaxValLen,
		TxSlotsCount:  opts.TxSlotsCount,
		TxSlotSize:    dataBSize,
		SyncType:      uint8(opts.SyncType),
	}
	layout := ComputeLayout(h, opts.DataSize, opts.MetaSize)

	f, err := os.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, base.Wrapf(base.ErrCreateFailed, "create %s: %s", opts.Path, err)
	}
	if err := f.Truncate(int64(layout.TotalSize)); err != nil {
		f.Close()
		os.Remove(opts.Path)
		return nil, base.Wrapf(base.ErrCreateFailed, "truncate %s: %s", opts.Path, err)
	}

	data, isPmem, err := mmapFile(f, layout.TotalSize)
	if err != nil {
		f.Close()
		os.Remove(opts.Path)
		return nil, base.Wrapf(base.ErrCreateFailed, "mmap %s: %s", opts.Path, err)
	}

	h.Encode(data[:base.HeaderAligned])
	p := &Pool{
		ID:     uuid.New(),
		Layout: layout,
		file:   f,
		data:   data,
		isPmem: isPmem,
	}
	if err := p.msync(0, base.HeaderAligned, true); err != nil {
		p.unmap()
		f.Close()
		os.Remove(opts.Path)
		return nil, base.Wrapf(base.ErrSuperblockWriteFail, "%s", err)
	}

	p.startBackgroundSync(opts.ThSyncPeriod)
	return p, nil
}

// Open maps an existing pool file, verifying its signature and format
// version. It takes no region sizes and checks none; see OpenSized.
func Open(path string) (*Pool, base.PoolHeader, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, base.PoolHeader{}, base.Wrapf(base.ErrCreateFailed, "open %s: %s", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, base.PoolHeader{}, base.Wrapf(base.ErrCreateFailed, "stat %s: %s", path, err)
	}

	hdrBuf := make([]byte, base.HeaderAligned)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, base.PoolHeader{}, base.Wrapf(base.ErrSuperblockCorrupt, "read header: %s", err)
	}
	h, ok := base.DecodePoolHeader(hdrBuf)
	if !ok {
		f.Close()
		return nil, base.PoolHeader{}, errors.Mark(base.ErrSuperblockInvalid, errors.New("bad signature"))
	}
	if h.Incompat != base.FormatIncompat {
		f.Close()
		return nil, base.PoolHeader{}, base.Wrapf(base.ErrSuperblockInvalid,
			"incompatible format: pool has %d, binary supports %d", h.Incompat, base.FormatIncompat)
	}

	// A single flat file holds header+txlog+data+meta contiguously; Open
	// alone cannot recover the data/meta split (the header deliberately
	// stores no redundant nlba fields, per spec.md §6), so it falls back to
	// treating the whole remainder as data region. Callers that know the
	// original sizes should use OpenSized instead.
	layout := layoutFromFileSize(h, uint64(fi.Size()))

	data, isPmem, err := mmapFile(f, layout.TotalSize)
	if err != nil {
		f.Close()
		return nil, base.PoolHeader{}, base.Wrapf(base.ErrSuperblockCorrupt, "mmap: %s", err)
	}

	p := &Pool{
		ID:     uuid.New(),
		Layout: layout,
		file:   f,
		data:   data,
		isPmem: isPmem,
	}
	p.startBackgroundSync(0)
	return p, h, nil
}

// layoutFromFileSize derives a layout for Open from the file size alone.
// The header does not persist data_nlba/meta_nlba or the data region's
// byte length, so the data/meta split cannot be recovered from the file;
// OpenSized's caller supplies the original data/meta sizes instead.
func layoutFromFileSize(h base.PoolHeader, fileSize uint64) Layout {
	// Treat the whole remaining file as data region. OpenSized replaces
	// this immediately after with the caller-supplied split.
	txLogBytes := uint64(h.TxSlotsCount) * uint64(h.TxSlotSize)
	remaining := fileSize - base.HeaderAligned - txLogBytes
	return ComputeLayout(h, remaining, 0)
}

// OpenSized is the real entry point used by the store facade: it maps the
// file and then recomputes the layout using the caller's data/meta size
// split, which must match what Create was given. The split is not stored in
// the file, so it is not checked here or by pmbackend.Open.
func OpenSized(path string, dataSize, metaSize uint64) (*Pool, base.PoolHeader, error) {
	p, h, err := Open(path)
	if err != nil {
		return nil, base.PoolHeader{}, err
	}
	p.Layout = ComputeLayout(h, dataSize, metaSize)
	return p, h, nil
}

// Direct returns the byte slice backing block id, or nil if id is out of
// range. The slice aliases the mapping directly: callers must not retain it
// past the operation that obtained it.
func (p *Pool) Direct(id base.ID) []byte {
	off, size, _, ok := p.Layout.BlockOffset(id)
	if !ok {
		return nil
	}
	return p.data[off : off+uint64(size)]
}

// TxDirect returns the byte slice backing the zero-based tx slot index.
func (p *Pool) TxDirect(idx uint64) []byte {
	off, ok := p.Layout.TxSlotOffset(idx)
	if !ok {
		return nil
	}
	return p.data[off : off+uint64(p.Layout.TxSlotSize)]
}

// Memcpy copies src into the mapping starting at the given absolute offset
// and applies the pool's durability policy to the touched range — the
// Go-side equivalent of memcpy + persist(dst, n) for a pmem target.
func (p *Pool) Memcpy(dstOffset uint64, src []byte) {
	copy(p.data[dstOffset:], src)
	p.persistRange(dstOffset, uint64(len(src)))
}

// Persist is an explicit durability barrier over [addr, addr+len), applying
// the pool's configured sync policy.
func (p *Pool) Persist(offset, length uint64) {
	p.persistRange(offset, length)
}

// PersistAll is a whole-pool durability fence, unconditionally, regardless
// of sync mode — used by SYNC-mode writes and by deliberate checkpoint
// operations that must not rely on a lazy background thread.
func (p *Pool) PersistAll() error {
	return p.msync(0, uint64(len(p.data)), true)
}

func (p *Pool) persistRange(offset, length uint64) {
	switch SyncType(p.Layout.SyncType) {
	case SyncSync:
		_ = p.msync(0, uint64(len(p.data)), true)
	case SyncSelSync:
		_ = p.msync(offset, length, true)
	case SyncAsync:
		_ = p.msync(offset, length, false)
	case SyncThSync, SyncNoSync:
		// THSYNC relies on the background goroutine; NOSYNC never persists.
	}
}

// IsPmem reports whether the mapping was established on true persistent
// memory (as opposed to a regular file requiring explicit msync).
func (p *Pool) IsPmem() bool { return p.isPmem }

func (p *Pool) startBackgroundSync(period time.Duration) {
	if SyncType(p.Layout.SyncType) != SyncThSync {
		return
	}
	if period <= 0 {
		period = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.thsyncCancel = cancel
	p.thsyncDone = make(chan struct{})
	go func() {
		defer close(p.thsyncDone)
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = p.PersistAll()
			}
		}
	}()
}

// Close flushes, unmaps, and closes the backing file. It joins the
// background sync goroutine (if any) cooperatively before returning.
func (p *Pool) Close() error {
	if p.thsyncCancel != nil {
		p.thsyncCancel()
		<-p.thsyncDone
	}
	if SyncType(p.Layout.SyncType) != SyncNoSync {
		_ = p.PersistAll()
	}
	if err := p.unmap(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
