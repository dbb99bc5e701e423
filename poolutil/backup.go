// Package poolutil implements offline maintenance operations over an
// already-open store: point-in-time checkpoints and compressed backup
// archives of the backing file, and a streaming export of just the live
// key/value set.
package poolutil

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/DataDog/zstd"
	"github.com/golang/snappy"

	"github.com/pmbackend/pmbackend"
	"github.com/pmbackend/pmbackend/vfs"
)

// backupMagic tags the start of a Backup archive so Restore-style tooling
// can sanity-check its input before committing to decoding it.
const backupMagic = "PMBBKUP1"

// Checkpoint flushes s and then copies its backing file to destPath, on fs.
// It does not wait for or block in-flight transactions, so a transaction
// still in progress is copied as it stands. It is the cheap option when no
// compression is wanted, e.g. a snapshot immediately before an in-place upgrade. The
// source read always goes through the real filesystem (the backing file is
// mmap'd by internal/pmpool directly, never through vfs.FS), but the
// destination goes through fs so callers can redirect or intercept it —
// cloud/aws does not currently need to (it uploads archives explicitly via
// UploadBackup instead), but a staging-directory fs.FS is a natural future
// caller.
func Checkpoint(s *pmbackend.Store, fs vfs.FS, destPath string) error {
	if err := s.Flush(); err != nil {
		return err
	}
	src, err := os.Open(s.Path())
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fs.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		fs.Remove(destPath)
		return err
	}
	return dst.Close()
}

// Backup writes a compressed archive of s's backing file to w: a magic
// marker and the total size, then the header region raw (small and already
// a fixed size), the transaction-log region snappy-compressed (it is
// mostly zero bytes in steady state, where snappy's lower CPU cost beats
// zstd's better ratio), and finally the data+meta regions zstd-compressed.
// s.Flush is called first so the archive reflects every acknowledged
// write, matching the C test harness's practice of requiring a clean,
// deliberate snapshot rather than racing the mapping.
func Backup(s *pmbackend.Store, w io.Writer) error {
	if err := s.Flush(); err != nil {
		return err
	}
	f, err := os.Open(s.Path())
	if err != nil {
		return err
	}
	defer f.Close()

	regions := s.FileRegions()
	if _, err := io.WriteString(w, backupMagic); err != nil {
		return err
	}
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], regions.TotalSize)
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}

	if _, err := io.CopyN(w, io.NewSectionReader(f, 0, int64(regions.HeaderLength)), int64(regions.HeaderLength)); err != nil {
		return err
	}

	sw := snappy.NewBufferedWriter(w)
	txLog := io.NewSectionReader(f, int64(regions.TxLogOffset), int64(regions.TxLogLength))
	if _, err := io.CopyN(sw, txLog, int64(regions.TxLogLength)); err != nil {
		return err
	}
	if err := sw.Close(); err != nil {
		return err
	}

	zw := zstd.NewWriter(w)
	bulk := io.NewSectionReader(f, int64(regions.BulkOffset), int64(regions.BulkLength))
	if _, err := io.CopyN(zw, bulk, int64(regions.BulkLength)); err != nil {
		return err
	}
	return zw.Close()
}
