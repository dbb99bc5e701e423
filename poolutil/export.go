package poolutil

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/pmbackend/pmbackend"
)

// ExportLiveSet drains every live key/value pair in region, as of
// Store.Iterator's open-time snapshot, into a length-prefixed stream
// compressed with klauspost/compress/zstd's pure-Go encoder. Unlike
// Backup, which copies the whole file and wants the pool flushed and
// effectively quiesced first, ExportLiveSet is meant to run against a
// store still taking writes — it never touches the backing file directly,
// only Get calls through the normal read path.
func ExportLiveSet(s *pmbackend.Store, region pmbackend.Region, w io.Writer) (int, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, err
	}
	defer enc.Close()

	it := s.Iterator(region)
	defer it.Close()

	var lenBuf [4]byte
	count := 0
	for it.Valid() {
		_, key, val, err := it.Get()
		if err != nil {
			// Retired between the snapshot and this read; skip it.
			it.Next()
			continue
		}

		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(key)))
		if _, err := enc.Write(lenBuf[:]); err != nil {
			return count, err
		}
		if _, err := enc.Write(key); err != nil {
			return count, err
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(val)))
		if _, err := enc.Write(lenBuf[:]); err != nil {
			return count, err
		}
		if _, err := enc.Write(val); err != nil {
			return count, err
		}

		count++
		it.Next()
	}
	return count, nil
}
