package poolutil_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmbackend/pmbackend"
	"github.com/pmbackend/pmbackend/poolutil"
	"github.com/pmbackend/pmbackend/vfs"
)

func testOptions(t *testing.T) pmbackend.Options {
	t.Helper()
	dir := t.TempDir()
	return pmbackend.Options{
		Path:          filepath.Join(dir, "pool.pmb"),
		DataSize:      20 * 1024 * 1024,
		MetaSize:      4 * 1024 * 1024,
		TxSlotsCount:  8,
		MaxKeyLen:     32,
		MaxValLen:     256,
		MetaMaxKeyLen: 16,
		MetaMaxValLen: 64,
		SyncType:      pmbackend.SyncNoSync,
	}
}

func TestCheckpointCopiesFile(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	tx, err := s.Begin()
	require.NoError(t, err)
	_, err = tx.Put([]byte("k"), []byte("v"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Execute())

	dest := filepath.Join(t.TempDir(), "checkpoint.pmb")
	require.NoError(t, poolutil.Checkpoint(s, vfs.Default, dest))

	dupOpts := testOptions(t)
	dupOpts.Path = dest
	dup, err := pmbackend.Open(dupOpts)
	require.NoError(t, err)
	defer dup.Close()

	_, val, err := dup.Get(1)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)
}

func TestBackupProducesNonEmptyArchive(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	tx, err := s.Begin()
	require.NoError(t, err)
	_, err = tx.Put([]byte("k"), []byte("v"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Execute())

	var buf bytes.Buffer
	require.NoError(t, poolutil.Backup(s, &buf))
	require.Greater(t, buf.Len(), 0)
}

func TestExportLiveSetCountsOnlyLiveBlocks(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	tx, err := s.Begin()
	require.NoError(t, err)
	idA, err := tx.Put([]byte("a"), []byte("1"), 0, 0)
	require.NoError(t, err)
	_, err = tx.Put([]byte("b"), []byte("2"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Execute())

	tx2, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.Delete(idA))
	require.NoError(t, tx2.Commit())
	require.NoError(t, tx2.Execute())

	var buf bytes.Buffer
	n, err := poolutil.ExportLiveSet(s, pmbackend.RegionData, &buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
