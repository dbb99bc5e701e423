package aws_test

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmbackend/pmbackend"
	"github.com/pmbackend/pmbackend/cloud/aws"
)

type fakeHelper struct {
	uploaded map[string][]byte
	failWith error
}

func newFakeHelper() *fakeHelper {
	return &fakeHelper{uploaded: make(map[string][]byte)}
}

func (f *fakeHelper) Upload(name string, body io.Reader) error {
	if f.failWith != nil {
		io.Copy(io.Discard, body)
		return f.failWith
	}
	buf, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploaded[name] = buf
	return nil
}

func (f *fakeHelper) Delete(name string) error {
	delete(f.uploaded, name)
	return nil
}

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

func TestUploadBackupStreamsArchive(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	tx, err := s.Begin()
	require.NoError(t, err)
	_, err = tx.Put([]byte("k"), []byte("v"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Execute())

	helper := newFakeHelper()
	require.NoError(t, aws.UploadBackup(s, helper, "snap-1"))

	body, ok := helper.uploaded["snap-1"]
	require.True(t, ok)
	require.Greater(t, len(body), 0)
	require.True(t, bytes.HasPrefix(body, []byte("PMBBKUP1")))
}

func TestUploadBackupPropagatesUploadError(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	helper := newFakeHelper()
	helper.failWith = errors.New("network unreachable")

	err = aws.UploadBackup(s, helper, "snap-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "network unreachable")
}
