// Package aws uploads pmbackend backup archives to S3. The teacher's
// original cloud/aws package transparently intercepted every sstable file
// write and sync through a vfs.FS/vfs.File proxy, since pebble's storage is
// a directory of many small immutable files being rewritten constantly by
// compaction. pmbackend has no such file population to intercept — it is
// one backing file under one mapping — so there is nothing to proxy
// transparently. Instead this package uploads a deliberate, complete backup
// archive on request, built by poolutil.Backup.
package aws

import (
	"io"

	"github.com/pmbackend/pmbackend"
	"github.com/pmbackend/pmbackend/cloud/common"
	"github.com/pmbackend/pmbackend/poolutil"
)

// UploadBackup streams a poolutil.Backup archive of s straight into S3
// under name, without ever buffering the whole archive on local disk: the
// archive writer and the S3 multipart uploader are connected through an
// io.Pipe running on its own goroutine.
func UploadBackup(s *pmbackend.Store, helper common.S3Helper, name string) error {
	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- helper.Upload(name, pr)
	}()

	if err := poolutil.Backup(s, pw); err != nil {
		pw.CloseWithError(err)
		<-done
		return err
	}
	if err := pw.Close(); err != nil {
		<-done
		return err
	}
	return <-done
}
