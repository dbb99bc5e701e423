// Package vfs provides the minimal filesystem abstraction used for
// poolutil.Checkpoint's destination file. It intentionally does not cover
// the pool's own backing file, which is opened and mapped directly by
// internal/pmpool — this package only exists so checkpoint output can be
// redirected (e.g. to a staging directory) without hard-coding os.* calls
// in poolutil.
package vfs

import (
	"io"
	"os"
)

// File is the subset of *os.File that archive writers need.
type File interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Closer
	Stat() (os.FileInfo, error)
	Sync() error
}

// FS is a filesystem that can produce Files.
type FS interface {
	Create(name string) (File, error)
	Open(name string) (File, error)
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(dir string, perm os.FileMode) error
}

// Default is the real, os-backed filesystem.
var Default FS = osFS{}

type osFS struct{}

func (osFS) Create(name string) (File, error) { return os.Create(name) }
func (osFS) Open(name string) (File, error)    { return os.Open(name) }
func (osFS) Remove(name string) error          { return os.Remove(name) }
func (osFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}
func (osFS) MkdirAll(dir string, perm os.FileMode) error { return os.MkdirAll(dir, perm) }
