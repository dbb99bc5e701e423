package pmbackend

import "github.com/pmbackend/pmbackend/internal/base"

// Code is the flat error-kind table of the public API, re-exported from
// internal/base so callers never need to import an internal package to
// inspect it.
type Code = base.Code

const (
	CodeOK                    = base.CodeOK
	CodeGeneric               = base.CodeGeneric
	CodeNotFound              = base.CodeNotFound
	CodeNoSpace               = base.CodeNoSpace
	CodeCreateFailed          = base.CodeCreateFailed
	CodeSuperblockWriteFailed = base.CodeSuperblockWriteFailed
	CodeSuperblockCorrupt     = base.CodeSuperblockCorrupt
	CodeSuperblockInvalid     = base.CodeSuperblockInvalid
	CodeSizeExceeded          = base.CodeSizeExceeded
	CodeWrongRegion           = base.CodeWrongRegion
	CodeBadArgs               = base.CodeBadArgs
)

// sentinel errors usable with errors.Is.
var (
	ErrNotFound     = base.ErrNotFound
	ErrNoSpace      = base.ErrNoSpace
	ErrSizeExceeded = base.ErrSizeExceeded
	ErrWrongRegion  = base.ErrWrongRegion
	ErrBadArgs      = base.ErrBadArgs
)

// ErrorCode extracts the Code carried by an error returned from this
// package, mirroring the original library's pmb_strerror lookup table —
// Go's errors.Is already covers the sentinel-matching half of that API;
// this covers "what code would the C API have returned".
func ErrorCode(err error) Code {
	return base.AsCode(err)
}
