package base

import "github.com/cockroachdb/errors"

// Code is the flat error-kind table of the store's public API. Every
// operation boundary returns one of these, wrapped with context via
// github.com/cockroachdb/errors so that errors.Is still matches the
// sentinel below.
type Code uint8

const (
	CodeOK Code = iota
	CodeGeneric
	CodeNotFound
	CodeNoSpace
	CodeCreateFailed
	CodeSuperblockWriteFailed
	CodeSuperblockCorrupt
	CodeSuperblockInvalid
	CodeSizeExceeded
	CodeWrongRegion
	CodeBadArgs
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeGeneric:
		return "generic error"
	case CodeNotFound:
		return "no such live block"
	case CodeNoSpace:
		return "no space left in region"
	case CodeCreateFailed:
		return "pool create failed"
	case CodeSuperblockWriteFailed:
		return "superblock write failed"
	case CodeSuperblockCorrupt:
		return "superblock corrupt"
	case CodeSuperblockInvalid:
		return "superblock invalid"
	case CodeSizeExceeded:
		return "key or value exceeds configured maximum"
	case CodeWrongRegion:
		return "block id does not address the requested region"
	case CodeBadArgs:
		return "invalid arguments"
	default:
		return "unknown error"
	}
}

// codedError pairs a Code with the errors.Error chain so that both
// errors.Is(err, ErrNotFound) and inspecting the Code via AsCode work.
type codedError struct {
	code Code
	error
}

func (e *codedError) Unwrap() error { return e.error }

// sentinel values usable with errors.Is.
var (
	ErrGeneric             = &codedError{code: CodeGeneric, error: errors.New(CodeGeneric.String())}
	ErrNotFound            = &codedError{code: CodeNotFound, error: errors.New(CodeNotFound.String())}
	ErrNoSpace             = &codedError{code: CodeNoSpace, error: errors.New(CodeNoSpace.String())}
	ErrCreateFailed        = &codedError{code: CodeCreateFailed, error: errors.New(CodeCreateFailed.String())}
	ErrSuperblockWriteFail = &codedError{code: CodeSuperblockWriteFailed, error: errors.New(CodeSuperblockWriteFailed.String())}
	ErrSuperblockCorrupt   = &codedError{code: CodeSuperblockCorrupt, error: errors.New(CodeSuperblockCorrupt.String())}
	ErrSuperblockInvalid   = &codedError{code: CodeSuperblockInvalid, error: errors.New(CodeSuperblockInvalid.String())}
	ErrSizeExceeded        = &codedError{code: CodeSizeExceeded, error: errors.New(CodeSizeExceeded.String())}
	ErrWrongRegion         = &codedError{code: CodeWrongRegion, error: errors.New(CodeWrongRegion.String())}
	ErrBadArgs             = &codedError{code: CodeBadArgs, error: errors.New(CodeBadArgs.String())}
)

// Wrapf attaches additional context to one of the sentinels above while
// keeping it matchable with errors.Is, mirroring the teacher's
// errors.Newf/errors.Wrapf idiom.
func Wrapf(sentinel *codedError, format string, args ...interface{}) error {
	return &codedError{code: sentinel.code, error: errors.Wrapf(sentinel, format, args...)}
}

// CorruptionErrorf builds a CodeSuperblockCorrupt error with a formatted
// message, mirroring pebble's base.CorruptionErrorf.
func CorruptionErrorf(format string, args ...interface{}) error {
	return &codedError{code: CodeSuperblockCorrupt, error: errors.Newf(format, args...)}
}

// AsCode extracts the Code carried by an error produced by this package,
// returning CodeGeneric for any error that did not originate here.
func AsCode(err error) Code {
	if err == nil {
		return CodeOK
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return CodeGeneric
}
