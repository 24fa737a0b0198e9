package staging

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrFileNeverAppeared means the stability wait timed out before the
	// reported file ever existed on disk.
	ErrFileNeverAppeared = errors.New("staging: file never appeared")

	// ErrRenameContended means every rename attempt in the retry budget
	// failed with a retryable condition.
	ErrRenameContended = errors.New("staging: rename retries exhausted")

	// ErrRenameFatal means a rename failed in a way retrying cannot fix.
	ErrRenameFatal = errors.New("staging: rename failed")

	// ErrCopyFailed means the staging directory or the staged copy could
	// not be written.
	ErrCopyFailed = errors.New("staging: copy failed")

	// ErrGrayscaleConversion means the staged copy could not be decoded
	// or re-encoded as grayscale. The rename and copy are retained.
	ErrGrayscaleConversion = errors.New("staging: grayscale conversion failed")
)

// RenameError is a single classified rename failure. The Retryable tag is
// decided once, here, so the retry loop never inspects platform error
// codes itself.
type RenameError struct {
	From      string
	To        string
	Retryable bool
	Err       error
}

func (e *RenameError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("staging: rename %s -> %s (%s): %v", e.From, e.To, kind, e.Err)
}

// Unwrap maps the tag to its sentinel, so callers can use errors.Is with
// ErrRenameContended or ErrRenameFatal without touching the struct.
func (e *RenameError) Unwrap() error {
	if e.Retryable {
		return ErrRenameContended
	}
	return ErrRenameFatal
}

// classifyRename tags a failed rename. Lock contention on either path and
// a transiently missing source are retryable; everything else aborts the
// staging immediately.
func classifyRename(from, to string, err error) *RenameError {
	retryable := isLockError(err) || errors.Is(err, fs.ErrNotExist)
	return &RenameError{From: from, To: to, Retryable: retryable, Err: err}
}
