//go:build !windows

package staging

import (
	"errors"
	"syscall"
)

// isLockError reports whether err is the platform's file-busy class: the
// kernel refused the rename because another process still holds the file.
func isLockError(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY)
}
