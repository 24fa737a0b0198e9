//go:build windows

package staging

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isLockError reports whether err is a sharing or lock violation: another
// process still has the file open without FILE_SHARE_DELETE, which is the
// usual state while a capture tool finishes writing.
func isLockError(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
