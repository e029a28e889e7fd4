//go:build unix

package backup

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isFatalCopyError reports whether err means the destination cannot take
// any more data, so continuing with the remaining files is pointless.
func isFatalCopyError(err error) bool {
	return errors.Is(err, unix.ENOSPC) ||
		errors.Is(err, unix.EDQUOT) ||
		errors.Is(err, unix.EROFS)
}
