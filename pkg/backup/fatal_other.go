//go:build !unix

package backup

// isFatalCopyError never aborts a copy on platforms without errno values
// for a full or read-only destination.
func isFatalCopyError(err error) bool {
	return false
}
