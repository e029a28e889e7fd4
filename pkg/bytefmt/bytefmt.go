// Package bytefmt renders byte counts with binary (1024) units.
package bytefmt

import (
	"fmt"
	"strconv"
)

var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// FormatBytes renders n with two decimals, e.g. "1.50 KB". Plain bytes have
// no decimals and negative values keep their sign.
func FormatBytes(n int64) string {
	return formatBytes(n, 2)
}

func formatBytes(n int64, decimals int) string {
	if n == 0 {
		return "0 B"
	}
	if n < 0 {
		// Go through uint64 so math.MinInt64 does not overflow.
		return "-" + formatUnsigned(uint64(-(n+1))+1, decimals)
	}
	return formatUnsigned(uint64(n), decimals)
}

func formatUnsigned(n uint64, decimals int) string {
	size := float64(n)
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return strconv.FormatUint(n, 10) + " B"
	}
	return fmt.Sprintf("%.*f %s", decimals, size, units[unit])
}
