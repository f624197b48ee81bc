package queue

import (
	"strings"

	"golang.org/x/text/cases"
)

// Two entries are dispatched per batch and a batch takes about three hours.
const (
	entriesPerBatch = 2
	hoursPerBatch   = 3
)

// EstimateWaitHours returns the expected wait, in hours, for a queue holding
// n entries that are registered or processing. Odd remainders are dropped.
func EstimateWaitHours(n int) int {
	if n <= 0 {
		return 0
	}
	return ((n - n%entriesPerBatch) / entriesPerBatch) * hoursPerBatch
}

// zeroByteNotice is the text the next API puts in its message when one of the
// forwarded results is an empty file.
const zeroByteNotice = "archivo de 0 KB"

// HasZeroByteNotice reports whether message carries the zero-byte file notice,
// ignoring case.
func HasZeroByteNotice(message string) bool {
	folder := cases.Fold()
	return strings.Contains(folder.String(message), folder.String(zeroByteNotice))
}
