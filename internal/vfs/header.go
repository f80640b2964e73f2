package vfs

import "strings"

const (
	// labelPrefix starts the synthetic header line prepended to every message.
	labelPrefix = "X-Label: "
	// labelOverflow replaces the tag list when it cannot fit the budget.
	labelOverflow = "ERROR"
)

// DefaultHeaderBudget is the fixed byte size of the synthetic header block.
const DefaultHeaderBudget = 1024

// minHeaderBudget is the smallest budget that can always hold the prefix,
// the overflow fallback and the trailing newline.
const minHeaderBudget = len(labelPrefix) + len(labelOverflow) + 1

// renderLabelHeader fills buf, whose length is the header budget, with the
// synthetic label line: prefix, comma-joined tags, space padding, and a
// newline in the final byte. A tag list that cannot fit within budget-1
// bytes is replaced by the overflow fallback, never truncated.
func renderLabelHeader(buf []byte, tags []string) {
	budget := len(buf)
	joined := strings.Join(tags, ",")
	if len(labelPrefix)+len(joined) > budget-1 {
		joined = labelOverflow
	}

	n := copy(buf, labelPrefix)
	n += copy(buf[n:], joined)
	for i := n; i < budget-1; i++ {
		buf[i] = ' '
	}
	buf[budget-1] = '\n'
}
