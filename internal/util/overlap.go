package util

// NewLines isolates the lines added to a pane snapshot after the previous
// snapshot. The pane scrolls and partially re-renders, so the old content is
// usually not a prefix of the new content; a naive set difference would
// re-surface unchanged scrolled-past lines. Instead we find the longest
// suffix of before that is also a prefix of after — everything past that
// overlap is genuinely new.
func NewLines(before, after []string) []string {
	if len(before) == 0 {
		return after
	}
	if len(after) == 0 {
		return nil
	}

	maxOverlap := len(before)
	if len(after) < maxOverlap {
		maxOverlap = len(after)
	}

	for k := maxOverlap; k > 0; k-- {
		if linesEqual(before[len(before)-k:], after[:k]) {
			return after[k:]
		}
	}

	// No overlap found - everything is new.
	return after
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
