package schedule

import (
	"strconv"
	"strings"

	"weekgrid/internal/model"
)

// IdentityKey builds the dedup key of a meeting: its explicit id when it has
// one, otherwise a composite of owning course, day, start, duration and kind.
func IdentityKey(identityHint, groupKey string, day model.Weekday, startMinutes, durationMinutes int, kind model.Kind) string {
	if id := strings.TrimSpace(identityHint); id != "" {
		return "id:" + id
	}
	return "composite:" + strings.Join([]string{
		strings.TrimSpace(groupKey),
		string(day),
		strconv.Itoa(startMinutes),
		strconv.Itoa(durationMinutes),
		string(kind),
	}, "|")
}

// Dedup keeps the first block for every IdentityKey, preserving input order.
// It returns the survivors and how many duplicates were discarded.
func Dedup(blocks []model.TimeBlock) ([]model.TimeBlock, int) {
	seen := make(map[string]struct{}, len(blocks))
	out := make([]model.TimeBlock, 0, len(blocks))
	for _, b := range blocks {
		if _, dup := seen[b.IdentityKey]; dup {
			continue
		}
		seen[b.IdentityKey] = struct{}{}
		out = append(out, b)
	}
	return out, len(blocks) - len(out)
}
