package schedule

import (
	"strings"

	"weekgrid/internal/model"
)

var weekdayByName = map[string]model.Weekday{
	"MONDAY":    model.Monday,
	"TUESDAY":   model.Tuesday,
	"WEDNESDAY": model.Wednesday,
	"THURSDAY":  model.Thursday,
	"FRIDAY":    model.Friday,
	"SATURDAY":  model.Saturday,
	"SUNDAY":    model.Sunday,
}

var separatorStripper = strings.NewReplacer("_", "", " ", "", "-", "", "\t", "")

// ClassifyDay maps a full English weekday name in any case, with optional
// underscore/space/hyphen separators, to its canonical key. Abbreviations
// are not in the domain and report false.
func ClassifyDay(s string) (model.Weekday, bool) {
	key := strings.ToUpper(separatorStripper.Replace(strings.TrimSpace(s)))
	d, ok := weekdayByName[key]
	return d, ok
}

// ClassifyKind decides PRIMARY vs COMPANION. An explicit hint wins: it is
// COMPANION exactly when it equals the companion tag (case-insensitive).
// Without a hint, sessions of at most CompanionThreshold minutes are
// companions. durationMinutes <= 0 is an INVALID_INTERVAL.
func ClassifyKind(hint string, durationMinutes int, opts Options) (model.Kind, error) {
	if durationMinutes <= 0 {
		return "", &ParseError{Kind: KindInvalidInterval, Record: -1, Field: "end_time"}
	}

	opts = opts.normalized()
	hint = strings.ToUpper(strings.TrimSpace(hint))
	if hint != "" {
		if hint == strings.ToUpper(opts.CompanionTag) {
			return model.KindCompanion, nil
		}
		return model.KindPrimary, nil
	}

	if durationMinutes <= opts.CompanionThreshold {
		return model.KindCompanion, nil
	}
	return model.KindPrimary, nil
}

// excludedKind reports the first ExcludeKinds entry contained in hint.
func excludedKind(hint string, opts Options) (string, bool) {
	hint = strings.ToUpper(strings.TrimSpace(hint))
	if hint == "" {
		return "", false
	}
	for _, ex := range opts.ExcludeKinds {
		ex = strings.ToUpper(strings.TrimSpace(ex))
		if ex != "" && strings.Contains(hint, ex) {
			return ex, true
		}
	}
	return "", false
}
