// Package roster adapts enrollment/roster documents into the engine's
// canonical model.RawMeeting shape.
//
// Sources disagree on field naming (dayOfWeek vs day_of_week, courses vs
// course) and nesting (a flat list of time slots, or enrollments holding a
// course holding its time slots). All of that is resolved here so the
// layout engine only ever sees one shape.
package roster

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	appLog "weekgrid/internal/log"
	"weekgrid/internal/model"
)

var ErrUnrecognized = errors.New("roster: unrecognized document shape")

// Field aliases after canonicalKey (lowercase, no separators).
var (
	dayKeys        = []string{"dayofweek", "day", "weekday"}
	startKeys      = []string{"starttime", "start"}
	endKeys        = []string{"endtime", "end"}
	kindKeys       = []string{"type", "slottype", "kind"}
	idKeys         = []string{"id", "slotid", "timeslotid", "uid"}
	locationKeys   = []string{"location", "room", "venue"}
	courseKeys     = []string{"course", "courses"}
	slotListKeys   = []string{"timeslots", "slots", "meetings"}
	codeKeys       = []string{"coursecode", "code"}
	nameKeys       = []string{"coursename", "name", "title"}
	groupKeys      = []string{"courseid", "groupkey", "group"}
	instructorKeys = []string{"instructor", "users", "teacher"}
	personKeys     = []string{"fullname", "name"}
	wrapperKeys    = []string{"data", "enrollments", "items"}
)

// Skip describes a roster item that produced no meeting.
type Skip struct {
	// Path locates the item, e.g. $[2] or $[0].course.time_slots[1].
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (s Skip) String() string {
	return s.Path + ": " + s.Reason
}

const (
	SkipNotObject = "not an object"
	SkipNoSlot    = "no time slot fields and no slot list"
)

// Decode parses a JSON or YAML roster document. Items that cannot become a
// meeting are reported in the returned skips; they never fail the document.
func Decode(data []byte) ([]model.RawMeeting, []Skip, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil, errors.New("roster: empty document")
	}

	var doc any
	if trimmed[0] == '{' || trimmed[0] == '[' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, nil, fmt.Errorf("roster: decode json: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, fmt.Errorf("roster: decode yaml: %w", err)
	}
	return FromValue(doc)
}

// FromValue adapts an already-decoded document (maps, slices, scalars).
func FromValue(doc any) ([]model.RawMeeting, []Skip, error) {
	a := &adapter{out: []model.RawMeeting{}}
	switch v := doc.(type) {
	case nil:
	case []any:
		a.list("$", v)
	case map[string]any:
		if _, _, ok := listAt(v, slotListKeys); ok || isSlot(v) || hasCourse(v) {
			a.item("$", v)
			break
		}
		if key, list, ok := listAt(v, wrapperKeys); ok {
			a.list("$."+key, list)
			break
		}
		return nil, nil, ErrUnrecognized
	default:
		return nil, nil, ErrUnrecognized
	}
	return a.out, a.skips, nil
}

type adapter struct {
	out   []model.RawMeeting
	skips []Skip
}

func (a *adapter) skip(path, reason string) {
	a.skips = append(a.skips, Skip{Path: path, Reason: reason})
}

func (a *adapter) list(path string, list []any) {
	for i, item := range list {
		p := fmt.Sprintf("%s[%d]", path, i)
		m, ok := item.(map[string]any)
		if !ok {
			a.skip(p, SkipNotObject)
			continue
		}
		a.item(p, m)
	}
}

// item adapts one object: an enrollment (a slot list on the object or on
// its nested course), a time slot (optionally carrying its course as a
// nested object), or a holder of a course list.
func (a *adapter) item(path string, m map[string]any) {
	courseKey, nested := lookupKey(m, courseKeys)
	cm, _ := nested.(map[string]any)

	if key, slots, ok := listAt(cm, slotListKeys); ok {
		a.slots(path+"."+courseKey+"."+key, slots, courseFrom(cm))
		return
	}
	if key, slots, ok := listAt(m, slotListKeys); ok {
		holder := m
		if cm != nil {
			holder = cm
		}
		a.slots(path+"."+key, slots, courseFrom(holder))
		return
	}
	if isSlot(m) {
		c := course{}
		if cm != nil {
			c = courseFrom(cm)
		}
		a.out = append(a.out, fromSlot(m, c))
		return
	}
	if courses, ok := nested.([]any); ok {
		a.list(path+"."+courseKey, courses)
		return
	}
	a.skip(path, SkipNoSlot)
}

func (a *adapter) slots(path string, slots []any, c course) {
	for i, s := range slots {
		sm, ok := s.(map[string]any)
		if !ok {
			a.skip(fmt.Sprintf("%s[%d]", path, i), SkipNotObject)
			continue
		}
		a.out = append(a.out, fromSlot(sm, c))
	}
}

// course carries the labels a slot inherits from its owning course.
type course struct {
	id, code, name, instructor string
}

func courseFrom(holder map[string]any) course {
	c := course{
		id:         scalar(lookup(holder, []string{"id"})),
		code:       scalar(lookup(holder, codeKeys)),
		name:       scalar(lookup(holder, nameKeys)),
		instructor: person(lookup(holder, instructorKeys)),
	}
	if g := scalar(lookup(holder, groupKeys)); g != "" {
		c.id = g
	}
	return c
}

func fromSlot(m map[string]any, c course) model.RawMeeting {
	group := firstNonEmpty(scalar(lookup(m, codeKeys)), scalar(lookup(m, groupKeys)), c.code, c.id)
	return model.RawMeeting{
		DayOfWeek:    scalar(lookup(m, dayKeys)),
		StartTime:    scalar(lookup(m, startKeys)),
		EndTime:      scalar(lookup(m, endKeys)),
		KindHint:     scalar(lookup(m, kindKeys)),
		IdentityHint: scalar(lookup(m, idKeys)),
		GroupKey:     group,
		Labels: model.Labels{
			Title:     firstNonEmpty(scalar(lookup(m, codeKeys)), c.code, scalar(lookup(m, []string{"title"}))),
			Subtitle:  firstNonEmpty(scalar(lookup(m, []string{"coursename"})), c.name),
			Location:  scalar(lookup(m, locationKeys)),
			Secondary: firstNonEmpty(person(lookup(m, instructorKeys)), c.instructor),
		},
	}
}

func isSlot(m map[string]any) bool {
	return lookup(m, dayKeys) != nil || lookup(m, startKeys) != nil
}

func hasCourse(m map[string]any) bool {
	switch lookup(m, courseKeys).(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// listAt returns the first list found under one of keys.
func listAt(m map[string]any, keys []string) (string, []any, bool) {
	key, v := lookupKey(m, keys)
	list, ok := v.([]any)
	return key, list, ok
}

// person extracts a display name from a string or a user object.
func person(v any) string {
	if m, ok := v.(map[string]any); ok {
		return scalar(lookup(m, personKeys))
	}
	return scalar(v)
}

func lookup(m map[string]any, keys []string) any {
	_, v := lookupKey(m, keys)
	return v
}

// lookupKey returns the key and value of the first alias in keys present
// in m. Several spellings of one alias (dayOfWeek and day_of_week) resolve
// to the lexically smallest key.
func lookupKey(m map[string]any, keys []string) (string, any) {
	for _, want := range keys {
		var matches []string
		for k, v := range m {
			if v != nil && canonicalKey(k) == want {
				matches = append(matches, k)
			}
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			slices.Sort(matches)
			appLog.Warn("roster: ambiguous field spellings", "field", want, "keys", strings.Join(matches, ","), "using", matches[0])
		}
		return matches[0], m[matches[0]]
	}
	return "", nil
}

var keyStripper = strings.NewReplacer("_", "", "-", "", " ", "")

func canonicalKey(k string) string {
	return strings.ToLower(keyStripper.Replace(k))
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
