package model

import "time"

// Weekday is one of the seven canonical weekday keys used by the layout.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// Weekdays lists the canonical keys in display order (Monday first).
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// FromTime returns the canonical key for a time.Weekday.
func FromTime(d time.Weekday) Weekday {
	return Weekdays[(int(d)+6)%7]
}

// Time returns the time.Weekday for w, or time.Sunday for an unknown key.
func (w Weekday) Time() time.Weekday {
	for i, d := range Weekdays {
		if d == w {
			return time.Weekday((i + 1) % 7)
		}
	}
	return time.Sunday
}

// Kind distinguishes a primary session (lecture) from a short companion
// session (tutorial, lab section).
type Kind string

const (
	KindPrimary   Kind = "PRIMARY"
	KindCompanion Kind = "COMPANION"
)

// Labels is opaque display data carried through the layout untouched.
type Labels struct {
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Subtitle  string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Location  string `json:"location,omitempty" yaml:"location,omitempty"`
	Secondary string `json:"secondary,omitempty" yaml:"secondary,omitempty"`
}

// RawMeeting is one weekly recurring class or tutorial occurrence as
// supplied by the enrollment side, after field names were canonicalized.
type RawMeeting struct {
	DayOfWeek string `json:"day_of_week" yaml:"day_of_week"`
	StartTime string `json:"start_time" yaml:"start_time"`
	EndTime   string `json:"end_time" yaml:"end_time"`

	// KindHint is an optional explicit type tag such as "TUTORIAL".
	KindHint string `json:"kind,omitempty" yaml:"kind,omitempty"`
	// IdentityHint is an optional stable id (slot id, ICS UID).
	IdentityHint string `json:"id,omitempty" yaml:"id,omitempty"`
	// GroupKey identifies the owning course; only used when IdentityHint is empty.
	GroupKey string `json:"group,omitempty" yaml:"group,omitempty"`

	Labels Labels `json:"labels" yaml:"labels"`
}

// TimeBlock is the engine's view of a RawMeeting. StartMinutes is minutes
// since midnight; positions relative to the visible window are computed by
// the positioner.
type TimeBlock struct {
	Day             Weekday `json:"day"`
	StartMinutes    int     `json:"start_minutes"`
	DurationMinutes int     `json:"duration_minutes"`
	Kind            Kind    `json:"kind"`
	IdentityKey     string  `json:"identity_key"`

	// Column and ClusterWidth are written by the overlap resolver only.
	Column       int `json:"column"`
	ClusterWidth int `json:"cluster_width"`

	// Record is the index of the source RawMeeting in the input slice.
	Record int `json:"record"`

	Labels Labels `json:"labels"`
}

// EndMinutes is the exclusive end of the block, minutes since midnight.
func (b TimeBlock) EndMinutes() int {
	return b.StartMinutes + b.DurationMinutes
}

// Overlaps reports whether the half-open intervals of a and b intersect.
func (b TimeBlock) Overlaps(o TimeBlock) bool {
	return b.StartMinutes < o.EndMinutes() && o.StartMinutes < b.EndMinutes()
}

// Geometry is what a rendering surface needs to draw a block: vertical
// fractions of the visible window and horizontal pixels inside the day column.
type Geometry struct {
	TopFraction    float64 `json:"top"`
	HeightFraction float64 `json:"height"`
	Left           float64 `json:"left"`
	Width          float64 `json:"width"`
}

// PositionedBlock is a TimeBlock with its geometry attached.
type PositionedBlock struct {
	TimeBlock
	Geometry Geometry `json:"geometry"`
}
