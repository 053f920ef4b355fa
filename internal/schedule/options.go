package schedule

const (
	DefaultGap                = 4
	DefaultPadding            = 4
	DefaultColumnWidth        = 180
	DefaultCompanionThreshold = 60
	DefaultCompanionTag       = "TUTORIAL"
)

// Options are the caller-supplied layout constants. The presentation layer
// owns the pixel values; the engine only does arithmetic with them.
type Options struct {
	// WindowStart is minutes since midnight of the first visible minute.
	WindowStart int
	// WindowLength is the visible span in minutes.
	WindowLength int

	// Gap separates side-by-side columns; Padding insets the day column.
	Gap     float64
	Padding float64
	// ColumnWidth is the pixel width available to one day.
	ColumnWidth float64

	CompanionThreshold int
	CompanionTag       string

	// ExcludeKinds drops records whose kind hint contains any entry
	// (e.g. "EXAM"). Matching is case-insensitive.
	ExcludeKinds []string
}

// DefaultOptions returns the 08:00-21:00 grid used by the portal.
func DefaultOptions() Options {
	return Options{
		WindowStart:        DefaultWindowStart,
		WindowLength:       DefaultWindowLength,
		Gap:                DefaultGap,
		Padding:            DefaultPadding,
		ColumnWidth:        DefaultColumnWidth,
		CompanionThreshold: DefaultCompanionThreshold,
		CompanionTag:       DefaultCompanionTag,
		ExcludeKinds:       []string{"EXAM"},
	}
}

// normalized fills zero or out-of-range values with defaults. A zero
// WindowStart is kept: midnight is a legal window start.
func (o Options) normalized() Options {
	if o.WindowStart < 0 || o.WindowStart >= 24*60 {
		o.WindowStart = DefaultWindowStart
	}
	if o.WindowLength <= 0 {
		o.WindowLength = DefaultWindowLength
	}
	if o.Gap < 0 {
		o.Gap = 0
	}
	if o.Padding < 0 {
		o.Padding = 0
	}
	if o.ColumnWidth <= 0 {
		o.ColumnWidth = DefaultColumnWidth
	}
	if o.CompanionThreshold <= 0 {
		o.CompanionThreshold = DefaultCompanionThreshold
	}
	if o.CompanionTag == "" {
		o.CompanionTag = DefaultCompanionTag
	}
	return o
}

// Window returns the visible window described by o.
func (o Options) Window() Window {
	o = o.normalized()
	return Window{Start: o.WindowStart, Length: o.WindowLength}
}
