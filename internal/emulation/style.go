package emulation

// Style is the immutable text style implied by an SGR sequence:
// a foreground color from the fixed palette plus bold/underline flags.
// The zero value means "no style seen yet" and maps to the empty tag.
type Style struct {
	Color     string
	Bold      bool
	Underline bool
}

// DefaultStyle is the reset style — the plain white-on-black equivalent.
var DefaultStyle = Style{Color: "white"}

// Tag returns the rendering tag for the style, the name the presentation
// layer uses to configure color and weight: "ansi_red", "ansi_bold_green",
// "ansi_ul_cyan". The zero Style returns "".
func (s Style) Tag() string {
	if s.Color == "" {
		return ""
	}
	switch {
	case s.Bold:
		return "ansi_bold_" + s.Color
	case s.Underline:
		return "ansi_ul_" + s.Color
	}
	return "ansi_" + s.Color
}

// palette maps SGR foreground color codes to palette entries.
// 90 is the single honored bright extension ("gray"). Codes outside the
// palette fall back to the default white entry.
var palette = map[int]string{
	30: "black",
	31: "red",
	32: "green",
	33: "yellow",
	34: "blue",
	35: "magenta",
	36: "cyan",
	37: "white",
	90: "gray",
}

// ApplySGR derives a Style from an SGR parameter list.
//
// The first code selects a modifier — reset(0), bold(1) or underline(4).
// When a second code is present it selects the foreground color; with a
// single code the code itself is the color. Unknown color codes map to the
// default white entry; an empty list is a reset. Never errors.
func ApplySGR(params []int) Style {
	if len(params) == 0 {
		return DefaultStyle
	}

	st := DefaultStyle
	base := params[0]
	if len(params) > 1 {
		st.Bold = params[0] == 1
		st.Underline = params[0] == 4
		base = params[1]
	}
	if c, ok := palette[base]; ok {
		st.Color = c
	}
	return st
}

// Tracker maintains the current style across decoded chunks — the style
// implied by the most recent SGR sequence seen on the stream.
type Tracker struct {
	cur Style
}

// NewTracker creates a Tracker with no style applied yet.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Apply folds an SGR parameter list into the tracker and returns the
// resulting style.
func (t *Tracker) Apply(params []int) Style {
	t.cur = ApplySGR(params)
	return t.cur
}

// Current returns the style implied by the most recent SGR sequence,
// or the zero Style when none has been seen.
func (t *Tracker) Current() Style {
	return t.cur
}
