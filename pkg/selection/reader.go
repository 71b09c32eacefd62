package selection

// Phase is a step of the reader's interaction with a script.
type Phase int

const (
	Idle Phase = iota
	Selecting
	Resolved
	PanelOpen
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Resolved:
		return "resolved"
	case PanelOpen:
		return "panel_open"
	default:
		return "unknown"
	}
}

// Target is where a new annotation attaches: the focused line, and the range
// it was chosen from. A single focused line has Start == End == Line.
type Target struct {
	Line  int   `json:"line_index"`
	Range Range `json:"range"`
}

// LineTarget focuses a single line.
func LineTarget(i int) Target {
	return Target{Line: i, Range: Range{Start: i, End: i}}
}

// RangeTarget focuses the first line of r.
func RangeTarget(r Range) Target {
	return Target{Line: r.Start, Range: r}
}

// Reader is the selection state of one reader. It is a value: every
// transition returns the next state and leaves the receiver untouched.
type Reader struct {
	phase  Phase
	target Target
}

// Phase returns the current phase.
func (r Reader) Phase() Phase { return r.phase }

// Target returns the line a new annotation would attach to. Only resolved
// selections and open panels have one.
func (r Reader) Target() (Target, bool) {
	if r.phase == Resolved || r.phase == PanelOpen {
		return r.target, true
	}
	return Target{}, false
}

// PointerDown starts a selection inside the content. An open panel keeps its
// target until it is closed.
func (r Reader) PointerDown() Reader {
	if r.phase == PanelOpen {
		return r
	}
	return Reader{phase: Selecting}
}

// PointerUp ends a selection. A selection that does not resolve to lines
// returns the reader to Idle.
func (r Reader) PointerUp(sel Selection) Reader {
	if r.phase != Selecting {
		return r
	}
	rng, ok := Resolve(sel)
	if !ok {
		return Reader{phase: Idle}
	}
	return Reader{phase: Resolved, target: RangeTarget(rng)}
}

// FocusLine opens the panel directly on one line, as the per-line comment
// button does.
func (r Reader) FocusLine(i int) Reader {
	if i < 0 {
		return r
	}
	return Reader{phase: PanelOpen, target: LineTarget(i)}
}

// OpenPanel opens the annotation panel on the resolved selection.
func (r Reader) OpenPanel() (Reader, bool) {
	switch r.phase {
	case Resolved:
		return Reader{phase: PanelOpen, target: r.target}, true
	case PanelOpen:
		return r, true
	default:
		return r, false
	}
}

// Close dismisses the panel or selection.
func (r Reader) Close() Reader {
	return Reader{phase: Idle}
}
