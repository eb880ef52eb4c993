package emulation

import (
	"fmt"
	"strings"

	vte "github.com/danielgatis/go-vte"
)

// =============================================================================
// Event types
// =============================================================================

// EventKind identifies the type of a decoded terminal event.
type EventKind int

const (
	// EventLiteral is a run of printable text to be rendered verbatim.
	EventLiteral EventKind = iota

	// EventSGR is a Select Graphic Rendition sequence (CSI ... m).
	// Params carries the numeric parameter list; empty means reset.
	EventSGR

	// EventCursor is a cursor movement sequence: CSI H/f (move to row/col)
	// or CSI A-D (relative movement). The writer treats it as a signal that
	// the shell is about to repaint in place.
	EventCursor

	// EventErase is an erase sequence: CSI J (display) or CSI K (line).
	EventErase

	// EventBackspace is a bare backspace control byte (0x08).
	EventBackspace

	// EventBell is a bare bell control byte (0x07). Discarded.
	EventBell

	// EventOSC is an Operating System Command payload (window title etc.),
	// terminated by BEL or ST. Text holds the payload.
	EventOSC

	// EventPasteToggle is bracketed paste mode on/off (CSI ?2004h / ?2004l).
	EventPasteToggle

	// EventCursorQuery is a cursor position report request (CSI 6n).
	// It must never reach the visible buffer.
	EventCursorQuery
)

// Event is a single decoded terminal event.
type Event struct {
	Kind   EventKind
	Text   string // literal run or OSC payload
	Params []int  // SGR parameter list; repeat count for cursor/erase
	Final  rune   // CSI final byte for EventCursor / EventErase
	On     bool   // bracketed paste enabled
}

// String returns a human-readable representation for debugging.
func (e Event) String() string {
	switch e.Kind {
	case EventLiteral:
		return fmt.Sprintf("Literal(%q)", e.Text)
	case EventSGR:
		return fmt.Sprintf("SGR(%v)", e.Params)
	case EventCursor:
		return fmt.Sprintf("Cursor(%c %v)", e.Final, e.Params)
	case EventErase:
		return fmt.Sprintf("Erase(%c %v)", e.Final, e.Params)
	case EventOSC:
		return fmt.Sprintf("OSC(%q)", e.Text)
	case EventPasteToggle:
		return fmt.Sprintf("PasteToggle(%v)", e.On)
	case EventCursorQuery:
		return "CursorQuery"
	case EventBackspace:
		return "Backspace"
	case EventBell:
		return "Bell"
	}
	return "Unknown"
}

// IsControl reports whether the event signals an in-place repaint by the
// remote shell (cursor movement, erase, backspace). The writer uses it to
// decide whether the next literal run retracts previous output.
func (e Event) IsControl() bool {
	switch e.Kind {
	case EventCursor, EventErase, EventBackspace:
		return true
	}
	return false
}

// =============================================================================
// Decoder
// =============================================================================

// Decoder parses a raw terminal byte stream into ordered Events.
// It wraps github.com/danielgatis/go-vte which implements the Paul Williams
// state machine for DEC VT hardware terminals.
//
// The parser state persists across Decode calls, so an escape sequence split
// across two read chunks is reassembled: bytes after an unterminated escape
// introducer stay inside the state machine until the terminator arrives in
// a later chunk.
//
// One Decoder per session. Not safe for concurrent use.
type Decoder struct {
	parser *vte.Parser
	sink   *eventSink
}

// NewDecoder creates a Decoder with fresh parser state.
func NewDecoder() *Decoder {
	s := &eventSink{}
	return &Decoder{parser: vte.NewParser(s), sink: s}
}

// Decode consumes the next chunk of the stream and returns the events it
// completed. Adjacent printable characters coalesce into a single
// EventLiteral run. Never fails: malformed or unrecognized sequences are
// re-emitted as literal text.
func (d *Decoder) Decode(chunk []byte) []Event {
	d.sink.events = nil
	for _, b := range chunk {
		d.parser.Advance(b)
	}
	d.sink.flush()
	return d.sink.events
}

// =============================================================================
// eventSink — bridges vte callbacks to the Event slice
// =============================================================================

type eventSink struct {
	events []Event
	run    strings.Builder // pending literal run
}

func (s *eventSink) flush() {
	if s.run.Len() == 0 {
		return
	}
	s.events = append(s.events, Event{Kind: EventLiteral, Text: s.run.String()})
	s.run.Reset()
}

func (s *eventSink) emit(e Event) {
	s.flush()
	s.events = append(s.events, e)
}

func (s *eventSink) Print(r rune) {
	s.run.WriteRune(r)
}

func (s *eventSink) Execute(b byte) {
	switch b {
	case 0x08:
		s.emit(Event{Kind: EventBackspace})
	case 0x07:
		s.emit(Event{Kind: EventBell})
	case '\n', '\r', '\t':
		s.run.WriteByte(b)
	default:
		// Other C0 controls carry no visible content.
	}
}

func (s *eventSink) CsiDispatch(params [][]uint16, intermediates []byte, ignore bool, r rune) {
	flat := flattenParams(params)
	private := len(intermediates) > 0 && intermediates[0] == '?'

	switch {
	case r == 'm' && !private:
		s.emit(Event{Kind: EventSGR, Params: flat})
	case (r == 'H' || r == 'f' || (r >= 'A' && r <= 'D')) && !private:
		s.emit(Event{Kind: EventCursor, Params: flat, Final: r})
	case (r == 'J' || r == 'K') && !private:
		s.emit(Event{Kind: EventErase, Params: flat, Final: r})
	case r == 'n' && !private && len(flat) > 0 && flat[0] == 6:
		s.emit(Event{Kind: EventCursorQuery})
	case (r == 'h' || r == 'l') && private && len(flat) > 0 && flat[0] == 2004:
		s.emit(Event{Kind: EventPasteToggle, On: r == 'h'})
	default:
		// Lenient by default: anything we do not honor passes through as
		// literal text instead of being silently swallowed.
		s.run.WriteString(reconstructCSI(params, intermediates, r))
	}
}

func (s *eventSink) EscDispatch(intermediates []byte, ignore bool, b byte) {
	// Bare ESC sequences (charset selection, keypad modes) are not part of
	// the honored subset — pass them through as literal text.
	s.run.WriteString("\x1b" + string(intermediates) + string(b))
}

func (s *eventSink) OscDispatch(params [][]byte, bellTerminated bool) {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = string(p)
	}
	s.emit(Event{Kind: EventOSC, Text: strings.Join(parts, ";")})
}

// Hook, Put, Unhook handle DCS sequences (tmux/screen passthrough).
// Outside the honored subset — dropped, they never carry shell output here.
func (s *eventSink) Hook(_ [][]uint16, _ []byte, _ bool, _ rune)           {}
func (s *eventSink) Put(_ byte)                                            {}
func (s *eventSink) Unhook()                                               {}
func (s *eventSink) SosPmApcDispatch(_ vte.SosPmApcKind, _ []byte, _ bool) {}

// flattenParams joins vte sub-parameter groups into a flat int list.
// For simple sequences like CSI 1;31m, params = [[1],[31]] → [1, 31].
func flattenParams(params [][]uint16) []int {
	var out []int
	for _, group := range params {
		for _, v := range group {
			out = append(out, int(v))
		}
	}
	return out
}

// reconstructCSI rebuilds the original byte form of an unhonored CSI
// sequence so it can pass through as literal text.
func reconstructCSI(params [][]uint16, intermediates []byte, final rune) string {
	var b strings.Builder
	b.WriteString("\x1b[")
	b.Write(intermediates)
	for i, group := range params {
		if i > 0 {
			b.WriteByte(';')
		}
		for j, v := range group {
			if j > 0 {
				b.WriteByte(':')
			}
			fmt.Fprintf(&b, "%d", v)
		}
	}
	b.WriteRune(final)
	return b.String()
}
