// Package console owns the UI-side terminal pipeline: the visible buffer
// with its cursor-reconciling writer, the input line editor, and the
// queue/pump bridge between the receive goroutine and the UI thread.
package console

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"portside/internal/emulation"
)

// Span is a contiguous run of buffer text rendered under a single tag.
// An empty Tag means plain (default) rendering.
type Span struct {
	Text string
	Tag  string
}

// Writer owns the visible terminal buffer and reconciles decoded output
// against it. Remote shells frequently repaint a line in place — on
// backspace, tab completion or prompt redraw — by emitting bare backspaces
// or cursor movement instead of a clean erase-and-rewrite. The writer
// decides, from the decoded event stream, whether the next literal run
// replaces previously rendered characters or appends.
//
// The retraction amount is a heuristic: the count of locally typed
// characters since the last retraction plus the size of the last rendered
// chunk (one character when both are zero). It models "the shell is
// repainting what it already drew" rather than literal backspace counting,
// and is known to produce off-by-one artifacts on multi-character redraws.
// A row/column cursor model would be exact; the heuristic is kept for
// rendering compatibility.
//
// Touched only by the UI goroutine. Not safe for concurrent use.
type Writer struct {
	spans     []Span
	length    int // buffer length in runes
	lineStart int // rune offset where the submittable input line begins

	styles *emulation.Tracker

	// Pending edit state. written counts locally typed characters since the
	// last retraction point, lastSize the runes of the last rendered chunk.
	written  int
	lastSize int
	retract  bool

	// Optional presentation hooks, fired as the buffer changes.
	onAppend  func(Span)
	onRetract func(runes int)
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{styles: emulation.NewTracker()}
}

// OnAppend registers a hook called for every span appended to the buffer.
func (w *Writer) OnAppend(fn func(Span)) { w.onAppend = fn }

// OnRetract registers a hook called after characters are removed.
func (w *Writer) OnRetract(fn func(runes int)) { w.onRetract = fn }

// Apply feeds one decoded chunk into the buffer.
//
// Styling is armed per chunk: a literal run is tagged only when an SGR
// sequence preceded it within the same chunk, and then only its first
// whitespace-delimited token carries the tag — prompts are a single colored
// token followed by plain user text, and this asymmetry preserves their
// coloring without styling whole output blocks. Runs in chunks without SGR
// are appended verbatim. The style tracker itself persists across chunks.
func (w *Writer) Apply(events []emulation.Event) {
	activeTag := ""
	for _, ev := range events {
		switch ev.Kind {
		case emulation.EventSGR:
			activeTag = w.styles.Apply(ev.Params).Tag()
		case emulation.EventCursor, emulation.EventErase, emulation.EventBackspace:
			// The shell is repainting — the next literal run retracts first.
			w.retract = true
		case emulation.EventOSC:
			// Title sequences precede a fresh prompt; render as a line break.
			w.append("\n", "")
		case emulation.EventLiteral:
			w.writeLiteral(ev.Text, activeTag)
		case emulation.EventBell, emulation.EventPasteToggle, emulation.EventCursorQuery:
			// Housekeeping only. The position query is deliberately ignored,
			// never forwarded to the buffer.
		}
	}
	w.lineStart = w.length
}

// writeLiteral applies one literal run, retracting first when armed.
func (w *Writer) writeLiteral(text, tag string) {
	if w.retract {
		n := w.written + w.lastSize
		if n == 0 {
			n = 1
		}
		w.retractRunes(n)
		w.written, w.lastSize = 0, 0
		w.retract = false
	}
	w.lastSize = utf8.RuneCountInString(text)

	if tag == "" {
		w.append(text, "")
		return
	}

	// First token tagged, the rest plain. Whitespace-only runs have no
	// token to tag — fall back to inserting the run verbatim so no bytes
	// are ever lost, even if they render unstyled.
	tokens := splitTokens(text)
	if len(tokens) == 0 {
		w.append(text, "")
		return
	}
	w.append(tokens[0]+" ", tag)
	if rest := strings.Join(tokens[1:], " "); rest != "" {
		w.append(rest, "")
	}
}

// append adds text to the end of the buffer under tag, coalescing with the
// previous span when the tag matches.
func (w *Writer) append(text, tag string) {
	if text == "" {
		return
	}
	if n := len(w.spans); n > 0 && w.spans[n-1].Tag == tag {
		w.spans[n-1].Text += text
	} else {
		w.spans = append(w.spans, Span{Text: text, Tag: tag})
	}
	w.length += utf8.RuneCountInString(text)
	if w.onAppend != nil {
		w.onAppend(Span{Text: text, Tag: tag})
	}
}

// retractRunes removes up to n runes ending at the current insertion point.
func (w *Writer) retractRunes(n int) {
	if n > w.length {
		n = w.length
	}
	removed := 0
	for removed < n && len(w.spans) > 0 {
		last := &w.spans[len(w.spans)-1]
		runes := []rune(last.Text)
		take := n - removed
		if take >= len(runes) {
			removed += len(runes)
			w.spans = w.spans[:len(w.spans)-1]
			continue
		}
		last.Text = string(runes[:len(runes)-take])
		removed += take
	}
	w.length -= removed
	// The line-start mark never advances here, but it must not point past
	// the buffer end either.
	if w.lineStart > w.length {
		w.lineStart = w.length
	}
	if removed > 0 && w.onRetract != nil {
		w.onRetract(removed)
	}
}

// NoteKeystroke records one locally typed character since the last
// retraction point. Called by the input editor on each forwarded key.
func (w *Writer) NoteKeystroke() { w.written++ }

// ArmRetract forces retraction before the next literal run — used when the
// local side knows a full-line repaint is coming (history recall).
func (w *Writer) ArmRetract() { w.retract = true }

// LineText returns the submittable input line: the buffer text from the
// line-start mark to the end.
func (w *Writer) LineText() string {
	runes := []rune(w.Text())
	if w.lineStart >= len(runes) {
		return ""
	}
	return string(runes[w.lineStart:])
}

// AdvanceLineStart moves the line-start mark to the buffer end — called
// after a submitted line.
func (w *Writer) AdvanceLineStart() { w.lineStart = w.length }

// Text returns the plain buffer contents with all tags stripped.
func (w *Writer) Text() string {
	var b strings.Builder
	for _, s := range w.spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Spans returns a copy of the tagged buffer contents.
func (w *Writer) Spans() []Span {
	out := make([]Span, len(w.spans))
	copy(out, w.spans)
	return out
}

// Len returns the buffer length in runes.
func (w *Writer) Len() int { return w.length }

// LineStart returns the rune offset of the line-start mark.
func (w *Writer) LineStart() int { return w.lineStart }

// CurrentStyle returns the style implied by the most recent SGR sequence.
func (w *Writer) CurrentStyle() emulation.Style { return w.styles.Current() }

// splitTokens splits a run into whitespace-delimited tokens, keeping
// single- or double-quoted groups together as one token.
func splitTokens(s string) []string {
	var tokens []string
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		if q := runes[i]; q == '"' || q == '\'' {
			if end := indexRune(runes[i+1:], q); end >= 0 {
				tokens = append(tokens, string(runes[i:i+end+2]))
				i += end + 2
				continue
			}
		}
		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		tokens = append(tokens, string(runes[start:i]))
	}
	return tokens
}

func indexRune(runes []rune, r rune) int {
	for i, c := range runes {
		if c == r {
			return i
		}
	}
	return -1
}
