package console

import (
	"io"
	"unicode"
)

// EditorState tracks the input editor lifecycle.
type EditorState int

const (
	// StateIdle — no shell attached yet; all input is a silent no-op.
	StateIdle EditorState = iota

	// StateConnected — shell handle live, keystrokes forward immediately.
	StateConnected

	// StateClosed — terminal state after explicit close or a send error.
	// No further sends are attempted.
	StateClosed
)

// Editor captures local keystrokes and forwards them to the remote shell.
//
// There is no local echo and no local line buffer: a printable key is sent
// as a single character the moment it is pressed, and the characters the
// user sees are the remote echo coming back through the decode pipeline.
// Deleting works the same way — Backspace sends DEL and the removal is
// rendered only once the shell's repaint arrives.
//
// Touched only by the UI goroutine.
type Editor struct {
	state EditorState
	shell io.Writer
	w     *Writer
	caret int

	// hasSelection reports whether the presentation layer has an active
	// text selection — Ctrl-C is a clipboard copy then, not an interrupt.
	hasSelection func() bool

	// inputLog optionally records every byte sent to the shell.
	inputLog io.Writer
}

// NewEditor creates an Editor bound to the visible buffer's writer.
func NewEditor(w *Writer) *Editor {
	return &Editor{w: w}
}

// Attach wires a live shell handle and moves the editor to Connected.
func (e *Editor) Attach(shell io.Writer) {
	e.shell = shell
	e.state = StateConnected
}

// OnSelection registers the active-selection query used by CtrlC.
func (e *Editor) OnSelection(fn func() bool) { e.hasSelection = fn }

// LogInputTo records every sent byte to lg (session transcripts).
func (e *Editor) LogInputTo(lg io.Writer) { e.inputLog = lg }

// State returns the current lifecycle state.
func (e *Editor) State() EditorState { return e.state }

// KeyPress forwards a single printable character to the shell.
// Non-printable runes and presses before Attach are no-ops.
func (e *Editor) KeyPress(r rune) {
	if e.state != StateConnected || !unicode.IsPrint(r) {
		return
	}
	e.w.NoteKeystroke()
	e.send(string(r))
}

// Enter submits the current input line — the buffer span from the
// line-start mark to the end — followed by a newline, and advances the
// mark past it.
func (e *Editor) Enter() {
	if e.state != StateConnected {
		return
	}
	line := e.w.LineText()
	e.send(line + "\n")
	e.w.AdvanceLineStart()
}

// Backspace asks the remote side to delete the previous character.
// Nothing is removed locally; the deletion renders when the echo returns.
func (e *Editor) Backspace() {
	e.send("\x7f")
}

// Left moves the local caret one position left and tells the shell.
func (e *Editor) Left() {
	if e.state != StateConnected {
		return
	}
	if e.caret > 0 {
		e.caret--
	}
	e.send("\x1b[D")
}

// Right moves the local caret one position right and tells the shell.
func (e *Editor) Right() {
	if e.state != StateConnected {
		return
	}
	if e.caret < e.w.Len() {
		e.caret++
	}
	e.send("\x1b[C")
}

// HistoryUp recalls the previous shell history entry. The shell answers
// with a full-line repaint, so retraction is armed before sending.
func (e *Editor) HistoryUp() {
	if e.state != StateConnected {
		return
	}
	e.w.ArmRetract()
	e.send("\x1b[A")
}

// HistoryDown recalls the next shell history entry.
func (e *Editor) HistoryDown() {
	if e.state != StateConnected {
		return
	}
	e.w.ArmRetract()
	e.send("\x1b[B")
}

// CtrlC sends an interrupt (0x03) unless an active text selection exists —
// then it reports false so the host clipboard copy runs instead.
func (e *Editor) CtrlC() bool {
	if e.hasSelection != nil && e.hasSelection() {
		return false
	}
	e.send("\x03")
	return true
}

// CtrlD sends end-of-transmission (0x04).
func (e *Editor) CtrlD() {
	e.send("\x04")
}

// Paste forwards clipboard text to the shell as-is.
func (e *Editor) Paste(text string) {
	e.send(text)
}

// Caret returns the local caret offset.
func (e *Editor) Caret() int { return e.caret }

// Close moves the editor to its terminal state. Idempotent.
func (e *Editor) Close() {
	e.state = StateClosed
}

// send writes s to the shell. A transport error closes the editor — the
// session is gone and retrying every keystroke would only repeat the
// failure.
func (e *Editor) send(s string) {
	if e.state != StateConnected || e.shell == nil {
		return
	}
	if _, err := e.shell.Write([]byte(s)); err != nil {
		e.state = StateClosed
		return
	}
	if e.inputLog != nil {
		e.inputLog.Write([]byte(s))
	}
}
