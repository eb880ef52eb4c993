package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Frame is one decoded event from a .cast file.
type Frame struct {
	Elapsed float64
	Kind    string // "o" | "i"
	Data    string
}

// Player reads an asciinema v2 .cast file and replays its output events.
type Player struct {
	header Frameset
	frames []Frame
}

// Frameset carries the recording's metadata.
type Frameset struct {
	Width  int
	Height int
	Title  string
}

// Open parses a .cast file into memory. Recordings are short-lived session
// transcripts, not hour-long screencasts, so whole-file parsing is fine.
func Open(path string) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open cast file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("audit: cast file %s is empty", path)
	}
	var h header
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil {
		return nil, fmt.Errorf("audit: parse cast header: %w", err)
	}
	if h.Version != 2 {
		return nil, fmt.Errorf("audit: unsupported cast version %d", h.Version)
	}

	p := &Player{header: Frameset{Width: h.Width, Height: h.Height, Title: h.Title}}
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw [3]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("audit: parse cast event: %w", err)
		}
		var fr Frame
		if err := json.Unmarshal(raw[0], &fr.Elapsed); err != nil {
			return nil, fmt.Errorf("audit: parse event time: %w", err)
		}
		if err := json.Unmarshal(raw[1], &fr.Kind); err != nil {
			return nil, fmt.Errorf("audit: parse event kind: %w", err)
		}
		if err := json.Unmarshal(raw[2], &fr.Data); err != nil {
			return nil, fmt.Errorf("audit: parse event data: %w", err)
		}
		p.frames = append(p.frames, fr)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read cast file: %w", err)
	}
	return p, nil
}

// Info returns the recording's metadata.
func (p *Player) Info() Frameset { return p.header }

// Frames returns all decoded events in order.
func (p *Player) Frames() []Frame { return p.frames }

// Replay writes the output events to w, pausing between frames according
// to their recorded timing scaled by speed (2 = twice as fast). speed <= 0
// replays with no pauses.
func (p *Player) Replay(w io.Writer, speed float64) error {
	prev := 0.0
	for _, fr := range p.frames {
		if fr.Kind != "o" {
			continue
		}
		if speed > 0 && fr.Elapsed > prev {
			time.Sleep(time.Duration(float64(time.Second) * (fr.Elapsed - prev) / speed))
		}
		prev = fr.Elapsed
		if _, err := io.WriteString(w, fr.Data); err != nil {
			return fmt.Errorf("audit: replay write: %w", err)
		}
	}
	return nil
}
