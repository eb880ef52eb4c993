package console

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"portside/internal/emulation"
)

// readBufSize is the per-iteration read size of the receive loop.
const readBufSize = 4096

// Queue is the unbounded thread-safe hand-off between the receive
// goroutine and the UI goroutine. It is the only structure both
// concurrency domains touch.
type Queue struct {
	mu     sync.Mutex
	chunks [][]byte
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a copy of p. Never blocks.
func (q *Queue) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	q.mu.Lock()
	q.chunks = append(q.chunks, chunk)
	q.mu.Unlock()
}

// Drain removes and returns all queued chunks in FIFO order.
func (q *Queue) Drain() [][]byte {
	q.mu.Lock()
	chunks := q.chunks
	q.chunks = nil
	q.mu.Unlock()
	return chunks
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// Receive is the per-session background loop: it reads available bytes
// from the shell and enqueues them until the read fails. A failed read
// means the session is gone — onExit is called once with the error and
// the loop returns. Run it in its own goroutine.
//
// Decoding tolerance lives downstream: the queue carries raw bytes and the
// escape decoder's state machine absorbs invalid UTF-8 without failing, so
// the loop never dies on a decode error.
func Receive(shell io.Reader, q *Queue, onExit func(error)) {
	buf := make([]byte, readBufSize)
	for {
		n, err := shell.Read(buf)
		if n > 0 {
			q.Push(buf[:n])
		}
		if err != nil {
			if onExit != nil {
				onExit(err)
			}
			return
		}
	}
}

// Pump drains the queue on the UI goroutine and feeds each chunk through
// the decode pipeline into the writer: Decoder → style tracking → buffer.
// One Pump per session; Tick must only ever run on the UI goroutine.
type Pump struct {
	q   *Queue
	dec *emulation.Decoder
	w   *Writer

	// transcript optionally receives every raw chunk before decoding.
	transcript io.Writer
}

// NewPump creates a Pump with a fresh decoder for the session.
func NewPump(q *Queue, w *Writer) *Pump {
	return &Pump{q: q, dec: emulation.NewDecoder(), w: w}
}

// RecordTo mirrors every raw output chunk to t (session transcripts).
func (p *Pump) RecordTo(t io.Writer) { p.transcript = t }

// Tick drains the entire queue in FIFO order and applies each chunk.
// Ordering across chunks is preserved exactly as enqueued regardless of
// how irregularly ticks fire.
func (p *Pump) Tick() {
	for _, chunk := range p.q.Drain() {
		if p.transcript != nil {
			if _, err := p.transcript.Write(chunk); err != nil {
				log.Printf("[PUMP] transcript write failed: %v", err)
				p.transcript = nil
			}
		}
		p.w.Apply(p.dec.Decode(chunk))
	}
}

// Run ticks at the fixed interval until ctx is cancelled, then performs a
// final drain so no enqueued output is lost on shutdown. It blocks — call
// it from the goroutine that owns the writer.
func (p *Pump) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Tick()
		case <-ctx.Done():
			p.Tick()
			return
		}
	}
}
