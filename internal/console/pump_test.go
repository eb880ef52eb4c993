package console

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Queue
// =============================================================================

func TestQueue_DrainPreservesFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Push([]byte("A"))
	q.Push([]byte("B"))
	q.Push([]byte("C"))

	chunks := q.Drain()
	require.Len(t, chunks, 3)
	assert.Equal(t, "A", string(chunks[0]))
	assert.Equal(t, "B", string(chunks[1]))
	assert.Equal(t, "C", string(chunks[2]))
	assert.Zero(t, q.Len())
}

func TestQueue_PushCopiesTheChunk(t *testing.T) {
	q := NewQueue()
	buf := []byte("abc")
	q.Push(buf)
	buf[0] = 'X' // the receive loop reuses its read buffer

	chunks := q.Drain()
	require.Len(t, chunks, 1)
	assert.Equal(t, "abc", string(chunks[0]))
}

func TestQueue_ConcurrentPushers(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push([]byte("x"))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, q.Drain(), 800)
}

// =============================================================================
// Receive loop
// =============================================================================

// scriptedReader yields each script entry on successive reads, then fails.
type scriptedReader struct {
	script [][]byte
	err    error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.script) == 0 {
		return 0, r.err
	}
	n := copy(p, r.script[0])
	r.script = r.script[1:]
	return n, nil
}

func TestReceive_EnqueuesUntilReadError(t *testing.T) {
	q := NewQueue()
	src := &scriptedReader{
		script: [][]byte{[]byte("one"), []byte("two")},
		err:    errors.New("connection reset"),
	}

	var exitErr error
	Receive(src, q, func(err error) { exitErr = err })

	chunks := q.Drain()
	require.Len(t, chunks, 2)
	assert.Equal(t, "one", string(chunks[0]))
	assert.Equal(t, "two", string(chunks[1]))
	assert.EqualError(t, exitErr, "connection reset")
}

func TestReceive_EOFStillReportsExit(t *testing.T) {
	q := NewQueue()
	var exitErr error
	Receive(bytes.NewReader([]byte("tail")), q, func(err error) { exitErr = err })

	assert.Equal(t, io.EOF, exitErr)
	assert.Len(t, q.Drain(), 1)
}

// =============================================================================
// Pump
// =============================================================================

func TestPump_TickRendersChunksInOrder(t *testing.T) {
	q := NewQueue()
	w := NewWriter()
	p := NewPump(q, w)

	q.Push([]byte("A"))
	q.Push([]byte("B"))
	q.Push([]byte("C"))
	p.Tick()

	assert.Equal(t, "ABC", w.Text())
}

func TestPump_OrderSurvivesIrregularTicks(t *testing.T) {
	q := NewQueue()
	w := NewWriter()
	p := NewPump(q, w)

	q.Push([]byte("first "))
	p.Tick()
	p.Tick() // empty tick in between
	q.Push([]byte("second "))
	q.Push([]byte("third"))
	p.Tick()

	assert.Equal(t, "first second third", w.Text())
}

func TestPump_DecoderStatePersistsAcrossTicks(t *testing.T) {
	q := NewQueue()
	w := NewWriter()
	p := NewPump(q, w)

	// An SGR sequence split across two enqueued chunks.
	q.Push([]byte("\x1b[3"))
	p.Tick()
	q.Push([]byte("1mwarn"))
	p.Tick()

	spans := w.Spans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "ansi_red", spans[0].Tag)
	assert.Equal(t, "warn ", spans[0].Text)
}

func TestPump_TranscriptReceivesRawChunks(t *testing.T) {
	q := NewQueue()
	w := NewWriter()
	p := NewPump(q, w)

	var transcript bytes.Buffer
	p.RecordTo(&transcript)

	q.Push([]byte("\x1b[31mraw\x1b[0m"))
	p.Tick()

	assert.Equal(t, "\x1b[31mraw\x1b[0m", transcript.String())
}
