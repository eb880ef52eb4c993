package rpc

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStdin captures everything written to the shell's stdin.
type recordingStdin struct {
	mu     sync.Mutex
	buf    strings.Builder
	closed bool
}

func (s *recordingStdin) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(p)
	return len(p), nil
}

func (s *recordingStdin) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingStdin) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// newScriptedRemote builds an SSHRemote whose shell reads from a pipe the
// test writes to, bypassing the SSH transport entirely.
func newScriptedRemote(t *testing.T, settle time.Duration) (*SSHRemote, *recordingStdin, *io.PipeWriter) {
	t.Helper()
	stdoutR, stdoutW := io.Pipe()
	stdin := &recordingStdin{}

	r := NewSSHRemote(settle)
	r.shell = newWorkerShell(stdin, stdoutR, nil)
	t.Cleanup(func() {
		stdoutW.Close()
		r.Close()
	})
	return r, stdin, stdoutW
}

// waitForOutput blocks until the background reader has buffered want.
func waitForOutput(t *testing.T, ws *workerShell, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ws.mu.Lock()
		got := ws.out.String()
		ws.mu.Unlock()
		if strings.Contains(got, want) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("shell reader never buffered %q", want)
}

func TestSendCommand_DiscardsOutputFromBeforeTheSend(t *testing.T) {
	r, stdin, stdoutW := newScriptedRemote(t, 60*time.Millisecond)

	_, err := stdoutW.Write([]byte("login banner\r\nuser@host:~$ "))
	require.NoError(t, err)
	waitForOutput(t, r.shell, "user@host")

	go func() {
		time.Sleep(10 * time.Millisecond)
		stdoutW.Write([]byte("hi\r\n")) //nolint:errcheck
	}()

	out, err := r.SendCommand("echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.NotContains(t, out, "banner", "stale output must be drained before the send")
	assert.Equal(t, "echo hi\n", stdin.String())
}

func TestSendCommand_BackToBackCallsDoNotInterleave(t *testing.T) {
	r, _, stdoutW := newScriptedRemote(t, 60*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		stdoutW.Write([]byte("ONE\r\n")) //nolint:errcheck
	}()
	first, err := r.SendCommand("first")
	require.NoError(t, err)
	assert.Equal(t, "ONE", first)

	go func() {
		time.Sleep(10 * time.Millisecond)
		stdoutW.Write([]byte("TWO\r\n")) //nolint:errcheck
	}()
	second, err := r.SendCommand("second")
	require.NoError(t, err)
	assert.Equal(t, "TWO", second)
	assert.NotContains(t, second, "ONE")
}

func TestSendCommand_LateOutputBelongsToNoCall(t *testing.T) {
	r, _, stdoutW := newScriptedRemote(t, 30*time.Millisecond)

	// Nothing arrives inside the first call's settle window.
	first, err := r.SendCommand("slow-command")
	require.NoError(t, err)
	assert.Empty(t, first)

	// The slow command's output lands afterwards, before the next call —
	// the pre-send drain must swallow it.
	_, err = stdoutW.Write([]byte("late output of slow-command\r\n"))
	require.NoError(t, err)
	waitForOutput(t, r.shell, "late output")

	go func() {
		time.Sleep(10 * time.Millisecond)
		stdoutW.Write([]byte("fresh\r\n")) //nolint:errcheck
	}()
	second, err := r.SendCommand("fast-command")
	require.NoError(t, err)
	assert.Equal(t, "fresh", second)
}

func TestSendCommand_NotConnected(t *testing.T) {
	r := NewSSHRemote(0)
	_, err := r.SendCommand("ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestWorkerShell_CloseWithoutSession(t *testing.T) {
	stdoutR, stdoutW := io.Pipe()
	defer stdoutW.Close()
	stdin := &recordingStdin{}

	ws := newWorkerShell(stdin, stdoutR, nil)
	ws.close()
	assert.True(t, stdin.closed)
}
