package rpc

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	// defaultSettle is how long send_command waits after writing the line
	// before draining output. The drain is a best-effort snapshot — output
	// still being produced when the window elapses belongs to no call.
	defaultSettle = 100 * time.Millisecond

	remoteDialTimeout = 10 * time.Second
)

// SSHRemote is the worker-owned side of the remote session: the SSH
// transport, the SFTP handle and the interactive shell, created on the
// first connect command and kept for the worker's lifetime (or until a
// reconnect replaces them). Safe for the worker's strictly sequential use;
// the internal mutex only guards reconnects against the shell drainer.
type SSHRemote struct {
	mu     sync.Mutex
	client *ssh.Client
	files  *sftp.Client
	shell  *workerShell

	settle time.Duration
}

// NewSSHRemote creates an unconnected SSHRemote. settle <= 0 selects the
// default send_command settle interval.
func NewSSHRemote(settle time.Duration) *SSHRemote {
	if settle <= 0 {
		settle = defaultSettle
	}
	return &SSHRemote{settle: settle}
}

// Connect establishes the transport, the SFTP subsystem and the
// interactive shell. A second connect tears the previous handles down
// first — the worker holds at most one live remote session.
func (r *SSHRemote) Connect(h HostDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()

	cfg := &ssh.ClientConfig{
		User:            h.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(h.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         remoteDialTimeout,
	}

	addr := h.IP
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}

	files, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return fmt.Errorf("open sftp subsystem: %w", err)
	}

	shell, err := openWorkerShell(client)
	if err != nil {
		files.Close()
		client.Close()
		return err
	}

	r.client, r.files, r.shell = client, files, shell
	return nil
}

// ListDir returns the entries of a remote directory.
func (r *SSHRemote) ListDir(path string) ([]Entry, error) {
	if r.files == nil {
		return nil, fmt.Errorf("not connected")
	}
	infos, err := r.files.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listdir %q: %w", path, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		kind := "file"
		if fi.IsDir() {
			kind = "dir"
		}
		entries = append(entries, Entry{Kind: kind, Name: fi.Name()})
	}
	return entries, nil
}

// ReadFile returns the remote file contents as text.
func (r *SSHRemote) ReadFile(path string) (string, error) {
	if r.files == nil {
		return "", fmt.Errorf("not connected")
	}
	f, err := r.files.Open(path)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return string(data), nil
}

// WriteFile creates or truncates the remote file with data.
func (r *SSHRemote) WriteFile(path, data string) error {
	if r.files == nil {
		return fmt.Errorf("not connected")
	}
	f, err := r.files.Create(path)
	if err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(data)); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

// SendCommand writes line+newline to the interactive shell, waits the
// settle interval and returns all output produced in that window. Stale
// output from before the send is discarded so back-to-back calls never see
// each other's bytes.
func (r *SSHRemote) SendCommand(line string) (string, error) {
	r.mu.Lock()
	shell := r.shell
	r.mu.Unlock()
	if shell == nil {
		return "", fmt.Errorf("not connected")
	}

	shell.drain()
	if _, err := shell.stdin.Write([]byte(line + "\n")); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}
	time.Sleep(r.settle)
	return strings.TrimSpace(shell.drain()), nil
}

// Close releases all remote handles. Safe to call when unconnected.
func (r *SSHRemote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}

func (r *SSHRemote) closeLocked() {
	if r.shell != nil {
		r.shell.close()
		r.shell = nil
	}
	if r.files != nil {
		r.files.Close()
		r.files = nil
	}
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}

// workerShell is the worker's interactive shell with a background reader
// that accumulates output, so send_command can take a snapshot of
// everything available without a non-blocking read primitive. It holds the
// shell only as stdin/stdout streams so the drain/settle behavior is
// independent of the SSH transport.
type workerShell struct {
	stdin   io.WriteCloser
	session io.Closer

	mu  sync.Mutex
	out strings.Builder
}

// newWorkerShell wires the streams and starts the background reader.
// session may be nil when there is no channel to close behind the streams.
func newWorkerShell(stdin io.WriteCloser, stdout io.Reader, session io.Closer) *workerShell {
	ws := &workerShell{stdin: stdin, session: session}
	go ws.readLoop(stdout)
	return ws
}

func openWorkerShell(client *ssh.Client) (*workerShell, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open shell channel: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm", 24, 200, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return newWorkerShell(stdin, stdout, sess), nil
}

// readLoop accumulates shell output until the session ends.
func (ws *workerShell) readLoop(stdout io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			ws.mu.Lock()
			ws.out.Write(buf[:n])
			ws.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// drain returns and clears everything accumulated so far.
func (ws *workerShell) drain() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := ws.out.String()
	ws.out.Reset()
	return out
}

func (ws *workerShell) close() {
	_ = ws.stdin.Close()
	if ws.session != nil {
		_ = ws.session.Close()
	}
}
