// Package session owns the UI-side SSH connection: one Session per
// connected remote shell, exclusively owned by the controller. The receive
// loop holds only the read side.
package session

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultTerm        = "xterm"
	defaultCols        = 200
	defaultRows        = 24
)

// ErrClosed is returned by Write after the session went not-live.
var ErrClosed = fmt.Errorf("session: closed")

// Config describes the remote endpoint and the PTY to request.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string

	// PrivateKey is an optional PEM-encoded key tried before the password.
	PrivateKey string

	Term       string
	Cols, Rows int

	DialTimeout time.Duration
}

// Session is one live interactive shell over SSH: the transport, the shell
// channel with a requested PTY, and a liveness flag flipped on close or
// transport failure.
type Session struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader

	alive atomic.Bool

	mu sync.Mutex // serializes writes to stdin
}

// Dial connects, requests a PTY and starts the login shell.
// The returned Session must be closed by the caller.
func Dial(cfg Config) (*Session, error) {
	methods := authMethods(cfg)
	if len(methods) == 0 {
		return nil, fmt.Errorf("session: no authentication method configured for %s", cfg.Host)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: methods,
		// Same-machine tooling trust model; host key pinning is the
		// surrounding product's concern.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))

	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", addr, err)
	}

	s, err := openShell(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// openShell opens the interactive channel on an established connection.
func openShell(client *ssh.Client, cfg Config) (*Session, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("session: open channel: %w", err)
	}

	term := cfg.Term
	if term == "" {
		term = defaultTerm
	}
	cols, rows := cfg.Cols, cfg.Rows
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(term, rows, cols, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("session: request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("session: stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("session: stdout pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("session: start login shell: %w", err)
	}

	s := &Session{client: client, sess: sess, stdin: stdin, stdout: stdout}
	s.alive.Store(true)
	return s, nil
}

// Write sends keystrokes to the shell. A transport failure marks the
// session not-live and surfaces as a plain error value.
func (s *Session) Write(p []byte) (int, error) {
	if !s.alive.Load() {
		return 0, ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.stdin.Write(p)
	if err != nil {
		s.alive.Store(false)
	}
	return n, err
}

// Read blocks for the next shell output bytes. Used by the receive loop,
// which holds only this read side.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err != nil {
		s.alive.Store(false)
	}
	return n, err
}

// Alive reports whether the session is still live.
func (s *Session) Alive() bool { return s.alive.Load() }

// Close flips the liveness flag and closes the underlying handles. The
// receive loop's next read fails and the loop exits on its own — no forced
// interruption needed.
func (s *Session) Close() error {
	s.alive.Store(false)
	_ = s.stdin.Close()
	_ = s.sess.Close()
	return s.client.Close()
}

// authMethods builds the auth list from Config. Order matters — the key is
// tried before the password.
func authMethods(cfg Config) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		if signer, err := ssh.ParsePrivateKey([]byte(cfg.PrivateKey)); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	return methods
}
