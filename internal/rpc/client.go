package rpc

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// callTimeout bounds one full round trip including dial and handshake.
const callTimeout = 15 * time.Second

// RemoteError is a failure reported by the worker while executing a
// command — the operation failed on the remote side, but the channel
// itself is healthy. Transport-level failures (connection refused,
// timeout) surface as ordinary errors instead.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return e.Msg }

// IsRemote reports whether err is a worker-side command failure.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Client issues commands to the worker. Every call opens a fresh transport
// connection, performs the pre-key handshake, exchanges exactly one
// request/response pair and closes. The mutex keeps at most one call in
// flight regardless of how many goroutines share the Client.
type Client struct {
	addr    string
	key     string
	timeout time.Duration

	mu sync.Mutex
}

// NewClient creates a Client for the worker at addr with the shared pre-key.
func NewClient(addr, key string) *Client {
	return &Client{addr: addr, key: key, timeout: callTimeout}
}

// Call performs one synchronous round trip. It blocks the calling
// goroutine for the duration; the single-in-flight invariant lives here,
// not in the calling convention.
func (c *Client) Call(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return Response{}, fmt.Errorf("rpc: dial worker %s: %w", c.addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := writeFrame(conn, c.key); err != nil {
		return Response{}, err
	}
	var hello Response
	if err := readFrame(conn, &hello); err != nil {
		return Response{}, err
	}
	if hello.Error != "" {
		return Response{}, fmt.Errorf("rpc: handshake rejected: %s", hello.Error)
	}

	if err := writeFrame(conn, req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// call wraps Call and lifts a worker-side error into a RemoteError.
func (c *Client) call(req Request) (Response, error) {
	resp, err := c.Call(req)
	if err != nil {
		return Response{}, err
	}
	if resp.Error != "" {
		return Response{}, &RemoteError{Msg: resp.Error}
	}
	return resp, nil
}

// Connect asks the worker to establish its SSH/SFTP/shell handles.
func (c *Client) Connect(h HostDescriptor) error {
	_, err := c.call(Request{Cmd: CmdConnect, Host: &h})
	return err
}

// ListDir lists a remote directory. A parent-navigation entry is the first
// element unless path is a root indicator.
func (c *Client) ListDir(path string) ([]Entry, error) {
	resp, err := c.call(Request{Cmd: CmdListDir, Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ReadFile returns the remote file contents.
func (c *Client) ReadFile(path string) (string, error) {
	resp, err := c.call(Request{Cmd: CmdReadFile, Path: path})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// WriteFile writes data to the remote file.
func (c *Client) WriteFile(path, data string) error {
	_, err := c.call(Request{Cmd: CmdWriteFile, Path: path, Data: data})
	return err
}

// SendCommand runs line on the worker's interactive shell and returns the
// output captured within the settle window.
func (c *Client) SendCommand(line string) (string, error) {
	resp, err := c.call(Request{Cmd: CmdSendCommand, Line: line})
	if err != nil {
		return "", err
	}
	return resp.Output, nil
}
