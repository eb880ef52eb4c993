// Package rpc is the command channel between the UI process and the single
// long-lived worker process that owns the live SSH/SFTP session.
//
// Wire format: every message is one frame — a 4-byte big-endian length
// followed by a JSON body — over a fresh TCP connection per call. The first
// client frame is the shared pre-key; the worker answers with an ok/error
// response before the actual request is exchanged. The pre-key is a
// same-machine trust boundary, not an authentication mechanism.
//
// Requests are unary and non-pipelined: at most one outstanding request per
// worker at any time. The worker accepts connections strictly sequentially
// and the client serializes calls behind a mutex, so no request ID or
// correlation token exists on the wire.
package rpc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame; large file transfers should go
// through chunking at a higher layer long before hitting this.
const maxFrameSize = 16 << 20 // 16 MB

// Recognized command names.
const (
	CmdConnect     = "connect"
	CmdListDir     = "listdir"
	CmdReadFile    = "read_file"
	CmdWriteFile   = "write_file"
	CmdSendCommand = "send_command"
)

// HostDescriptor identifies the remote endpoint for a connect command.
// The field names match the persisted host-list entries.
type HostDescriptor struct {
	IP       string `json:"ip"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Request is a single serialized command for the worker.
type Request struct {
	Cmd  string          `json:"cmd"`
	Host *HostDescriptor `json:"host,omitempty"` // connect
	Path string          `json:"path,omitempty"` // listdir, read_file, write_file
	Data string          `json:"data,omitempty"` // write_file
	Line string          `json:"line,omitempty"` // send_command
}

// Entry is one directory listing element.
type Entry struct {
	Kind string `json:"kind"` // "dir" | "file"
	Name string `json:"name"`
}

// Response carries either the operation's natural result or an error
// message. A worker-side failure is always converted into Error — it never
// surfaces as a transport fault.
type Response struct {
	Status  string  `json:"status,omitempty"` // "connected", "ok"
	Error   string  `json:"error,omitempty"`
	Entries []Entry `json:"entries,omitempty"` // listdir
	Content string  `json:"content,omitempty"` // read_file
	Output  string  `json:"output,omitempty"`  // send_command
}

// writeFrame marshals v and writes it as one length-prefixed frame.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: marshal frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("rpc: frame too large: %d bytes", len(body))
	}
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(body)))
	if _, err := w.Write(head[:]); err != nil {
		return fmt.Errorf("rpc: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("rpc: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame and unmarshals it into v.
func readFrame(r io.Reader, v any) error {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return fmt.Errorf("rpc: read frame header: %w", err)
	}
	size := binary.BigEndian.Uint32(head[:])
	if size > maxFrameSize {
		return fmt.Errorf("rpc: frame too large: %d bytes", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("rpc: read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("rpc: unmarshal frame: %w", err)
	}
	return nil
}
