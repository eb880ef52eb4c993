package rpc

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net"
	"time"
)

// connDeadline bounds a single request round trip on the worker side so a
// stuck client cannot wedge the accept loop forever.
const connDeadline = 30 * time.Second

// Remote is what the worker executes commands against: the long-lived
// SSH/SFTP/shell handles. The production implementation is SSHRemote;
// tests substitute an in-memory one.
type Remote interface {
	Connect(h HostDescriptor) error
	ListDir(path string) ([]Entry, error)
	ReadFile(path string) (string, error)
	WriteFile(path, data string) error
	SendCommand(line string) (string, error)
	Close() error
}

// Worker is the command-channel server. It owns exactly one Remote and
// serves connections strictly one at a time: the accept loop does not take
// the next connection until the previous one is fully handled and closed.
// That sequencing — not any wire-level token — is what guarantees the
// at-most-one-in-flight invariant.
type Worker struct {
	addr   string
	key    []byte
	remote Remote

	ln    net.Listener
	ready chan struct{}
}

// NewWorker creates a Worker listening on addr with the shared pre-key.
func NewWorker(addr, key string, remote Remote) *Worker {
	return &Worker{
		addr:   addr,
		key:    []byte(key),
		remote: remote,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the listener is bound and accepting.
func (w *Worker) Ready() <-chan struct{} { return w.ready }

// Addr returns the bound listen address (useful with ":0" in tests).
func (w *Worker) Addr() string {
	if w.ln == nil {
		return w.addr
	}
	return w.ln.Addr().String()
}

// Serve accepts and handles connections until ctx is cancelled. It blocks.
// On return the Remote is closed and its remote handles released.
func (w *Worker) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("rpc: listen on %s: %w", w.addr, err)
	}
	w.ln = ln
	close(w.ready)
	log.Printf("[WORKER] listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer w.remote.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[WORKER] shutting down")
				return nil
			}
			return fmt.Errorf("rpc: accept: %w", err)
		}
		w.handle(conn)
		conn.Close()
	}
}

// handle runs one full round trip: pre-key handshake, request, response.
func (w *Worker) handle(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connDeadline))

	var key string
	if err := readFrame(conn, &key); err != nil {
		log.Printf("[WORKER] handshake read failed: %v", err)
		return
	}
	if subtle.ConstantTimeCompare([]byte(key), w.key) != 1 {
		log.Printf("[WORKER] rejected connection from %s: bad pre-key", conn.RemoteAddr())
		_ = writeFrame(conn, Response{Error: "unauthorized"})
		return
	}
	if err := writeFrame(conn, Response{Status: "ok"}); err != nil {
		log.Printf("[WORKER] handshake write failed: %v", err)
		return
	}

	var req Request
	if err := readFrame(conn, &req); err != nil {
		log.Printf("[WORKER] request read failed: %v", err)
		return
	}

	resp := w.dispatch(req)
	if err := writeFrame(conn, resp); err != nil {
		log.Printf("[WORKER] response write failed: %v", err)
	}
}

// dispatch executes one command against the Remote. Every failure —
// including a panic in the Remote — becomes an error-carrying Response so
// the caller always receives a well-formed reply.
func (w *Worker) dispatch(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WORKER] panic in %q: %v", req.Cmd, r)
			resp = Response{Error: fmt.Sprintf("worker panic: %v", r)}
		}
	}()

	switch req.Cmd {
	case CmdConnect:
		if req.Host == nil {
			return Response{Error: "connect: missing host descriptor"}
		}
		if err := w.remote.Connect(*req.Host); err != nil {
			return Response{Error: err.Error()}
		}
		log.Printf("[WORKER] connected to %s as %s", req.Host.IP, req.Host.Username)
		return Response{Status: "connected"}

	case CmdListDir:
		entries, err := w.remote.ListDir(req.Path)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Entries: withParentEntry(req.Path, entries)}

	case CmdReadFile:
		content, err := w.remote.ReadFile(req.Path)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Content: content}

	case CmdWriteFile:
		if err := w.remote.WriteFile(req.Path, req.Data); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Status: "ok"}

	case CmdSendCommand:
		output, err := w.remote.SendCommand(req.Line)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Output: output}

	default:
		return Response{Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

// withParentEntry prefixes the ".." navigation entry unless the listed
// path is already a root indicator.
func withParentEntry(path string, entries []Entry) []Entry {
	switch path {
	case ".", "/", "":
		return entries
	}
	return append([]Entry{{Kind: "dir", Name: ".."}}, entries...)
}
