// Package app coordinates the UI-facing operations: connecting to a saved
// host, browsing the remote filesystem, editing files and running commands.
package app

import (
	"fmt"
	"log"
	"path"

	"portside/internal/hosts"
	"portside/internal/rpc"
)

// Commander is the command channel the controller drives. Satisfied by
// *rpc.Client; tests substitute a fake.
type Commander interface {
	Connect(h rpc.HostDescriptor) error
	ListDir(path string) ([]rpc.Entry, error)
	ReadFile(path string) (string, error)
	WriteFile(path, data string) error
	SendCommand(line string) (string, error)
}

var _ Commander = (*rpc.Client)(nil)

// EditorPane is the text editor surface the controller fills and reads.
type EditorPane interface {
	SetText(text string)
	SetLanguageFromPath(path string)
	Text() string
}

// History is the subset of the history store the controller records into.
type History interface {
	StartConnection(host, user string) (string, error)
	EndConnection(id string) error
	RecordCommand(connectionID, line string) error
}

// Controller owns the remote-browsing state: the current directory, the
// file open in the editor and the active history record.
type Controller struct {
	cmd  Commander
	pane EditorPane
	hist History

	connID      string
	currentPath string
	currentFile string
}

// NewController creates a Controller. pane and hist may be nil when the
// editor surface or history recording is absent.
func NewController(cmd Commander, pane EditorPane, hist History) *Controller {
	return &Controller{cmd: cmd, pane: pane, currentPath: ".", hist: hist}
}

// ConnectHost connects the worker to a saved host and resets browsing state.
func (c *Controller) ConnectHost(h hosts.Host) error {
	err := c.cmd.Connect(rpc.HostDescriptor{
		IP:       h.IP,
		Username: h.Username,
		Password: h.Password,
	})
	if err != nil {
		return fmt.Errorf("app: connect %s: %w", h.Name, err)
	}

	c.currentPath = "."
	c.currentFile = ""
	if c.hist != nil {
		id, err := c.hist.StartConnection(h.IP, h.Username)
		if err != nil {
			log.Printf("[APP] history record failed: %v", err)
		} else {
			c.connID = id
		}
	}
	return nil
}

// Disconnect stamps the history record closed. The worker keeps its remote
// handles until the next connect replaces them.
func (c *Controller) Disconnect() {
	if c.hist != nil && c.connID != "" {
		if err := c.hist.EndConnection(c.connID); err != nil {
			log.Printf("[APP] history close failed: %v", err)
		}
		c.connID = ""
	}
}

// ListDir lists the current remote directory.
func (c *Controller) ListDir() ([]rpc.Entry, error) {
	entries, err := c.cmd.ListDir(c.currentPath)
	if err != nil {
		return nil, fmt.Errorf("app: list %s: %w", c.currentPath, err)
	}
	return entries, nil
}

// Open activates the named entry of the current directory. A ".." entry
// navigates to the parent. Anything else is first tried as a file: on
// success it lands in the editor pane; a worker-side read failure means the
// entry is a directory, so the browser descends into it instead. Transport
// failures abort without changing state.
func (c *Controller) Open(name string) ([]rpc.Entry, error) {
	if name == ".." {
		c.currentPath = path.Dir(c.currentPath)
		return c.ListDir()
	}

	target := path.Join(c.currentPath, name)
	content, err := c.cmd.ReadFile(target)
	if err != nil {
		if !rpc.IsRemote(err) {
			return nil, fmt.Errorf("app: open %s: %w", target, err)
		}
		c.currentPath = target
		return c.ListDir()
	}

	c.currentFile = target
	if c.pane != nil {
		c.pane.SetText(content)
		c.pane.SetLanguageFromPath(target)
	}
	return nil, nil
}

// Save writes the editor pane contents back to the open file.
func (c *Controller) Save() error {
	if c.currentFile == "" {
		return fmt.Errorf("app: no file open")
	}
	if c.pane == nil {
		return fmt.Errorf("app: no editor pane attached")
	}
	if err := c.cmd.WriteFile(c.currentFile, c.pane.Text()); err != nil {
		return fmt.Errorf("app: save %s: %w", c.currentFile, err)
	}
	return nil
}

// Run sends one shell line through the worker and records it in history.
func (c *Controller) Run(line string) (string, error) {
	out, err := c.cmd.SendCommand(line)
	if err != nil {
		return "", fmt.Errorf("app: run command: %w", err)
	}
	if c.hist != nil && c.connID != "" {
		if err := c.hist.RecordCommand(c.connID, line); err != nil {
			log.Printf("[APP] history record failed: %v", err)
		}
	}
	return out, nil
}

// Path returns the current remote directory.
func (c *Controller) Path() string { return c.currentPath }

// CurrentFile returns the path of the file open in the editor, if any.
func (c *Controller) CurrentFile() string { return c.currentFile }
