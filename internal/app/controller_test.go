package app

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portside/internal/hosts"
	"portside/internal/rpc"
)

// fakeCommander is an in-memory Commander: files map to contents, every
// other path is treated as a directory.
type fakeCommander struct {
	connected  *rpc.HostDescriptor
	files      map[string]string
	dirs       map[string][]rpc.Entry
	shellOut   map[string]string
	transportE error
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		files:    map[string]string{},
		dirs:     map[string][]rpc.Entry{},
		shellOut: map[string]string{},
	}
}

func (f *fakeCommander) Connect(h rpc.HostDescriptor) error {
	if f.transportE != nil {
		return f.transportE
	}
	f.connected = &h
	return nil
}

func (f *fakeCommander) ListDir(path string) ([]rpc.Entry, error) {
	if f.transportE != nil {
		return nil, f.transportE
	}
	entries, ok := f.dirs[path]
	if !ok {
		return nil, &rpc.RemoteError{Msg: fmt.Sprintf("listdir %q: no such directory", path)}
	}
	return entries, nil
}

func (f *fakeCommander) ReadFile(path string) (string, error) {
	if f.transportE != nil {
		return "", f.transportE
	}
	content, ok := f.files[path]
	if !ok {
		return "", &rpc.RemoteError{Msg: fmt.Sprintf("read %q: not a regular file", path)}
	}
	return content, nil
}

func (f *fakeCommander) WriteFile(path, data string) error {
	if f.transportE != nil {
		return f.transportE
	}
	f.files[path] = data
	return nil
}

func (f *fakeCommander) SendCommand(line string) (string, error) {
	if f.transportE != nil {
		return "", f.transportE
	}
	return f.shellOut[line], nil
}

// fakePane records what the controller put into the editor.
type fakePane struct {
	text     string
	language string
}

func (p *fakePane) SetText(text string)             { p.text = text }
func (p *fakePane) SetLanguageFromPath(path string) { p.language = path }
func (p *fakePane) Text() string                    { return p.text }

// fakeHistory records calls.
type fakeHistory struct {
	started  []string
	ended    []string
	commands []string
}

func (h *fakeHistory) StartConnection(host, user string) (string, error) {
	h.started = append(h.started, host)
	return "conn-1", nil
}

func (h *fakeHistory) EndConnection(id string) error {
	h.ended = append(h.ended, id)
	return nil
}

func (h *fakeHistory) RecordCommand(connectionID, line string) error {
	h.commands = append(h.commands, line)
	return nil
}

func TestConnectHost_ForwardsCredentials(t *testing.T) {
	cmd := newFakeCommander()
	ctrl := NewController(cmd, nil, nil)

	err := ctrl.ConnectHost(hosts.Host{Name: "web", IP: "10.0.0.5", Username: "ops", Password: "pw"})
	require.NoError(t, err)
	require.NotNil(t, cmd.connected)
	assert.Equal(t, "10.0.0.5", cmd.connected.IP)
	assert.Equal(t, "ops", cmd.connected.Username)
	assert.Equal(t, ".", ctrl.Path())
}

func TestConnectHost_RecordsHistory(t *testing.T) {
	cmd := newFakeCommander()
	hist := &fakeHistory{}
	ctrl := NewController(cmd, nil, hist)

	require.NoError(t, ctrl.ConnectHost(hosts.Host{IP: "10.0.0.5", Username: "ops"}))
	assert.Equal(t, []string{"10.0.0.5"}, hist.started)

	ctrl.Disconnect()
	assert.Equal(t, []string{"conn-1"}, hist.ended)
}

func TestOpen_FileLandsInEditorPane(t *testing.T) {
	cmd := newFakeCommander()
	cmd.files["config.yaml"] = "port: 8080\n"
	pane := &fakePane{}
	ctrl := NewController(cmd, pane, nil)

	entries, err := ctrl.Open("config.yaml")
	require.NoError(t, err)
	assert.Nil(t, entries)
	assert.Equal(t, "port: 8080\n", pane.text)
	assert.Equal(t, "config.yaml", pane.language)
	assert.Equal(t, "config.yaml", ctrl.CurrentFile())
	assert.Equal(t, ".", ctrl.Path(), "opening a file must not change the directory")
}

func TestOpen_RemoteReadFailureDescendsIntoDirectory(t *testing.T) {
	cmd := newFakeCommander()
	cmd.dirs["etc"] = []rpc.Entry{{Kind: "file", Name: "hosts"}}
	ctrl := NewController(cmd, &fakePane{}, nil)

	entries, err := ctrl.Open("etc")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hosts", entries[0].Name)
	assert.Equal(t, "etc", ctrl.Path())
}

func TestOpen_TransportFailureAbortsWithoutStateChange(t *testing.T) {
	cmd := newFakeCommander()
	cmd.transportE = fmt.Errorf("rpc: dial worker: connection refused")
	ctrl := NewController(cmd, &fakePane{}, nil)

	_, err := ctrl.Open("etc")
	require.Error(t, err)
	assert.False(t, rpc.IsRemote(err))
	assert.Equal(t, ".", ctrl.Path())
}

func TestOpen_ParentEntryNavigatesUp(t *testing.T) {
	cmd := newFakeCommander()
	cmd.dirs["etc/nginx"] = []rpc.Entry{}
	cmd.dirs["etc"] = []rpc.Entry{{Kind: "dir", Name: "nginx"}}
	ctrl := NewController(cmd, nil, nil)

	_, err := ctrl.Open("etc")
	require.NoError(t, err)
	_, err = ctrl.Open("nginx")
	require.NoError(t, err)
	require.Equal(t, "etc/nginx", ctrl.Path())

	entries, err := ctrl.Open("..")
	require.NoError(t, err)
	assert.Equal(t, "etc", ctrl.Path())
	require.Len(t, entries, 1)
	assert.Equal(t, "nginx", entries[0].Name)
}

func TestSave_WritesPaneTextToOpenFile(t *testing.T) {
	cmd := newFakeCommander()
	cmd.files["app.py"] = "print('old')\n"
	pane := &fakePane{}
	ctrl := NewController(cmd, pane, nil)

	_, err := ctrl.Open("app.py")
	require.NoError(t, err)

	pane.text = "print('new')\n"
	require.NoError(t, ctrl.Save())
	assert.Equal(t, "print('new')\n", cmd.files["app.py"])
}

func TestSave_NoOpenFile(t *testing.T) {
	ctrl := NewController(newFakeCommander(), &fakePane{}, nil)
	err := ctrl.Save()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file open")
}

func TestRun_RecordsCommandInHistory(t *testing.T) {
	cmd := newFakeCommander()
	cmd.shellOut["uptime"] = "up 2 days"
	hist := &fakeHistory{}
	ctrl := NewController(cmd, nil, hist)
	require.NoError(t, ctrl.ConnectHost(hosts.Host{IP: "h", Username: "u"}))

	out, err := ctrl.Run("uptime")
	require.NoError(t, err)
	assert.Equal(t, "up 2 days", out)
	assert.Equal(t, []string{"uptime"}, hist.commands)
}

func TestRun_WithoutHistoryStillWorks(t *testing.T) {
	cmd := newFakeCommander()
	cmd.shellOut["whoami"] = "ops"
	ctrl := NewController(cmd, nil, nil)

	out, err := ctrl.Run("whoami")
	require.NoError(t, err)
	assert.Equal(t, "ops", out)
}
