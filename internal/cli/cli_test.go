package cli

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/sysmasterd/internal/ctlsock"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI(nil)

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "sysmasterd", cmd.Use, "Root command should be 'sysmasterd'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 6, "Should have 6 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Name()] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")
	assert.True(t, commandNames["isolate"], "Should have 'isolate' command")
	assert.True(t, commandNames["reload"], "Should have 'reload' command")
	assert.True(t, commandNames["reexec"], "Should have 'reexec' command")
	assert.True(t, commandNames["enqueue"], "Should have 'enqueue' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildRunCommand_RequiresWiringWhenNil(t *testing.T) {
	cmd := buildRunCommand(nil)
	assert.NotNil(t, cmd, "buildRunCommand should return a non-nil command")
	assert.Equal(t, "run", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestBuildIsolateCommand_RequiresExactlyOneArg(t *testing.T) {
	cmd := buildIsolateCommand()
	assert.Equal(t, "isolate <target-unit>", cmd.Use)
	assert.Error(t, cmd.Args(cmd, []string{}))
	assert.Error(t, cmd.Args(cmd, []string{"a", "b"}))
	assert.NoError(t, cmd.Args(cmd, []string{"multi-user.target"}))
}

func TestBuildEnqueueCommand_HasFileFlag(t *testing.T) {
	cmd := buildEnqueueCommand()
	assert.Equal(t, "enqueue", cmd.Use)

	fileFlag := cmd.Flags().Lookup("file")
	assert.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "Should have -f shorthand")
	assert.NotNil(t, cmd.RunE)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
store:
  root: "/var/lib/sysmasterd"

control_socket:
  path: "/run/sysmasterd/sctl.sock"

notify:
  socket_path: "/run/sysmasterd/notify"

units:
  dirs:
    - "/etc/sysmasterd/system"
    - "/usr/lib/sysmasterd/system"

metrics:
  enabled: true
  port: 9090
`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := loadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/var/lib/sysmasterd", cfg.Store.Root)
	assert.Equal(t, "/run/sysmasterd/sctl.sock", cfg.ControlSocket.Path)
	assert.Equal(t, "/run/sysmasterd/notify", cfg.Notify.SocketPath)
	assert.Equal(t, []string{"/etc/sysmasterd/system", "/usr/lib/sysmasterd/system"}, cfg.Units.Dirs)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
store:
  root: "not closed
    broken indentation
`

	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	cfg, err := loadConfig(configPath)

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "empty.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte(""), 0644))

	cfg, err := loadConfig(configPath)
	assert.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Empty(t, cfg.Store.Root)
}

func TestEnqueueTransientUnit_InvalidFile(t *testing.T) {
	err := enqueueTransientUnit("/nonexistent/unit.json")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read unit file")
}

func TestEnqueueTransientUnit_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	unitFile := filepath.Join(tmpDir, "invalid.json")
	require.NoError(t, os.WriteFile(unitFile, []byte(`{"invalid`), 0644))

	err := enqueueTransientUnit(unitFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse unit file")
}

// fakeCtlsockServer accepts a single connection, reads one framed request,
// and replies with a canned Response - enough to exercise sendRequest's
// framing without pulling in the whole ctlsock.Server/Handler stack.
func fakeCtlsockServer(t *testing.T, sockPath string, resp ctlsock.Response) {
	t.Helper()
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var lenBuf [8]byte
		if _, err := readFull(conn, lenBuf[:]); err != nil {
			return
		}
		var size uint64
		for i := range lenBuf {
			size |= uint64(lenBuf[i]) << (8 * i)
		}
		reqPayload := make([]byte, size)
		if _, err := readFull(conn, reqPayload); err != nil {
			return
		}

		payload, _ := json.Marshal(resp)
		var outLen [8]byte
		for i := range outLen {
			outLen[i] = byte(len(payload) >> (8 * i))
		}
		conn.Write(outLen[:])
		conn.Write(payload)
	}()
}

func TestSendRequest_RoundTripsOverControlSocket(t *testing.T) {
	tmpDir := t.TempDir()
	sockPath := filepath.Join(tmpDir, "sctl.sock")
	fakeCtlsockServer(t, sockPath, ctlsock.Response{Status: 200, Message: "ok"})

	configPath := filepath.Join(tmpDir, "cfg.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("control_socket:\n  path: \""+sockPath+"\"\n"), 0644))
	configFile = configPath

	resp, err := sendRequest(ctlsock.Request{
		UnitComm: &ctlsock.UnitCommRequest{Action: ctlsock.UnitStatus},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(200), resp.Status)
	assert.Equal(t, "ok", resp.Message)
}

func TestSendRequest_DialFailureIsWrapped(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "cfg.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("control_socket:\n  path: \""+filepath.Join(tmpDir, "nope.sock")+"\"\n"), 0644))
	configFile = configPath

	_, err := sendRequest(ctlsock.Request{MngrComm: &ctlsock.MngrCommRequest{Action: ctlsock.MngrReload}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to control socket")
}

func TestConfigStructure(t *testing.T) {
	cfg := Config{}

	cfg.Store.Root = "/var/lib/sysmasterd"
	cfg.ControlSocket.Path = "/run/sysmasterd/sctl.sock"
	cfg.Notify.SocketPath = "/run/sysmasterd/notify"
	cfg.Units.Dirs = []string{"/etc/sysmasterd/system"}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090

	assert.Equal(t, "/var/lib/sysmasterd", cfg.Store.Root)
	assert.Equal(t, "/run/sysmasterd/sctl.sock", cfg.ControlSocket.Path)
	assert.Equal(t, "/run/sysmasterd/notify", cfg.Notify.SocketPath)
	assert.Equal(t, []string{"/etc/sysmasterd/system"}, cfg.Units.Dirs)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}
