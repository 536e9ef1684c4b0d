package cli

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/journal"
	"github.com/roach88/onelane/internal/protocol"
)

type runningServer struct {
	addr string
	stop func() error
}

// startServe runs the serve command on an ephemeral port and returns once
// it accepts connections. stop cancels it and returns its error.
func startServe(t *testing.T, args ...string) *runningServer {
	t.Helper()

	ready := make(chan net.Addr, 1)
	cmd := newServeCommand(testRootOptions("text"), func(a net.Addr) { ready <- a })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--host", "127.0.0.1", "--port", "0"}, args...))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-done:
		cancel()
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("serve did not become ready")
	}

	stopped := false
	var stopErr error
	stop := func() error {
		if stopped {
			return stopErr
		}
		stopped = true
		cancel()
		select {
		case stopErr = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop")
		}
		return stopErr
	}
	t.Cleanup(func() { _ = stop() })

	return &runningServer{addr: addr.String(), stop: stop}
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv := startServe(t)

	conn, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	conn.Close()

	assert.NoError(t, srv.stop())
}

func TestServe_JournalKeepsShutdownPurges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shutdown.db")
	srv := startServe(t, "--journal", path)

	v := dialVehicle(t, srv.addr)
	resp := v.request(t, "car-1", bridge.Left)
	require.Equal(t, protocol.KindPermissionGranted, resp.Status)

	require.NoError(t, srv.stop())

	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	recs, err := j.Events(context.Background(), journal.Filter{Actor: "car-1"})
	require.NoError(t, err)
	kinds := make([]bridge.EventKind, 0, len(recs))
	for _, r := range recs {
		kinds = append(kinds, r.Event.Kind)
	}
	assert.Equal(t, []bridge.EventKind{bridge.EventGranted, bridge.EventPurged}, kinds,
		"the purge issued while closing connections is recorded")
}

func TestServe_InvalidPort(t *testing.T) {
	cmd := NewServeCommand(testRootOptions("text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--port", "70000"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid port")
}

func TestServe_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cmd := NewServeCommand(testRootOptions("text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--host", "127.0.0.1", "--port", itoa(port)})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestServe_JournalOpenFailure(t *testing.T) {
	cmd := NewServeCommand(testRootOptions("text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--port", "0", "--journal", filepath.Join(t.TempDir(), "missing", "dir", "j.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeSettings_FlagsOverrideConfig(t *testing.T) {
	opts := testRootOptions("text")
	opts.Config.Server.Port = 9000
	opts.Config.Server.Journal = "from-config.db"

	cmd := NewServeCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--journal", "from-flag.db"}))

	serveOpts := &ServeOptions{RootOptions: opts, Journal: "from-flag.db", Port: 7777}
	got := serveOpts.serverSettings(cmd)
	assert.Equal(t, 9000, got.Port, "unchanged flag keeps the config value")
	assert.Equal(t, "from-flag.db", got.Journal)
}
