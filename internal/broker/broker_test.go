package broker

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GasimGasimzada/workforest/internal/core"
	"github.com/GasimGasimzada/workforest/internal/session"
)

type fakeStore struct {
	tool, worktreePath string
}

func (f *fakeStore) Lookup(name string) (string, string, error) {
	if f.tool == "" {
		return "", "", core.NotFound("agent %q not found", name)
	}
	return f.tool, f.worktreePath, nil
}

func startTestBroker(t *testing.T, st *fakeStore) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "pty.sock")
	b := &Broker{
		SockPath:    sockPath,
		Registry:    session.NewRegistry(st),
		DefaultSize: core.Size{Cols: 80, Rows: 24},
	}
	go b.ListenAndServe()
	t.Cleanup(func() { b.Close() })

	require.Eventually(t, func() bool {
		_, err := os.Stat(sockPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	return sockPath
}

func dial(t *testing.T, sockPath string) *net.UnixConn {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	return conn.(*net.UnixConn)
}

func TestAttachToUnknownAgentFails(t *testing.T) {
	sockPath := startTestBroker(t, &fakeStore{})
	conn := dial(t, sockPath)
	defer conn.Close()

	conn.Write([]byte("ATTACH ghost\n"))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "ERR "))
}

func TestAttachReceivesModesHistoryAndDescriptor(t *testing.T) {
	sockPath := startTestBroker(t, &fakeStore{tool: "printf hello", worktreePath: t.TempDir()})
	conn := dial(t, sockPath)
	defer conn.Close()

	conn.Write([]byte("ATTACH demo\n"))
	r := bufio.NewReader(conn)

	modesLine, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(modesLine, "MODES {"))

	histLine, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(histLine, "HISTORY "))
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(histLine, "HISTORY ")))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 0)

	if n > 0 {
		buf := make([]byte, n)
		_, err := r.Read(buf)
		require.NoError(t, err)
	}

	oob := make([]byte, 32)
	okBuf := make([]byte, 3)
	_, oobn, _, _, err := conn.ReadMsgUnix(okBuf, oob)
	require.NoError(t, err)
	assert.Equal(t, "OK\n", string(okBuf))

	msgs, err := syscall.ParseSocketControlMessage(oob[:oobn])
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	fds, err := syscall.ParseUnixRights(&msgs[0])
	require.NoError(t, err)
	require.Len(t, fds, 1)
	syscall.Close(fds[0])
}

func TestResizeUnknownSessionFails(t *testing.T) {
	sockPath := startTestBroker(t, &fakeStore{})
	conn := dial(t, sockPath)
	defer conn.Close()

	conn.Write([]byte("RESIZE ghost 80 24\n"))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "ERR "))
}

func TestInputZeroLengthIsNoopAndSucceeds(t *testing.T) {
	sockPath := startTestBroker(t, &fakeStore{tool: "cat", worktreePath: t.TempDir()})
	conn := dial(t, sockPath)
	defer conn.Close()

	conn.Write([]byte("INPUT demo 0\n"))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "OK\n", line)
}
