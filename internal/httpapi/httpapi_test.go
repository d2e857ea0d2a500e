package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GasimGasimzada/workforest/internal/core"
	"github.com/GasimGasimzada/workforest/internal/session"
	"github.com/GasimGasimzada/workforest/internal/store"
	"github.com/GasimGasimzada/workforest/internal/worktree"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	st, err := store.Open(filepath.Join(dataDir, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := session.NewRegistry(st)
	srv := &Server{
		Store:       st,
		Registry:    reg,
		Worktrees:   worktree.New(dataDir),
		DataDir:     dataDir,
		DefaultSize: core.Size{Cols: 80, Rows: 24},
		Shutdown:    func() {},
	}
	return srv, dataDir
}

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, exec.Command("sh", "-c", "echo hi > "+filepath.Join(dir, "README")).Run())
	run("add", "README")
	run("commit", "-m", "initial")
	return dir
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownInvokesCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	_, cancel := context.WithCancel(context.Background())
	called := false
	srv.Shutdown = func() { called = true; cancel() }

	rec := doJSON(t, srv.Router(), http.MethodGet, "/shutdown", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestCreateRepoThenCreateAgent(t *testing.T) {
	srv, _ := newTestServer(t)
	repoPath := initGitRepo(t)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/repos", map[string]string{"path": repoPath})
	require.Equal(t, http.StatusCreated, rec.Code)

	var repoResp struct {
		Repo struct {
			Name string `json:"name"`
		} `json:"repo"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repoResp))
	require.NotEmpty(t, repoResp.Repo.Name)

	rec = doJSON(t, srv.Router(), http.MethodPost, "/agents", map[string]string{
		"repo": repoResp.Repo.Name,
		"tool": "echo hi",
		"name": "demo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv.Router(), http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Agents []struct {
			Name string `json:"name"`
		} `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Agents, 1)
	assert.Equal(t, "demo", listResp.Agents[0].Name)
}

func TestCreateAgentUnknownRepo(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/agents", map[string]string{
		"repo": "ghost", "tool": "echo hi",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRepoRejectsNonGitDir(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/repos", map[string]string{"path": t.TempDir()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
