package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GasimGasimzada/workforest/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetAgent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertAgent(Agent{
		Name: "demo", Label: "demo", Repo: "r", Tool: "claude",
		Status: StatusRunning, WorktreePath: "/trees/demo",
	}))

	got, err := s.GetAgent("demo")
	require.NoError(t, err)
	assert.Equal(t, "claude", got.Tool)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestGetAgentNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetAgent("ghost")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestLookupImplementsMetadataLookup(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertAgent(Agent{
		Name: "demo", Label: "demo", Repo: "r", Tool: "claude",
		Status: StatusRunning, WorktreePath: "/trees/demo",
	}))

	tool, worktreePath, err := s.Lookup("demo")
	require.NoError(t, err)
	assert.Equal(t, "claude", tool)
	assert.Equal(t, "/trees/demo", worktreePath)
}

func TestListAgentsOrdersByName(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.InsertAgent(Agent{
			Name: name, Label: name, Repo: "r", Tool: "t",
			Status: StatusRunning, WorktreePath: "/trees/" + name,
		}))
	}

	agents, err := s.ListAgents()
	require.NoError(t, err)
	require.Len(t, agents, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{agents[0].Name, agents[1].Name, agents[2].Name})
}

func TestDeleteAgentNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.DeleteAgent("ghost")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestNameExists(t *testing.T) {
	s := openTestStore(t)
	assert.False(t, s.NameExists("demo"))
	require.NoError(t, s.InsertAgent(Agent{
		Name: "demo", Label: "demo", Repo: "r", Tool: "t",
		Status: StatusRunning, WorktreePath: "/trees/demo",
	}))
	assert.True(t, s.NameExists("demo"))
}

func TestRepoRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertRepo(Repo{Name: "demo-repo", Path: "/repos/demo"}))

	got, err := s.GetRepo("demo-repo")
	require.NoError(t, err)
	assert.Equal(t, "/repos/demo", got.Path)

	repos, err := s.ListRepos()
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestWriteAndReadRepoFile(t *testing.T) {
	dataDir := t.TempDir()
	r := Repo{Name: "demo-repo", Path: "/repos/demo"}
	require.NoError(t, WriteRepoFile(dataDir, r))

	got, err := ReadRepoFile(dataDir, "demo-repo")
	require.NoError(t, err)
	assert.Equal(t, r, got)
}
