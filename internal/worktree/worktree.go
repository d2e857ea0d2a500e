// Package worktree creates and removes per-agent working copies through the
// external git binary, per spec §4.5 and §6's VCS contract. It has no
// notion of sessions or PTYs.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/GasimGasimzada/workforest/internal/core"
)

// Manager roots every worktree it creates under dataDir/"trees".
type Manager struct {
	dataDir string
}

// New returns a Manager rooted at dataDir.
func New(dataDir string) *Manager {
	return &Manager{dataDir: dataDir}
}

// Path returns the worktree path an agent named agentName in repo repoName
// would live at, per spec §4.5: data_dir/trees/<repo_name>-<kebab(agent_name)>.
func (m *Manager) Path(repoName, agentName string) string {
	return filepath.Join(m.dataDir, "trees", repoName+"-"+Kebab(agentName))
}

// Branch is the per-agent branch name git worktree creation uses.
func Branch(agentName string) string {
	return "agent/" + Kebab(agentName)
}

// Create adds a worktree for agentName off repoPath's current HEAD. It
// refuses to overwrite an existing path, per spec §4.5 ("A pre-existing path
// aborts creation (bad-request, not overwrite).").
func (m *Manager) Create(repoPath, repoName, agentName string) (string, error) {
	dest := m.Path(repoName, agentName)
	if _, err := os.Stat(dest); err == nil {
		return "", core.BadRequest("worktree path already exists: %s", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", core.Wrap("create trees directory", err)
	}

	branch := Branch(agentName)
	cmd := exec.Command("git", "-C", repoPath, "worktree", "add", "-b", branch, dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", core.Wrap(fmt.Sprintf("git worktree add: %s", strings.TrimSpace(string(out))), err)
	}
	return dest, nil
}

// Remove removes the worktree at path and best-effort deletes its branch.
// Branch-delete failure is not surfaced; worktree-remove failure is, per
// spec §6 ("failure of remove surfaces an error and leaves the worktree in
// place for operator cleanup").
func (m *Manager) Remove(repoPath, agentName, path string) error {
	cmd := exec.Command("git", "-C", repoPath, "worktree", "remove", "-f", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return core.Wrap(fmt.Sprintf("git worktree remove: %s", strings.TrimSpace(string(out))), err)
	}
	exec.Command("git", "-C", repoPath, "branch", "-D", Branch(agentName)).Run()
	return nil
}

// Kebab lowercases s and replaces spaces and underscores with hyphens. It is
// idempotent: Kebab(Kebab(s)) == Kebab(s).
func Kebab(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '_' {
			return '-'
		}
		return r
	}, s)
	return s
}
