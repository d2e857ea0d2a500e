// Package store is the durable metadata collaborator from spec §6: a table
// of agents and a table of registered repos, backed by a pure-Go sqlite
// driver so the daemon binary stays cgo-free.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/GasimGasimzada/workforest/internal/core"
)

// Agent mirrors the entity in spec §3.
type Agent struct {
	Name         string
	Label        string
	Repo         string
	Tool         string
	Status       string
	WorktreePath string
	Styles       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	StatusRunning = "running"
	StatusSleep   = "sleep"
)

// Repo is a registered repository.
type Repo struct {
	Name string
	Path string
}

// Store wraps the sqlite connection. All methods are safe for concurrent
// use; the underlying *sql.DB pools and serializes access itself.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, core.Wrap("open metadata store", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS agents (
	name TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	repo TEXT NOT NULL,
	tool TEXT NOT NULL,
	status TEXT NOT NULL,
	worktree_path TEXT NOT NULL UNIQUE,
	styles TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS repos (
	name TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE
);
`)
	if err != nil {
		return core.Wrap("migrate metadata store", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup implements session.MetadataLookup: ensure_session reads (tool,
// worktree_path) by name.
func (s *Store) Lookup(name string) (tool, worktreePath string, err error) {
	row := s.db.QueryRow(`SELECT tool, worktree_path FROM agents WHERE name = ?`, name)
	if scanErr := row.Scan(&tool, &worktreePath); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", "", core.NotFound("agent %q not found", name)
		}
		return "", "", core.Wrap("lookup agent", scanErr)
	}
	return tool, worktreePath, nil
}

// InsertAgent creates a new agent row. The caller is responsible for name
// uniqueness (session.GenerateName + a prior NameExists check).
func (s *Store) InsertAgent(a Agent) error {
	now := time.Now()
	_, err := s.db.Exec(`
INSERT INTO agents (name, label, repo, tool, status, worktree_path, styles, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.Label, a.Repo, a.Tool, a.Status, a.WorktreePath, a.Styles, now, now)
	if err != nil {
		return core.Wrap("insert agent", err)
	}
	return nil
}

// GetAgent returns the agent row for name.
func (s *Store) GetAgent(name string) (Agent, error) {
	row := s.db.QueryRow(`SELECT name, label, repo, tool, status, worktree_path, styles, created_at, updated_at
FROM agents WHERE name = ?`, name)
	var a Agent
	if err := row.Scan(&a.Name, &a.Label, &a.Repo, &a.Tool, &a.Status, &a.WorktreePath, &a.Styles, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Agent{}, core.NotFound("agent %q not found", name)
		}
		return Agent{}, core.Wrap("get agent", err)
	}
	return a, nil
}

// ListAgents returns every agent row, ordered by name.
func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT name, label, repo, tool, status, worktree_path, styles, created_at, updated_at
FROM agents ORDER BY name`)
	if err != nil {
		return nil, core.Wrap("list agents", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.Name, &a.Label, &a.Repo, &a.Tool, &a.Status, &a.WorktreePath, &a.Styles, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, core.Wrap("scan agent", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAgentStatus sets status and bumps updated_at.
func (s *Store) UpdateAgentStatus(name, status string) error {
	res, err := s.db.Exec(`UPDATE agents SET status = ?, updated_at = ? WHERE name = ?`, status, time.Now(), name)
	if err != nil {
		return core.Wrap("update agent status", err)
	}
	return requireOneRowAffected(res, name)
}

// DeleteAgent removes an agent row.
func (s *Store) DeleteAgent(name string) error {
	res, err := s.db.Exec(`DELETE FROM agents WHERE name = ?`, name)
	if err != nil {
		return core.Wrap("delete agent", err)
	}
	return requireOneRowAffected(res, name)
}

func requireOneRowAffected(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return core.Wrap("rows affected", err)
	}
	if n == 0 {
		return core.NotFound("agent %q not found", name)
	}
	return nil
}

// NameExists reports whether an agent with this name is already persisted,
// for use as the `exists` callback passed to session.Unique/GenerateName.
func (s *Store) NameExists(name string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM agents WHERE name = ?`, name).Scan(&one)
	return err == nil
}

// InsertRepo registers a repository.
func (s *Store) InsertRepo(r Repo) error {
	_, err := s.db.Exec(`INSERT INTO repos (name, path) VALUES (?, ?)`, r.Name, r.Path)
	if err != nil {
		return core.Wrap("insert repo", err)
	}
	return nil
}

// GetRepo returns a registered repo by name.
func (s *Store) GetRepo(name string) (Repo, error) {
	row := s.db.QueryRow(`SELECT name, path FROM repos WHERE name = ?`, name)
	var r Repo
	if err := row.Scan(&r.Name, &r.Path); err != nil {
		if err == sql.ErrNoRows {
			return Repo{}, core.NotFound("repo %q not found", name)
		}
		return Repo{}, core.Wrap("get repo", err)
	}
	return r, nil
}

// ListRepos returns every registered repo, ordered by name.
func (s *Store) ListRepos() ([]Repo, error) {
	rows, err := s.db.Query(`SELECT name, path FROM repos ORDER BY name`)
	if err != nil {
		return nil, core.Wrap("list repos", err)
	}
	defer rows.Close()
	var out []Repo
	for rows.Next() {
		var r Repo
		if err := rows.Scan(&r.Name, &r.Path); err != nil {
			return nil, core.Wrap("scan repo", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RepoNameExists reports whether a repo with this name is already
// registered, for use as a session.Unique exists callback.
func (s *Store) RepoNameExists(name string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM repos WHERE name = ?`, name).Scan(&one)
	return err == nil
}

// repoRegistration is the on-disk shape of <data_dir>/repos/<name>/repo.yaml,
// per SPEC_FULL.md §A: registration carries only name and path, the same
// minimal shape the daemon's project.yaml registration used.
type repoRegistration struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// WriteRepoFile persists r's registration file under dataDir, alongside its
// sqlite row. The file is the human-inspectable record; sqlite is what the
// core actually queries.
func WriteRepoFile(dataDir string, r Repo) error {
	dir := filepath.Join(dataDir, "repos", r.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.Wrap("create repo registration dir", err)
	}
	data, err := yaml.Marshal(repoRegistration{Name: r.Name, Path: r.Path})
	if err != nil {
		return core.Wrap("marshal repo registration", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "repo.yaml"), data, 0o644); err != nil {
		return core.Wrap("write repo registration", err)
	}
	return nil
}

// ReadRepoFile loads a repo registration written by WriteRepoFile. The
// daemon does not read these files back at startup; the sqlite table is the
// only record it queries.
func ReadRepoFile(dataDir, name string) (Repo, error) {
	path := filepath.Join(dataDir, "repos", name, "repo.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return Repo{}, core.Wrap("read repo registration", err)
	}
	var reg repoRegistration
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return Repo{}, core.Wrap("parse repo registration", err)
	}
	return Repo{Name: reg.Name, Path: reg.Path}, nil
}
