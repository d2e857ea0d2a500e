package session

import (
	"sync"

	"github.com/GasimGasimzada/workforest/internal/core"
	"github.com/GasimGasimzada/workforest/internal/ptyproc"
)

// MetadataLookup is the external metadata store's contract with the core,
// per spec §6: ensure_session reads (tool, worktree_path) by name.
type MetadataLookup interface {
	Lookup(name string) (tool, worktreePath string, err error)
}

// Registry is the process-wide SessionRegistry from spec §4.5. It guards
// invariant I1: at most one Session per agent name at any time.
type Registry struct {
	mu    sync.Mutex
	store MetadataLookup
	byName map[string]*Session
}

// NewRegistry returns an empty Registry consulting store for ensure_session
// lookups.
func NewRegistry(store MetadataLookup) *Registry {
	return &Registry{store: store, byName: map[string]*Session{}}
}

// Get returns the live session for name, if any.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byName[name]
	return s, ok
}

// Start is start_session from spec §4.5: idempotent when a session for name
// already exists. On failure, any partial state is torn down before
// returning.
func (r *Registry) Start(name, tool, worktreePath string, size core.Size) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.byName[name]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	proc, err := ptyproc.Start(worktreePath, tool, size)
	if err != nil {
		return nil, core.Wrap("start session "+name, err)
	}

	s := newSession(name, tool, worktreePath, proc, size)

	r.mu.Lock()
	if existing, ok := r.byName[name]; ok {
		// Lost a race with a concurrent Start; keep the winner, discard ours.
		r.mu.Unlock()
		proc.Kill()
		return existing, nil
	}
	r.byName[name] = s
	r.mu.Unlock()

	go s.reader(func() { r.evict(name, s) })

	return s, nil
}

// evict removes s from the registry if it is still the entry for name,
// implementing the eager-eviction policy documented in DESIGN.md for the
// open question in spec §9 (a tool exiting on its own removes the Session
// immediately rather than waiting for the next ensure_session).
func (r *Registry) evict(name string, s *Session) {
	r.mu.Lock()
	if r.byName[name] == s {
		delete(r.byName, name)
	}
	r.mu.Unlock()
}

// Stop is stop_session from spec §4.5: removes the entry, then kills the
// child. The reader thread's own EOF-driven exit performs the rest of the
// teardown. It returns the removed Session (if any) so a caller that needs
// to wait for teardown to finish can call Done() on the exact instance it
// stopped, rather than racing a fresh Get against the now-empty registry
// entry.
func (r *Registry) Stop(name string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
	}
	r.mu.Unlock()
	if ok {
		s.Kill()
	}
	return s, ok
}

// Ensure is ensure_session from spec §4.5: starts a session for name if one
// isn't already running, consulting the metadata store for (tool, worktree).
// Fails with NotFound if the agent is unknown to the store.
func (r *Registry) Ensure(name string, size core.Size) (*Session, error) {
	if s, ok := r.Get(name); ok {
		return s, nil
	}
	tool, worktreePath, err := r.store.Lookup(name)
	if err != nil {
		return nil, err
	}
	return r.Start(name, tool, worktreePath, size)
}
