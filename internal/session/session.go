// Package session implements the Session and SessionRegistry from spec
// §3/§4.5: the runtime aggregate binding a PtyProcess to its HistoryRing,
// TerminalSnapshotBuilder, and SubscriberFanout, and the process-wide map
// keyed by agent name that guards the "exactly one Session per name"
// invariant (I1).
package session

import (
	"log"
	"sync"

	"github.com/GasimGasimzada/workforest/internal/core"
	"github.com/GasimGasimzada/workforest/internal/fanout"
	"github.com/GasimGasimzada/workforest/internal/history"
	"github.com/GasimGasimzada/workforest/internal/ptyproc"
	"github.com/GasimGasimzada/workforest/internal/vt"
)

const readChunk = 4096

// Session is the runtime entity from spec §3. The mutex guards size,
// history, snapshot, and subscribers together so a reader-loop iteration's
// effects are atomic with respect to a concurrent attach (invariant I3).
type Session struct {
	Name        string
	Tool        string
	WorktreePath string

	proc *ptyproc.Process

	mu      sync.Mutex
	size    core.Size
	history *history.Ring
	vtb     *vt.Builder
	fan     *fanout.Fanout

	dead chan struct{} // closed once the reader loop has returned
}

func newSession(name, tool, worktreePath string, proc *ptyproc.Process, size core.Size) *Session {
	return &Session{
		Name:         name,
		Tool:         tool,
		WorktreePath: worktreePath,
		proc:         proc,
		size:         size,
		history:      history.New(history.DefaultLimit),
		vtb:          vt.NewBuilder(int(size.Rows)),
		fan:          fanout.New(),
		dead:         make(chan struct{}),
	}
}

// Attach registers sink as a new subscriber and returns the history replay
// and a snapshot clone captured at the same linearization point, satisfying
// the no-torn-read requirement in spec §8.
func (s *Session) Attach(sink fanout.Sink) (replay []byte, snap vt.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	replay = s.history.Snapshot()
	snap = s.vtb.Snapshot()
	select {
	case <-s.dead:
		// The reader loop already exited and reaped every subscriber; no
		// further Write will ever run to reap this one, so close it now
		// instead of registering it.
		if c, ok := sink.(interface{ Close() error }); ok {
			c.Close()
		}
	default:
		s.fan.Add(sink)
	}
	return replay, snap
}

// Resize changes the PTY's dimensions and clears the scroll region, per spec
// §4.6 ("the snapshot's scroll region is cleared").
func (s *Session) Resize(size core.Size) error {
	s.mu.Lock()
	s.size = size
	s.mu.Unlock()
	if err := s.proc.Resize(size); err != nil {
		return err
	}
	s.mu.Lock()
	s.vtb.Resize(int(size.Rows))
	s.mu.Unlock()
	return nil
}

// Input writes payload to the PTY. A zero-length payload is a valid no-op,
// per spec §4.6.
func (s *Session) Input(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if _, err := s.proc.Write(payload); err != nil {
		return core.Wrap("write pty input", err)
	}
	return nil
}

// reader is the dedicated per-session thread from spec §5: it blocks in a
// PTY-master read, then performs history append, snapshot update, and
// subscriber fanout under one critical section before looping.
func (s *Session) reader(onExit func()) {
	buf := make([]byte, readChunk)
	master := s.proc.Master()
	for {
		n, err := master.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			s.mu.Lock()
			s.history.Append(chunk)
			s.vtb.Write(chunk)
			s.fan.Write(chunk)
			s.mu.Unlock()
		}
		if err != nil {
			break
		}
	}

	waitErr := s.proc.Wait()
	s.proc.CloseMaster() // on a forced Kill this is a no-op; on natural exit this is the one close

	s.mu.Lock()
	s.fan.CloseAll() // no further Write will run to reap these subscribers
	s.mu.Unlock()

	log.Printf("session %s: tool process exited (%v)", s.Name, waitErr)
	close(s.dead)
	onExit()
}

// Kill best-effort tears down the child process and PTY. The reader thread
// observes EOF and exits on its own; Kill does not join it, mirroring spec
// §4.5's "stop does not explicitly join it".
func (s *Session) Kill() {
	s.proc.Kill()
}

// Done is closed once the reader loop has returned, letting callers wait for
// the child to be fully reaped without blocking the caller of Kill.
func (s *Session) Done() <-chan struct{} {
	return s.dead
}
