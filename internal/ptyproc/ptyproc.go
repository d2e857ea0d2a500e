// Package ptyproc owns the child process/PTY pair underlying one session:
// spawn, read, write, resize, and kill. It is the leaf component from spec
// §4.1 and knows nothing about history, snapshots, or subscribers.
package ptyproc

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/GasimGasimzada/workforest/internal/core"
)

// Process wraps one running tool: its PTY master and the spawned child. The
// slave side of the PTY is handed to the child and never touched again by
// the orchestrator; it closes implicitly when the child exits.
type Process struct {
	cmd *exec.Cmd
	ptm *os.File
	pid int

	writeMu   sync.Mutex // serializes INPUT writes to ptm, per spec §5
	closeOnce sync.Once
}

// Start allocates a PTY pair and spawns tool inside a login-interactive
// POSIX shell rooted at dir, per spec §4.1's canonical invocation. The child
// is placed in its own session (pty.Start sets Setsid) so Kill can take down
// the whole process group in one shot.
func Start(dir, tool string, size core.Size) (*Process, error) {
	cmd := exec.Command("/bin/sh", "-lic", tool)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
	if err != nil {
		return nil, core.Wrap("spawn tool", err)
	}

	return &Process{cmd: cmd, ptm: ptm, pid: cmd.Process.Pid}, nil
}

// MasterFD returns the raw PTY master descriptor used by the reader thread.
func (p *Process) MasterFD() int {
	return int(p.ptm.Fd())
}

// Master exposes the PTY master file for the reader thread's Read loop.
func (p *Process) Master() *os.File {
	return p.ptm
}

// PID is the spawned child's process ID.
func (p *Process) PID() int {
	return p.pid
}

// Write sends bytes to the child's stdin, serialized against concurrent
// INPUT handlers for the same session.
func (p *Process) Write(b []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ptm.Write(b)
}

// Resize changes the PTY's dimensions. Failure here is a RESIZE-error, not a
// reason to tear down the session, per spec §4.1.
func (p *Process) Resize(size core.Size) error {
	if err := pty.Setsize(p.ptm, &pty.Winsize{Cols: size.Cols, Rows: size.Rows}); err != nil {
		return core.Wrap("resize pty", err)
	}
	return nil
}

// Kill best-effort terminates the child's entire process group, then closes
// the PTY master. Safe to call more than once, and safe to call after the
// master has already been closed by CloseMaster on a natural exit.
func (p *Process) Kill() {
	if p.pid > 0 {
		if pgid, err := syscall.Getpgid(p.pid); err == nil && pgid > 0 {
			syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			syscall.Kill(p.pid, syscall.SIGKILL)
		}
	}
	p.CloseMaster()
}

// CloseMaster closes the PTY master exactly once, per spec §5's fd ownership
// contract. The reader thread calls this on natural tool exit (EOF); Kill
// calls it on forced teardown. Either path may run first.
func (p *Process) CloseMaster() {
	p.closeOnce.Do(func() {
		p.ptm.Close()
	})
}

// Wait blocks until the child exits and returns its error (nil on a clean
// exit), mirroring exec.Cmd.Wait.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// ExitDescription renders a Wait error for logging.
func ExitDescription(err error) string {
	if err == nil {
		return "exit 0"
	}
	return fmt.Sprintf("exit error: %v", err)
}
