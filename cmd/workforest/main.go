// workforest is the CLI client: it talks to workforestd's HTTP control
// surface and attach socket, auto-starting the daemon if it isn't already
// running.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type serverInfo struct {
	PID  int `json:"pid"`
	Port int `json:"port"`
}

func main() {
	root := &cobra.Command{
		Use:   "workforest",
		Short: "workforest — run many AI coding agents against isolated worktrees",
	}
	root.AddCommand(
		listCmd(),
		startCmd(),
		stopCmd(),
		restartCmd(),
		attachCmd(),
		logsCmd(),
		repoCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dataDir() string {
	if env := os.Getenv("WORKFOREST_ROOT"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workforest"
	}
	return filepath.Join(home, ".workforest")
}

func serverJSONPath() string {
	return filepath.Join(dataDir(), "server.json")
}

func readServerInfo() (serverInfo, bool) {
	data, err := os.ReadFile(serverJSONPath())
	if err != nil {
		return serverInfo{}, false
	}
	var info serverInfo
	if json.Unmarshal(data, &info) != nil {
		return serverInfo{}, false
	}
	return info, true
}

func isServerAlive(port int) bool {
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ensureServerRunning mirrors cli/src/main.rs's ensure_server_running: reuse
// a live daemon recorded in server.json, otherwise spawn workforestd and
// poll until it reports healthy.
func ensureServerRunning() (serverInfo, error) {
	if info, ok := readServerInfo(); ok && isServerAlive(info.Port) {
		return info, nil
	}
	os.Remove(serverJSONPath())

	bin, err := locateBinary("workforestd")
	if err != nil {
		return serverInfo{}, err
	}
	cmd := exec.Command(bin, "--root", dataDir())
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return serverInfo{}, fmt.Errorf("start workforestd: %w", err)
	}

	for i := 0; i < 40; i++ {
		if info, ok := readServerInfo(); ok && isServerAlive(info.Port) {
			return info, nil
		}
		time.Sleep(150 * time.Millisecond)
	}
	return serverInfo{}, fmt.Errorf("workforestd failed to start")
}

func locateBinary(name string) (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%s not found; build it or put it on PATH", name)
}

type apiClient struct {
	baseURL string
}

func client() (*apiClient, error) {
	info, err := ensureServerRunning()
	if err != nil {
		return nil, err
	}
	return &apiClient{baseURL: fmt.Sprintf("http://127.0.0.1:%d", info.Port)}, nil
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		json.Unmarshal(data, &errBody)
		if errBody.Error != "" {
			return fmt.Errorf("%s", errBody.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

type agentView struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	Repo         string `json:"repo"`
	Tool         string `json:"tool"`
	Status       string `json:"status"`
	WorktreePath string `json:"worktree_path"`
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var resp struct {
				Agents []agentView `json:"agents"`
			}
			if err := c.do(http.MethodGet, "/agents", nil, &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tREPO\tTOOL\tWORKTREE")
			for _, a := range resp.Agents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.Name, a.Status, a.Repo, a.Tool, a.WorktreePath)
			}
			return w.Flush()
		},
	}
}

func startCmd() *cobra.Command {
	var name, tool string
	cmd := &cobra.Command{
		Use:   "start <repo>",
		Short: "Start a new agent against a registered repo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			req := map[string]string{"repo": args[0], "tool": tool}
			if name != "" {
				req["name"] = name
			}
			var resp struct {
				Agent agentView `json:"agent"`
			}
			if err := c.do(http.MethodPost, "/agents", req, &resp); err != nil {
				return err
			}
			fmt.Printf("started %s\n", resp.Agent.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agent name (default: generated)")
	cmd.Flags().StringVar(&tool, "tool", "claude", "tool command to run inside the worktree")
	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop and remove an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.do(http.MethodDelete, "/agents/"+args[0], nil, nil)
		},
	}
}

func restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart an agent's tool process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.do(http.MethodPost, "/agents/"+args[0]+"/restart", nil, nil)
		},
	}
}

func logsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <name>",
		Short: "Print buffered output for an agent without attaching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAttachConn(args[0], func(conn net.Conn, replay []byte) error {
				_, err := os.Stdout.Write(replay)
				return err
			})
		},
	}
}

// attachCmd puts the local terminal into raw mode and pipes bytes between it
// and the passed descriptor, per spec §4.6's attach contract.
func attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <name>",
		Short: "Attach to a running agent's terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAttachConn(args[0], func(conn net.Conn, replay []byte) error {
				os.Stdout.Write(replay)

				fd := int(os.Stdin.Fd())
				oldState, err := term.MakeRaw(fd)
				if err != nil {
					return fmt.Errorf("raw mode: %w", err)
				}
				defer term.Restore(fd, oldState)

				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, os.Interrupt)
				defer signal.Stop(sigCh)

				done := make(chan struct{})
				go func() {
					io.Copy(os.Stdout, conn)
					close(done)
				}()
				go io.Copy(conn, os.Stdin)

				<-done
				return nil
			})
		},
	}
}

// withAttachConn performs the ATTACH handshake against <data_dir>/pty.sock,
// receives the passed descriptor, and invokes fn with a *net.UnixConn
// wrapping it plus the replayed history.
func withAttachConn(name string, fn func(conn net.Conn, replay []byte) error) error {
	if _, err := ensureServerRunning(); err != nil {
		return err
	}
	sockPath := filepath.Join(dataDir(), "pty.sock")
	raw, err := net.Dial("unix", sockPath)
	if err != nil {
		return fmt.Errorf("dial attach socket: %w", err)
	}
	conn := raw.(*net.UnixConn)
	defer conn.Close()

	fmt.Fprintf(conn, "ATTACH %s\n", name)
	r := bufio.NewReader(conn)

	if _, err := readLinePrefixed(r, "MODES "); err != nil {
		return err
	}
	histLine, err := readLinePrefixed(r, "HISTORY ")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(histLine)
	if err != nil {
		return fmt.Errorf("malformed HISTORY length: %q", histLine)
	}
	replay := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, replay); err != nil {
			return err
		}
	}

	oob := make([]byte, 32)
	okBuf := make([]byte, 3)
	_, oobn, _, _, err := conn.ReadMsgUnix(okBuf, oob)
	if err != nil {
		return fmt.Errorf("read OK with descriptor: %w", err)
	}
	fd, err := extractFD(oob[:oobn])
	if err != nil {
		return err
	}

	liveConn, err := net.FileConn(os.NewFile(uintptr(fd), "live-"+name))
	if err != nil {
		return err
	}
	defer liveConn.Close()

	return fn(liveConn, replay)
}

// extractFD pulls the single passed descriptor out of a SCM_RIGHTS
// ancillary message.
func extractFD(oob []byte) (int, error) {
	msgs, err := syscall.ParseSocketControlMessage(oob)
	if err != nil {
		return 0, fmt.Errorf("parse control message: %w", err)
	}
	for _, msg := range msgs {
		fds, err := syscall.ParseUnixRights(&msg)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return fds[0], nil
		}
	}
	return 0, fmt.Errorf("no descriptor in ATTACH response")
}

func readLinePrefixed(r *bufio.Reader, prefix string) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = line[:len(line)-1]
	if len(line) < len(prefix) || line[:len(prefix)] != prefix {
		return "", fmt.Errorf("expected %q, got %q", prefix, line)
	}
	return line[len(prefix):], nil
}

func repoCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "repo", Short: "Manage registered repositories"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered repos",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var resp struct {
				Repos []struct {
					Name string `json:"name"`
					Path string `json:"path"`
				} `json:"repos"`
			}
			if err := c.do(http.MethodGet, "/repos", nil, &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPATH")
			for _, r := range resp.Repos {
				fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Path)
			}
			return w.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <path>",
		Short: "Register a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return c.do(http.MethodPost, "/repos", map[string]string{"path": abs}, nil)
		},
	})
	return cmd
}
