// Package httpapi is the HTTP control surface collaborator from spec §6: it
// validates requests and drives the core through session.Registry,
// worktree.Manager, and store.Store; it never touches a PTY directly except
// through the read-only websocket mirror on /agents/output.
package httpapi

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/GasimGasimzada/workforest/internal/core"
	"github.com/GasimGasimzada/workforest/internal/session"
	"github.com/GasimGasimzada/workforest/internal/store"
	"github.com/GasimGasimzada/workforest/internal/worktree"
)

// Server wires the control surface to the core.
type Server struct {
	Store       *store.Store
	Registry    *session.Registry
	Worktrees   *worktree.Manager
	DataDir     string
	DefaultSize core.Size
	Shutdown    context.CancelFunc

	upgrader websocket.Upgrader
}

// Router builds the gin engine. Each request gets a correlation ID (logged,
// echoed as X-Request-Id) the way the teacher's daemon logs one line per
// lifecycle event.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/shutdown", s.handleShutdown)

	r.GET("/agents", s.handleListAgents)
	r.POST("/agents", s.handleCreateAgent)
	r.DELETE("/agents/:name", s.handleDeleteAgent)
	r.POST("/agents/:name/restart", s.handleRestartAgent)
	r.GET("/agents/output", s.handleAgentOutput)

	r.GET("/repos", s.handleListRepos)
	r.POST("/repos", s.handleCreateRepo)

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Writer.Header().Set("X-Request-Id", id)
		c.Set("request_id", id)
		c.Next()
		log.Printf("[%s] %s %s -> %d", id, c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindBadRequest:
		status = http.StatusBadRequest
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindConflict:
		status = http.StatusConflict
	case core.KindProtocol:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"ok": false, "error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleShutdown(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
	if s.Shutdown != nil {
		s.Shutdown()
	}
}

type agentView struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	Repo         string `json:"repo"`
	Tool         string `json:"tool"`
	Status       string `json:"status"`
	WorktreePath string `json:"worktree_path"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func viewOf(a store.Agent) agentView {
	return agentView{
		Name: a.Name, Label: a.Label, Repo: a.Repo, Tool: a.Tool,
		Status: a.Status, WorktreePath: a.WorktreePath,
		CreatedAt: a.CreatedAt.Unix(), UpdatedAt: a.UpdatedAt.Unix(),
	}
}

func (s *Server) handleListAgents(c *gin.Context) {
	agents, err := s.Store.ListAgents()
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, viewOf(a))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "agents": views})
}

type createAgentRequest struct {
	Repo string `json:"repo" binding:"required"`
	Tool string `json:"tool" binding:"required"`
	Name string `json:"name"`
}

// handleCreateAgent implements POST /agents {repo, tool, name?}: validate,
// create the worktree, persist metadata, then idempotently start the
// session, per spec §2's control-flow summary.
func (s *Server) handleCreateAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, core.BadRequest("%s", err))
		return
	}

	repo, err := s.Store.GetRepo(req.Repo)
	if err != nil {
		writeError(c, err)
		return
	}

	name := req.Name
	if name == "" {
		name = session.GenerateName(s.Store.NameExists)
	} else if s.Store.NameExists(name) {
		writeError(c, core.Conflict("agent %q already exists", name))
		return
	}

	worktreePath, err := s.Worktrees.Create(repo.Path, repo.Name, name)
	if err != nil {
		writeError(c, err)
		return
	}

	agent := store.Agent{
		Name: name, Label: name, Repo: repo.Name, Tool: req.Tool,
		Status: store.StatusRunning, WorktreePath: worktreePath,
	}
	if err := s.Store.InsertAgent(agent); err != nil {
		s.Worktrees.Remove(repo.Path, name, worktreePath)
		writeError(c, err)
		return
	}

	if _, err := s.Registry.Start(name, req.Tool, worktreePath, s.DefaultSize); err != nil {
		s.Store.DeleteAgent(name)
		s.Worktrees.Remove(repo.Path, name, worktreePath)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "agent": viewOf(agent)})
}

// handleDeleteAgent implements DELETE /agents/:name: stop the session, then
// remove the worktree and metadata row.
func (s *Server) handleDeleteAgent(c *gin.Context) {
	name := c.Param("name")
	agent, err := s.Store.GetAgent(name)
	if err != nil {
		writeError(c, err)
		return
	}

	if sess, ok := s.Registry.Stop(name); ok {
		<-sess.Done()
	}

	repo, err := s.Store.GetRepo(agent.Repo)
	if err == nil {
		if err := s.Worktrees.Remove(repo.Path, name, agent.WorktreePath); err != nil {
			log.Printf("delete agent %s: worktree remove: %v", name, err)
		}
	}

	if err := s.Store.DeleteAgent(name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleRestartAgent stops then re-ensures a session for name, matching the
// "one-at-a-time restart" path spec §9 notes as racing against attach's
// idempotent ensure path; Stop-then-Start serializes through the registry's
// own lock so the two never interleave partially.
func (s *Server) handleRestartAgent(c *gin.Context) {
	name := c.Param("name")
	agent, err := s.Store.GetAgent(name)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess, ok := s.Registry.Stop(name); ok {
		<-sess.Done()
	}
	if _, err := s.Registry.Start(name, agent.Tool, agent.WorktreePath, s.DefaultSize); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleAgentOutput mirrors a session's live bytes onto a websocket, for
// remote dashboards that can't reach the local attach socket. It is
// read-only: the session's fanout gains one more sink, exactly like an
// attach-broker subscriber, per SPEC_FULL.md §E.
func (s *Server) handleAgentOutput(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeError(c, core.BadRequest("missing name query parameter"))
		return
	}
	sess, err := s.Registry.Ensure(name, s.DefaultSize)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sink := &websocketSink{conn: conn}
	replay, snap := sess.Attach(sink)
	_ = conn.WriteMessage(websocket.TextMessage, mustJSON(snap))
	if len(replay) > 0 {
		_ = conn.WriteMessage(websocket.BinaryMessage, replay)
	}

	// Drain inbound frames until the client disconnects; this handler never
	// acts on stdin or resize frames from any client, per SPEC_FULL.md §E.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func mustJSON(v interface{ MarshalJSON() ([]byte, error) }) []byte {
	b, err := v.MarshalJSON()
	if err != nil {
		return []byte(`{}`)
	}
	return b
}

// websocketSink adapts a *websocket.Conn to the fanout.Sink (io.Writer)
// contract, framing each chunk as one binary message.
type websocketSink struct {
	conn *websocket.Conn
}

func (w *websocketSink) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

type repoView struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Server) handleListRepos(c *gin.Context) {
	repos, err := s.Store.ListRepos()
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]repoView, 0, len(repos))
	for _, r := range repos {
		views = append(views, repoView{Name: r.Name, Path: r.Path})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "repos": views})
}

type createRepoRequest struct {
	Path string `json:"path" binding:"required"`
}

// handleCreateRepo implements POST /repos {path}: validate the path is a
// git repository, derive a name, and persist both the sqlite row and the
// human-inspectable repo.yaml registration file.
func (s *Server) handleCreateRepo(c *gin.Context) {
	var req createRepoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, core.BadRequest("%s", err))
		return
	}
	if fi, err := os.Stat(req.Path); err != nil || !fi.IsDir() {
		writeError(c, core.BadRequest("not a directory: %s", req.Path))
		return
	}
	if _, err := os.Stat(req.Path + "/.git"); err != nil {
		writeError(c, core.BadRequest("not a git repository: %s", req.Path))
		return
	}

	name := session.RepoNameFromPath(req.Path, s.Store.RepoNameExists)
	repo := store.Repo{Name: name, Path: req.Path}
	if err := s.Store.InsertRepo(repo); err != nil {
		writeError(c, err)
		return
	}
	if err := store.WriteRepoFile(s.DataDir, repo); err != nil {
		log.Printf("create repo %s: write registration file: %v", name, err)
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "repo": repoView{Name: repo.Name, Path: repo.Path}})
}

// init sets gin's global mode once per process; the daemon binary is the
// only caller, but tests also build the router so this stays idempotent.
func init() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
