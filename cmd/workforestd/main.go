// workforestd is the background daemon that supervises agent sessions: it
// owns the metadata store, the SessionRegistry, the attach broker, and the
// HTTP control surface.
//
// Usage:
//
//	workforestd [--root <dir>] [--port <n>]
//
// It is normally started automatically by the workforest CLI; you do not
// need to run it by hand.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/GasimGasimzada/workforest/internal/broker"
	"github.com/GasimGasimzada/workforest/internal/core"
	"github.com/GasimGasimzada/workforest/internal/httpapi"
	"github.com/GasimGasimzada/workforest/internal/session"
	"github.com/GasimGasimzada/workforest/internal/store"
	"github.com/GasimGasimzada/workforest/internal/worktree"
)

// serverInfo is the contents of <config_dir>/server.json, per spec §6: the
// supervisor's lifecycle file, written at startup and removed on clean
// shutdown so the CLI can auto-start a missing or stale daemon.
type serverInfo struct {
	PID  int `json:"pid"`
	Port int `json:"port"`
}

func main() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("cannot determine home directory: %v", err)
	}
	defaultRoot := filepath.Join(homeDir, ".workforest")
	if env := os.Getenv("WORKFOREST_ROOT"); env != "" {
		defaultRoot = env
	}

	dataDir := flag.String("root", defaultRoot, "workforestd data directory (env: WORKFOREST_ROOT)")
	port := flag.Int("port", 4777, "HTTP control surface port")
	flag.Parse()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	st, err := store.Open(filepath.Join(*dataDir, "app.db"))
	if err != nil {
		log.Fatalf("open metadata store: %v", err)
	}
	defer st.Close()

	registry := session.NewRegistry(st)
	wt := worktree.New(*dataDir)

	ctx, cancel := context.WithCancel(context.Background())

	b := &broker.Broker{
		SockPath:    filepath.Join(*dataDir, "pty.sock"),
		Registry:    registry,
		DefaultSize: core.Size{Cols: 80, Rows: 24},
	}
	go func() {
		if err := b.ListenAndServe(); err != nil {
			log.Printf("attach broker: %v", err)
		}
	}()
	defer b.Close()

	srv := &httpapi.Server{
		Store:       st,
		Registry:    registry,
		Worktrees:   wt,
		DataDir:     *dataDir,
		DefaultSize: core.Size{Cols: 80, Rows: 24},
		Shutdown:    cancel,
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(*port)))
	if err != nil {
		log.Fatalf("listen on port %d: %v", *port, err)
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port

	httpSrv := &http.Server{Handler: srv.Router()}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("http server: %v", err)
		}
	}()

	configDir := defaultConfigDir(*dataDir)
	serverJSONPath := filepath.Join(configDir, "server.json")
	if err := writeServerInfo(serverJSONPath, serverInfo{PID: os.Getpid(), Port: actualPort}); err != nil {
		log.Printf("write server.json: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down", sig)
		cancel()
	}()

	log.Printf("workforestd listening on :%d, data dir %s", actualPort, *dataDir)
	<-ctx.Done()

	httpSrv.Shutdown(context.Background())
	os.Remove(serverJSONPath)
}

func defaultConfigDir(dataDir string) string {
	return dataDir
}

func writeServerInfo(path string, info serverInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
