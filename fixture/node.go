package fixture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"
)

const (
	// readyTimeout bounds how long AwaitReady waits for a node to accept an
	// acknowledged write.
	readyTimeout = 3 * time.Minute

	// stopTimeout bounds a graceful shutdown before the process is killed.
	stopTimeout = 30 * time.Second
)

// pgNode manages one spawned PostgreSQL server process: init its data
// directory, start and stop the process, and confirm it accepts writes.
type pgNode struct {
	logger  log.Logger
	binDir  string
	dataDir string
	port    int

	// serverParams are extra settings appended to the server command line.
	serverParams map[string]string

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited bool
}

func newPGNode(logger log.Logger, binDir, dataDir string, port int, serverParams map[string]string) *pgNode {
	return &pgNode{
		logger:       logger,
		binDir:       binDir,
		dataDir:      dataDir,
		port:         port,
		serverParams: serverParams,
	}
}

func (n *pgNode) connString() string {
	return fmt.Sprintf("postgres://postgres@127.0.0.1:%d/postgres?sslmode=disable", n.port)
}

func (n *pgNode) binary(name string) string {
	if n.binDir == "" {
		return name
	}
	return filepath.Join(n.binDir, name)
}

// initData creates the node's data directory. A directory that was already
// initialized is kept as is, so a restarted node comes back with its data.
func (n *pgNode) initData() error {
	if _, err := os.Stat(filepath.Join(n.dataDir, "PG_VERSION")); err == nil {
		return nil
	}
	if err := os.RemoveAll(n.dataDir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(n.dataDir), 0o755); err != nil {
		return err
	}
	cmd := exec.Command(n.binary("initdb"), "-D", n.dataDir, "-U", "postgres", "--no-sync")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("initdb failed: %w: %s", err, out)
	}
	return nil
}

// start launches the server process. The caller confirms readiness
// separately.
func (n *pgNode) start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cmd != nil && !n.exited {
		return fmt.Errorf("server on port %d is already running", n.port)
	}

	args := []string{
		"-D", n.dataDir,
		"-p", fmt.Sprintf("%d", n.port),
		"-c", "listen_addresses=127.0.0.1",
		"-c", "unix_socket_directories=" + n.dataDir,
	}
	for k, v := range n.serverParams {
		args = append(args, "-c", fmt.Sprintf("%s=%s", k, v))
	}

	cmd := exec.Command(n.binary("postgres"), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting server on port %d: %w", n.port, err)
	}
	n.cmd = cmd
	n.exited = false
	n.logger.Info("Started server process", "pid", cmd.Process.Pid, "port", n.port)

	go func() {
		err := cmd.Wait()
		n.mu.Lock()
		n.exited = true
		n.mu.Unlock()
		if err != nil {
			n.logger.Warn("Server process exited", "pid", cmd.Process.Pid, "port", n.port, "error", err)
		}
	}()
	return nil
}

// isRunning reports whether the server process is still alive.
func (n *pgNode) isRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cmd != nil && !n.exited
}

// awaitReady blocks until the node accepts an acknowledged write.
func (n *pgNode) awaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		if !n.isRunning() {
			return backoff.Permanent(fmt.Errorf("server process on port %d exited before becoming ready", n.port))
		}
		return primingWrite(ctx, n.connString())
	}, policy)
}

// primingWrite connects and performs one acknowledged write.
func primingWrite(ctx context.Context, connString string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE TABLE IF NOT EXISTS harness_ready (at timestamptz NOT NULL)"); err != nil {
		return err
	}
	_, err = conn.Exec(ctx, "INSERT INTO harness_ready (at) VALUES (now())")
	return err
}

// stop shuts the server down. With graceful=true the process gets SIGINT
// (fast shutdown) and stopTimeout to exit before being killed.
func (n *pgNode) stop(graceful bool) error {
	n.mu.Lock()
	cmd := n.cmd
	exited := n.exited
	n.mu.Unlock()

	if cmd == nil || exited {
		return nil
	}

	sig := syscall.SIGINT
	if !graceful {
		sig = syscall.SIGKILL
	}
	if err := cmd.Process.Signal(sig); err != nil {
		return err
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !n.isRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	n.logger.Warn("Server did not stop in time, killing it", "pid", cmd.Process.Pid, "port", n.port)
	if err := cmd.Process.Kill(); err != nil {
		return err
	}
	for n.isRunning() {
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}
