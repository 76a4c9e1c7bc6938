package fixture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"

	"github.com/dbtestlabs/shoal/types"
)

// ReplicaSetFixtureClass is the class name of the primary-plus-standbys
// fixture.
const ReplicaSetFixtureClass = "ReplicaSetFixture"

func init() {
	Register(ReplicaSetFixtureClass, newReplicaSetFixture)
}

// ReplicaSetFixture spawns a primary and a set of streaming standbys.
type ReplicaSetFixture struct {
	logger log.Logger
	jobNum int

	mu      sync.Mutex
	nodes   []*pgNode
	primary int
}

type replicaSetOptions struct {
	NumNodes     int               `yaml:"num_nodes"`
	BinDir       string            `yaml:"bin_dir"`
	DataDir      string            `yaml:"data_dir"`
	ServerParams map[string]string `yaml:"server_params"`
}

func newReplicaSetFixture(logger log.Logger, jobNum int, opts map[string]any) (Fixture, error) {
	var o replicaSetOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.NumNodes == 0 {
		o.NumNodes = 3
	}
	if o.NumNodes < 2 {
		return nil, types.NewServerFailure("replica set needs at least 2 nodes, got %d", o.NumNodes)
	}
	if o.DataDir == "" {
		o.DataDir = filepath.Join(os.TempDir(), fmt.Sprintf("replset-job%d", jobNum))
	}

	f := &ReplicaSetFixture{logger: logger, jobNum: jobNum}
	for i := 0; i < o.NumNodes; i++ {
		port, err := NextPort(jobNum)
		if err != nil {
			return nil, err
		}
		params := map[string]string{
			"wal_level":             "replica",
			"max_wal_senders":       "10",
			"hot_standby":           "on",
			"wal_keep_size":         "64MB",
			"max_replication_slots": "10",
		}
		for k, v := range o.ServerParams {
			params[k] = v
		}
		nodeLogger := logger.New("node", i)
		f.nodes = append(f.nodes, newPGNode(nodeLogger, o.BinDir, filepath.Join(o.DataDir, fmt.Sprintf("node%d", i)), port, params))
	}
	return f, nil
}

func (f *ReplicaSetFixture) Class() string { return ReplicaSetFixtureClass }

// Setup starts the primary, waits for it to accept connections, then seeds
// and starts each standby from a base backup of the primary.
func (f *ReplicaSetFixture) Setup() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	primary := f.nodes[f.primary]
	if err := primary.initData(); err != nil {
		return types.NewFixtureError(err)
	}
	if err := f.allowReplication(primary); err != nil {
		return types.NewFixtureError(err)
	}
	if err := primary.start(); err != nil {
		return types.NewFixtureError(err)
	}
	if err := primary.awaitReady(context.Background()); err != nil {
		return types.NewFixtureError(fmt.Errorf("primary never accepted connections: %w", err))
	}

	for i, node := range f.nodes {
		if i == f.primary {
			continue
		}
		if err := f.seedStandby(node, primary); err != nil {
			return types.NewFixtureError(fmt.Errorf("seeding standby %d: %w", i, err))
		}
		if err := node.start(); err != nil {
			return types.NewFixtureError(err)
		}
	}
	return nil
}

// allowReplication appends a trust entry for replication connections from
// localhost to the node's host-based auth file.
func (f *ReplicaSetFixture) allowReplication(node *pgNode) error {
	hba, err := os.OpenFile(filepath.Join(node.dataDir, "pg_hba.conf"), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer hba.Close()
	_, err = fmt.Fprintln(hba, "host replication postgres 127.0.0.1/32 trust")
	return err
}

// seedStandby takes a base backup of the primary into the standby's data
// directory and marks it as a streaming standby.
func (f *ReplicaSetFixture) seedStandby(node, primary *pgNode) error {
	if err := os.RemoveAll(node.dataDir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(node.dataDir), 0o755); err != nil {
		return err
	}
	cmd := exec.Command(node.binary("pg_basebackup"),
		"-D", node.dataDir,
		"-h", "127.0.0.1",
		"-p", fmt.Sprintf("%d", primary.port),
		"-U", "postgres",
		"--wal-method=stream",
		"--no-sync",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pg_basebackup failed: %w: %s", err, out)
	}

	if err := os.WriteFile(filepath.Join(node.dataDir, "standby.signal"), nil, 0o644); err != nil {
		return err
	}
	conninfo := fmt.Sprintf("primary_conninfo = 'host=127.0.0.1 port=%d user=postgres'\n", primary.port)
	autoconf, err := os.OpenFile(filepath.Join(node.dataDir, "postgresql.auto.conf"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer autoconf.Close()
	_, err = autoconf.WriteString(conninfo)
	return err
}

// AwaitReady waits for the primary to accept an acknowledged write and for
// every standby to serve read-only queries in recovery mode.
func (f *ReplicaSetFixture) AwaitReady() error {
	f.mu.Lock()
	nodes := append([]*pgNode(nil), f.nodes...)
	primary := f.primary
	f.mu.Unlock()

	if err := nodes[primary].awaitReady(context.Background()); err != nil {
		return types.NewFixtureError(fmt.Errorf("primary never became ready: %w", err))
	}
	for i, node := range nodes {
		if i == primary {
			continue
		}
		if err := awaitStandby(node); err != nil {
			return types.NewFixtureError(fmt.Errorf("standby %d never became ready: %w", i, err))
		}
	}
	f.logger.Info("Replica set is ready", "primary_port", nodes[primary].port, "nodes", len(nodes))
	return nil
}

// awaitStandby blocks until the node answers queries and reports itself in
// recovery.
func awaitStandby(node *pgNode) error {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		if !node.isRunning() {
			return backoff.Permanent(fmt.Errorf("standby process on port %d exited", node.port))
		}
		conn, err := pgx.Connect(ctx, node.connString())
		if err != nil {
			return err
		}
		defer conn.Close(ctx)
		var inRecovery bool
		if err := conn.QueryRow(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
			return err
		}
		if !inRecovery {
			return fmt.Errorf("node on port %d is not in recovery", node.port)
		}
		return nil
	}, policy)
}

// Teardown stops the standbys first, then the primary.
func (f *ReplicaSetFixture) Teardown(finished bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	running := false
	for _, node := range f.nodes {
		if node.isRunning() {
			running = true
		}
	}
	if !running {
		if finished {
			return nil
		}
		return types.NewFixtureError(fmt.Errorf("replica set of job %d was already stopped", f.jobNum))
	}

	var firstErr error
	for i := len(f.nodes) - 1; i >= 0; i-- {
		if i == f.primary {
			continue
		}
		if err := f.nodes[i].stop(true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := f.nodes[f.primary].stop(true); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return types.NewFixtureError(firstErr)
	}
	return nil
}

// IsRunning reports whether every node's process is alive.
func (f *ReplicaSetFixture) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, node := range f.nodes {
		if !node.isRunning() {
			return false
		}
	}
	return true
}

// ConnString returns the connection string of the current primary.
func (f *ReplicaSetFixture) ConnString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[f.primary].connString()
}

// PrimaryConnString returns the connection string of the current primary.
func (f *ReplicaSetFixture) PrimaryConnString() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node := f.nodes[f.primary]
	if !node.isRunning() {
		return "", types.NewServerFailure("replica set of job %d has no running primary", f.jobNum)
	}
	return node.connString(), nil
}

// SecondaryConnStrings returns the connection strings of the current
// standbys.
func (f *ReplicaSetFixture) SecondaryConnStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var conns []string
	for i, node := range f.nodes {
		if i != f.primary {
			conns = append(conns, node.connString())
		}
	}
	return conns
}

// StepdownPrimary stops the current primary, promotes the first running
// standby and rejoins the old primary as a standby of the new one.
func (f *ReplicaSetFixture) StepdownPrimary() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	oldPrimary := f.primary
	next := -1
	for i, node := range f.nodes {
		if i != oldPrimary && node.isRunning() {
			next = i
			break
		}
	}
	if next == -1 {
		return types.NewServerFailure("replica set of job %d has no standby to promote", f.jobNum)
	}

	if err := f.nodes[oldPrimary].stop(true); err != nil {
		return types.NewFixtureError(err)
	}
	if err := f.promote(f.nodes[next]); err != nil {
		return types.NewFixtureError(err)
	}
	f.primary = next

	old := f.nodes[oldPrimary]
	if err := f.seedStandby(old, f.nodes[next]); err != nil {
		return types.NewFixtureError(fmt.Errorf("rejoining old primary as standby: %w", err))
	}
	if err := old.start(); err != nil {
		return types.NewFixtureError(err)
	}
	if err := awaitStandby(old); err != nil {
		return types.NewFixtureError(err)
	}
	f.logger.Info("Stepped down primary", "old_port", old.port, "new_port", f.nodes[next].port)
	return nil
}

// promote takes the node out of recovery and waits until it accepts writes.
func (f *ReplicaSetFixture) promote(node *pgNode) error {
	cmd := exec.Command(node.binary("pg_ctl"), "promote", "-D", node.dataDir, "-w", "-t", fmt.Sprintf("%d", int(stopTimeout/time.Second)))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pg_ctl promote failed: %w: %s", err, out)
	}
	return node.awaitReady(context.Background())
}
