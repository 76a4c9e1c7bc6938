package fixture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/types"
)

// StandaloneFixtureClass is the class name of the single-server fixture.
const StandaloneFixtureClass = "StandaloneFixture"

func init() {
	Register(StandaloneFixtureClass, newStandaloneFixture)
}

// StandaloneFixture spawns one server process per job.
type StandaloneFixture struct {
	logger log.Logger
	jobNum int
	node   *pgNode
}

type standaloneOptions struct {
	BinDir       string            `yaml:"bin_dir"`
	DataDir      string            `yaml:"data_dir"`
	Port         int               `yaml:"port"`
	ServerParams map[string]string `yaml:"server_params"`
}

func newStandaloneFixture(logger log.Logger, jobNum int, opts map[string]any) (Fixture, error) {
	var o standaloneOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Port == 0 {
		port, err := NextPort(jobNum)
		if err != nil {
			return nil, err
		}
		o.Port = port
	}
	if o.DataDir == "" {
		o.DataDir = filepath.Join(os.TempDir(), fmt.Sprintf("standalone-job%d", jobNum))
	}
	return &StandaloneFixture{
		logger: logger,
		jobNum: jobNum,
		node:   newPGNode(logger, o.BinDir, o.DataDir, o.Port, o.ServerParams),
	}, nil
}

func (f *StandaloneFixture) Class() string { return StandaloneFixtureClass }

func (f *StandaloneFixture) Setup() error {
	if err := f.node.initData(); err != nil {
		return types.NewFixtureError(err)
	}
	if err := f.node.start(); err != nil {
		return types.NewFixtureError(err)
	}
	return nil
}

func (f *StandaloneFixture) AwaitReady() error {
	if err := f.node.awaitReady(context.Background()); err != nil {
		return types.NewFixtureError(fmt.Errorf("standalone on port %d never became ready: %w", f.node.port, err))
	}
	f.logger.Info("Standalone is ready", "port", f.node.port)
	return nil
}

func (f *StandaloneFixture) Teardown(finished bool) error {
	if !f.node.isRunning() {
		if finished {
			return nil
		}
		return types.NewFixtureError(fmt.Errorf("standalone on port %d was already stopped", f.node.port))
	}
	if err := f.node.stop(true); err != nil {
		return types.NewFixtureError(err)
	}
	return nil
}

func (f *StandaloneFixture) IsRunning() bool { return f.node.isRunning() }

func (f *StandaloneFixture) ConnString() string { return f.node.connString() }
