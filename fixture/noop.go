package fixture

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/types"
)

// NoopFixtureClass is the class name of the fixture used when the deployment
// is provided externally. The executor substitutes it for the configured
// class when the user supplies a connection string.
const NoopFixtureClass = "NoopFixture"

func init() {
	Register(NoopFixtureClass, newNoopFixture)
}

// NoopFixture represents an externally-managed deployment. All lifecycle
// operations are trivial and the deployment is assumed to stay up.
type NoopFixture struct {
	logger     log.Logger
	connString string
}

type noopOptions struct {
	ConnString string `yaml:"conn_string"`
}

func newNoopFixture(logger log.Logger, jobNum int, opts map[string]any) (Fixture, error) {
	var o noopOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	return &NoopFixture{logger: logger, connString: o.ConnString}, nil
}

func (f *NoopFixture) Class() string { return NoopFixtureClass }

func (f *NoopFixture) Setup() error {
	f.logger.Debug("Using externally-managed deployment", "conn", f.connString)
	return nil
}

func (f *NoopFixture) AwaitReady() error { return nil }

func (f *NoopFixture) Teardown(finished bool) error { return nil }

func (f *NoopFixture) IsRunning() bool { return true }

func (f *NoopFixture) ConnString() string { return f.connString }
