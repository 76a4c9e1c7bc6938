package fixture

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dbtestlabs/shoal/types"
)

// ContainerFixtureClass is the class name of the containerized single-server
// fixture.
const ContainerFixtureClass = "ContainerFixture"

// defaultImage is the image used when the suite does not name one.
const defaultImage = "docker.io/postgres:16-alpine"

func init() {
	Register(ContainerFixtureClass, newContainerFixture)
}

// ContainerFixture runs a single-server deployment in a container. Useful
// when the server binaries are not installed on the host.
type ContainerFixture struct {
	logger log.Logger
	jobNum int

	image    string
	database string
	username string
	password string

	container  *postgres.PostgresContainer
	connString string
}

type containerOptions struct {
	Image    string `yaml:"image"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func newContainerFixture(logger log.Logger, jobNum int, opts map[string]any) (Fixture, error) {
	var o containerOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Image == "" {
		o.Image = defaultImage
	}
	if o.Database == "" {
		o.Database = "postgres"
	}
	if o.Username == "" {
		o.Username = "postgres"
	}
	if o.Password == "" {
		o.Password = "postgres"
	}
	return &ContainerFixture{
		logger:   logger,
		jobNum:   jobNum,
		image:    o.Image,
		database: o.Database,
		username: o.Username,
		password: o.Password,
	}, nil
}

func (f *ContainerFixture) Class() string { return ContainerFixtureClass }

func (f *ContainerFixture) Setup() error {
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		f.image,
		postgres.WithDatabase(f.database),
		postgres.WithUsername(f.username),
		postgres.WithPassword(f.password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return types.NewFixtureError(fmt.Errorf("starting container: %w", err))
	}
	f.container = container
	f.logger.Info("Started container", "image", f.image)
	return nil
}

func (f *ContainerFixture) AwaitReady() error {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	connString, err := f.container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return types.NewFixtureError(err)
	}
	f.connString = connString

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err = backoff.Retry(func() error {
		return primingWrite(ctx, connString)
	}, policy)
	if err != nil {
		return types.NewFixtureError(fmt.Errorf("container never accepted a write: %w", err))
	}
	return nil
}

func (f *ContainerFixture) Teardown(finished bool) error {
	if f.container == nil {
		if finished {
			return nil
		}
		return types.NewFixtureError(fmt.Errorf("container of job %d was never started", f.jobNum))
	}
	if err := f.container.Terminate(context.Background()); err != nil {
		if finished {
			f.logger.Warn("Failed to terminate container", "error", err)
			return nil
		}
		return types.NewFixtureError(err)
	}
	f.container = nil
	return nil
}

func (f *ContainerFixture) IsRunning() bool {
	if f.container == nil {
		return false
	}
	state, err := f.container.State(context.Background())
	if err != nil {
		return false
	}
	return state.Running
}

func (f *ContainerFixture) ConnString() string { return f.connString }
