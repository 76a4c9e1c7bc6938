package testcase

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"

	"github.com/dbtestlabs/shoal/types"
)

// SQLTestKind runs a SQL script against the bound fixture, one statement
// batch per invocation. A statement error fails the test.
const SQLTestKind = "sql_test"

func init() {
	Register(SQLTestKind, newSQLTest)
}

type sqlTestOptions struct {
	// Timeout bounds one script invocation.
	Timeout types.Duration `yaml:"timeout"`
	// Database overrides the database of the fixture's connection string.
	Database string `yaml:"database"`
}

type sqlTest struct {
	*Base
	opts sqlTestOptions
}

func newSQLTest(name string, opts map[string]any) (TestCase, error) {
	var o sqlTestOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Timeout == 0 {
		o.Timeout = types.Duration(5 * time.Minute)
	}
	t := &sqlTest{Base: NewBase(SQLTestKind, name), opts: o}
	t.setExecute(t.runScript)
	return t, nil
}

func (t *sqlTest) runScript(logger log.Logger) error {
	script, err := os.ReadFile(t.Name())
	if err != nil {
		return fmt.Errorf("reading SQL script: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.Timeout.Std())
	defer cancel()

	connString := t.Fixture().ConnString()
	config, err := pgx.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	if t.opts.Database != "" {
		config.Database = t.opts.Database
	}
	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		t.setReturnCode(1)
		return types.NewTestFailure("connecting to deployment: %v", err)
	}
	defer conn.Close(ctx)

	logger.Info("Executing SQL script", "statements_bytes", len(script))
	if _, err := conn.Exec(ctx, string(script)); err != nil {
		t.setReturnCode(1)
		if ctx.Err() == context.DeadlineExceeded {
			return types.NewTestFailure("SQL script %s timed out after %v", t.Name(), t.opts.Timeout)
		}
		return types.NewTestFailure("SQL script %s failed: %v", t.Name(), err)
	}
	t.setReturnCode(0)
	return nil
}
