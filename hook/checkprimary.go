package hook

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/types"
)

// CheckPrimaryClass verifies after every test that the replica set still has
// a writable primary.
const CheckPrimaryClass = "CheckPrimary"

func init() {
	Register(CheckPrimaryClass, newCheckPrimary)
}

type checkPrimary struct {
	TestCaseHook
	replset fixture.ReplicaFixture
}

func newCheckPrimary(logger log.Logger, fix fixture.Fixture, opts map[string]any) (Hook, error) {
	replset, ok := fix.(fixture.ReplicaFixture)
	if !ok {
		return nil, types.NewServerFailure("%s requires a replica-set-shaped fixture, got %s", CheckPrimaryClass, fix.Class())
	}
	h := &checkPrimary{TestCaseHook: NewTestCaseHook(logger, CheckPrimaryClass, fix), replset: replset}
	h.Body = h.check
	return h, nil
}

func (h *checkPrimary) check(logger log.Logger) error {
	connString, err := h.replset.PrimaryConnString()
	if err != nil {
		return types.NewServerFailure("finding primary: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return types.NewServerFailure("connecting to primary: %v", err)
	}
	defer conn.Close(ctx)

	var inRecovery bool
	if err := conn.QueryRow(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return types.NewServerFailure("querying primary: %v", err)
	}
	if inRecovery {
		return types.NewTestFailure("node %s reports itself as a standby, the set has no primary", connString)
	}
	logger.Debug("Primary is writable", "primary", connString)
	return nil
}
