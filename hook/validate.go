package hook

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/types"
)

// ValidateDataClass checks after every test that each secondary has replayed
// the primary's writes and holds the same data.
const ValidateDataClass = "ValidateData"

const catchupTimeout = 2 * time.Minute

func init() {
	Register(ValidateDataClass, newValidateData)
}

type validateData struct {
	TestCaseHook
	replset fixture.ReplicaFixture
}

func newValidateData(logger log.Logger, fix fixture.Fixture, opts map[string]any) (Hook, error) {
	replset, ok := fix.(fixture.ReplicaFixture)
	if !ok {
		return nil, types.NewServerFailure("%s requires a replica-set-shaped fixture, got %s", ValidateDataClass, fix.Class())
	}
	h := &validateData{TestCaseHook: NewTestCaseHook(logger, ValidateDataClass, fix), replset: replset}
	h.Body = h.validate
	return h, nil
}

func (h *validateData) validate(logger log.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), catchupTimeout)
	defer cancel()

	primaryConn, err := h.replset.PrimaryConnString()
	if err != nil {
		return types.NewServerFailure("finding primary: %v", err)
	}

	primaryLSN, primaryTables, err := snapshotPrimary(ctx, primaryConn)
	if err != nil {
		return types.NewServerFailure("reading primary state: %v", err)
	}

	for _, secondaryConn := range h.replset.SecondaryConnStrings() {
		if err := awaitCatchup(ctx, secondaryConn, primaryLSN); err != nil {
			return types.NewServerFailure("secondary %s never caught up to %s: %v", secondaryConn, primaryLSN, err)
		}
		secondaryTables, err := tableCounts(ctx, secondaryConn)
		if err != nil {
			return types.NewServerFailure("reading secondary state: %v", err)
		}
		if err := compareCounts(primaryTables, secondaryTables); err != nil {
			return types.NewTestFailure("secondary %s diverged from the primary: %v", secondaryConn, err)
		}
		logger.Debug("Secondary is consistent", "secondary", secondaryConn, "tables", len(secondaryTables))
	}
	return nil
}

// snapshotPrimary returns the primary's current WAL position and its
// per-table row counts.
func snapshotPrimary(ctx context.Context, connString string) (string, map[string]int64, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return "", nil, err
	}
	defer conn.Close(ctx)

	var lsn string
	if err := conn.QueryRow(ctx, "SELECT pg_current_wal_lsn()::text").Scan(&lsn); err != nil {
		return "", nil, err
	}
	counts, err := tableCountsConn(ctx, conn)
	if err != nil {
		return "", nil, err
	}
	return lsn, counts, nil
}

// awaitCatchup blocks until the standby's replay position reaches lsn.
func awaitCatchup(ctx context.Context, connString, lsn string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		var caughtUp bool
		if err := conn.QueryRow(ctx, "SELECT pg_last_wal_replay_lsn() >= $1::pg_lsn", lsn).Scan(&caughtUp); err != nil {
			return backoff.Permanent(err)
		}
		if !caughtUp {
			return fmt.Errorf("replay position behind %s", lsn)
		}
		return nil
	}, policy)
}

func tableCounts(ctx context.Context, connString string) (map[string]int64, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)
	return tableCountsConn(ctx, conn)
}

// tableCountsConn counts the rows of every user table.
func tableCountsConn(ctx context.Context, conn *pgx.Conn) (map[string]int64, error) {
	rows, err := conn.Query(ctx, "SELECT schemaname || '.' || relname FROM pg_stat_user_tables ORDER BY 1")
	if err != nil {
		return nil, err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var count int64
		if err := conn.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, err
		}
		counts[table] = count
	}
	return counts, nil
}

func compareCounts(primary, secondary map[string]int64) error {
	for table, want := range primary {
		got, ok := secondary[table]
		if !ok {
			return fmt.Errorf("table %s is missing", table)
		}
		if got != want {
			return fmt.Errorf("table %s has %d rows, primary has %d", table, got, want)
		}
	}
	for table := range secondary {
		if _, ok := primary[table]; !ok {
			return fmt.Errorf("table %s does not exist on the primary", table)
		}
	}
	return nil
}
