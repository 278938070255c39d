package schema

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-portal/internal/pkg/testdb"
)

func TestColumn_Definition(t *testing.T) {
	c := Column{Name: "balance", Type: "NUMERIC(14,2)", Default: "100.00", NotNull: true}
	assert.Equal(t, "balance NUMERIC(14,2) DEFAULT 100.00 NOT NULL", c.definition(true))
	assert.Equal(t, "ALTER TABLE users ADD COLUMN balance NUMERIC(14,2) DEFAULT 100.00 NOT NULL", c.AddStatement("users"))

	// NOT NULL without a default would fail on populated tables.
	c = Column{Name: "email", Type: "VARCHAR(255)", NotNull: true}
	assert.Equal(t, "email VARCHAR(255) NOT NULL", c.definition(true))
	assert.Equal(t, "ALTER TABLE users ADD COLUMN email VARCHAR(255)", c.AddStatement("users"))
}

func TestIndex_Statement(t *testing.T) {
	idx := Index{Name: "a_key", Table: "a", Definition: "(x)", Unique: true}
	assert.Equal(t, "CREATE UNIQUE INDEX IF NOT EXISTS a_key ON a (x)", idx.Statement())
}

func TestEvolver_FreshDatabase(t *testing.T) {
	pool := testdb.New(t)
	ctx := context.Background()

	report := NewEvolver(pool).Run(ctx)
	require.Empty(t, report.Failed())

	for _, table := range Tables() {
		res, ok := report.Find("table:" + table.Name)
		require.True(t, ok, table.Name)
		assert.Equal(t, OutcomeApplied, res.Outcome, table.Name)
	}

	var value string
	err := pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = 'global_min_withdrawal_amount'`).Scan(&value)
	require.NoError(t, err)
	assert.Equal(t, "50.0", value)
}

func TestEvolver_Idempotent(t *testing.T) {
	pool := testdb.New(t)
	ctx := context.Background()

	first := NewEvolver(pool).Run(ctx)
	require.Empty(t, first.Failed())

	second := NewEvolver(pool).Run(ctx)
	require.Empty(t, second.Failed())
	assert.Equal(t, 0, second.Count(OutcomeFallback))
	for _, res := range second.Results {
		if res.Kind == KindCreateTable || res.Kind == KindAddColumn || res.Kind == KindSeed {
			assert.Equal(t, OutcomeSkipped, res.Outcome, res.Name)
		}
	}

	var n int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM settings WHERE key = 'global_min_withdrawal_amount'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEvolver_LegacySchema(t *testing.T) {
	pool := testdb.New(t)
	ctx := context.Background()

	// Tables as an older release created them: no withdrawal columns, no
	// attempt timestamps, no KYC or audit tables.
	_, err := pool.Exec(ctx, `
		CREATE TABLE users (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			balance NUMERIC(14,2) NOT NULL DEFAULT 100
		);
		CREATE TABLE tasks (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			reward NUMERIC(14,2) NOT NULL DEFAULT 0
		);
		CREATE TABLE user_tasks (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			task_id BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL
		);
		INSERT INTO users (email, hashed_password) VALUES ('old@example.com', 'x');
		INSERT INTO tasks (title, reward) VALUES ('legacy', 5);
		INSERT INTO user_tasks (user_id, task_id, status) VALUES (1, 1, 'taken'), (1, 1, 'approved');
	`)
	require.NoError(t, err)

	report := NewEvolver(pool).Run(ctx)
	require.Empty(t, report.Failed())

	res, ok := report.Find("column:users.min_withdrawal_amount")
	require.True(t, ok)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	var enabled bool
	var minAmount string
	err = pool.QueryRow(ctx, `SELECT withdrawal_enabled, min_withdrawal_amount::text FROM users WHERE id = 1`).
		Scan(&enabled, &minAmount)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "50.00", minAmount)

	var missing int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_tasks WHERE taken_at IS NULL OR expires_at IS NULL`).Scan(&missing)
	require.NoError(t, err)
	assert.Equal(t, 0, missing)

	var hours float64
	err = pool.QueryRow(ctx, `
		SELECT EXTRACT(EPOCH FROM (expires_at - taken_at)) / 3600 FROM user_tasks WHERE status = 'taken'
	`).Scan(&hours)
	require.NoError(t, err)
	assert.InDelta(t, 24, hours, 0.001)

	res, ok = report.Find("table:user_events")
	require.True(t, ok)
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestEvolver_FallbackDDL(t *testing.T) {
	pool := testdb.New(t)
	ctx := context.Background()

	broken := Table{
		Name:     "widgets",
		Columns:  []Column{idColumn(), {Name: "size", Type: "NOT_A_TYPE"}},
		Fallback: `CREATE TABLE IF NOT EXISTS widgets (id BIGSERIAL PRIMARY KEY, size INTEGER)`,
	}

	report := NewEvolver(pool, WithTables(broken), WithIndexes()).Run(ctx)

	res, ok := report.Find("table:widgets")
	require.True(t, ok)
	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.NoError(t, res.Err)
}

func TestEvolver_FailureIsolation(t *testing.T) {
	pool := testdb.New(t)
	ctx := context.Background()

	bad := Index{Name: "ghost_idx", Table: "no_such_table", Definition: "(x)"}
	good := Index{Name: "users_created_idx", Table: "users", Definition: "(created_at)"}

	report := NewEvolver(pool, WithIndexes(bad, good)).Run(ctx)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "index:ghost_idx", failed[0].Name)
	assert.Equal(t, KindCreateIndex, failed[0].Kind)

	res, ok := report.Find("index:users_created_idx")
	require.True(t, ok)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	// Steps after the failure still ran.
	res, ok = report.Find("seed:global_min_withdrawal_amount")
	require.True(t, ok)
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestEvolver_LogsSummaryOnce(t *testing.T) {
	pool := testdb.New(t)

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	NewEvolver(pool).Run(context.Background())

	assert.Equal(t, 1, strings.Count(buf.String(), `"message":"Schema evolution finished"`))
}
