package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы manager'а и database result backend.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS deployments (
		instance_id uuid PRIMARY KEY,
		spec        jsonb       NOT NULL,
		state       text        NOT NULL,
		node        text,
		memory      integer     NOT NULL,
		vcpus       integer     NOT NULL,
		progress    jsonb       NOT NULL DEFAULT '{}',
		task_id     text,
		error       text,
		created_at  timestamptz NOT NULL,
		updated_at  timestamptz NOT NULL,
		finished_at timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS deployments_state_updated_idx ON deployments (state, updated_at)`,
	`CREATE TABLE IF NOT EXISTS task_results (
		id         text PRIMARY KEY,
		task       text        NOT NULL,
		state      text        NOT NULL,
		result     jsonb,
		error      text,
		meta       jsonb,
		retries    integer     NOT NULL DEFAULT 0,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS task_results_updated_idx ON task_results (updated_at)`,
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
