package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/circle/internal/domain"
)

// DeploymentRepo — репозиторий состояний развёртывания.
type DeploymentRepo struct {
	pool *pgxpool.Pool
}

// NewDeploymentRepo создаёт новый DeploymentRepo.
func NewDeploymentRepo(pool *pgxpool.Pool) *DeploymentRepo {
	return &DeploymentRepo{pool: pool}
}

const deploymentColumns = `instance_id, spec, state, node, progress, task_id, error,
	       created_at, updated_at, finished_at`

// Create сохраняет новое развёртывание.
// Возвращает ErrAlreadyExists, если для instance уже есть запись.
func (r *DeploymentRepo) Create(ctx context.Context, d *domain.Deployment) error {
	specJSON, progressJSON, err := marshalDeployment(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployments (instance_id, spec, state, node, memory, vcpus, progress,
		                         task_id, error, created_at, updated_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		d.InstanceID,
		specJSON,
		d.State,
		nullString(d.Node),
		d.Spec.Memory,
		d.Spec.VCPUs,
		progressJSON,
		nullString(d.TaskID),
		nullString(d.Error),
		d.CreatedAt,
		d.UpdatedAt,
		d.FinishedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// Get возвращает развёртывание по ID instance.
func (r *DeploymentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE instance_id = $1`
	return scanDeployment(r.pool.QueryRow(ctx, query, id))
}

// Update сохраняет стадию, прогресс и спецификацию развёртывания.
func (r *DeploymentRepo) Update(ctx context.Context, d *domain.Deployment) error {
	specJSON, progressJSON, err := marshalDeployment(d)
	if err != nil {
		return err
	}

	query := `
		UPDATE deployments
		SET spec = $2, state = $3, node = $4, memory = $5, vcpus = $6, progress = $7,
		    task_id = $8, error = $9, updated_at = $10, finished_at = $11
		WHERE instance_id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		d.InstanceID,
		specJSON,
		d.State,
		nullString(d.Node),
		d.Spec.Memory,
		d.Spec.VCPUs,
		progressJSON,
		nullString(d.TaskID),
		nullString(d.Error),
		d.UpdatedAt,
		d.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTaskID записывает ID последнего вызова manager'а, не трогая остальные поля.
func (r *DeploymentRepo) SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error {
	query := `UPDATE deployments SET task_id = $2 WHERE instance_id = $1`
	result, err := r.pool.Exec(ctx, query, id, nullString(taskID))
	if err != nil {
		return fmt.Errorf("set task id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStuck возвращает нетерминальные развёртывания, не менявшиеся с before.
func (r *DeploymentRepo) ListStuck(ctx context.Context, before time.Time, limit int) ([]domain.Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE state NOT IN ('RUNNING', 'FAILED', 'DESTROYED')
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck deployments: %w", err)
	}
	defer rows.Close()

	var deployments []domain.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

// AllocatedByNode возвращает ресурсы, занятые развёртываниями на каждом узле.
// FAILED с непустым прогрессом учитывается: его ресурсы не освобождены.
func (r *DeploymentRepo) AllocatedByNode(ctx context.Context) (map[string]domain.Usage, error) {
	query := `
		SELECT node, COALESCE(SUM(vcpus), 0), COALESCE(SUM(memory), 0)
		FROM deployments
		WHERE node IS NOT NULL
		  AND (state NOT IN ('NOSTATE', 'FAILED', 'DESTROYED')
		       OR (state = 'FAILED' AND progress <> '{}'::jsonb))
		GROUP BY node
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("allocated by node: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]domain.Usage)
	for rows.Next() {
		var node string
		var u domain.Usage
		if err := rows.Scan(&node, &u.CPUs, &u.Memory); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usage[node] = u
	}
	return usage, rows.Err()
}

// --- Helpers ---

func marshalDeployment(d *domain.Deployment) (spec, progress []byte, err error) {
	spec, err = json.Marshal(d.Spec)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal spec: %w", err)
	}
	progress, err = json.Marshal(d.Progress)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal progress: %w", err)
	}
	return spec, progress, nil
}

// scanDeployment сканирует строку в Deployment (pgx.Rows тоже реализует pgx.Row).
func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	var specJSON, progressJSON []byte
	var node, taskID, deployError *string

	err := row.Scan(
		&d.InstanceID,
		&specJSON,
		&d.State,
		&node,
		&progressJSON,
		&taskID,
		&deployError,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan deployment: %w", err)
	}

	if err := json.Unmarshal(specJSON, &d.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	if progressJSON != nil {
		if err := json.Unmarshal(progressJSON, &d.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal progress: %w", err)
		}
	}

	d.Node = derefString(node)
	d.TaskID = derefString(taskID)
	d.Error = derefString(deployError)

	return &d, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isUniqueViolation проверяет код ошибки PostgreSQL 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
