package graflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxExecutor is satisfied by both *pgxpool.Pool and pgx.Tx, grounded on the
// teacher's Tx interface in store.go/tx_ctx.go.
type pgxExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxTxKey struct{}

// PgxTxManager runs WithTx blocks against a real Postgres transaction,
// grounded on the teacher's tx_ctx.go plus store.go's getExecutor pattern.
type PgxTxManager struct {
	Pool *pgxpool.Pool
}

func NewPgxTxManager(pool *pgxpool.Pool) *PgxTxManager {
	return &PgxTxManager{Pool: pool}
}

func (m *PgxTxManager) WithTx(ctx context.Context, level IsolationLevel, fn func(ctx context.Context) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	if level == RepeatableRead {
		opts.IsoLevel = pgx.RepeatableRead
	}

	tx, err := m.Pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txCtx := context.WithValue(ctx, pgxTxKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PostgresStore is the durable Store backend, grounded on the teacher's
// StoreImpl in store.go, remapped onto graflow's normalized schema (see
// migrations/0001_init.sql) instead of floxy's JSONB definition column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) getExecutor(ctx context.Context) pgxExecutor {
	if tx, ok := ctx.Value(pgxTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

var terminalWorkflowStatuses = []WorkflowStatus{
	WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled,
}

func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// --- workflow definitions ---

func (s *PostgresStore) SaveWorkflowDefinition(ctx context.Context, def *WorkflowDefinition) error {
	ex := s.getExecutor(ctx)
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	const upsert = `
INSERT INTO graflow.workflow_definitions (id, name, description, version, strategy_type, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (name, version) DO UPDATE
SET description = EXCLUDED.description, strategy_type = EXCLUDED.strategy_type, updated_at = now()
RETURNING id, created_at, updated_at`

	if err := ex.QueryRow(ctx, upsert, def.ID, def.Name, def.Description, def.Version, def.StrategyType).
		Scan(&def.ID, &def.CreatedAt, &def.UpdatedAt); err != nil {
		return fmt.Errorf("save workflow definition: %w", err)
	}

	if _, err := ex.Exec(ctx, `DELETE FROM graflow.task_definitions WHERE workflow_definition_id = $1`, def.ID); err != nil {
		return fmt.Errorf("clear task definitions: %w", err)
	}

	for _, t := range def.Tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.WorkflowDefinitionID = def.ID
		const insTask = `
INSERT INTO graflow.task_definitions
	(id, workflow_definition_id, name, type, execution_order, retry_limit, timeout_seconds,
	 execution_mode, require_user_review, conditional_expression, next_task_on_success, next_task_on_failure)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
		if _, err := ex.Exec(ctx, insTask, t.ID, def.ID, t.Name, t.Type, t.ExecutionOrder, t.RetryLimit,
			t.TimeoutSeconds, t.ExecutionMode, t.RequireUserReview, t.ConditionalExpression,
			t.NextTaskOnSuccess, t.NextTaskOnFailure); err != nil {
			return fmt.Errorf("save task definition %s: %w", t.ID, err)
		}
		for k, v := range t.Configuration {
			const insCfg = `
INSERT INTO graflow.task_definition_config (task_definition_id, config_key, config_value)
VALUES ($1, $2, $3)`
			if _, err := ex.Exec(ctx, insCfg, t.ID, k, v); err != nil {
				return fmt.Errorf("save task config %s/%s: %w", t.ID, k, err)
			}
		}
	}
	return nil
}

func (s *PostgresStore) GetWorkflowDefinition(ctx context.Context, id string) (*WorkflowDefinition, error) {
	ex := s.getExecutor(ctx)
	const query = `
SELECT id, name, description, version, strategy_type, created_at, updated_at
FROM graflow.workflow_definitions WHERE id = $1`

	def := &WorkflowDefinition{}
	err := ex.QueryRow(ctx, query, id).Scan(
		&def.ID, &def.Name, &def.Description, &def.Version, &def.StrategyType, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "WorkflowDefinition", id)
	}

	tasks, err := s.loadTaskDefinitions(ctx, ex, def.ID)
	if err != nil {
		return nil, err
	}
	def.Tasks = tasks
	return def, nil
}

func (s *PostgresStore) loadTaskDefinitions(ctx context.Context, ex pgxExecutor, defID string) ([]*TaskDefinition, error) {
	const query = `
SELECT id, name, type, execution_order, retry_limit, timeout_seconds, execution_mode,
	require_user_review, conditional_expression, next_task_on_success, next_task_on_failure
FROM graflow.task_definitions WHERE workflow_definition_id = $1 ORDER BY execution_order`

	rows, err := ex.Query(ctx, query, defID)
	if err != nil {
		return nil, fmt.Errorf("list task definitions: %w", err)
	}
	defer rows.Close()

	var tasks []*TaskDefinition
	for rows.Next() {
		t := &TaskDefinition{WorkflowDefinitionID: defID}
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.ExecutionOrder, &t.RetryLimit, &t.TimeoutSeconds,
			&t.ExecutionMode, &t.RequireUserReview, &t.ConditionalExpression,
			&t.NextTaskOnSuccess, &t.NextTaskOnFailure); err != nil {
			return nil, fmt.Errorf("scan task definition: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		cfg, err := s.loadTaskConfig(ctx, ex, t.ID)
		if err != nil {
			return nil, err
		}
		t.Configuration = cfg
	}
	return tasks, nil
}

func (s *PostgresStore) loadTaskConfig(ctx context.Context, ex pgxExecutor, taskID string) (map[string]string, error) {
	rows, err := ex.Query(ctx, `SELECT config_key, config_value FROM graflow.task_definition_config WHERE task_definition_id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task config: %w", err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

func (s *PostgresStore) GetWorkflowDefinitionByNameVersion(ctx context.Context, name string, version int) (*WorkflowDefinition, error) {
	ex := s.getExecutor(ctx)
	var id string
	err := ex.QueryRow(ctx, `SELECT id FROM graflow.workflow_definitions WHERE name = $1 AND version = $2`, name, version).Scan(&id)
	if err != nil {
		return nil, wrapNotFound(err, "WorkflowDefinition", fmt.Sprintf("%s@%d", name, version))
	}
	return s.GetWorkflowDefinition(ctx, id)
}

func (s *PostgresStore) ListWorkflowDefinitions(ctx context.Context) ([]*WorkflowDefinition, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.Query(ctx, `SELECT id FROM graflow.workflow_definitions ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("list workflow definitions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*WorkflowDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := s.GetWorkflowDefinition(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *PostgresStore) DeleteWorkflowDefinition(ctx context.Context, id string) error {
	ex := s.getExecutor(ctx)
	tag, err := ex.Exec(ctx, `DELETE FROM graflow.workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "WorkflowDefinition", ID: id}
	}
	return nil
}

// --- workflow executions ---

func (s *PostgresStore) CreateWorkflowExecution(ctx context.Context, we *WorkflowExecution) error {
	ex := s.getExecutor(ctx)
	if we.ID == "" {
		we.ID = uuid.NewString()
	}

	const insert = `
INSERT INTO graflow.workflow_executions
	(id, workflow_definition_id, correlation_id, status, started_at, completed_at,
	 current_task_index, retry_count, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())
RETURNING created_at, updated_at`

	err := ex.QueryRow(ctx, insert, we.ID, we.WorkflowDefinitionID, we.CorrelationID, we.Status,
		we.StartedAt, we.CompletedAt, we.CurrentTaskIndex, we.RetryCount, we.ErrorMessage,
	).Scan(&we.CreatedAt, &we.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &ValidationError{Message: "correlationId already in use: " + we.CorrelationID}
		}
		return fmt.Errorf("create workflow execution: %w", err)
	}
	return s.replaceVariables(ctx, ex, we.ID, we.Variables)
}

func (s *PostgresStore) replaceVariables(ctx context.Context, ex pgxExecutor, weID string, vars map[string]string) error {
	if _, err := ex.Exec(ctx, `DELETE FROM graflow.workflow_execution_variables WHERE workflow_execution_id = $1`, weID); err != nil {
		return fmt.Errorf("clear variables: %w", err)
	}
	for k, v := range vars {
		if _, err := ex.Exec(ctx, `
INSERT INTO graflow.workflow_execution_variables (workflow_execution_id, variable_key, variable_value)
VALUES ($1, $2, $3)`, weID, k, v); err != nil {
			return fmt.Errorf("save variable %s: %w", k, err)
		}
	}
	return nil
}

func (s *PostgresStore) loadVariables(ctx context.Context, ex pgxExecutor, weID string) (map[string]string, error) {
	rows, err := ex.Query(ctx, `SELECT variable_key, variable_value FROM graflow.workflow_execution_variables WHERE workflow_execution_id = $1`, weID)
	if err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) scanWorkflowExecution(row pgx.Row) (*WorkflowExecution, error) {
	we := &WorkflowExecution{}
	err := row.Scan(&we.ID, &we.WorkflowDefinitionID, &we.CorrelationID, &we.Status, &we.StartedAt,
		&we.CompletedAt, &we.CurrentTaskIndex, &we.RetryCount, &we.ErrorMessage, &we.CreatedAt, &we.UpdatedAt)
	return we, err
}

const workflowExecutionColumns = `id, workflow_definition_id, correlation_id, status, started_at, completed_at,
	current_task_index, retry_count, error_message, created_at, updated_at`

func (s *PostgresStore) GetWorkflowExecution(ctx context.Context, id string) (*WorkflowExecution, error) {
	ex := s.getExecutor(ctx)
	we, err := s.scanWorkflowExecution(ex.QueryRow(ctx,
		`SELECT `+workflowExecutionColumns+` FROM graflow.workflow_executions WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNotFound(err, "WorkflowExecution", id)
	}
	we.Variables, err = s.loadVariables(ctx, ex, we.ID)
	if err != nil {
		return nil, err
	}
	return we, nil
}

func (s *PostgresStore) GetWorkflowExecutionByCorrelationID(ctx context.Context, correlationID string) (*WorkflowExecution, error) {
	ex := s.getExecutor(ctx)
	we, err := s.scanWorkflowExecution(ex.QueryRow(ctx,
		`SELECT `+workflowExecutionColumns+` FROM graflow.workflow_executions WHERE correlation_id = $1`, correlationID))
	if err != nil {
		return nil, wrapNotFound(err, "WorkflowExecution", correlationID)
	}
	we.Variables, err = s.loadVariables(ctx, ex, we.ID)
	if err != nil {
		return nil, err
	}
	return we, nil
}

func (s *PostgresStore) listExecutions(ctx context.Context, query string, args ...any) ([]*WorkflowExecution, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflow executions: %w", err)
	}
	defer rows.Close()

	var out []*WorkflowExecution
	for rows.Next() {
		we, err := s.scanWorkflowExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, we)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, we := range out {
		we.Variables, err = s.loadVariables(ctx, ex, we.ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) ListWorkflowExecutionsByStatus(ctx context.Context, status WorkflowStatus) ([]*WorkflowExecution, error) {
	return s.listExecutions(ctx,
		`SELECT `+workflowExecutionColumns+` FROM graflow.workflow_executions WHERE status = $1 ORDER BY created_at`, status)
}

func (s *PostgresStore) FindCompletedOlderThan(ctx context.Context, before time.Time) ([]*WorkflowExecution, error) {
	return s.listExecutions(ctx,
		`SELECT `+workflowExecutionColumns+` FROM graflow.workflow_executions
		 WHERE status IN ('COMPLETED','FAILED','CANCELLED') AND completed_at < $1`, before)
}

func (s *PostgresStore) FindPausedOlderThan(ctx context.Context, before time.Time) ([]*WorkflowExecution, error) {
	return s.listExecutions(ctx,
		`SELECT `+workflowExecutionColumns+` FROM graflow.workflow_executions
		 WHERE status = 'PAUSED' AND started_at < $1`, before)
}

func (s *PostgresStore) FindActiveByDefinitionName(ctx context.Context, name string) ([]*WorkflowExecution, error) {
	return s.listExecutions(ctx, `
SELECT we.id, we.workflow_definition_id, we.correlation_id, we.status, we.started_at, we.completed_at,
	we.current_task_index, we.retry_count, we.error_message, we.created_at, we.updated_at
FROM graflow.workflow_executions we
JOIN graflow.workflow_definitions wd ON wd.id = we.workflow_definition_id
WHERE wd.name = $1 AND we.status NOT IN ('COMPLETED','FAILED','CANCELLED')`, name)
}

func (s *PostgresStore) UpdateWorkflowExecution(ctx context.Context, we *WorkflowExecution) error {
	ex := s.getExecutor(ctx)
	const update = `
UPDATE graflow.workflow_executions
SET status = $2, started_at = $3, completed_at = $4, current_task_index = $5,
	retry_count = $6, error_message = $7, updated_at = now()
WHERE id = $1
RETURNING updated_at`

	err := ex.QueryRow(ctx, update, we.ID, we.Status, we.StartedAt, we.CompletedAt,
		we.CurrentTaskIndex, we.RetryCount, we.ErrorMessage).Scan(&we.UpdatedAt)
	if err != nil {
		return wrapNotFound(err, "WorkflowExecution", we.ID)
	}
	return s.replaceVariables(ctx, ex, we.ID, we.Variables)
}

func (s *PostgresStore) DeleteWorkflowExecution(ctx context.Context, id string) error {
	ex := s.getExecutor(ctx)
	var status WorkflowStatus
	err := ex.QueryRow(ctx, `SELECT status FROM graflow.workflow_executions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return wrapNotFound(err, "WorkflowExecution", id)
	}
	if !status.IsTerminal() {
		return &StateError{Message: "cannot delete workflow execution not in a terminal state: " + string(status)}
	}
	if _, err := ex.Exec(ctx, `DELETE FROM graflow.workflow_executions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete workflow execution: %w", err)
	}
	return nil
}

// --- task executions ---

func (s *PostgresStore) CreateTaskExecution(ctx context.Context, te *TaskExecution) error {
	ex := s.getExecutor(ctx)
	if te.ID == "" {
		te.ID = uuid.NewString()
	}
	const insert = `
INSERT INTO graflow.task_executions
	(id, workflow_execution_id, task_definition_id, status, started_at, completed_at,
	 execution_mode, retry_count, next_retry_at, error_message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
RETURNING created_at`
	err := ex.QueryRow(ctx, insert, te.ID, te.WorkflowExecutionID, te.TaskDefinitionID, te.Status,
		te.StartedAt, te.CompletedAt, te.ExecutionMode, te.RetryCount, te.NextRetryAt, te.ErrorMessage,
	).Scan(&te.CreatedAt)
	if err != nil {
		return fmt.Errorf("create task execution: %w", err)
	}
	if err := s.replaceKV(ctx, ex, "task_execution_inputs", te.ID, te.Inputs); err != nil {
		return err
	}
	return s.replaceKV(ctx, ex, "task_execution_outputs", te.ID, te.Outputs)
}

func (s *PostgresStore) replaceKV(ctx context.Context, ex pgxExecutor, table, taskExecutionID string, kv map[string]string) error {
	if _, err := ex.Exec(ctx, `DELETE FROM graflow.`+table+` WHERE task_execution_id = $1`, taskExecutionID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for k, v := range kv {
		if _, err := ex.Exec(ctx, `INSERT INTO graflow.`+table+` (task_execution_id, key, value) VALUES ($1,$2,$3)`,
			taskExecutionID, k, v); err != nil {
			return fmt.Errorf("save %s %s: %w", table, k, err)
		}
	}
	return nil
}

func (s *PostgresStore) loadKV(ctx context.Context, ex pgxExecutor, table, taskExecutionID string) (map[string]string, error) {
	rows, err := ex.Query(ctx, `SELECT key, value FROM graflow.`+table+` WHERE task_execution_id = $1`, taskExecutionID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

const taskExecutionColumns = `id, workflow_execution_id, task_definition_id, status, started_at, completed_at,
	execution_mode, retry_count, next_retry_at, error_message, created_at`

func (s *PostgresStore) scanTaskExecution(row pgx.Row) (*TaskExecution, error) {
	te := &TaskExecution{}
	err := row.Scan(&te.ID, &te.WorkflowExecutionID, &te.TaskDefinitionID, &te.Status, &te.StartedAt,
		&te.CompletedAt, &te.ExecutionMode, &te.RetryCount, &te.NextRetryAt, &te.ErrorMessage, &te.CreatedAt)
	return te, err
}

func (s *PostgresStore) GetTaskExecution(ctx context.Context, id string) (*TaskExecution, error) {
	ex := s.getExecutor(ctx)
	te, err := s.scanTaskExecution(ex.QueryRow(ctx, `SELECT `+taskExecutionColumns+` FROM graflow.task_executions WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNotFound(err, "TaskExecution", id)
	}
	if err := s.fillTaskExecutionKV(ctx, ex, te); err != nil {
		return nil, err
	}
	return te, nil
}

func (s *PostgresStore) fillTaskExecutionKV(ctx context.Context, ex pgxExecutor, te *TaskExecution) error {
	var err error
	te.Inputs, err = s.loadKV(ctx, ex, "task_execution_inputs", te.ID)
	if err != nil {
		return err
	}
	te.Outputs, err = s.loadKV(ctx, ex, "task_execution_outputs", te.ID)
	return err
}

func (s *PostgresStore) ListTaskExecutionsByWorkflow(ctx context.Context, workflowExecutionID string) ([]*TaskExecution, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.Query(ctx, `SELECT `+taskExecutionColumns+` FROM graflow.task_executions
		WHERE workflow_execution_id = $1 ORDER BY created_at`, workflowExecutionID)
	if err != nil {
		return nil, fmt.Errorf("list task executions: %w", err)
	}
	defer rows.Close()

	var out []*TaskExecution
	for rows.Next() {
		te, err := s.scanTaskExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, te)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, te := range out {
		if err := s.fillTaskExecutionKV(ctx, ex, te); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) UpdateTaskExecution(ctx context.Context, te *TaskExecution) error {
	ex := s.getExecutor(ctx)
	const update = `
UPDATE graflow.task_executions
SET status = $2, started_at = $3, completed_at = $4, execution_mode = $5,
	retry_count = $6, next_retry_at = $7, error_message = $8
WHERE id = $1`
	tag, err := ex.Exec(ctx, update, te.ID, te.Status, te.StartedAt, te.CompletedAt,
		te.ExecutionMode, te.RetryCount, te.NextRetryAt, te.ErrorMessage)
	if err != nil {
		return fmt.Errorf("update task execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "TaskExecution", ID: te.ID}
	}
	if err := s.replaceKV(ctx, ex, "task_execution_inputs", te.ID, te.Inputs); err != nil {
		return err
	}
	return s.replaceKV(ctx, ex, "task_execution_outputs", te.ID, te.Outputs)
}

func (s *PostgresStore) TasksToRetry(ctx context.Context, now time.Time) ([]*TaskExecution, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.Query(ctx, `SELECT `+taskExecutionColumns+` FROM graflow.task_executions
		WHERE status = 'AWAITING_RETRY' AND next_retry_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list tasks to retry: %w", err)
	}
	defer rows.Close()

	var out []*TaskExecution
	for rows.Next() {
		te, err := s.scanTaskExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, te)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, te := range out {
		if err := s.fillTaskExecutionKV(ctx, ex, te); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- review points ---

func (s *PostgresStore) CreateReviewPoint(ctx context.Context, rp *UserReviewPoint) error {
	ex := s.getExecutor(ctx)
	if rp.ID == "" {
		rp.ID = uuid.NewString()
	}
	const insert = `
INSERT INTO graflow.user_review_points
	(id, workflow_execution_id, task_execution_id, created_at, reviewed_at, reviewer, comment, decision)
VALUES ($1,$2,$3, now(), $4,$5,$6,$7)
RETURNING created_at`
	err := ex.QueryRow(ctx, insert, rp.ID, rp.WorkflowExecutionID, rp.TaskExecutionID,
		rp.ReviewedAt, rp.Reviewer, rp.Comment, rp.Decision).Scan(&rp.CreatedAt)
	if err != nil {
		return fmt.Errorf("create review point: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanReviewPoint(row pgx.Row) (*UserReviewPoint, error) {
	rp := &UserReviewPoint{}
	err := row.Scan(&rp.ID, &rp.WorkflowExecutionID, &rp.TaskExecutionID, &rp.CreatedAt,
		&rp.ReviewedAt, &rp.Reviewer, &rp.Comment, &rp.Decision)
	return rp, err
}

const reviewPointColumns = `id, workflow_execution_id, task_execution_id, created_at, reviewed_at, reviewer, comment, decision`

func (s *PostgresStore) GetReviewPoint(ctx context.Context, id string) (*UserReviewPoint, error) {
	ex := s.getExecutor(ctx)
	rp, err := s.scanReviewPoint(ex.QueryRow(ctx, `SELECT `+reviewPointColumns+` FROM graflow.user_review_points WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNotFound(err, "UserReviewPoint", id)
	}
	return rp, nil
}

func (s *PostgresStore) UpdateReviewPoint(ctx context.Context, rp *UserReviewPoint) error {
	ex := s.getExecutor(ctx)
	const update = `
UPDATE graflow.user_review_points
SET reviewed_at = $2, reviewer = $3, comment = $4, decision = $5
WHERE id = $1`
	tag, err := ex.Exec(ctx, update, rp.ID, rp.ReviewedAt, rp.Reviewer, rp.Comment, rp.Decision)
	if err != nil {
		return fmt.Errorf("update review point: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "UserReviewPoint", ID: rp.ID}
	}
	return nil
}

func (s *PostgresStore) PendingReviewPoints(ctx context.Context) ([]*UserReviewPoint, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.Query(ctx, `SELECT `+reviewPointColumns+` FROM graflow.user_review_points
		WHERE reviewed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending review points: %w", err)
	}
	defer rows.Close()

	var out []*UserReviewPoint
	for rows.Next() {
		rp, err := s.scanReviewPoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}
