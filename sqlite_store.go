package graflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteTxKey struct{}

// SQLiteTxManager mirrors PgxTxManager for the embedded/single-process
// backend. SQLite serializes writers, so isolation level is advisory only.
type SQLiteTxManager struct {
	DB *sql.DB
}

func NewSQLiteTxManager(db *sql.DB) *SQLiteTxManager {
	return &SQLiteTxManager{DB: db}
}

func (m *SQLiteTxManager) WithTx(ctx context.Context, _ IsolationLevel, fn func(ctx context.Context) error) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txCtx := context.WithValue(ctx, sqliteTxKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SQLiteStore is the embedded-deployment Store backend, grounded on the
// teacher's sqlite_store.go: same operations as PostgresStore against the
// flat migrations_sqlite/ schema, with modernc.org/sqlite as the driver
// (cgo-free, unlike mattn/go-sqlite3).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// DB returns the underlying handle, for building a SQLiteTxManager against
// the same connection pool the store reads and writes through.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := RunSQLiteMigrations(ctx, db); err != nil {
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) getExecutor(ctx context.Context) sqlExecutor {
	if tx, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func timeToStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func ptrTimeToStr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeToStr(*t)
}

func strToTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func scanPtrTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	t, err := strToTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func wrapSQLiteNotFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// --- workflow definitions ---

func (s *SQLiteStore) SaveWorkflowDefinition(ctx context.Context, def *WorkflowDefinition) error {
	ex := s.getExecutor(ctx)
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	const upsert = `
INSERT INTO graflow_workflow_definitions (id, name, description, version, strategy_type, created_at, updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT (name, version) DO UPDATE SET
	description = excluded.description, strategy_type = excluded.strategy_type, updated_at = excluded.updated_at`
	if _, err := ex.ExecContext(ctx, upsert, def.ID, def.Name, def.Description, def.Version, def.StrategyType,
		timeToStr(def.CreatedAt), timeToStr(def.UpdatedAt)); err != nil {
		return fmt.Errorf("save workflow definition: %w", err)
	}

	if _, err := ex.ExecContext(ctx, `DELETE FROM graflow_task_definitions WHERE workflow_definition_id = ?`, def.ID); err != nil {
		return fmt.Errorf("clear task definitions: %w", err)
	}

	for _, t := range def.Tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.WorkflowDefinitionID = def.ID
		const insTask = `
INSERT INTO graflow_task_definitions
	(id, workflow_definition_id, name, type, execution_order, retry_limit, timeout_seconds,
	 execution_mode, require_user_review, conditional_expression, next_task_on_success, next_task_on_failure)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`
		if _, err := ex.ExecContext(ctx, insTask, t.ID, def.ID, t.Name, t.Type, t.ExecutionOrder, t.RetryLimit,
			t.TimeoutSeconds, t.ExecutionMode, boolToInt(t.RequireUserReview), t.ConditionalExpression,
			t.NextTaskOnSuccess, t.NextTaskOnFailure); err != nil {
			return fmt.Errorf("save task definition %s: %w", t.ID, err)
		}
		for k, v := range t.Configuration {
			if _, err := ex.ExecContext(ctx, `
INSERT INTO graflow_task_definition_config (task_definition_id, config_key, config_value) VALUES (?,?,?)`,
				t.ID, k, v); err != nil {
				return fmt.Errorf("save task config %s/%s: %w", t.ID, k, err)
			}
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) GetWorkflowDefinition(ctx context.Context, id string) (*WorkflowDefinition, error) {
	ex := s.getExecutor(ctx)
	const query = `
SELECT id, name, description, version, strategy_type, created_at, updated_at
FROM graflow_workflow_definitions WHERE id = ?`

	def := &WorkflowDefinition{}
	var createdAt, updatedAt string
	err := ex.QueryRowContext(ctx, query, id).Scan(&def.ID, &def.Name, &def.Description, &def.Version,
		&def.StrategyType, &createdAt, &updatedAt)
	if err != nil {
		return nil, wrapSQLiteNotFound(err, "WorkflowDefinition", id)
	}
	if def.CreatedAt, err = strToTime(createdAt); err != nil {
		return nil, err
	}
	if def.UpdatedAt, err = strToTime(updatedAt); err != nil {
		return nil, err
	}

	tasks, err := s.loadTaskDefinitions(ctx, ex, def.ID)
	if err != nil {
		return nil, err
	}
	def.Tasks = tasks
	return def, nil
}

func (s *SQLiteStore) loadTaskDefinitions(ctx context.Context, ex sqlExecutor, defID string) ([]*TaskDefinition, error) {
	const query = `
SELECT id, name, type, execution_order, retry_limit, timeout_seconds, execution_mode,
	require_user_review, conditional_expression, next_task_on_success, next_task_on_failure
FROM graflow_task_definitions WHERE workflow_definition_id = ? ORDER BY execution_order`

	rows, err := ex.QueryContext(ctx, query, defID)
	if err != nil {
		return nil, fmt.Errorf("list task definitions: %w", err)
	}
	defer rows.Close()

	var tasks []*TaskDefinition
	for rows.Next() {
		t := &TaskDefinition{WorkflowDefinitionID: defID}
		var requireReview int
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.ExecutionOrder, &t.RetryLimit, &t.TimeoutSeconds,
			&t.ExecutionMode, &requireReview, &t.ConditionalExpression,
			&t.NextTaskOnSuccess, &t.NextTaskOnFailure); err != nil {
			return nil, fmt.Errorf("scan task definition: %w", err)
		}
		t.RequireUserReview = requireReview != 0
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

func (s *SQLiteStore) loadTaskConfig(ctx context.Context, ex sqlExecutor, taskID string) (map[string]string, error) {
	rows, err := ex.QueryContext(ctx, `SELECT config_key, config_value FROM graflow_task_definition_config WHERE task_definition_id = ?`, taskID)
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

func (s *SQLiteStore) GetWorkflowDefinitionByNameVersion(ctx context.Context, name string, version int) (*WorkflowDefinition, error) {
	ex := s.getExecutor(ctx)
	var id string
	err := ex.QueryRowContext(ctx, `SELECT id FROM graflow_workflow_definitions WHERE name = ? AND version = ?`, name, version).Scan(&id)
	if err != nil {
		return nil, wrapSQLiteNotFound(err, "WorkflowDefinition", fmt.Sprintf("%s@%d", name, version))
	}
	return s.GetWorkflowDefinition(ctx, id)
}

func (s *SQLiteStore) ListWorkflowDefinitions(ctx context.Context) ([]*WorkflowDefinition, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.QueryContext(ctx, `SELECT id FROM graflow_workflow_definitions ORDER BY name, version`)
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

func (s *SQLiteStore) DeleteWorkflowDefinition(ctx context.Context, id string) error {
	ex := s.getExecutor(ctx)
	res, err := ex.ExecContext(ctx, `DELETE FROM graflow_workflow_definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workflow definition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "WorkflowDefinition", ID: id}
	}
	return nil
}

// --- workflow executions ---

func (s *SQLiteStore) CreateWorkflowExecution(ctx context.Context, we *WorkflowExecution) error {
	ex := s.getExecutor(ctx)
	if we.ID == "" {
		we.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	we.CreatedAt = now
	we.UpdatedAt = now

	const insert = `
INSERT INTO graflow_workflow_executions
	(id, workflow_definition_id, correlation_id, status, started_at, completed_at,
	 current_task_index, retry_count, error_message, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	_, err := ex.ExecContext(ctx, insert, we.ID, we.WorkflowDefinitionID, we.CorrelationID, we.Status,
		ptrTimeToStr(we.StartedAt), ptrTimeToStr(we.CompletedAt), we.CurrentTaskIndex, we.RetryCount,
		we.ErrorMessage, timeToStr(we.CreatedAt), timeToStr(we.UpdatedAt))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return &ValidationError{Message: "correlationId already in use: " + we.CorrelationID}
		}
		return fmt.Errorf("create workflow execution: %w", err)
	}
	return s.replaceVariables(ctx, ex, we.ID, we.Variables)
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && (containsAny(err.Error(), "UNIQUE constraint failed", "constraint failed: UNIQUE"))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func (s *SQLiteStore) replaceVariables(ctx context.Context, ex sqlExecutor, weID string, vars map[string]string) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM graflow_workflow_execution_variables WHERE workflow_execution_id = ?`, weID); err != nil {
		return fmt.Errorf("clear variables: %w", err)
	}
	for k, v := range vars {
		if _, err := ex.ExecContext(ctx, `
INSERT INTO graflow_workflow_execution_variables (workflow_execution_id, variable_key, variable_value) VALUES (?,?,?)`,
			weID, k, v); err != nil {
			return fmt.Errorf("save variable %s: %w", k, err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadVariables(ctx context.Context, ex sqlExecutor, weID string) (map[string]string, error) {
	rows, err := ex.QueryContext(ctx, `SELECT variable_key, variable_value FROM graflow_workflow_execution_variables WHERE workflow_execution_id = ?`, weID)
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

const sqliteWorkflowExecutionColumns = `id, workflow_definition_id, correlation_id, status, started_at, completed_at,
	current_task_index, retry_count, error_message, created_at, updated_at`

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanWorkflowExecution(row sqliteRowScanner) (*WorkflowExecution, error) {
	we := &WorkflowExecution{}
	var startedAt, completedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&we.ID, &we.WorkflowDefinitionID, &we.CorrelationID, &we.Status, &startedAt, &completedAt,
		&we.CurrentTaskIndex, &we.RetryCount, &we.ErrorMessage, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if we.StartedAt, err = scanPtrTime(startedAt); err != nil {
		return nil, err
	}
	if we.CompletedAt, err = scanPtrTime(completedAt); err != nil {
		return nil, err
	}
	if we.CreatedAt, err = strToTime(createdAt); err != nil {
		return nil, err
	}
	if we.UpdatedAt, err = strToTime(updatedAt); err != nil {
		return nil, err
	}
	return we, nil
}

func (s *SQLiteStore) GetWorkflowExecution(ctx context.Context, id string) (*WorkflowExecution, error) {
	ex := s.getExecutor(ctx)
	we, err := s.scanWorkflowExecution(ex.QueryRowContext(ctx,
		`SELECT `+sqliteWorkflowExecutionColumns+` FROM graflow_workflow_executions WHERE id = ?`, id))
	if err != nil {
		return nil, wrapSQLiteNotFound(err, "WorkflowExecution", id)
	}
	we.Variables, err = s.loadVariables(ctx, ex, we.ID)
	if err != nil {
		return nil, err
	}
	return we, nil
}

func (s *SQLiteStore) GetWorkflowExecutionByCorrelationID(ctx context.Context, correlationID string) (*WorkflowExecution, error) {
	ex := s.getExecutor(ctx)
	we, err := s.scanWorkflowExecution(ex.QueryRowContext(ctx,
		`SELECT `+sqliteWorkflowExecutionColumns+` FROM graflow_workflow_executions WHERE correlation_id = ?`, correlationID))
	if err != nil {
		return nil, wrapSQLiteNotFound(err, "WorkflowExecution", correlationID)
	}
	we.Variables, err = s.loadVariables(ctx, ex, we.ID)
	if err != nil {
		return nil, err
	}
	return we, nil
}

func (s *SQLiteStore) listExecutions(ctx context.Context, query string, args ...any) ([]*WorkflowExecution, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) ListWorkflowExecutionsByStatus(ctx context.Context, status WorkflowStatus) ([]*WorkflowExecution, error) {
	return s.listExecutions(ctx,
		`SELECT `+sqliteWorkflowExecutionColumns+` FROM graflow_workflow_executions WHERE status = ? ORDER BY created_at`, status)
}

func (s *SQLiteStore) FindCompletedOlderThan(ctx context.Context, before time.Time) ([]*WorkflowExecution, error) {
	return s.listExecutions(ctx,
		`SELECT `+sqliteWorkflowExecutionColumns+` FROM graflow_workflow_executions
		 WHERE status IN ('COMPLETED','FAILED','CANCELLED') AND completed_at < ?`, timeToStr(before))
}

func (s *SQLiteStore) FindPausedOlderThan(ctx context.Context, before time.Time) ([]*WorkflowExecution, error) {
	return s.listExecutions(ctx,
		`SELECT `+sqliteWorkflowExecutionColumns+` FROM graflow_workflow_executions
		 WHERE status = 'PAUSED' AND started_at < ?`, timeToStr(before))
}

func (s *SQLiteStore) FindActiveByDefinitionName(ctx context.Context, name string) ([]*WorkflowExecution, error) {
	return s.listExecutions(ctx, `
SELECT we.id, we.workflow_definition_id, we.correlation_id, we.status, we.started_at, we.completed_at,
	we.current_task_index, we.retry_count, we.error_message, we.created_at, we.updated_at
FROM graflow_workflow_executions we
JOIN graflow_workflow_definitions wd ON wd.id = we.workflow_definition_id
WHERE wd.name = ? AND we.status NOT IN ('COMPLETED','FAILED','CANCELLED')`, name)
}

func (s *SQLiteStore) UpdateWorkflowExecution(ctx context.Context, we *WorkflowExecution) error {
	ex := s.getExecutor(ctx)
	we.UpdatedAt = time.Now().UTC()
	const update = `
UPDATE graflow_workflow_executions
SET status = ?, started_at = ?, completed_at = ?, current_task_index = ?,
	retry_count = ?, error_message = ?, updated_at = ?
WHERE id = ?`
	res, err := ex.ExecContext(ctx, update, we.Status, ptrTimeToStr(we.StartedAt), ptrTimeToStr(we.CompletedAt),
		we.CurrentTaskIndex, we.RetryCount, we.ErrorMessage, timeToStr(we.UpdatedAt), we.ID)
	if err != nil {
		return fmt.Errorf("update workflow execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "WorkflowExecution", ID: we.ID}
	}
	return s.replaceVariables(ctx, ex, we.ID, we.Variables)
}

func (s *SQLiteStore) DeleteWorkflowExecution(ctx context.Context, id string) error {
	ex := s.getExecutor(ctx)
	var status WorkflowStatus
	err := ex.QueryRowContext(ctx, `SELECT status FROM graflow_workflow_executions WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return wrapSQLiteNotFound(err, "WorkflowExecution", id)
	}
	if !status.IsTerminal() {
		return &StateError{Message: "cannot delete workflow execution not in a terminal state: " + string(status)}
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM graflow_workflow_executions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete workflow execution: %w", err)
	}
	return nil
}

// --- task executions ---

func (s *SQLiteStore) CreateTaskExecution(ctx context.Context, te *TaskExecution) error {
	ex := s.getExecutor(ctx)
	if te.ID == "" {
		te.ID = uuid.NewString()
	}
	te.CreatedAt = time.Now().UTC()
	const insert = `
INSERT INTO graflow_task_executions
	(id, workflow_execution_id, task_definition_id, status, started_at, completed_at,
	 execution_mode, retry_count, next_retry_at, error_message, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	_, err := ex.ExecContext(ctx, insert, te.ID, te.WorkflowExecutionID, te.TaskDefinitionID, te.Status,
		ptrTimeToStr(te.StartedAt), ptrTimeToStr(te.CompletedAt), te.ExecutionMode, te.RetryCount,
		ptrTimeToStr(te.NextRetryAt), te.ErrorMessage, timeToStr(te.CreatedAt))
	if err != nil {
		return fmt.Errorf("create task execution: %w", err)
	}
	if err := s.replaceKV(ctx, ex, "graflow_task_execution_inputs", te.ID, te.Inputs); err != nil {
		return err
	}
	return s.replaceKV(ctx, ex, "graflow_task_execution_outputs", te.ID, te.Outputs)
}

func (s *SQLiteStore) replaceKV(ctx context.Context, ex sqlExecutor, table, taskExecutionID string, kv map[string]string) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM `+table+` WHERE task_execution_id = ?`, taskExecutionID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for k, v := range kv {
		if _, err := ex.ExecContext(ctx, `INSERT INTO `+table+` (task_execution_id, key, value) VALUES (?,?,?)`,
			taskExecutionID, k, v); err != nil {
			return fmt.Errorf("save %s %s: %w", table, k, err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadKV(ctx context.Context, ex sqlExecutor, table, taskExecutionID string) (map[string]string, error) {
	rows, err := ex.QueryContext(ctx, `SELECT key, value FROM `+table+` WHERE task_execution_id = ?`, taskExecutionID)
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

const sqliteTaskExecutionColumns = `id, workflow_execution_id, task_definition_id, status, started_at, completed_at,
	execution_mode, retry_count, next_retry_at, error_message, created_at`

func (s *SQLiteStore) scanTaskExecution(row sqliteRowScanner) (*TaskExecution, error) {
	te := &TaskExecution{}
	var startedAt, completedAt, nextRetryAt sql.NullString
	var createdAt string
	err := row.Scan(&te.ID, &te.WorkflowExecutionID, &te.TaskDefinitionID, &te.Status, &startedAt, &completedAt,
		&te.ExecutionMode, &te.RetryCount, &nextRetryAt, &te.ErrorMessage, &createdAt)
	if err != nil {
		return nil, err
	}
	if te.StartedAt, err = scanPtrTime(startedAt); err != nil {
		return nil, err
	}
	if te.CompletedAt, err = scanPtrTime(completedAt); err != nil {
		return nil, err
	}
	if te.NextRetryAt, err = scanPtrTime(nextRetryAt); err != nil {
		return nil, err
	}
	if te.CreatedAt, err = strToTime(createdAt); err != nil {
		return nil, err
	}
	return te, nil
}

func (s *SQLiteStore) GetTaskExecution(ctx context.Context, id string) (*TaskExecution, error) {
	ex := s.getExecutor(ctx)
	te, err := s.scanTaskExecution(ex.QueryRowContext(ctx, `SELECT `+sqliteTaskExecutionColumns+` FROM graflow_task_executions WHERE id = ?`, id))
	if err != nil {
		return nil, wrapSQLiteNotFound(err, "TaskExecution", id)
	}
	if err := s.fillTaskExecutionKV(ctx, ex, te); err != nil {
		return nil, err
	}
	return te, nil
}

func (s *SQLiteStore) fillTaskExecutionKV(ctx context.Context, ex sqlExecutor, te *TaskExecution) error {
	var err error
	te.Inputs, err = s.loadKV(ctx, ex, "graflow_task_execution_inputs", te.ID)
	if err != nil {
		return err
	}
	te.Outputs, err = s.loadKV(ctx, ex, "graflow_task_execution_outputs", te.ID)
	return err
}

func (s *SQLiteStore) ListTaskExecutionsByWorkflow(ctx context.Context, workflowExecutionID string) ([]*TaskExecution, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.QueryContext(ctx, `SELECT `+sqliteTaskExecutionColumns+` FROM graflow_task_executions
		WHERE workflow_execution_id = ? ORDER BY created_at`, workflowExecutionID)
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

func (s *SQLiteStore) UpdateTaskExecution(ctx context.Context, te *TaskExecution) error {
	ex := s.getExecutor(ctx)
	const update = `
UPDATE graflow_task_executions
SET status = ?, started_at = ?, completed_at = ?, execution_mode = ?,
	retry_count = ?, next_retry_at = ?, error_message = ?
WHERE id = ?`
	res, err := ex.ExecContext(ctx, update, te.Status, ptrTimeToStr(te.StartedAt), ptrTimeToStr(te.CompletedAt),
		te.ExecutionMode, te.RetryCount, ptrTimeToStr(te.NextRetryAt), te.ErrorMessage, te.ID)
	if err != nil {
		return fmt.Errorf("update task execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "TaskExecution", ID: te.ID}
	}
	if err := s.replaceKV(ctx, ex, "graflow_task_execution_inputs", te.ID, te.Inputs); err != nil {
		return err
	}
	return s.replaceKV(ctx, ex, "graflow_task_execution_outputs", te.ID, te.Outputs)
}

func (s *SQLiteStore) TasksToRetry(ctx context.Context, now time.Time) ([]*TaskExecution, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.QueryContext(ctx, `SELECT `+sqliteTaskExecutionColumns+` FROM graflow_task_executions
		WHERE status = 'AWAITING_RETRY' AND next_retry_at <= ?`, timeToStr(now))
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

func (s *SQLiteStore) CreateReviewPoint(ctx context.Context, rp *UserReviewPoint) error {
	ex := s.getExecutor(ctx)
	if rp.ID == "" {
		rp.ID = uuid.NewString()
	}
	rp.CreatedAt = time.Now().UTC()
	const insert = `
INSERT INTO graflow_user_review_points
	(id, workflow_execution_id, task_execution_id, created_at, reviewed_at, reviewer, comment, decision)
VALUES (?,?,?,?,?,?,?,?)`
	_, err := ex.ExecContext(ctx, insert, rp.ID, rp.WorkflowExecutionID, rp.TaskExecutionID,
		timeToStr(rp.CreatedAt), ptrTimeToStr(rp.ReviewedAt), rp.Reviewer, rp.Comment, rp.Decision)
	if err != nil {
		return fmt.Errorf("create review point: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanReviewPoint(row sqliteRowScanner) (*UserReviewPoint, error) {
	rp := &UserReviewPoint{}
	var createdAt string
	var reviewedAt sql.NullString
	err := row.Scan(&rp.ID, &rp.WorkflowExecutionID, &rp.TaskExecutionID, &createdAt, &reviewedAt,
		&rp.Reviewer, &rp.Comment, &rp.Decision)
	if err != nil {
		return nil, err
	}
	if rp.CreatedAt, err = strToTime(createdAt); err != nil {
		return nil, err
	}
	if rp.ReviewedAt, err = scanPtrTime(reviewedAt); err != nil {
		return nil, err
	}
	return rp, nil
}

const sqliteReviewPointColumns = `id, workflow_execution_id, task_execution_id, created_at, reviewed_at, reviewer, comment, decision`

func (s *SQLiteStore) GetReviewPoint(ctx context.Context, id string) (*UserReviewPoint, error) {
	ex := s.getExecutor(ctx)
	rp, err := s.scanReviewPoint(ex.QueryRowContext(ctx, `SELECT `+sqliteReviewPointColumns+` FROM graflow_user_review_points WHERE id = ?`, id))
	if err != nil {
		return nil, wrapSQLiteNotFound(err, "UserReviewPoint", id)
	}
	return rp, nil
}

func (s *SQLiteStore) UpdateReviewPoint(ctx context.Context, rp *UserReviewPoint) error {
	ex := s.getExecutor(ctx)
	const update = `
UPDATE graflow_user_review_points
SET reviewed_at = ?, reviewer = ?, comment = ?, decision = ?
WHERE id = ?`
	res, err := ex.ExecContext(ctx, update, ptrTimeToStr(rp.ReviewedAt), rp.Reviewer, rp.Comment, rp.Decision, rp.ID)
	if err != nil {
		return fmt.Errorf("update review point: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "UserReviewPoint", ID: rp.ID}
	}
	return nil
}

func (s *SQLiteStore) PendingReviewPoints(ctx context.Context) ([]*UserReviewPoint, error) {
	ex := s.getExecutor(ctx)
	rows, err := ex.QueryContext(ctx, `SELECT `+sqliteReviewPointColumns+` FROM graflow_user_review_points
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
