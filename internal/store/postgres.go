package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const taskColumns = `id, tool_type, status, input, output, error, progress, api_request, prompt,
	version, attempts, created_at, updated_at, completed_at`

// --- Tasks ---

func (s *PostgresStore) CreateTask(ctx context.Context, toolType models.ToolType, input models.Input) (*models.Task, error) {
	if input == nil {
		input = models.Input{}
	}
	inputJSON, err := encodeJSON(input)
	if err != nil {
		return nil, fmt.Errorf("encode task input: %w", err)
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (id, tool_type, status, input, progress, version, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, 1, 0, $5, $5)
		 RETURNING `+taskColumns,
		uuid.New(), string(toolType), models.TaskStatusPending, inputJSON, now)

	task, err := scanTask(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

var validTransitions = map[string][]string{
	models.TaskStatusPending: {models.TaskStatusPending, models.TaskStatusSuccess, models.TaskStatusFailed},
}

// UpdateTask overwrites the supplied fields of a pending task.
func (s *PostgresStore) UpdateTask(ctx context.Context, id uuid.UUID, opts ...TaskUpdateOption) (*models.Task, error) {
	return s.updateTask(ctx, id, nil, opts)
}

// CompareAndSwapTask behaves like UpdateTask but fails with ErrVersionConflict
// unless the stored version still equals expectedVersion.
func (s *PostgresStore) CompareAndSwapTask(ctx context.Context, id uuid.UUID, expectedVersion int64, opts ...TaskUpdateOption) (*models.Task, error) {
	return s.updateTask(ctx, id, &expectedVersion, opts)
}

func (s *PostgresStore) updateTask(ctx context.Context, id uuid.UUID, expectedVersion *int64, opts []TaskUpdateOption) (*models.Task, error) {
	params := ResolveUpdate(opts...)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin task update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var currentStatus string
	var currentVersion int64
	err = tx.QueryRow(ctx, `SELECT status, version FROM tasks WHERE id = $1 FOR UPDATE`, id).
		Scan(&currentStatus, &currentVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock task: %w", err)
	}

	if models.IsTerminalStatus(currentStatus) {
		return nil, ErrTerminalState
	}
	if expectedVersion != nil && *expectedVersion != currentVersion {
		return nil, ErrVersionConflict
	}

	status := currentStatus
	if params.Status != nil {
		status = *params.Status
	}
	if !slices.Contains(validTransitions[currentStatus], status) {
		return nil, fmt.Errorf("invalid task status transition: %s -> %s", currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE tasks SET status = $2, updated_at = $3, version = version + 1`
	args := []any{id, status, now}
	argIdx := 4

	if models.IsTerminalStatus(status) {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.Output != nil {
		out, err := encodeJSON(params.Output)
		if err != nil {
			return nil, fmt.Errorf("encode task output: %w", err)
		}
		query += fmt.Sprintf(", output = $%d", argIdx)
		args = append(args, out)
		argIdx++
	}
	if params.Error != nil {
		query += fmt.Sprintf(", error = $%d", argIdx)
		args = append(args, *params.Error)
		argIdx++
	}
	if params.Progress != nil {
		query += fmt.Sprintf(", progress = $%d", argIdx)
		args = append(args, *params.Progress)
		argIdx++
	}
	if params.APIRequest != nil {
		req, err := encodeJSON(params.APIRequest)
		if err != nil {
			return nil, fmt.Errorf("encode task api request: %w", err)
		}
		query += fmt.Sprintf(", api_request = $%d", argIdx)
		args = append(args, req)
		argIdx++
	}
	if params.Prompt != nil {
		query += fmt.Sprintf(", prompt = $%d", argIdx)
		args = append(args, *params.Prompt)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = '%s' RETURNING %s", models.TaskStatusPending, taskColumns)

	task, err := scanTask(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTerminalState
	}
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit task update: %w", err)
	}
	return task, nil
}

// ListStalePending returns pending tasks not written since olderThan, oldest first.
func (s *PostgresStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC LIMIT $3`,
		models.TaskStatusPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// IncrementAttempts records one more reaper re-queue. It also bumps
// updated_at so the task is not considered stale again right away.
func (s *PostgresStore) IncrementAttempts(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE tasks SET attempts = attempts + 1, updated_at = $2, version = version + 1
		 WHERE id = $1 AND status = $3
		 RETURNING `+taskColumns,
		id, time.Now().UTC(), models.TaskStatusPending)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetTask(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrTerminalState
	}
	if err != nil {
		return nil, fmt.Errorf("increment task attempts: %w", err)
	}
	return task, nil
}

// --- History ---

const historyColumns = `id, task_id, tool_type, input, output, created_at`

func (s *PostgresStore) AppendHistory(ctx context.Context, taskID uuid.UUID, toolType models.ToolType, input models.Input, output models.Output) (*models.HistoryRecord, error) {
	if input == nil {
		input = models.Input{}
	}
	if output == nil {
		output = models.Output{}
	}
	inputJSON, err := encodeJSON(input)
	if err != nil {
		return nil, fmt.Errorf("encode history input: %w", err)
	}
	outputJSON, err := encodeJSON(output)
	if err != nil {
		return nil, fmt.Errorf("encode history output: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO history_records (id, task_id, tool_type, input, output, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+historyColumns,
		uuid.New(), taskID, string(toolType), inputJSON, outputJSON, time.Now().UTC())
	rec, err := scanHistory(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("append history: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryRecord, error) {
	rec, err := scanHistory(s.pool.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM history_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]*models.HistoryRecord, int, error) {
	where := ""
	var args []any
	argIdx := 1

	if filter.ToolType != "" {
		where = fmt.Sprintf(" WHERE tool_type = $%d", argIdx)
		args = append(args, string(filter.ToolType))
		argIdx++
	}

	// Count query
	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM history_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	limit, page := NormalizePage(filter.Limit, filter.Page)
	offset := (page - 1) * limit

	// Data query
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM history_records%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		historyColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	records := []*models.HistoryRecord{}
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (s *PostgresStore) DeleteHistory(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM history_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NormalizePage applies the default and maximum page size and the default page.
func NormalizePage(limit, page int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, page
}

// --- helpers ---

func scanTask(row pgx.Row) (*models.Task, error) {
	var (
		t                         models.Task
		input, output, apiRequest []byte
	)
	if err := row.Scan(&t.ID, &t.ToolType, &t.Status, &input, &output, &t.Error, &t.Progress,
		&apiRequest, &t.Prompt, &t.Version, &t.Attempts, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(input, &t.Input); err != nil {
		return nil, fmt.Errorf("decode task input: %w", err)
	}
	if err := decodeJSON(output, &t.Output); err != nil {
		return nil, fmt.Errorf("decode task output: %w", err)
	}
	if err := decodeJSON(apiRequest, &t.APIRequest); err != nil {
		return nil, fmt.Errorf("decode task api request: %w", err)
	}
	return &t, nil
}

func scanHistory(row pgx.Row) (*models.HistoryRecord, error) {
	var (
		r             models.HistoryRecord
		input, output []byte
	)
	if err := row.Scan(&r.ID, &r.TaskID, &r.ToolType, &input, &output, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(input, &r.Input); err != nil {
		return nil, fmt.Errorf("decode history input: %w", err)
	}
	if err := decodeJSON(output, &r.Output); err != nil {
		return nil, fmt.Errorf("decode history output: %w", err)
	}
	return &r, nil
}

// encodeJSON marshals v for a JSONB column. A nil map becomes SQL NULL.
func encodeJSON[M ~map[string]any](v M) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
