package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/taskgraph/internal/scheduler"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// SaveTask saves or updates a task with its dependencies, blocks and scope.
// Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) SaveTask(ctx context.Context, task scheduler.Task) error {
	return s.SaveTasks(ctx, []scheduler.Task{task})
}

// SaveTasks saves several tasks in one transaction. Order does not matter:
// dependency targets need not exist yet, or at all.
//
// Repeated entries in depends_on, blocks or scope are stored once, at the
// position of their first occurrence. The graph treats them the same way and
// reports repeated dependencies as warnings, so a task read back from the
// database schedules exactly like the one that was saved but no longer carries
// the duplicate_dependency warning.
func (s *SQLiteStore) SaveTasks(ctx context.Context, tasks []scheduler.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, task := range tasks {
		if err := s.saveTask(ctx, tx, task); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) saveTask(ctx context.Context, tx *sql.Tx, task scheduler.Task) error {
	if task.ID == "" {
		return scheduler.ErrMissingID
	}
	status, err := task.Status.MarshalText()
	if err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}
	priority, err := task.Priority.MarshalText()
	if err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}

	now := s.now()
	created, updated := task.CreatedAt, task.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	// An existing row keeps its original created_at
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, status, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			updated_at = excluded.updated_at
	`, task.ID, string(status), string(priority), formatTime(created), formatTime(updated))
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
	}

	lists := []struct {
		table, column string
		values        []string
	}{
		{"task_dependencies", "depends_on_id", task.DependsOn},
		{"task_blocks", "blocks_id", task.Blocks},
		{"task_scope", "resource", task.Scope},
	}
	for _, l := range lists {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+l.table+` WHERE task_id = ?`, task.ID); err != nil {
			return fmt.Errorf("failed to clear %s for %s: %w", l.table, task.ID, err)
		}
		for i, v := range uniqueInOrder(l.values) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO `+l.table+` (task_id, `+l.column+`, position)
				VALUES (?, ?, ?)
			`, task.ID, v, i)
			if err != nil {
				return fmt.Errorf("failed to insert %s %s -> %s: %w", l.table, task.ID, v, err)
			}
		}
	}
	return nil
}

// uniqueInOrder drops repeated values, keeping first occurrences in order.
func uniqueInOrder(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// GetTask retrieves a task by ID with its dependencies, blocks and scope.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (scheduler.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, priority, created_at, updated_at
		FROM tasks
		WHERE id = ?
	`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scheduler.Task{}, fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return scheduler.Task{}, fmt.Errorf("failed to query task: %w", err)
	}

	lists, err := s.loadLists(ctx, taskID)
	if err != nil {
		return scheduler.Task{}, err
	}
	lists.fill(&task)
	return task, nil
}

// ListTasks returns all tasks ordered by ID.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, priority, created_at, updated_at
		FROM tasks
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []scheduler.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	// One query per relation table instead of three per task
	lists, err := s.loadLists(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		lists.fill(&tasks[i])
	}
	return tasks, nil
}

// Load implements store.Source.
func (s *SQLiteStore) Load(ctx context.Context) ([]scheduler.Task, error) {
	return s.ListTasks(ctx)
}

// UpdateTaskStatus sets the status of a task and appends the change to its
// history. Transition rules are enforced by the caller.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID string, status scheduler.Status) error {
	to, err := status.MarshalText()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var from string
	err = tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return fmt.Errorf("failed to read task status: %w", err)
	}

	now := formatTime(s.now())
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, updated_at = ?
		WHERE id = ?
	`, string(to), now, taskID); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	if from != string(to) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO status_history (task_id, from_status, to_status, changed_at)
			VALUES (?, ?, ?, ?)
		`, taskID, from, string(to), now); err != nil {
			return fmt.Errorf("failed to record status change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteTask removes a task. Relation rows and history go with it; other
// tasks' references to it are left in place.
func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, taskID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (scheduler.Task, error) {
	var (
		task                     scheduler.Task
		status, priority         string
		createdText, updatedText string
	)
	if err := row.Scan(&task.ID, &status, &priority, &createdText, &updatedText); err != nil {
		return scheduler.Task{}, err
	}

	var err error
	if task.Status, err = scheduler.ParseStatus(status); err != nil {
		return scheduler.Task{}, fmt.Errorf("task %s: %w", task.ID, err)
	}
	if task.Priority, err = scheduler.ParsePriority(priority); err != nil {
		return scheduler.Task{}, fmt.Errorf("task %s: %w", task.ID, err)
	}
	if task.CreatedAt, err = parseTime(createdText); err != nil {
		return scheduler.Task{}, fmt.Errorf("task %s: created_at: %w", task.ID, err)
	}
	if task.UpdatedAt, err = parseTime(updatedText); err != nil {
		return scheduler.Task{}, fmt.Errorf("task %s: updated_at: %w", task.ID, err)
	}
	return task, nil
}

// relations holds the list columns of one or more tasks keyed by task ID.
type relations struct {
	deps, blocks, scope map[string][]string
}

func (r relations) fill(task *scheduler.Task) {
	task.DependsOn = append([]string{}, r.deps[task.ID]...)
	task.Blocks = append([]string{}, r.blocks[task.ID]...)
	task.Scope = append([]string{}, r.scope[task.ID]...)
}

// loadLists reads the relation tables for one task, or for all tasks when
// taskID is empty.
func (s *SQLiteStore) loadLists(ctx context.Context, taskID string) (relations, error) {
	var r relations
	var err error
	if r.deps, err = s.loadList(ctx, "task_dependencies", "depends_on_id", taskID); err != nil {
		return r, err
	}
	if r.blocks, err = s.loadList(ctx, "task_blocks", "blocks_id", taskID); err != nil {
		return r, err
	}
	if r.scope, err = s.loadList(ctx, "task_scope", "resource", taskID); err != nil {
		return r, err
	}
	return r, nil
}

func (s *SQLiteStore) loadList(ctx context.Context, table, column, taskID string) (map[string][]string, error) {
	query := `SELECT task_id, ` + column + ` FROM ` + table
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY task_id, position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var id, value string
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out[id] = append(out[id], value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}
	return out, nil
}
