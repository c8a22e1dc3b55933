package persistence

import (
	"context"
	"fmt"

	"github.com/aristath/taskgraph/internal/scheduler"
)

// History returns the recorded status changes of a task, oldest first.
func (s *SQLiteStore) History(ctx context.Context, taskID string) ([]StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_status, to_status, changed_at
		FROM status_history
		WHERE task_id = ?
		ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []StatusChange{}
	for rows.Next() {
		var from, to, at string
		if err := rows.Scan(&from, &to, &at); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}

		var change StatusChange
		if change.From, err = scheduler.ParseStatus(from); err != nil {
			return nil, err
		}
		if change.To, err = scheduler.ParseStatus(to); err != nil {
			return nil, err
		}
		if change.ChangedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("changed_at: %w", err)
		}
		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}
