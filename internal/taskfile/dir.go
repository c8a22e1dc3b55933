package taskfile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/taskgraph/internal/scheduler"
)

// skippedFiles are sprint documents that live next to task files. Files
// named MVP-* are skipped as well.
var skippedFiles = map[string]bool{
	"readme.md":            true,
	"sprint_plan.md":       true,
	"test_results.md":      true,
	"status.md":            true,
	"remaining_issues.md":  true,
	"execution_tracker.md": true,
	"dependencies.md":      true,
	"task-breakdown.md":    true,
	"completion_report.md": true,
	"github_issues.md":     true,
	"post_review_fixes.md": true,
	"todo_audit.md":        true,
	"archived.md":          true,
}

// isTaskFile reports whether a file name looks like a task record.
func isTaskFile(name string) bool {
	lower := strings.ToLower(name)
	if skippedFiles[lower] || strings.HasPrefix(lower, ".") || strings.HasPrefix(lower, "mvp-") {
		return false
	}
	if strings.Contains(lower, "template") || strings.Contains(lower, "rename_me") {
		return false
	}
	switch filepath.Ext(lower) {
	case ".md", ".markdown", ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// skipDir reports whether a directory below the root holds no live tasks.
func skipDir(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, ".") || strings.Contains(lower, "archive")
}

// LoadFile parses a single task file.
func LoadFile(path string) ([]scheduler.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return Parse(path, data)
}

// LoadDir walks root and parses every task file below it, in lexical path
// order. Directories named "archive" and hidden directories are skipped. The
// first malformed file aborts the load.
func LoadDir(ctx context.Context, root string) ([]scheduler.Task, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isTaskFile(d.Name()) {
			paths = append(paths, path)
		} else {
			slog.Debug("skipping non-task file", "path", path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk task directory %s: %w", root, err)
	}
	sort.Strings(paths)

	var tasks []scheduler.Task
	for _, path := range paths {
		parsed, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, parsed...)
	}
	slog.Debug("loaded task files", "dir", root, "files", len(paths), "tasks", len(tasks))
	return tasks, nil
}

// Dir is a task source backed by a directory of task files.
type Dir string

// Load implements store.Source.
func (d Dir) Load(ctx context.Context) ([]scheduler.Task, error) {
	return LoadDir(ctx, string(d))
}
