// Package taskfile reads task records from Markdown front-matter, YAML and
// JSON files.
package taskfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aristath/taskgraph/internal/scheduler"
)

var (
	ErrNoFrontMatter       = errors.New("missing YAML front-matter")
	ErrUnterminatedHeader  = errors.New("missing closing front-matter separator")
	ErrUnsupportedFormat   = errors.New("unsupported task file format")
	ErrConflictingIDFields = errors.New("id and task_id disagree")
)

// ParseError locates a malformed record. Index is -1 when the whole file is
// at fault rather than a single record.
type ParseError struct {
	Path  string
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: record %d: %v", e.Path, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// record is the on-disk shape of a task. Status and priority stay strings
// here so they can be normalized with a useful error.
type record struct {
	ID        string    `yaml:"id" json:"id" validate:"required_without=TaskID"`
	TaskID    string    `yaml:"task_id" json:"task_id"`
	Status    string    `yaml:"status" json:"status"`
	Priority  string    `yaml:"priority" json:"priority"`
	DependsOn []string  `yaml:"depends_on" json:"depends_on" validate:"dive,required"`
	Blocks    []string  `yaml:"blocks" json:"blocks" validate:"dive,required"`
	Scope     []string  `yaml:"scope" json:"scope" validate:"dive,required"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

var validate = validator.New()

// toTask validates the trimmed record, so blank list entries and
// whitespace-only IDs are rejected.
func (r record) toTask() (scheduler.Task, error) {
	r.ID = strings.TrimSpace(r.ID)
	r.TaskID = strings.TrimSpace(r.TaskID)
	r.DependsOn = trimAll(r.DependsOn)
	r.Blocks = trimAll(r.Blocks)
	r.Scope = trimAll(r.Scope)
	if err := validate.Struct(r); err != nil {
		return scheduler.Task{}, err
	}

	id, alias := r.ID, r.TaskID
	switch {
	case id == "":
		id = alias
	case alias != "" && alias != id:
		return scheduler.Task{}, fmt.Errorf("%w: %q vs %q", ErrConflictingIDFields, id, alias)
	}

	status := scheduler.StatusTodo
	if strings.TrimSpace(r.Status) != "" {
		var err error
		if status, err = scheduler.ParseStatus(r.Status); err != nil {
			return scheduler.Task{}, err
		}
	}
	priority, err := scheduler.ParsePriority(r.Priority)
	if err != nil {
		return scheduler.Task{}, err
	}

	return scheduler.Task{
		ID:        id,
		Status:    status,
		Priority:  priority,
		DependsOn: r.DependsOn,
		Blocks:    r.Blocks,
		Scope:     r.Scope,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// Parse decodes the task records in data. The format is chosen from the
// extension of path: .md/.markdown (front-matter), .yaml/.yml or .json.
// YAML and JSON files may hold a single task, a list of tasks, or a mapping
// with a "tasks" key.
func Parse(path string, data []byte) ([]scheduler.Task, error) {
	var (
		records []record
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		var meta []byte
		if meta, err = frontMatter(data); err == nil {
			var r record
			if err = yaml.Unmarshal(meta, &r); err == nil {
				records = []record{r}
			}
		}
	case ".yaml", ".yml":
		records, err = decodeYAML(data)
	case ".json":
		records, err = decodeJSON(data)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return nil, &ParseError{Path: path, Index: -1, Err: err}
	}

	tasks := make([]scheduler.Task, 0, len(records))
	for i, r := range records {
		task, err := r.toTask()
		if err != nil {
			return nil, &ParseError{Path: path, Index: i, Err: err}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// frontMatter returns the YAML block between the leading "---" fences.
func frontMatter(data []byte) ([]byte, error) {
	text := strings.TrimPrefix(string(data), "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, ErrNoFrontMatter
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return []byte(strings.Join(lines[1:i], "\n")), nil
		}
	}
	return nil, ErrUnterminatedHeader
}

func decodeYAML(data []byte) ([]record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var records []record
		if err := root.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
		return records, nil
	case yaml.MappingNode:
		if list := mappingValue(root, "tasks"); list != nil {
			var records []record
			if err := list.Decode(&records); err != nil {
				return nil, fmt.Errorf("decode tasks: %w", err)
			}
			return records, nil
		}
		var r record
		if err := root.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		return []record{r}, nil
	}
	return nil, fmt.Errorf("expected a task, a list of tasks or a tasks key, got YAML kind %d", root.Kind)
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func decodeJSON(data []byte) ([]record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var records []record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
		return records, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if list, ok := fields["tasks"]; ok {
		var records []record
		if err := json.Unmarshal(list, &records); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
		return records, nil
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return []record{r}, nil
}
