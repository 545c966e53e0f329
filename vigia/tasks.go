package vigia

import (
	"fmt"
	"sync"
	"time"

	"github.com/andaqua/sisswatch/idgen"
)

// Task priorities and states.
const (
	PriorityBaja    = "baja"
	PriorityMedia   = "media"
	PriorityAlta    = "alta"
	PriorityCritica = "critica"

	TaskPending   = "pendiente"
	TaskCompleted = "completado"
)

var validPriorities = map[string]bool{
	PriorityBaja:    true,
	PriorityMedia:   true,
	PriorityAlta:    true,
	PriorityCritica: true,
}

// Task is one operator work item.
type Task struct {
	ID          string         `json:"id"`
	Description string         `json:"descripcion"`
	Priority    string         `json:"prioridad"`
	State       string         `json:"estado"`
	CreatedAt   string         `json:"fecha_creacion"`
	CompletedAt string         `json:"fecha_completado,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStats summarizes the task list.
type TaskStats struct {
	Total      int            `json:"total"`
	Pending    int            `json:"pendientes"`
	Completed  int            `json:"completadas"`
	ByPriority map[string]int `json:"por_prioridad"`
}

// TaskList is the in-memory operator task list exposed on the admin API.
// Guarded by a mutex since the HTTP handlers run concurrently.
type TaskList struct {
	mu    sync.Mutex
	tasks []*Task
	newID idgen.Generator
	now   func() time.Time
}

// NewTaskList creates an empty task list.
func NewTaskList() *TaskList {
	return &TaskList{newID: idgen.Default, now: time.Now}
}

// Add creates a task. Priority must be one of baja, media, alta, critica.
func (l *TaskList) Add(description, priority string, metadata map[string]any) (*Task, error) {
	if priority == "" {
		priority = PriorityMedia
	}
	if !validPriorities[priority] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t := &Task{
		ID:          l.newID(),
		Description: description,
		Priority:    priority,
		State:       TaskPending,
		CreatedAt:   l.now().Format(time.RFC3339),
		Metadata:    metadata,
	}
	l.tasks = append(l.tasks, t)
	out := *t
	return &out, nil
}

// List returns tasks matching the optional state and priority filters, in
// creation order. Empty filters match everything.
func (l *TaskList) List(state, priority string) []Task {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Task, 0, len(l.tasks))
	for _, t := range l.tasks {
		if state != "" && t.State != state {
			continue
		}
		if priority != "" && t.Priority != priority {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// Complete marks a task as completed. Returns false when no task has the
// given ID.
func (l *TaskList) Complete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range l.tasks {
		if t.ID == id {
			t.State = TaskCompleted
			t.CompletedAt = l.now().Format(time.RFC3339)
			return true
		}
	}
	return false
}

// Stats counts tasks by state and priority.
func (l *TaskList) Stats() TaskStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := TaskStats{
		Total: len(l.tasks),
		ByPriority: map[string]int{
			PriorityBaja: 0, PriorityMedia: 0, PriorityAlta: 0, PriorityCritica: 0,
		},
	}
	for _, t := range l.tasks {
		switch t.State {
		case TaskPending:
			s.Pending++
		case TaskCompleted:
			s.Completed++
		}
		s.ByPriority[t.Priority]++
	}
	return s
}
