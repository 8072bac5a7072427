package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Task describes one supervised goroutine of the agent.
type Task struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"start_time"`
	Status      TaskStatus `json:"status"`
	Runs        int        `json:"runs,omitempty"`
	Error       string     `json:"error,omitempty"`
	cancel      context.CancelFunc
}

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusStopped  TaskStatus = "stopped"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusCanceled TaskStatus = "canceled"
)

// TaskFunc is a function that runs as a background task
type TaskFunc func(ctx context.Context) error

// TaskManager runs the agent's background tasks (status server, session
// keeper, config watcher) and tears them down together.
type TaskManager struct {
	tasks  map[string]*Task
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskManager creates a new task manager
func NewTaskManager(ctx context.Context) *TaskManager {
	ctx, cancel := context.WithCancel(ctx)
	return &TaskManager{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs fn in its own goroutine under a child context. Names are unique
// for the manager's lifetime.
func (tm *TaskManager) Start(name, description string, fn TaskFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.ctx.Err() != nil {
		return fmt.Errorf("task %s: manager stopped", name)
	}
	if _, exists := tm.tasks[name]; exists {
		return fmt.Errorf("task %s already exists", name)
	}

	taskCtx, taskCancel := context.WithCancel(tm.ctx)
	task := &Task{
		Name:        name,
		Description: description,
		StartTime:   time.Now(),
		Status:      TaskStatusRunning,
		cancel:      taskCancel,
	}
	tm.tasks[name] = task

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer taskCancel()
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{"task": name, "panic": r}).Error("task panicked")
				tm.finish(task, TaskStatusFailed, fmt.Errorf("panic: %v", r))
			}
		}()

		log.WithFields(log.Fields{"task": name, "description": description}).Info("task started")

		err := fn(taskCtx)
		switch {
		case err != nil && taskCtx.Err() != nil && errors.Is(err, context.Canceled):
			tm.finish(task, TaskStatusCanceled, nil)
		case err != nil:
			log.WithError(err).WithField("task", name).Error("task failed")
			tm.finish(task, TaskStatusFailed, err)
		default:
			log.WithField("task", name).Info("task stopped")
			tm.finish(task, TaskStatusStopped, nil)
		}
	}()

	return nil
}

func (tm *TaskManager) finish(task *Task, status TaskStatus, err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	task.Status = status
	if err != nil {
		task.Error = err.Error()
	}
}

// StartPeriodic runs fn immediately and then every interval until stopped.
// Failures of a single run are logged and do not end the task.
func (tm *TaskManager) StartPeriodic(name, description string, interval time.Duration, fn TaskFunc) error {
	return tm.Start(name, description, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("task", name).Warn("periodic task run failed")
			}
			tm.mu.Lock()
			if task, ok := tm.tasks[name]; ok {
				task.Runs++
			}
			tm.mu.Unlock()

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// Stop cancels a single running task.
func (tm *TaskManager) Stop(name string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, exists := tm.tasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}
	if task.Status != TaskStatusRunning {
		return fmt.Errorf("task %s is not running", name)
	}
	task.cancel()
	return nil
}

// StopAll stops all running tasks
func (tm *TaskManager) StopAll() {
	tm.cancel()
}

// Wait waits for all tasks to complete
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

// Shutdown cancels every task and waits for them until ctx expires.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.StopAll()
	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}

// GetTask returns a copy of the named task.
func (tm *TaskManager) GetTask(name string) (*Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, exists := tm.tasks[name]
	if !exists {
		return nil, fmt.Errorf("task %s not found", name)
	}
	cp := *task
	cp.cancel = nil
	return &cp, nil
}

// ListTasks returns copies of all tasks ordered by name.
func (tm *TaskManager) ListTasks() []Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tasks := make([]Task, 0, len(tm.tasks))
	for _, task := range tm.tasks {
		cp := *task
		cp.cancel = nil
		tasks = append(tasks, cp)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

// TaskStats contains statistics about tasks
type TaskStats struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Stopped  int `json:"stopped"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}

// GetStats returns statistics about tasks
func (tm *TaskManager) GetStats() TaskStats {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	stats := TaskStats{Total: len(tm.tasks)}
	for _, task := range tm.tasks {
		switch task.Status {
		case TaskStatusRunning:
			stats.Running++
		case TaskStatusStopped:
			stats.Stopped++
		case TaskStatusFailed:
			stats.Failed++
		case TaskStatusCanceled:
			stats.Canceled++
		}
	}
	return stats
}
