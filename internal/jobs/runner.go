package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"marketcache/internal/logger"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Func is the body of a periodic task.
type Func func(ctx context.Context) error

// Task represents a registered periodic task
type Task struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval"`
	LastRunTime time.Time     `json:"last_run_time"`
	NextRunTime time.Time     `json:"next_run_time"`
	Runs        int64         `json:"runs"`
	Status      TaskStatus    `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// Runner runs named tasks on fixed intervals. An execution that overlaps the
// previous one is skipped, and a panicking task is recovered and logged.
type Runner struct {
	cron    *cron.Cron
	tasks   map[string]*Task
	fns     map[string]Func
	entries map[string]cron.EntryID
	ctx     context.Context
	log     logger.Logger
	mu      sync.RWMutex
}

// NewRunner creates a runner. A nil log uses the global logger.
func NewRunner(log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	cl := cronLogger{log: log.WithField("component", "jobs")}
	return &Runner{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		tasks:   make(map[string]*Task),
		fns:     make(map[string]Func),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
		log:     log,
	}
}

// Every registers fn to run every interval. Intervals under one second round up to one second.
func (r *Runner) Every(name string, interval time.Duration, fn Func) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("task already registered: %s", name)
	}

	task := &Task{
		Name:     name,
		Interval: interval,
		Status:   TaskStatusPending,
	}
	r.tasks[name] = task
	r.fns[name] = fn
	r.entries[name] = r.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		r.runTask(r.baseContext(), task, fn)
	}))
	return nil
}

// Remove unregisters a task. A running execution finishes normally.
func (r *Runner) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.entries[name]; ok {
		r.cron.Remove(id)
	}
	delete(r.entries, name)
	delete(r.tasks, name)
	delete(r.fns, name)
}

// Start starts the runner. Task executions receive ctx.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	r.cron.Start()
}

// Stop prevents future executions without interrupting running ones. The
// returned context is done once running executions have finished.
func (r *Runner) Stop() context.Context {
	return r.cron.Stop()
}

// RunNow executes a registered task synchronously, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.RLock()
	task, ok := r.tasks[name]
	fn := r.fns[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task not found: %s", name)
	}
	return r.runTask(ctx, task, fn)
}

func (r *Runner) baseContext() context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctx
}

// runTask executes a task and records its outcome. Errors are logged, never propagated to cron.
func (r *Runner) runTask(ctx context.Context, task *Task, fn Func) error {
	r.mu.Lock()
	task.Status = TaskStatusRunning
	task.LastRunTime = time.Now()
	task.Runs++
	r.mu.Unlock()

	err := fn(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.entries[task.Name]; ok {
		task.NextRunTime = r.cron.Entry(id).Next
	}
	if err != nil {
		task.Status = TaskStatusFailed
		task.Error = err.Error()
		r.log.Warn("Scheduled task failed", "task", task.Name, "error", err)
	} else {
		task.Status = TaskStatusCompleted
		task.Error = ""
	}
	return err
}

// GetTask returns a copy of the named task.
func (r *Runner) GetTask(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[name]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// ListTasks returns copies of all tasks ordered by name.
func (r *Runner) ListTasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
