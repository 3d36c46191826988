package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"task-sync/internal/config"
	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/syncer"
)

// TaskService is the part of the sync coordinator the commands drive.
type TaskService interface {
	Unlock(ctx context.Context, password string) error
	ImportSalt(ctx context.Context, salt string) error
	Salt(ctx context.Context) (string, bool, error)
	Unlocked() bool

	Tasks(ctx context.Context) ([]domain.TaskView, error)
	AddTask(ctx context.Context, in syncer.NewTask) (domain.TaskView, error)
	UpdateTask(ctx context.Context, id string, upd syncer.TaskUpdate) (domain.TaskView, error)
	ToggleTask(ctx context.Context, id string) (domain.TaskView, error)
	DeleteTask(ctx context.Context, id string) error
	ReorderTasks(ctx context.Context, ids []string) error

	Sync(ctx context.Context) error
	ResumeAuth(ctx context.Context) error
	Status(ctx context.Context) (syncer.Status, error)
}

var _ TaskService = (*syncer.Coordinator)(nil)

// App represents the main CLI application
type App struct {
	tasks        TaskService
	config       *config.Config
	out          io.Writer
	password     string
	errorHandler *ErrorHandler
}

// NewApp creates a new CLI application instance with dependency injection.
// A nil writer means stdout.
func NewApp(tasks TaskService, cfg *config.Config, out io.Writer) *App {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if out == nil {
		out = os.Stdout
	}
	return &App{
		tasks:        tasks,
		config:       cfg,
		out:          out,
		errorHandler: NewErrorHandler(),
	}
}

// SetPassword sets the password used to unlock the task list on demand.
func (a *App) SetPassword(password string) {
	a.password = password
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

// ensureUnlocked derives the key if a password is known and the list is
// still locked. Without a password it does nothing and the coordinator
// reports the locked state itself.
func (a *App) ensureUnlocked(ctx context.Context) error {
	if a.password == "" || a.tasks.Unlocked() {
		return nil
	}
	return a.tasks.Unlock(ctx, a.password)
}

// afterWrite pushes a local change when a server is configured. The change
// is already durable, so a failed sync is reported but is not an error.
func (a *App) afterWrite(ctx context.Context) {
	if !a.config.RemoteEnabled() || !a.config.Sync.AutoSync {
		return
	}
	if err := a.tasks.Sync(ctx); err != nil {
		a.printf("Saved locally, not synced yet: %s\n", a.errorHandler.HandleSimple(err))
	}
}

// resolve finds a task by its 1-based list number or by id.
func (a *App) resolve(ctx context.Context, ref string) (domain.TaskView, error) {
	tasks, err := a.tasks.Tasks(ctx)
	if err != nil {
		return domain.TaskView{}, err
	}
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(tasks) {
		return tasks[n-1], nil
	}
	for _, t := range tasks {
		if t.ID == ref {
			return t, nil
		}
	}
	return domain.TaskView{}, errors.NewNotFoundError("task", ref)
}
