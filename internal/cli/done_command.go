package cli

import (
	"context"

	"task-sync/internal/errors"
)

// DoneCommand handles the done command. Running it on a completed task
// reopens it.
type DoneCommand struct {
	app *App
}

// NewDoneCommand creates a new done command handler
func NewDoneCommand(app *App) *DoneCommand {
	return &DoneCommand{app: app}
}

// Execute runs the done command
func (c *DoneCommand) Execute(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.NewInvalidInputError("command", "done", "usage: tasks done <number|id>")
	}
	if err := c.app.ensureUnlocked(ctx); err != nil {
		return c.app.errorHandler.Handle("unlock", err)
	}

	target, err := c.app.resolve(ctx, args[0])
	if err != nil {
		return c.app.errorHandler.Handle("find task", err)
	}
	task, err := c.app.tasks.ToggleTask(ctx, target.ID)
	if err != nil {
		return c.app.errorHandler.Handle("update task", err)
	}

	if task.Completed {
		c.app.printf("Completed: %s\n", task)
	} else {
		c.app.printf("Reopened: %s\n", task)
	}
	c.app.afterWrite(ctx)
	return nil
}
