package cli

import (
	"context"
	"strings"

	"task-sync/internal/errors"
	"task-sync/internal/syncer"
)

// AddCommand handles the add command
type AddCommand struct {
	app      *App
	Category string
	Priority string
	Tags     []string
}

// NewAddCommand creates a new add command handler
func NewAddCommand(app *App) *AddCommand {
	return &AddCommand{app: app}
}

// Execute runs the add command
func (c *AddCommand) Execute(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.NewInvalidInputError("command", "add", "usage: tasks add \"your text here\"")
	}
	if err := c.app.ensureUnlocked(ctx); err != nil {
		return c.app.errorHandler.Handle("unlock", err)
	}

	task, err := c.app.tasks.AddTask(ctx, syncer.NewTask{
		Text:     strings.Join(args, " "),
		Category: c.Category,
		Priority: c.Priority,
		Tags:     c.Tags,
	})
	if err != nil {
		return c.app.errorHandler.Handle("add task", err)
	}

	c.app.printf("Added task: %s\n", task)
	c.app.afterWrite(ctx)
	return nil
}
