package cli

import (
	"context"

	"task-sync/internal/errors"
)

// RemoveCommand handles the rm command
type RemoveCommand struct {
	app *App
}

// NewRemoveCommand creates a new rm command handler
func NewRemoveCommand(app *App) *RemoveCommand {
	return &RemoveCommand{app: app}
}

// Execute runs the rm command. The tasks after the removed one move up.
func (c *RemoveCommand) Execute(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.NewInvalidInputError("command", "rm", "usage: tasks rm <number|id>")
	}
	if err := c.app.ensureUnlocked(ctx); err != nil {
		return c.app.errorHandler.Handle("unlock", err)
	}

	target, err := c.app.resolve(ctx, args[0])
	if err != nil {
		return c.app.errorHandler.Handle("find task", err)
	}
	if err := c.app.tasks.DeleteTask(ctx, target.ID); err != nil {
		return c.app.errorHandler.Handle("delete task", err)
	}

	c.app.printf("Deleted task: %s\n", target)
	c.app.afterWrite(ctx)
	return nil
}
