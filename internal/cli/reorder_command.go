package cli

import (
	"context"

	"task-sync/internal/errors"
)

// ReorderCommand handles the reorder command. It takes the complete new
// order; moving a single task means listing every task.
type ReorderCommand struct {
	app *App
}

// NewReorderCommand creates a new reorder command handler
func NewReorderCommand(app *App) *ReorderCommand {
	return &ReorderCommand{app: app}
}

// Execute runs the reorder command
func (c *ReorderCommand) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.NewInvalidInputError("command", "reorder", "usage: tasks reorder <number|id>...")
	}
	if err := c.app.ensureUnlocked(ctx); err != nil {
		return c.app.errorHandler.Handle("unlock", err)
	}

	// Resolve every reference against the list as it is now, before anything moves.
	ids := make([]string, len(args))
	for i, ref := range args {
		task, err := c.app.resolve(ctx, ref)
		if err != nil {
			return c.app.errorHandler.Handle("find task", err)
		}
		ids[i] = task.ID
	}

	if err := c.app.tasks.ReorderTasks(ctx, ids); err != nil {
		return c.app.errorHandler.Handle("reorder tasks", err)
	}

	c.app.printf("Reordered %d tasks\n", len(ids))
	c.app.afterWrite(ctx)
	return nil
}
