package cli

import (
	"context"
	"strings"

	"task-sync/internal/errors"
	"task-sync/internal/syncer"
)

// EditCommand handles the edit command. Only the fields that were given
// are changed.
type EditCommand struct {
	app      *App
	Text     *string
	Category *string
	Priority *string
	Tags     *[]string
}

// NewEditCommand creates a new edit command handler
func NewEditCommand(app *App) *EditCommand {
	return &EditCommand{app: app}
}

// Execute runs the edit command. Words after the task reference replace the
// task text.
func (c *EditCommand) Execute(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.NewInvalidInputError("command", "edit", "usage: tasks edit <number|id> [new text] [flags]")
	}
	upd := syncer.TaskUpdate{
		Text:     c.Text,
		Category: c.Category,
		Priority: c.Priority,
		Tags:     c.Tags,
	}
	if len(args) > 1 {
		text := strings.Join(args[1:], " ")
		upd.Text = &text
	}

	if err := c.app.ensureUnlocked(ctx); err != nil {
		return c.app.errorHandler.Handle("unlock", err)
	}
	target, err := c.app.resolve(ctx, args[0])
	if err != nil {
		return c.app.errorHandler.Handle("find task", err)
	}
	task, err := c.app.tasks.UpdateTask(ctx, target.ID, upd)
	if err != nil {
		return c.app.errorHandler.Handle("edit task", err)
	}

	c.app.printf("Updated task: %s\n", task)
	c.app.afterWrite(ctx)
	return nil
}
