package cli

import (
	"context"
	"fmt"
	"strings"

	"task-sync/internal/domain"
)

// ListCommand handles the list command
type ListCommand struct {
	app     *App
	ShowIDs bool
	Pending bool
}

// NewListCommand creates a new list command handler
func NewListCommand(app *App) *ListCommand {
	return &ListCommand{app: app}
}

// Execute runs the list command. Numbers printed here are the ones the other
// commands accept.
func (c *ListCommand) Execute(ctx context.Context, args []string) error {
	if err := c.app.ensureUnlocked(ctx); err != nil {
		return c.app.errorHandler.Handle("unlock", err)
	}

	tasks, err := c.app.tasks.Tasks(ctx)
	if err != nil {
		return c.app.errorHandler.Handle("list tasks", err)
	}
	filter := strings.ToLower(strings.Join(args, " "))

	shown, locked := 0, 0
	for i, t := range tasks {
		if t.Locked {
			locked++
		}
		if c.Pending && t.Completed {
			continue
		}
		if filter != "" && !matches(t, filter) {
			continue
		}
		shown++
		c.app.printf("%s\n", formatTask(i+1, t, c.ShowIDs))
	}

	if shown == 0 {
		c.app.printf("No tasks found\n")
	}
	if locked > 0 {
		c.app.printf("%d task(s) are locked. Unlock with the password that encrypted them.\n", locked)
	}
	return nil
}

// matches reports whether filter occurs in the text, category or tags.
// Locked tasks only match on their clear fields.
func matches(t domain.TaskView, filter string) bool {
	if strings.Contains(strings.ToLower(t.Text), filter) || strings.Contains(strings.ToLower(t.Category), filter) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), filter) {
			return true
		}
	}
	return false
}

func formatTask(n int, t domain.TaskView, showID bool) string {
	mark := " "
	if t.Completed {
		mark = "x"
	}
	line := fmt.Sprintf("%3d. [%s] %s (%s, %s)", n, mark, t, t.Priority, t.Category)
	for _, tag := range t.Tags {
		line += " #" + tag
	}
	if showID {
		line += "  " + t.ID
	}
	return line
}
