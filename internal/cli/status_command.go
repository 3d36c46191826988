package cli

import (
	"context"
	"time"
)

// StatusCommand handles the status command
type StatusCommand struct {
	app *App
}

// NewStatusCommand creates a new status command handler
func NewStatusCommand(app *App) *StatusCommand {
	return &StatusCommand{app: app}
}

// Execute prints the local store and sync status.
func (c *StatusCommand) Execute(ctx context.Context, args []string) error {
	if err := c.app.ensureUnlocked(ctx); err != nil {
		return c.app.errorHandler.Handle("unlock", err)
	}
	status, err := c.app.tasks.Status(ctx)
	if err != nil {
		return c.app.errorHandler.Handle("read status", err)
	}

	remoteURL := c.app.config.Remote.BaseURL
	if remoteURL == "" {
		remoteURL = "none (local only)"
	}
	lastSync := "never"
	if !status.LastSync.IsZero() {
		lastSync = status.LastSync.Local().Format(time.DateTime)
	}
	storage := status.Backend
	if status.Degraded {
		storage += " (degraded, batch writes are not atomic)"
	}

	c.app.printf("State:     %s\n", status.State)
	c.app.printf("Server:    %s\n", remoteURL)
	c.app.printf("Storage:   %s\n", storage)
	c.app.printf("Unlocked:  %t\n", status.Unlocked)
	c.app.printf("Pending:   %d\n", status.Pending)
	c.app.printf("Last sync: %s\n", lastSync)
	if status.AuthRequired {
		c.app.printf("Sign in again to resume syncing.\n")
	}
	return nil
}
