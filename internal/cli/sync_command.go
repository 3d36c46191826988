package cli

import (
	"context"

	"task-sync/internal/errors"
)

// SyncCommand handles the sync command
type SyncCommand struct {
	app *App
}

// NewSyncCommand creates a new sync command handler
func NewSyncCommand(app *App) *SyncCommand {
	return &SyncCommand{app: app}
}

// Execute pushes queued changes and pulls the server's list.
func (c *SyncCommand) Execute(ctx context.Context, args []string) error {
	if !c.app.config.RemoteEnabled() {
		return errors.NewInvalidInputError("remote.base_url", "", "no server configured, set TASKS_REMOTE_URL or --remote-url")
	}

	if err := c.app.tasks.ResumeAuth(ctx); err != nil {
		return c.app.errorHandler.Handle("sync", err)
	}

	status, err := c.app.tasks.Status(ctx)
	if err != nil {
		return c.app.errorHandler.Handle("read sync status", err)
	}
	c.app.printf("Synced, %d change(s) pending\n", status.Pending)
	return nil
}
