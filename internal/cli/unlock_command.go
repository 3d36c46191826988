package cli

import (
	"context"

	"task-sync/internal/errors"
)

// UnlockCommand checks a password against the local tasks. With a salt it
// first adopts the salt of an account created on another device.
type UnlockCommand struct {
	app  *App
	Salt string
}

// NewUnlockCommand creates a new unlock command handler
func NewUnlockCommand(app *App) *UnlockCommand {
	return &UnlockCommand{app: app}
}

// Execute runs the unlock command
func (c *UnlockCommand) Execute(ctx context.Context, args []string) error {
	if c.app.password == "" {
		return errors.NewInvalidInputError("password", nil, "password is required, pass --password or set "+PasswordEnv)
	}
	if c.Salt != "" {
		if err := c.app.tasks.ImportSalt(ctx, c.Salt); err != nil {
			return c.app.errorHandler.Handle("import salt", err)
		}
	}
	if err := c.app.tasks.Unlock(ctx, c.app.password); err != nil {
		return c.app.errorHandler.Handle("unlock", err)
	}

	tasks, err := c.app.tasks.Tasks(ctx)
	if err != nil {
		return c.app.errorHandler.Handle("list tasks", err)
	}
	locked := 0
	for _, t := range tasks {
		if t.Locked {
			locked++
		}
	}

	c.app.printf("Unlocked, %d of %d task(s) readable\n", len(tasks)-locked, len(tasks))
	if locked > 0 {
		c.app.printf("%d task(s) were encrypted with a different password\n", locked)
	}
	return nil
}

// SaltCommand prints the account salt so other devices can import it.
type SaltCommand struct {
	app *App
}

// NewSaltCommand creates a new salt command handler
func NewSaltCommand(app *App) *SaltCommand {
	return &SaltCommand{app: app}
}

// Execute runs the salt command
func (c *SaltCommand) Execute(ctx context.Context, args []string) error {
	salt, ok, err := c.app.tasks.Salt(ctx)
	if err != nil {
		return c.app.errorHandler.Handle("read salt", err)
	}
	if !ok {
		c.app.printf("No salt yet. Run unlock to create one.\n")
		return nil
	}
	c.app.printf("%s\n", salt)
	return nil
}
