package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"task-sync/internal/config"
	"task-sync/internal/errors"
	"task-sync/internal/syncer"
)

// PasswordEnv supplies the password when --password is not given.
const PasswordEnv = "TASKS_PASSWORD"

// RootCommand represents the base command when called without any subcommands
type RootCommand struct {
	cmd     *cobra.Command
	config  *config.Config
	open    Opener
	runtime *Runtime
	app     *App

	noticeMu sync.Mutex
	errOut   io.Writer
}

// NewRootCommand creates the root cobra command with global flags. open is
// called once per invocation, after flags have been applied to cfg.
func NewRootCommand(cfg *config.Config, open Opener) *RootCommand {
	if open == nil {
		open = OpenRuntime
	}
	root := &RootCommand{
		config: cfg,
		open:   open,
		errOut: os.Stderr,
	}

	root.cmd = &cobra.Command{
		Use:   "tasks",
		Short: "An encrypted task list that works offline",
		Long: `tasks keeps a personal task list on this device, encrypts the task text with
a key derived from your password, and syncs with a task server when one is
configured. Changes made offline are queued and replayed in order.

EXAMPLES:
  tasks unlock                             # Check the password, create the salt on first use
  tasks add "Buy milk" --priority high     # Add a task at the end of the list
  tasks list                               # Show the list with numbers
  tasks done 2                             # Toggle task 2 completed
  tasks edit 2 "Buy oat milk" --tag shop   # Change text and tags
  tasks rm 3                               # Delete task 3, later tasks move up
  tasks reorder 3 1 2                      # New order, every task listed once
  tasks sync                               # Push queued changes, pull the server list
  tasks status                             # Sync state and pending changes

CONFIGURATION:
  Priority order: command-line flags > environment variables > config file > defaults
  The config file is ~/.tasks/config.yaml, or the path in TASKS_CONFIG.

  Storage:
    TASKS_DB_DIR                           Database directory (default: ~/.tasks)
    TASKS_DB_FILENAME                      Database filename (default: tasks.db)
    TASKS_FALLBACK_DIR                     Degraded-mode directory (default: ~/.tasks/fallback)
    TASKS_REDIS_URL                        Use Redis for degraded mode instead of files
    TASKS_FORCE_DEGRADED                   Skip SQLite (default: false)

  Encryption:
    TASKS_PASSWORD                         Password used to unlock the list
    TASKS_CRYPTO_ITERATIONS                PBKDF2 iterations (default: 100000)

  Server:
    TASKS_REMOTE_URL                       Task server URL (default: none, local only)
    TASKS_TOKEN                            Bearer token for the server
    TASKS_REQUEST_TIMEOUT                  Per-request timeout (default: 10s)

  Sync:
    TASKS_AUTO_SYNC                        Sync after every change (default: true)
    TASKS_BACKOFF_INITIAL                  First retry delay (default: 1s)
    TASKS_BACKOFF_MAX                      Longest retry delay (default: 5m)

  Logging:
    TASKS_LOG_LEVEL                        Log level (default: warn)
    TASKS_LOG_FORMAT                       text or json (default: text)
    TASKS_DEBUG                            Debug output from the storage layer`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return root.setup(cmd)
		},
	}

	root.addGlobalFlags()
	root.addSubcommands()

	return root
}

// Command returns the underlying cobra command.
func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

// Execute runs the root command
func (r *RootCommand) Execute() error {
	return r.ExecuteContext(context.Background())
}

// ExecuteContext runs the root command and releases the runtime afterwards.
func (r *RootCommand) ExecuteContext(ctx context.Context) error {
	err := r.cmd.ExecuteContext(ctx)
	if r.runtime != nil {
		if cerr := r.runtime.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.runtime = nil
	}
	return err
}

// addGlobalFlags adds global configuration flags
func (r *RootCommand) addGlobalFlags() {
	flags := r.cmd.PersistentFlags()

	flags.String("password", "", "Password used to unlock the list (overrides "+PasswordEnv+")")

	// Storage configuration
	flags.String("db-dir", "", "Database directory (overrides TASKS_DB_DIR)")
	flags.String("db-filename", "", "Database filename (overrides TASKS_DB_FILENAME)")
	flags.Bool("force-degraded", false, "Skip SQLite and use the degraded store (overrides TASKS_FORCE_DEGRADED)")

	// Server configuration
	flags.String("remote-url", "", "Task server URL (overrides TASKS_REMOTE_URL)")
	flags.String("token", "", "Bearer token for the server (overrides TASKS_TOKEN)")
	flags.Duration("request-timeout", 0, "Per-request timeout (overrides TASKS_REQUEST_TIMEOUT)")
	flags.Bool("auto-sync", true, "Sync after every change (overrides TASKS_AUTO_SYNC)")

	// Logging configuration
	flags.String("log-level", "", "Log level (overrides TASKS_LOG_LEVEL)")
	flags.String("log-format", "", "Log format, text or json (overrides TASKS_LOG_FORMAT)")

	// Application configuration
	flags.Duration("app-timeout", 0, "Application timeout (overrides TASKS_APP_TIMEOUT)")
	flags.Bool("verbose", false, "Enable verbose output (overrides TASKS_APP_VERBOSE)")
}

// addSubcommands adds all CLI subcommands to the root command
func (r *RootCommand) addSubcommands() {
	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "Check the password against the local tasks",
		Long: `Derive the encryption key from the password and report how many tasks it can read.
The first unlock on a new account creates the salt. To use an account created
on another device, pass the salt printed by "tasks salt" there.

Examples:
  tasks unlock --password secret
  tasks unlock --salt MDEyMzQ1Njc4OWFiY2RlZg==`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()

			handler := NewUnlockCommand(r.app)
			handler.Salt, _ = cmd.Flags().GetString("salt")
			return handler.Execute(ctx, args)
		},
	}
	unlockCmd.Flags().String("salt", "", "Base64 account salt from another device")

	saltCmd := &cobra.Command{
		Use:   "salt",
		Short: "Print the account salt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()
			return NewSaltCommand(r.app).Execute(ctx, args)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add a task at the end of the list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()

			handler := NewAddCommand(r.app)
			handler.Category, _ = cmd.Flags().GetString("category")
			handler.Priority, _ = cmd.Flags().GetString("priority")
			handler.Tags, _ = cmd.Flags().GetStringSlice("tag")
			return handler.Execute(ctx, args)
		},
	}
	addCmd.Flags().StringP("category", "c", "", "Category (default: general)")
	addCmd.Flags().StringP("priority", "p", "", "Priority: low, medium or high (default: medium)")
	addCmd.Flags().StringSliceP("tag", "t", nil, "Tag, may be repeated")

	listCmd := &cobra.Command{
		Use:   "list [text]",
		Short: "List tasks",
		Long: `List tasks in order with the numbers the other commands accept.
Text filters match the task text, category and tags (case-insensitive).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()

			handler := NewListCommand(r.app)
			handler.ShowIDs, _ = cmd.Flags().GetBool("ids")
			handler.Pending, _ = cmd.Flags().GetBool("pending")
			return handler.Execute(ctx, args)
		},
	}
	listCmd.Flags().Bool("ids", false, "Show task ids")
	listCmd.Flags().Bool("pending", false, "Hide completed tasks")

	doneCmd := &cobra.Command{
		Use:   "done <number|id>",
		Short: "Toggle a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()
			return NewDoneCommand(r.app).Execute(ctx, args)
		},
	}

	editCmd := &cobra.Command{
		Use:   "edit <number|id> [new text]",
		Short: "Edit a task",
		Long: `Change the text, category, priority or tags of a task. Fields that are not
given keep their value. --tag replaces all tags; --clear-tags removes them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()

			handler := NewEditCommand(r.app)
			flags := cmd.Flags()
			if flags.Changed("category") {
				category, _ := flags.GetString("category")
				handler.Category = &category
			}
			if flags.Changed("priority") {
				priority, _ := flags.GetString("priority")
				handler.Priority = &priority
			}
			if flags.Changed("tag") {
				tags, _ := flags.GetStringSlice("tag")
				handler.Tags = &tags
			}
			if clear, _ := flags.GetBool("clear-tags"); clear {
				tags := []string{}
				handler.Tags = &tags
			}
			return handler.Execute(ctx, args)
		},
	}
	editCmd.Flags().StringP("category", "c", "", "New category, empty for general")
	editCmd.Flags().StringP("priority", "p", "", "New priority: low, medium or high")
	editCmd.Flags().StringSliceP("tag", "t", nil, "New tags, may be repeated")
	editCmd.Flags().Bool("clear-tags", false, "Remove all tags")
	editCmd.MarkFlagsMutuallyExclusive("tag", "clear-tags")

	rmCmd := &cobra.Command{
		Use:     "rm <number|id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()
			return NewRemoveCommand(r.app).Execute(ctx, args)
		},
	}

	reorderCmd := &cobra.Command{
		Use:   "reorder <number|id>...",
		Short: "Set the order of the whole list",
		Long: `Set a new order by listing every task once, by number or id.

Example:
  tasks reorder 3 1 2        # the third task moves to the top`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()
			return NewReorderCommand(r.app).Execute(ctx, args)
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync with the task server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()
			return NewSyncCommand(r.app).Execute(ctx, args)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.commandContext(cmd)
			defer cancel()
			return NewStatusCommand(r.app).Execute(ctx, args)
		},
	}

	r.cmd.AddCommand(
		unlockCmd,
		saltCmd,
		addCmd,
		listCmd,
		doneCmd,
		editCmd,
		rmCmd,
		reorderCmd,
		syncCmd,
		statusCmd,
	)
}

// setup applies flags, opens the runtime and builds the app for the command
// about to run.
func (r *RootCommand) setup(cmd *cobra.Command) error {
	if err := r.getConfigFromFlags(); err != nil {
		return err
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	r.errOut = cmd.ErrOrStderr()
	rt, err := r.open(cmd.Context(), r.config, r.notify)
	if err != nil {
		return err
	}
	r.runtime = rt

	r.app = NewApp(rt.Coordinator, r.config, cmd.OutOrStdout())
	password, _ := r.cmd.PersistentFlags().GetString("password")
	if password == "" {
		password = os.Getenv(PasswordEnv)
	}
	r.app.SetPassword(password)
	return nil
}

func (r *RootCommand) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), r.getAppTimeout())
}

// notify reports dropped changes. Auth failures already come back as the
// command's error.
func (r *RootCommand) notify(ev syncer.Event) {
	var msg string
	switch ev.Type {
	case syncer.EventConflictDropped:
		msg = fmt.Sprintf("Notice: task %s was deleted on another device, the queued %s was discarded", ev.Mutation.Target, ev.Mutation.Kind)
	case syncer.EventMutationRejected:
		msg = fmt.Sprintf("Notice: the server rejected a queued %s: %s", ev.Mutation.Kind, errors.GetUserMessage(ev.Err))
	default:
		return
	}

	r.noticeMu.Lock()
	defer r.noticeMu.Unlock()
	fmt.Fprintln(r.errOut, msg)
}

// getAppTimeout returns the configured application timeout
func (r *RootCommand) getAppTimeout() time.Duration {
	if r.config != nil && r.config.Application.Timeout > 0 {
		return r.config.Application.Timeout
	}
	return 60 * time.Second
}

// getConfigFromFlags updates the configuration with values from command-line flags
func (r *RootCommand) getConfigFromFlags() error {
	if r.config == nil {
		return fmt.Errorf("configuration not initialized")
	}

	flags := r.cmd.PersistentFlags()

	// Storage configuration
	if dbDir, _ := flags.GetString("db-dir"); dbDir != "" {
		r.config.Storage.Dir = dbDir
	}
	if dbFilename, _ := flags.GetString("db-filename"); dbFilename != "" {
		r.config.Storage.Filename = dbFilename
	}
	if forceDegraded, _ := flags.GetBool("force-degraded"); forceDegraded {
		r.config.Storage.ForceDegraded = true
	}

	// Server configuration
	if remoteURL, _ := flags.GetString("remote-url"); remoteURL != "" {
		r.config.Remote.BaseURL = remoteURL
	}
	if token, _ := flags.GetString("token"); token != "" {
		r.config.Remote.Token = token
	}
	if requestTimeout, _ := flags.GetDuration("request-timeout"); requestTimeout > 0 {
		r.config.Remote.RequestTimeout = requestTimeout
	}
	if flags.Changed("auto-sync") {
		r.config.Sync.AutoSync, _ = flags.GetBool("auto-sync")
	}

	// Logging configuration
	if level, _ := flags.GetString("log-level"); level != "" {
		r.config.Logging.Level = level
	}
	if format, _ := flags.GetString("log-format"); format != "" {
		r.config.Logging.Format = format
	}

	// Application configuration
	if appTimeout, _ := flags.GetDuration("app-timeout"); appTimeout > 0 {
		r.config.Application.Timeout = appTimeout
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		r.config.Application.Verbose = verbose
	}

	return nil
}
