package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/fsops"
	"github.com/quocvuong92/osram-cli/internal/logging"
	"github.com/quocvuong92/osram-cli/internal/provider"
	"github.com/quocvuong92/osram-cli/internal/store"
)

// annotationNoConfig marks commands that must work with a missing or broken
// config file (config path/edit/set/reset).
const annotationNoConfig = "osram.noconfig"

// App holds the application state
type App struct {
	cfg        config.Config
	configPath string
	dbPath     string
	verbose    bool
	assumeYes  bool
	sessionID  string

	store      *store.Store
	fs         *fsops.Ops
	httpClient *http.Client // nil uses the provider default
}

// NewApp creates a new App with a fresh session id
func NewApp() *App {
	return &App{
		sessionID: uuid.NewString(),
		fs:        fsops.NewOS(),
	}
}

// Execute runs the root command and exits 1 on error
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := NewApp()
	err := app.RootCmd().ExecuteContext(ctx)
	app.Close()
	stop()

	if err != nil {
		if !errors.Is(err, errSilent) {
			display.ShowError(err.Error())
		}
		os.Exit(1)
	}
}

// errSilent signals failure after the command already reported it
var errSilent = errors.New("command failed")

// RootCmd builds the command tree bound to app
func (app *App) RootCmd() *cobra.Command {
	chat := &chatOptions{}

	rootCmd := &cobra.Command{
		Use:   "osram [prompt]",
		Short: "A command-line assistant for AI providers and local projects",
		Long: `osram forwards prompts to Zhipu (zai), Anthropic (claude), Google Gemini or
OpenAI, analyzes local projects, and wraps filesystem and git operations.

Examples:
  osram                                  # Interactive mode
  osram chat "Explain goroutines"
  osram chat -p claude -s "Write a haiku about Go"
  osram provider use gemini --model gemini-2.5-pro
  osram analyze ./myproject
  osram fs diff a.txt b.txt`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return app.runChat(cmd.Context(), chat, args)
			}
			return app.runInteractive(cmd.Context(), chat)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&app.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&app.configPath, "config", "", "Config file (default: $OSRAM_CONFIG or ~/"+config.ConfigFileName+")")
	pf.StringVar(&app.dbPath, "db", "", "Local store database (default: $OSRAM_DB_PATH or $XDG_DATA_HOME/osram/osram.db)")
	chat.bind(rootCmd)

	rootCmd.AddCommand(
		app.newChatCmd(),
		app.newProviderCmd(),
		app.newConfigCmd(),
		app.newAnalyzeCmd(),
		app.newReportCmd(),
		app.newFsCmd(),
		app.newRunCmd(),
		app.newGitCmd(),
		app.newLogCmd(),
		app.newCacheCmd(),
		app.newStoreCmd(),
	)

	return rootCmd
}

// setup loads configuration and configures logging before any command runs
func (app *App) setup(cmd *cobra.Command) error {
	if app.configPath == "" {
		path, err := config.GetConfigPath()
		if err != nil {
			return &config.ConfigurationError{Field: "file", Err: err}
		}
		app.configPath = path
	}

	if cmd.Annotations[annotationNoConfig] == "true" {
		logging.Configure(os.Getenv(config.EnvLogLevel), app.verbose)
		return nil
	}

	cfg, err := config.LoadFrom(app.configPath, os.Getenv)
	if err != nil {
		return err
	}
	app.cfg = cfg
	logging.Configure(cfg.LogLevel, app.verbose)
	logging.Debug("configuration loaded", logging.Fields{
		"path":     cfg.Path,
		"provider": cfg.CurrentProvider,
		"session":  app.sessionID,
	})
	return nil
}

// openStore opens the local store on first use
func (app *App) openStore(ctx context.Context) (*store.Store, error) {
	if app.store != nil {
		return app.store, nil
	}
	path := app.dbPath
	if path == "" {
		path = store.DefaultPath()
	}
	s, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	app.store = s
	return s, nil
}

// Close releases the store
func (app *App) Close() {
	if app.store == nil {
		return
	}
	if err := app.store.Close(); err != nil {
		logging.Warn("failed to close store", logging.Fields{"error": err.Error()})
	}
	app.store = nil
}

// newClient builds a provider client for cfg's current provider
func (app *App) newClient(cfg config.Config) (provider.ProviderClient, error) {
	var opts []provider.Option
	if app.httpClient != nil {
		opts = append(opts, provider.WithHTTPClient(app.httpClient))
	}
	if app.verbose {
		opts = append(opts, provider.WithLogger(logging.DefaultLogger))
	}
	return provider.NewFromConfig(cfg, opts...)
}

// logOperation appends to the operations log when log_operations is on. A
// failed append is reported but does not fail the operation itself.
func (app *App) logOperation(ctx context.Context, operation, path, status, details string) {
	if !app.cfg.LogOperations {
		return
	}
	s, err := app.openStore(ctx)
	if err == nil {
		_, err = s.Operations().Append(ctx, store.OperationRecord{
			SessionID: app.sessionID,
			Operation: operation,
			Path:      path,
			Status:    status,
			Details:   details,
		})
	}
	if err != nil {
		display.ShowWarning("could not record operation: " + err.Error())
	}
}

// statusOf maps an operation error to an operations log status
func statusOf(err error) string {
	if err != nil {
		return store.StatusFailed
	}
	return store.StatusSuccess
}

// confirm asks question unless --yes, auto_approve_file_operations or
// user_preferences.confirm_destructive=false says not to
func (app *App) confirm(question string) bool {
	if app.assumeYes || app.cfg.AutoApproveFileOperations || !app.cfg.ConfirmDestructive {
		return true
	}
	return display.Confirm(question)
}
