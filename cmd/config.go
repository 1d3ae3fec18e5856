package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
	"github.com/quocvuong92/osram-cli/internal/display"
)

func (app *App) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit the configuration file",
	}
	noConfig := map[string]string{annotationNoConfig: "true"}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration (API keys masked)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			display.ShowTable([]string{"Setting", "Value"}, configRows(app.cfg))
			if config.HasEnvOverrides(os.Environ()) {
				display.ShowMuted("Some values come from OSRAM_* environment variables.")
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file path",
		Args:        cobra.NoArgs,
		Annotations: noConfig,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(display.Stdout, app.configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "edit",
		Short:       "Open the configuration file in $EDITOR",
		Args:        cobra.NoArgs,
		Annotations: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Make sure the file exists before handing it to the editor
			if _, _, err := config.LoadConfigFile(app.configPath); err != nil && !config.IsConfigurationError(err) {
				return err
			}
			return openEditor(app.configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one setting, e.g. temperature 0.2 or providers.claude.api_key sk-...",
		Example: `  osram config set current_provider gemini
  osram config set providers.openai.model gpt-4o
  osram config set user_preferences.theme light`,
		Args:        cobra.ExactArgs(2),
		Annotations: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, _, err := config.LoadConfigFile(app.configPath)
			if err != nil {
				return err
			}
			if err := fc.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.SaveConfigFile(app.configPath, fc); err != nil {
				return err
			}
			display.ShowSuccess(fmt.Sprintf("%s updated", args[0]))
			return nil
		},
	})

	var resetStore bool
	reset := &cobra.Command{
		Use:         "reset",
		Short:       "Overwrite the configuration file with defaults and clear the local store",
		Args:        cobra.NoArgs,
		Annotations: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := "Reset " + app.configPath + " to defaults? API keys will be removed."
			if resetStore {
				question = "Reset " + app.configPath + " to defaults and erase the local store? API keys will be removed."
			}
			if !app.assumeYes && !display.Confirm(question) {
				fmt.Fprintln(display.Stdout, "Cancelled.")
				return nil
			}
			if _, err := config.ResetConfigFile(app.configPath); err != nil {
				return err
			}
			display.ShowSuccess("Configuration reset to defaults")

			if !resetStore {
				return nil
			}
			s, err := app.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Reset(cmd.Context()); err != nil {
				return err
			}
			display.ShowSuccess("Local store reset")
			return nil
		},
	}
	reset.Flags().BoolVarP(&app.assumeYes, "yes", "y", false, "Do not ask for confirmation")
	reset.Flags().BoolVar(&resetStore, "store", true, "Also drop and recreate the cache, operations log and analysis tables")
	cmd.AddCommand(reset)

	return cmd
}

func configRows(cfg config.Config) [][]string {
	rows := [][]string{
		{"file", cfg.Path},
		{"current_provider", cfg.CurrentProvider},
	}
	for _, id := range constants.ProviderIDs {
		pc, ok := cfg.Providers[id]
		if !ok {
			continue
		}
		rows = append(rows,
			[]string{"providers." + id + ".model", pc.Model},
			[]string{"providers." + id + ".api_key", maskKey(pc.APIKey)},
			[]string{"providers." + id + ".endpoint", pc.EndpointTemplate},
		)
	}
	rows = append(rows,
		[]string{"temperature", strconv.FormatFloat(cfg.Temperature, 'g', -1, 64)},
		[]string{"max_tokens", strconv.Itoa(cfg.MaxTokens)},
		[]string{"timeout", cfg.Timeout.String()},
		[]string{"save_history", strconv.FormatBool(cfg.SaveHistory)},
		[]string{"history_file", cfg.HistoryFile},
		[]string{"history_per_directory", strconv.FormatBool(cfg.HistoryPerDirectory)},
		[]string{"auto_approve_file_operations", strconv.FormatBool(cfg.AutoApproveFileOperations)},
		[]string{"persistent_analysis", strconv.FormatBool(cfg.PersistentAnalysis)},
		[]string{"enable_git_integration", strconv.FormatBool(cfg.EnableGitIntegration)},
		[]string{"enable_streaming", strconv.FormatBool(cfg.EnableStreaming)},
		[]string{"cache_responses", strconv.FormatBool(cfg.CacheResponses)},
		[]string{"cache_ttl", cfg.CacheTTL.String()},
		[]string{"log_operations", strconv.FormatBool(cfg.LogOperations)},
		[]string{"log_level", cfg.LogLevel},
		[]string{"user_preferences.theme", cfg.Theme},
		[]string{"user_preferences.confirm_destructive", strconv.FormatBool(cfg.ConfirmDestructive)},
	)
	return rows
}

// maskKey keeps the last four characters of a credential
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}

// openEditor runs $VISUAL or $EDITOR on path attached to the terminal
func openEditor(path string) error {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
		if runtime.GOOS == "windows" {
			editor = "notepad"
		}
	}

	c := exec.Command(editor, path)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("editor %s exited with status %d", editor, exitErr.ExitCode())
		}
		return fmt.Errorf("failed to start editor %s: %w", editor, err)
	}
	return nil
}
