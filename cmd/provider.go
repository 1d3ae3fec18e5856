package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
	"github.com/quocvuong92/osram-cli/internal/display"
)

func (app *App) newProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "List, inspect and switch AI providers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List supported providers and their configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rows := make([][]string, 0, len(constants.ProviderIDs))
			for _, id := range constants.ProviderIDs {
				pc := app.cfg.Providers[id]
				current := ""
				if id == app.cfg.CurrentProvider {
					current = "*"
				}
				key := "missing"
				if pc.APIKey != "" {
					key = "set"
				}
				rows = append(rows, []string{current, id, pc.Model, endpointHost(pc.EndpointTemplate), key})
			}
			display.ShowTable([]string{"", "Provider", "Model", "Endpoint", "API key"}, rows)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Show the current provider and model",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pc := app.cfg.Providers[app.cfg.CurrentProvider]
			fmt.Fprintf(display.Stdout, "%s (%s)\n", app.cfg.CurrentProvider, pc.Model)
		},
	})

	var model string
	use := &cobra.Command{
		Use:   "use <provider>",
		Short: "Make a provider the default, optionally setting its model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.ToLower(args[0])
			fc, _, err := config.LoadConfigFile(app.configPath)
			if err != nil {
				return err
			}
			if err := fc.Set("current_provider", id); err != nil {
				return err
			}
			if model != "" {
				if !config.ValidateModel(id, model) {
					display.ShowWarning(fmt.Sprintf("%s is not a known %s model", model, id))
				}
				if err := fc.Set("providers."+id+".model", model); err != nil {
					return err
				}
			}
			if err := config.SaveConfigFile(app.configPath, fc); err != nil {
				return err
			}
			display.ShowSuccess(fmt.Sprintf("Current provider: %s (%s)", id, fc.Providers[id].Model))
			if fc.Providers[id].APIKey == "" && app.cfg.Providers[id].APIKey == "" {
				display.ShowMuted(fmt.Sprintf("No API key yet. Set %s or run 'osram config set providers.%s.api_key <key>'", config.APIKeyEnv(id), id))
			}
			return nil
		},
	}
	use.Flags().StringVarP(&model, "model", "m", "", "Model to use with the provider")
	cmd.AddCommand(use)

	cmd.AddCommand(&cobra.Command{
		Use:   "models [provider]",
		Short: "List the known models of a provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := app.cfg.CurrentProvider
			if len(args) == 1 {
				id = strings.ToLower(args[0])
			}
			if !config.IsKnownProvider(id) {
				return &config.ConfigurationError{Field: "provider", Err: fmt.Errorf("%w: %q", config.ErrUnknownProvider, id)}
			}
			display.ShowModels(config.AvailableModels(id), app.cfg.Providers[id].Model)
			return nil
		},
	})

	return cmd
}

// endpointHost shortens an endpoint template to its host for listings
func endpointHost(tmpl string) string {
	u, err := url.Parse(tmpl)
	if err != nil || u.Host == "" {
		return tmpl
	}
	return u.Host
}
