package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tricktime/tricktime/internal/app"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tricktime",
	Short: "TrickTime account provisioning service",
	Long: `Runs the TrickTime provisioning API and its operational helpers:

	tricktime serve
	tricktime migrate up
	tricktime jobs stats
`,
	SilenceUsage: true,
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}
