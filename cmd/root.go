// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/observability"
)

var cfgFile string

// NewRootCommand builds a fresh root command tree. Called once at process
// start and again for every line of the interactive shell, so flags parsed
// for one invocation never leak into the next.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "pagewatch",
		Short:   "pagewatch watches web pages and extracts structured data from them",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pagewatch"})
				return fmt.Errorf("failed to load config: %w", err)
			}
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("starting pagewatch", zap.String("version", Version))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRunCommand())
	root.AddCommand(newServeCommand())
	return root
}

// loadConfig reads the config file and environment into a validated Config.
func loadConfig() (*config.Config, error) {
	v := viper.New()
	if err := config.InitializeViper(v, cfgFile); err != nil {
		return nil, err
	}
	return config.NewConfigFromViper(v)
}

// Execute runs the root command with ctx as its cancellation source.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}
