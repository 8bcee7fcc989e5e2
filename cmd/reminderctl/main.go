package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-reminder-service/reminderservice/config"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	verbose    bool
}

func rootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "reminderctl",
		Short:         "Operator tools for the reminder service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (environment variables still apply)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr at debug level")

	rootCmd.AddCommand(mintCommand(opts), sendCommand(opts))
	return rootCmd
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("service", "reminderctl")
}

// loadConfig follows the service's flow: YAML, then environment overrides and validation.
func (o *options) loadConfig(logger *slog.Logger) (*config.Config, error) {
	var yamlCfg config.YamlConfig
	if o.configPath != "" {
		raw, err := os.ReadFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return config.UpdateConfigWithEnvOverrides(baseCfg, logger)
}
