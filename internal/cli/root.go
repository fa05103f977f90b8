// Package cli implements the fwb command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fwbundle/fwbundle/pkg/config"
	"github.com/fwbundle/fwbundle/pkg/logging"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCommand builds the fwb command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "fwb",
		Short: "Build and verify firmware update bundles",
		Long: `fwb maintains the manifest of a firmware update bundle directory.

It supports:
  - Recomputing payload checksums and signing the manifest (update)
  - Checking signature, checksums and compatibility (verify)
  - Printing a verified manifest (info)
  - Generating signing keys (keygen)`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is fwb.yaml in . or /etc/fwbundle)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")
	flags.String("compatible", "", "compatible string of this system")

	a.bind("log.level", flags.Lookup("log-level"))
	a.bind("log.format", flags.Lookup("log-format"))
	a.bind("system.compatible", flags.Lookup("compatible"))

	rootCmd.AddCommand(
		newUpdateCommand(a),
		newVerifyCommand(a),
		newInfoCommand(a),
		newKeygenCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the fwb command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// init loads the configuration and builds the logger.
func (a *app) init() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if used := a.v.ConfigFileUsed(); used != "" && a.cfgFile == "" {
		a.logger.Debug("Using config file", zap.String("path", used))
	}

	return nil
}
