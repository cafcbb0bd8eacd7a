package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rjboer/GoSonar/internal/config"
	"github.com/rjboer/GoSonar/internal/logging"
)

// newRootCmd builds the command tree around one viper instance holding
// defaults, the config file, SONAR_ environment overrides and flags.
func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var configFile string

	root := &cobra.Command{
		Use:   "sonarsim",
		Short: "Passive sonar training console",
		Long: `A passive sonar simulator: contacts radiate engine, blade and cavitation
noise, the console plays them through the audio device and runs LOFAR,
DEMON and bearing-time analysis for the selected contact.

Configuration is read from --config (or ./configs/sonarsim.yaml), then
SONAR_* environment variables, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v, configFile)
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./configs/sonarsim.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")
	v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(
		newRunCmd(v),
		newScenarioCmd(),
		newDiscoverCmd(v),
		newConfigCmd(v),
	)
	return root
}

// readConfig loads the explicit config file, or the first sonarsim.yaml
// found in the search path. A missing default file is not an error.
func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sonarsim")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/sonarsim")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindFlags binds each flag named in keys to its configuration key so that
// an explicitly set flag overrides file and environment values.
func bindFlags(cmd *cobra.Command, v *viper.Viper, keys map[string]string) error {
	var lastErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := keys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}
	})
	return lastErr
}

// loadConfig decodes v and builds the process logger from it.
func loadConfig(v *viper.Viper) (config.Config, logging.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	level, _ := logging.ParseLevel(cfg.Log.Level)
	format, _ := logging.ParseFormat(cfg.Log.Format)
	logger := logging.New(level, format, os.Stderr)
	logging.SetDefault(logger)
	return cfg, logger, nil
}
