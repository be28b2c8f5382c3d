package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blemu/pkg/config"
)

// loadConfig reads the file named by --config over the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose, which takes precedence over the
// configured log_level.
func configureLogger(cmd *cobra.Command, cfg *config.Config, verboseFlagName string) (*logrus.Logger, error) {
	logLevel := cfg.Level()

	if logLevelStr, _ := cmd.Flags().GetString("log-level"); logLevelStr != "" {
		level, err := logrus.ParseLevel(logLevelStr)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", logLevelStr)
		}
		logLevel = level
	} else if verboseFlagName != "" {
		if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
			logLevel = logrus.DebugLevel
		}
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
