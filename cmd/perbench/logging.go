package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/perbench/pkg/config"
)

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose. Without either the logger stays
// silent so command output is not interleaved with log lines.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logLevel := logrus.PanicLevel

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logLevel = logrus.DebugLevel
	}

	logger := cfg.NewLogger()
	logger.SetLevel(logLevel)
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}
