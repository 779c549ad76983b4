package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bandlink/pkg/config"
)

// loadConfig reads --config and applies the global flag overrides.
// Without --log-level or a config file the logger stays silent.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(globalFlags.configPath)
	if err != nil {
		return nil, nil, err
	}

	if globalFlags.address != "" {
		cfg.Address = globalFlags.address
	}
	if globalFlags.addressFile != "" {
		cfg.AddressFile = globalFlags.addressFile
	}
	if globalFlags.keyFile != "" {
		cfg.KeyFile = globalFlags.keyFile
	}

	levelStr, _ := cmd.Flags().GetString("log-level")
	if levelStr != "" {
		if _, err := logrus.ParseLevel(levelStr); err != nil {
			return nil, nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
		}
		cfg.LogLevel = levelStr
	}

	logger := cfg.NewLogger()
	if levelStr == "" && globalFlags.configPath == "" {
		logger.SetLevel(logrus.PanicLevel)
	}
	return cfg, logger, nil
}
