package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/transport/goble"
	"github.com/srg/bandlink/pkg/band"
	"github.com/srg/bandlink/pkg/config"
)

var globalFlags struct {
	configPath  string
	address     string
	addressFile string
	key         string
	keyFile     string
	pair        bool
}

// openSession connects to the configured band. Tests replace it to run
// commands against a simulated band.
var openSession = func(ctx context.Context, cfg *config.Config, key protocol.Key, opts band.Options, logger *logrus.Logger) (*band.Session, error) {
	address, err := cfg.ResolveAddress()
	if err != nil {
		return nil, err
	}
	return band.Connect(ctx, address, key, opts, goble.Options{ConnectTimeout: cfg.ConnectTimeout}, logger)
}

// resolveKey prefers --key over --key-file and the config key_file
func resolveKey(cfg *config.Config) (protocol.Key, error) {
	if globalFlags.key != "" {
		return protocol.ParseKey(globalFlags.key)
	}
	if cfg.KeyFile == "" {
		return protocol.Key{}, ErrNoKey
	}
	return config.LoadKey(cfg.KeyFile)
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// withSession connects, optionally authenticates, runs fn and closes the session.
func withSession(cmd *cobra.Command, authenticate bool, fn func(ctx context.Context, s *band.Session) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var key protocol.Key
	if authenticate {
		if key, err = resolveKey(cfg); err != nil {
			return err
		}
	}
	defer key.Wipe()

	opts, err := band.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Auth.Pair = globalFlags.pair

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Connecting to band", "connecting", "ready")
	progress.Start()
	defer progress.Stop()

	session, err := openSession(ctx, cfg, key, opts, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.WithField("error", cerr).Debug("Close failed")
		}
	}()

	if authenticate {
		progress.Callback()("authenticating")
		if err := session.Authenticate(ctx); err != nil {
			return err
		}
	}
	progress.Callback()("ready")

	if err := fn(ctx, session); err != nil {
		if protocol.IsKind(err, protocol.TransportDisconnected) && ctx.Err() == nil {
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		return err
	}
	return nil
}
