package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blemu/internal/console"
	"github.com/srg/blemu/internal/peripheral"
	goble "github.com/srg/blemu/internal/peripheral/go-ble"
	"github.com/srg/blemu/internal/profile"
	"github.com/srg/blemu/internal/rotation"
	"golang.org/x/term"
)

type serveOptions struct {
	localName string
	primeMode string
	settle    time.Duration
	noStart   bool
	verbose   bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve <profile>",
		Short: "Publish a GATT profile and run the operator console",
		Long: fmt.Sprintf(`Publishes the chosen profile from the local Bluetooth adapter, advertises it
under the configured local name and reads console commands from stdin.

Available profiles: %s

Console commands:
  start, stop, status, notify [uuid], set ..., rotate, help, quit

Readings start from the configuration file (--config) and can be changed
live with "set"; subscribed centrals are notified on every change.`, strings.Join(kindNames(), ", ")),
		Example: `  blemu serve heart-rate
  blemu serve thermometer --name "Desk Thermometer"
  blemu serve proximity --config blemu.yaml --prime subscriber
  echo "set 75" | blemu serve battery`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringVar(&opts.localName, "name", "", "Advertised local name (overrides config)")
	cmd.Flags().StringVar(&opts.primeMode, "prime", "", "Who is notified on a first subscription: broadcast or subscriber")
	cmd.Flags().DurationVar(&opts.settle, "settle", 0, "How long advertising must run cleanly before it counts as started")
	cmd.Flags().BoolVar(&opts.noStart, "no-start", false, "Do not start the session; wait for the start command")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	return cmd
}

func runServe(cmd *cobra.Command, name string, opts *serveOptions) error {
	kind, err := profile.ParseKind(name)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("name") {
		cfg.LocalName = opts.localName
	}
	if cmd.Flags().Changed("prime") {
		cfg.PrimeMode = opts.primeMode
	}
	if cmd.Flags().Changed("settle") {
		cfg.AdvertiseSettle = opts.settle
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}

	// Arguments are valid; from here on errors are runtime failures
	cmd.SilenceUsage = true

	prof, err := profile.New(kind, cfg.ProfileOptions())
	if err != nil {
		return err
	}

	adapter := goble.New(goble.Options{AdvertiseSettle: cfg.AdvertiseSettle, Logger: logger})
	srv := peripheral.NewServer(adapter, prof, cfg.ServerOptions(logger))

	in := cmd.InOrStdin()
	interactive := isTerminal(in)
	con := console.New(srv, in, cmd.OutOrStdout(), console.Options{Interactive: interactive, Logger: logger})

	srv.SetObserver(con.Observe)
	if err := adapter.Open(srv); err != nil {
		return err
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			logger.WithError(err).Debug("Adapter close")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if kind == profile.KindProximity {
		schedule, err := cfg.RotationSchedule()
		if err != nil {
			return err
		}
		policy := rotation.New(schedule, func() {
			if _, err := srv.Rotate(); err != nil {
				logger.WithError(err).Warn("Identifier rotation failed")
			}
		}, logger)
		policy.Start()
		defer policy.Stop()
	}

	if !opts.noStart {
		if interactive {
			progress := NewSessionProgress(cmd.ErrOrStderr(), fmt.Sprintf("Starting %s", kind), "starting")
			srv.SetObserver(func(snap peripheral.Snapshot) {
				progress.Observe(snap)
				con.Observe(snap)
			})
			progress.Start()
			defer progress.Stop()
		}
		if err := srv.Start(); err != nil && !errors.Is(err, peripheral.ErrAdapterNotReady) {
			return err
		}
	}

	runErr := con.Run(ctx)
	stopErr := srv.Stop()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return stopErr
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func kindNames() []string {
	names := make([]string, 0, len(profile.Kinds()))
	for _, k := range profile.Kinds() {
		names = append(names, k.String())
	}
	return names
}
