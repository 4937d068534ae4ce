// Command bridge runs the local transparent protocol bridge: five listeners
// on fixed ports that stand in for the legacy game server, forwarding every
// real request to whatever remote the user selects.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pocketrelay/bridge/internal/config"
	"github.com/pocketrelay/bridge/internal/lookup"
	"github.com/pocketrelay/bridge/internal/supervisor"
	"github.com/pocketrelay/bridge/internal/target"
)

var (
	flagConnect  string
	flagConfig   string
	flagLogLevel string
	flagBindHost string
)

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Local transparent protocol bridge for the legacy game client",
	RunE:  run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConnect, "connect", "", "server to connect to on startup (host or full URL); skips the saved config")
	flags.StringVar(&flagConfig, "config", "", "path to the client config file (defaults next to the executable)")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	flags.StringVar(&flagBindHost, "bind", "127.0.0.1", "address the five listeners bind to")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

func run(cmd *cobra.Command, args []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if lvl, err := zerolog.ParseLevel(flagLogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgStore, err := config.NewStore(flagConfig)
	if err != nil {
		return err
	}

	store := &target.Store{}
	group := supervisor.New(store, flagBindHost)

	if err := group.Start(ctx); err != nil {
		return err
	}
	defer group.Stop()

	lookupSvc := lookup.NewService(nil, store, cfgStore)

	connectHost := flagConnect
	if connectHost == "" {
		if cfg, ok, readErr := cfgStore.Read(); readErr == nil && ok {
			connectHost = cfg.ConnectionURL
		}
	}

	if connectHost != "" {
		if _, err := lookupSvc.Update(connectHost, flagConnect != ""); err != nil {
			log.Error().Err(err).Str("host", connectHost).Msg("[bridge] initial server lookup failed")
		} else {
			log.Info().Str("host", connectHost).Msg("[bridge] connected")
		}
	} else {
		log.Info().Msg("[bridge] no server configured yet; waiting for a connection request")
	}

	log.Info().Msg("[bridge] listeners running; press Ctrl-C to stop")
	<-ctx.Done()
	log.Info().Msg("[bridge] shutting down...")
	return nil
}
