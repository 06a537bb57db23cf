package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foxzool/open-lark-sub013/internal/api"
	"github.com/foxzool/open-lark-sub013/internal/config"
	"github.com/foxzool/open-lark-sub013/internal/events"
	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/supervisor"
	"github.com/foxzool/open-lark-sub013/internal/tracer"
	"github.com/foxzool/open-lark-sub013/pkg/reassembly"
	"github.com/foxzool/open-lark-sub013/pkg/wsclient"
)

const shutdownTimeout = 10 * time.Second

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and serve events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	cmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().Bool("log-pretty", false, "Human readable log output")
	cmd.Flags().Int("workers", 0, "Concurrent event handlers")
	_ = viper.BindPFlag("loglevel", cmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("logpretty", cmd.Flags().Lookup("log-pretty"))
	_ = viper.BindPFlag("client.workers", cmd.Flags().Lookup("workers"))

	return cmd
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.Get()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Error().Err(err).Msg("tracer shutdown error")
		}
	}()

	pub, err := events.NewPublisher(ctx, cfg.Sink)
	if err != nil {
		return err
	}
	defer pub.Close()

	// One cache for all connections; its sweeper runs here.
	reasm := reassembly.New(
		reassembly.WithTTL(cfg.Client.ReassemblyTTL),
		reassembly.WithMaxEntries(cfg.Client.ReassemblyMaxEntries),
	)
	go reasm.Run(ctx, cfg.Client.ReassemblyTTL)

	handler := events.Handler(pub, nil, cfg.Sink.Strict)
	base := append(clientOptions(cfg), wsclient.WithReassembler(reasm))

	sup := supervisor.New(cfg.Supervisor, func(opts ...wsclient.Option) *wsclient.Client {
		all := make([]wsclient.Option, 0, len(base)+len(opts))
		all = append(all, base...)
		all = append(all, opts...)
		return wsclient.New(cfg.App.ID, cfg.App.Secret, handler, all...)
	})

	var admin *api.Server
	if cfg.Admin.Enabled {
		admin = api.NewServer(cfg, sup)
		go func() {
			if err := admin.Start(); err != nil {
				log.Error().Err(err).Msg("admin server failed")
			}
		}()
	}

	log.Info().
		Str("app_id", cfg.App.ID).
		Str("domain", cfg.App.Domain).
		Int("workers", cfg.Client.Workers).
		Bool("sink", cfg.Sink.Enabled).
		Msg("starting event client")

	runErr := sup.Run(ctx)

	if admin != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := admin.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("admin server shutdown error")
		}
		cancel()
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("event client stopped")
		return runErr
	}
	log.Info().Msg("event client stopped")
	return nil
}

// clientOptions maps the configuration onto client options.
func clientOptions(cfg *config.Config) []wsclient.Option {
	opts := []wsclient.Option{
		wsclient.WithDomain(cfg.App.Domain),
		wsclient.WithHandshakeTimeout(cfg.Client.HandshakeTimeout),
		wsclient.WithHeartbeatTimeout(cfg.Client.HeartbeatTimeout),
		wsclient.WithLivenessInterval(cfg.Client.LivenessInterval),
		wsclient.WithWriteTimeout(cfg.Client.WriteTimeout),
		wsclient.WithSkipMalformedFrames(cfg.Client.SkipMalformedFrames),
		wsclient.WithWorkers(cfg.Client.Workers),
	}
	for _, t := range cfg.Client.HandleTypes {
		opts = append(opts, wsclient.WithRoute(t, wsclient.Route{Strategy: wsclient.StrategyHandle}))
	}
	for _, t := range cfg.Client.IgnoreTypes {
		opts = append(opts, wsclient.WithRoute(t, wsclient.Route{Strategy: wsclient.StrategyIgnore}))
	}
	return opts
}
