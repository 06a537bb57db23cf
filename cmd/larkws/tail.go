package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/foxzool/open-lark-sub013/internal/config"
	"github.com/foxzool/open-lark-sub013/internal/events"
	"github.com/foxzool/open-lark-sub013/internal/logger"
)

func tailCmd() *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print events published to the Redis sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.LogLevel, true)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Sink.Addr,
				Password: cfg.Sink.Password,
				DB:       cfg.Sink.DB,
			})
			sink := events.NewRedisPubSub(client, cfg.Sink.ChannelPrefix, 0)
			defer sink.Close()

			ch, err := sink.SubscribeAll(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			if !compact {
				enc.SetIndent("", "  ")
			}
			for event := range ch {
				if err := enc.Encode(event); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "One event per line")

	return cmd
}
