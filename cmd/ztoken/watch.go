package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ztoken-ledger/internal/config"
	"ztoken-ledger/internal/feed"
)

var watchConf = &config.WatchConfig{}

func init() {
	config.SetupLogFlags(&watchConf.Log, watchCmd)
	config.SetupWatchSpecificFlags(watchConf, watchCmd)

	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Streams committed ledger changes from a running server.",
	Long: `Connects to the websocket commit feed of a running server and prints each commit
as one JSON line. Reconnects with backoff when the connection drops; commits
made while disconnected are not replayed.`,
	PreRunE: setupWatch,
	RunE:    watch,
	PostRun: closeLogger,
}

func setupWatch(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, viperConf)

	if err := watchConf.Validate(); err != nil {
		return err
	}
	_, err := setupLogger(watchConf.Log)
	return err
}

func watch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cmdLogger("watch")

	client, err := feed.NewClient(ctx, watchConf.Base.URL, watchConf.Base.Symbol, nil, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info().Str("url", watchConf.Base.URL).Str("symbol", watchConf.Base.Symbol).Msg("watching commits")

	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-client.Events():
			if !ok {
				return nil
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
	}
}
