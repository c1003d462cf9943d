package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"symphonybdk/internal/amqpfeed"
	"symphonybdk/internal/config"
	"symphonybdk/internal/datafeed"
	"symphonybdk/internal/domain"
	"symphonybdk/internal/metrics"
	"symphonybdk/internal/store"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = time.Hour
)

func datafeedCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "datafeed",
		Short: "Subscribe a logging listener to the datafeed and run until signalled",
		Long: `Consumes real-time events, logs every received message, and keeps running
until SIGHUP, SIGTERM or SIGINT. On shutdown, outstanding listener tasks are
cancelled and drained before the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runDatafeed(cfg, reset)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "discard the stored datafeed id and start a new feed")
	return cmd
}

func runDatafeed(cfg *config.Config, reset bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received exit signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if reset {
		if err := st.ResetDatafeedID(ctx); err != nil {
			return err
		}
	}
	datafeedID, err := st.DatafeedID(ctx)
	if err != nil {
		return err
	}

	source, err := amqpfeed.Dial(ctx, amqpfeed.Config{
		URL:          cfg.AMQP.URL,
		Exchange:     cfg.AMQP.Exchange,
		Queue:        cfg.AMQP.Queue,
		RoutingKey:   cfg.AMQP.RoutingKey,
		DatafeedID:   datafeedID,
		Prefetch:     cfg.AMQP.Prefetch,
		DialAttempts: cfg.AMQP.DialAttempts,
		DialDelay:    time.Duration(cfg.Retry.InitialIntervalMillis) * time.Millisecond,
		Logger:       logger,
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("successfully shut down the datafeed service")
			return nil
		}
		return fmt.Errorf("connect datafeed source: %w", err)
	}
	defer source.Close()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Default.Serve(ctx, cfg.Metrics.Listen, cfg.Metrics.Path, logger); err != nil {
				logger.Error("metrics endpoint error", "err", err)
			}
		}()
	}
	if cfg.Store.RetentionDays > 0 {
		go pruneSeenEvents(ctx, st, time.Duration(cfg.Store.RetentionDays)*24*time.Hour)
	}

	loop := datafeed.NewLoop(datafeed.LoopConfig{
		Source:      source,
		Store:       st,
		BotUsername: cfg.Bot.Username,
		Retry:       retryPolicy(cfg.Datafeed.Retry),
		Logger:      logger,
	})
	loop.Subscribe(&messageLogger{
		name:   "message-logger",
		delay:  time.Duration(cfg.Datafeed.ListenerDelaySeconds) * time.Second,
		logger: logger,
	})

	logger.Info("datafeed started",
		"datafeed_id", datafeedID, "version", cfg.Datafeed.Version, "bot", cfg.Bot.Username)
	runErr := loop.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	n := loop.Shutdown(shutdownCtx)
	logger.Info("cancelled outstanding tasks", "count", n)

	if runErr != nil {
		logger.Error("datafeed stopped", "err", runErr)
		return runErr
	}
	logger.Info("successfully shut down the datafeed service")
	return nil
}

func retryPolicy(r config.RetryConfig) datafeed.RetryPolicy {
	return datafeed.RetryPolicy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: time.Duration(r.InitialIntervalMillis) * time.Millisecond,
		Multiplier:      r.Multiplier,
		MaxInterval:     time.Duration(r.MaxIntervalMillis) * time.Millisecond,
	}
}

// pruneSeenEvents forgets redelivery records older than retention.
func pruneSeenEvents(ctx context.Context, st domain.StateStore, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		if _, err := st.Prune(ctx, time.Now().Add(-retention)); err != nil && ctx.Err() == nil {
			logger.Warn("prune seen events failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// messageLogger logs each received message, waits, then logs it again.
// The wait stops early when the datafeed shuts down.
type messageLogger struct {
	domain.BaseListener
	name   string
	delay  time.Duration
	logger *slog.Logger
}

func (m *messageLogger) OnMessageSent(ctx context.Context, _ domain.V4Initiator, event domain.V4MessageSent) error {
	var text string
	if event.Message != nil {
		text = event.Message.Message
	}
	// Message text is only logged at debug level.
	m.logger.Debug("received event in listener", "listener", m.name, "message", text)

	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	m.logger.Debug("after sleeping in listener", "listener", m.name, "message", text)
	return nil
}
