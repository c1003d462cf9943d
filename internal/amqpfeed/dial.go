package amqpfeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const maxDialDelay = 60 * time.Second

// dialWithRetry connects to the broker with exponential backoff, giving up
// after attempts tries or when ctx is done.
func dialWithRetry(ctx context.Context, url string, attempts int, delay time.Duration, logger *slog.Logger) (*amqp091.Connection, error) {
	var lastErr error

	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			if i > 1 {
				logger.Info("broker connected", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		sleep := delay << (i - 1)
		if sleep <= 0 || sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		logger.Warn("broker dial failed", "attempt", i, "sleep", sleep, "error", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("cannot connect to broker after %d attempts: %w", attempts, lastErr)
}
