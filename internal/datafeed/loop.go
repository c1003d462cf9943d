// Package datafeed reads real-time events from a Source and dispatches them
// to subscribed listeners, one goroutine per event per listener.
package datafeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"symphonybdk/internal/domain"
	"symphonybdk/internal/metrics"
)

var (
	// ErrRetriesExhausted is returned by Start when the source keeps failing
	// past the retry budget.
	ErrRetriesExhausted = errors.New("datafeed retries exhausted")

	// ErrAlreadyRunning is returned by Start while another Start is active.
	ErrAlreadyRunning = errors.New("datafeed loop already running")
)

// LoopConfig holds the loop's dependencies.
type LoopConfig struct {
	Source domain.Source
	// Store drops redelivered events. Optional.
	Store       domain.StateStore
	BotUsername string
	Retry       RetryPolicy
	Logger      *slog.Logger
}

// Loop is the datafeed event loop.
type Loop struct {
	source      domain.Source
	store       domain.StateStore
	botUsername string
	retry       RetryPolicy
	logger      *slog.Logger

	mu        sync.RWMutex
	listeners []domain.RealTimeEventListener

	running atomic.Bool
	runCtx  context.Context
	stop    context.CancelFunc

	// Listener tasks live on their own context so that stopping the read
	// loop leaves them running until Shutdown.
	taskCtx     context.Context
	cancelTasks context.CancelFunc
	taskMu      sync.Mutex
	closed      bool
	tasks       sync.WaitGroup
	inflight    atomic.Int64
}

// NewLoop creates a loop with no listeners. Zero RetryPolicy fields take
// their DefaultRetryPolicy values.
func NewLoop(cfg LoopConfig) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		source:      cfg.Source,
		store:       cfg.Store,
		botUsername: cfg.BotUsername,
		retry:       cfg.Retry.withDefaults(),
		logger:      logger,
	}
	l.runCtx, l.stop = context.WithCancel(context.Background())
	l.taskCtx, l.cancelTasks = context.WithCancel(context.Background())
	return l
}

// Subscribe adds a listener. Events already being dispatched are not
// replayed to it.
func (l *Loop) Subscribe(listener domain.RealTimeEventListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// Unsubscribe removes a listener. Its running tasks are not cancelled.
func (l *Loop) Unsubscribe(listener domain.RealTimeEventListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ln := range l.listeners {
		if ln == listener {
			l.listeners = slices.Delete(l.listeners, i, i+1)
			return
		}
	}
}

// Start reads and dispatches events until ctx is cancelled or Stop is
// called, in which case it returns nil. It returns an error wrapping
// ErrRetriesExhausted when the source fails MaxAttempts reads in a row.
func (l *Loop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := context.AfterFunc(l.runCtx, cancel)
	defer stopWatch()

	l.logger.Info("datafeed loop started", "listeners", l.listenerCount())

	failures := 0
	for {
		batch, err := l.source.Read(ctx)
		if ctx.Err() != nil {
			l.logger.Info("datafeed loop stopped")
			return nil
		}
		if err != nil {
			failures++
			if failures >= l.retry.MaxAttempts {
				return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, failures, err)
			}
			wait := l.retry.backoff(failures)
			metrics.ReadRetries.Inc()
			l.logger.Warn("datafeed read failed, will retry",
				"attempt", failures, "backoff", wait, "error", err)
			if !sleep(ctx, wait) {
				l.logger.Info("datafeed loop stopped")
				return nil
			}
			continue
		}
		failures = 0
		l.handleBatch(ctx, batch)
	}
}

// Stop makes Start return. Listener tasks keep running.
func (l *Loop) Stop() {
	l.stop()
}

// Shutdown stops the loop, cancels every outstanding listener task and
// waits for them to return or for ctx to be done. It returns the number of
// tasks that were in flight when cancellation started. The loop cannot be
// restarted afterwards.
func (l *Loop) Shutdown(ctx context.Context) int {
	l.Stop()

	l.taskMu.Lock()
	l.closed = true
	n := int(l.inflight.Load())
	l.taskMu.Unlock()

	l.cancelTasks()

	done := make(chan struct{})
	go func() {
		l.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		l.logger.Warn("listener tasks still running at shutdown deadline",
			"remaining", l.inflight.Load())
	}
	return n
}

// InFlight returns the number of listener tasks currently running.
func (l *Loop) InFlight() int {
	return int(l.inflight.Load())
}

func (l *Loop) listenerCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.listeners)
}

// handleBatch dispatches the batch's new events, then records them and acks
// the batch. A batch cut short by Shutdown is neither recorded nor acked, so
// the source redelivers it.
func (l *Loop) handleBatch(ctx context.Context, batch domain.Batch) {
	events := batch.Events
	metrics.EventsReceived.Add(int64(len(events)))

	if l.store != nil && len(events) > 0 {
		unseen, err := l.store.Unseen(ctx, events)
		if err != nil {
			// Dispatching twice beats losing the batch.
			l.logger.Warn("cannot check seen events, dispatching without dedupe", "error", err)
		} else {
			if dup := len(events) - len(unseen); dup > 0 {
				metrics.EventsDuplicate.Add(int64(dup))
				l.logger.Debug("dropped redelivered events", "count", dup)
			}
			events = unseen
		}
	}

	for _, event := range events {
		if !l.dispatch(event) {
			l.logger.Warn("shutdown interrupted dispatch, leaving batch unacknowledged",
				"ack_id", batch.AckID, "event_id", event.ID)
			return
		}
	}

	// The batch is fully dispatched; finish it even if the loop is stopping.
	ctx = context.WithoutCancel(ctx)
	if l.store != nil && len(events) > 0 {
		if _, err := l.store.MarkSeen(ctx, events); err != nil {
			l.logger.Warn("cannot record dispatched events", "error", err)
		}
	}
	if batch.AckID == "" {
		return
	}
	if err := l.source.Ack(ctx, batch.AckID); err != nil {
		l.logger.Warn("datafeed ack failed", "ack_id", batch.AckID, "error", err)
	}
}

// dispatch starts a task for every accepting listener. It reports false
// when Shutdown refused a task.
func (l *Loop) dispatch(event domain.V4Event) bool {
	handler, ok := routes[event.Type]
	if !ok {
		l.logger.Debug("ignoring event of unknown type", "type", event.Type, "event_id", event.ID)
		return true
	}
	l.logger.Debug("datafeed event", "type", event.Type, "event_id", event.ID, "event", event)

	l.mu.RLock()
	listeners := slices.Clone(l.listeners)
	l.mu.RUnlock()

	for _, listener := range listeners {
		if !listener.IsAcceptingEvent(event, l.botUsername) {
			continue
		}
		if !l.spawn(listener, event, handler) {
			return false
		}
	}
	return true
}

// spawn starts one listener task, reporting false once Shutdown began.
func (l *Loop) spawn(listener domain.RealTimeEventListener, event domain.V4Event, handler handlerFunc) bool {
	l.taskMu.Lock()
	if l.closed {
		l.taskMu.Unlock()
		return false
	}
	l.tasks.Add(1)
	l.inflight.Add(1)
	l.taskMu.Unlock()

	metrics.ListenerTasks.Inc()
	metrics.EventsDispatched(event.Type).Inc()

	go func() {
		defer func() {
			metrics.ListenerTasks.Dec()
			l.inflight.Add(-1)
			l.tasks.Done()
		}()
		l.run(listener, event, handler)
	}()
	return true
}

func (l *Loop) run(listener domain.RealTimeEventListener, event domain.V4Event, handler handlerFunc) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerErrors.Inc()
			l.logger.Error("listener panic", "type", event.Type, "event_id", event.ID, "panic", r)
		}
		metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}()

	err := handler(l.taskCtx, listener, event)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && l.taskCtx.Err() != nil:
		l.logger.Debug("listener task cancelled", "type", event.Type, "event_id", event.ID)
	default:
		metrics.ListenerErrors.Inc()
		l.logger.Error("listener failed", "type", event.Type, "event_id", event.ID, "error", err)
	}
}
