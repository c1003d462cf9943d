// Package amqpfeed consumes datafeed events from an AMQP 0-9-1 broker.
//
// Each message carries either one JSON-encoded V4Event or a JSON array of
// them. Messages are bound to a durable queue named after the datafeed ID,
// so a restarted bot picks up where it left off.
package amqpfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"symphonybdk/internal/domain"
)

var (
	ErrClosed         = errors.New("amqp source closed")
	ErrConnectionLost = errors.New("amqp delivery channel closed")
)

// Config describes the broker topology the source consumes from.
type Config struct {
	URL        string
	Exchange   string
	Queue      string // empty: QueueName(DatafeedID)
	RoutingKey string
	DatafeedID string
	Prefetch   int

	DialAttempts int
	DialDelay    time.Duration

	Logger *slog.Logger
}

// QueueName returns the queue a datafeed consumes from by default.
func QueueName(datafeedID string) string {
	return "datafeed." + datafeedID
}

func (c Config) withDefaults() (Config, error) {
	if c.URL == "" {
		return c, errors.New("amqp url is required")
	}
	if c.Exchange == "" {
		return c, errors.New("amqp exchange is required")
	}
	if c.Queue == "" {
		if c.DatafeedID == "" {
			return c, errors.New("amqp queue or datafeed id is required")
		}
		c.Queue = QueueName(c.DatafeedID)
	}
	if c.RoutingKey == "" {
		c.RoutingKey = "#"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 10
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = 1
	}
	if c.DialDelay <= 0 {
		c.DialDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

// acknowledger is the part of *amqp091.Channel the source settles
// deliveries with.
type acknowledger interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Close() error
}

type session struct {
	conn       io.Closer
	ch         acknowledger
	deliveries <-chan amqp091.Delivery
}

func (s *session) close() {
	s.ch.Close()
	s.conn.Close()
}

// Source implements domain.Source on top of an AMQP queue.
type Source struct {
	cfg    Config
	tag    string
	logger *slog.Logger
	open   func(ctx context.Context) (*session, error)

	// closing is cancelled by Close to abort a reconnect in progress.
	closing     context.Context
	stopDialing context.CancelFunc

	mu     sync.Mutex
	sess   *session
	closed bool
}

var _ domain.Source = (*Source)(nil)

// Dial connects to the broker, declares the exchange, queue and binding,
// and starts consuming.
func Dial(ctx context.Context, cfg Config) (*Source, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	s := newSource(cfg)
	s.open = s.openSession

	sess, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	s.sess = sess
	s.logger.Info("amqp datafeed source ready",
		"exchange", cfg.Exchange, "queue", cfg.Queue, "routing_key", cfg.RoutingKey, "consumer", s.tag)
	return s, nil
}

func newSource(cfg Config) *Source {
	s := &Source{
		cfg:    cfg,
		tag:    "bdk-" + uuid.NewString(),
		logger: cfg.Logger,
	}
	s.closing, s.stopDialing = context.WithCancel(context.Background())
	return s
}

func (s *Source) openSession(ctx context.Context) (*session, error) {
	conn, err := dialWithRetry(ctx, s.cfg.URL, s.cfg.DialAttempts, s.cfg.DialDelay, s.logger)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(step string, err error) (*session, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if err := ch.ExchangeDeclare(s.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		return fail("set qos", err)
	}
	q, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, s.cfg.RoutingKey, s.cfg.Exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}
	deliveries, err := ch.Consume(q.Name, s.tag, false, false, false, false, nil)
	if err != nil {
		return fail("consume", err)
	}
	return &session{conn: conn, ch: ch, deliveries: deliveries}, nil
}

// current returns the live session, reconnecting if the previous one was
// lost. The reconnect runs without holding mu, so Ack and Close are not
// held up by dial backoff.
func (s *Source) current(ctx context.Context) (*session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if sess := s.sess; sess != nil {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.closing, cancel)
	defer stop()

	sess, err := s.open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		if err == nil {
			sess.close()
		}
		return nil, ErrClosed
	case err != nil:
		return nil, err
	case s.sess != nil:
		// Another reader reconnected first.
		sess.close()
		return s.sess, nil
	}
	s.logger.Info("amqp datafeed source reconnected", "queue", s.cfg.Queue)
	s.sess = sess
	return sess, nil
}

func (s *Source) drop(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == sess {
		s.sess = nil
	}
	sess.close()
}

// Read waits for the next decodable delivery. Deliveries that cannot be
// decoded are rejected without requeue and skipped.
func (s *Source) Read(ctx context.Context) (domain.Batch, error) {
	for {
		sess, err := s.current(ctx)
		if err != nil {
			return domain.Batch{}, err
		}

		select {
		case <-ctx.Done():
			return domain.Batch{}, ctx.Err()
		case d, ok := <-sess.deliveries:
			if !ok {
				s.drop(sess)
				return domain.Batch{}, ErrConnectionLost
			}
			events, err := decodeBatch(d.Body)
			if err != nil {
				s.logger.Warn("rejecting undecodable datafeed message",
					"delivery_tag", d.DeliveryTag, "routing_key", d.RoutingKey, "error", err)
				if err := sess.ch.Nack(d.DeliveryTag, false, false); err != nil {
					s.logger.Warn("nack failed", "delivery_tag", d.DeliveryTag, "error", err)
				}
				continue
			}
			return domain.Batch{
				AckID:  strconv.FormatUint(d.DeliveryTag, 10),
				Events: events,
			}, nil
		}
	}
}

// Ack acknowledges the delivery a batch came from.
func (s *Source) Ack(_ context.Context, ackID string) error {
	tag, err := strconv.ParseUint(ackID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid ack id %q: %w", ackID, err)
	}
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return ErrConnectionLost
	}
	return sess.ch.Ack(tag, false)
}

// Close closes the live session and aborts any reconnect in progress.
func (s *Source) Close() error {
	s.stopDialing()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sess != nil {
		s.sess.close()
		s.sess = nil
	}
	return nil
}

// decodeBatch accepts a single event object or an array of events.
func decodeBatch(body []byte) ([]domain.V4Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty message body")
	}
	switch body[0] {
	case '[':
		var events []domain.V4Event
		if err := json.Unmarshal(body, &events); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
		return events, nil
	case '{':
		var event domain.V4Event
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		return []domain.V4Event{event}, nil
	default:
		return nil, fmt.Errorf("unexpected message body starting with %q", body[0])
	}
}
