// Package consumer reads swim activity events from Kafka and keeps read models current.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/events"
)

// Reader is the part of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler reacts to one swim activity event.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is an activity event unwrapped from its Confluent frame.
type Message struct {
	Topic      string
	Partition  int
	Offset     int64
	Timestamp  time.Time
	EventType  string
	SchemaID   int
	Owner      domain.Owner
	ActivityID string
	Payload    json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetry sets how many times a failing event is handed to the handler and the pause between
// attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.backoff = backoff
	}
}

// Processor fetches activity events, hands them to a Handler and commits what was handled.
type Processor struct {
	reader   Reader
	handler  Handler
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

// NewProcessor constructs a Processor. By default a failing event is tried three times.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		logger:   slog.Default().With("component", "consumer"),
		attempts: 3,
		backoff:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes events until ctx is cancelled.
//
// Frames that cannot be decoded are committed and counted. An event whose handler still fails
// after every attempt is left uncommitted so a restarted group member sees it again.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Error("fetch message", "error", err)
			continue
		}

		msg, err := decodeMessage(raw)
		if err != nil {
			p.logger.Warn("dropping undecodable event", "topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset, "error", err)
			recordDecodeError(raw.Topic)
			p.commit(ctx, raw)
			continue
		}

		if err := p.handle(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Error("handle event",
				"event_type", msg.EventType,
				"tenant_id", msg.Owner.TenantID,
				"user_id", msg.Owner.UserID,
				"activity_id", msg.ActivityID,
				"error", err,
			)
			recordHandlerError(msg)
			continue
		}

		if p.commit(ctx, raw) {
			recordProcessed(msg)
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		recordRetry(msg)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff):
		}
	}
	return err
}

func (p *Processor) commit(ctx context.Context, raw kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, raw); err != nil {
		p.logger.Error("commit message", "topic", raw.Topic, "offset", raw.Offset, "error", err)
		return false
	}
	return true
}

// decodeMessage strips the magic byte and schema id, then reads the owner header every activity
// event carries. The tenant_id record header backs up a payload without one.
func decodeMessage(raw kafka.Message) (Message, error) {
	if len(raw.Value) < 5 {
		return Message{}, fmt.Errorf("frame too short: %d bytes", len(raw.Value))
	}
	if raw.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown magic byte %d", raw.Value[0])
	}
	eventType, ok := headerValue(raw, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}

	payload := json.RawMessage(append([]byte(nil), raw.Value[5:]...))
	var header events.Owner
	if err := json.Unmarshal(payload, &header); err != nil {
		return Message{}, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	owner := domain.Owner{TenantID: header.TenantID, UserID: header.UserID}
	if owner.TenantID == "" {
		if tenant, ok := headerValue(raw, "tenant_id"); ok {
			owner.TenantID = string(tenant)
		}
	}

	return Message{
		Topic:      raw.Topic,
		Partition:  raw.Partition,
		Offset:     raw.Offset,
		Timestamp:  raw.Time,
		EventType:  string(eventType),
		SchemaID:   int(binary.BigEndian.Uint32(raw.Value[1:5])),
		Owner:      owner,
		ActivityID: header.ActivityID,
		Payload:    payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
