// Package outbox delivers swim activity events recorded in Postgres to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/swimlog/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message represents a row claimed from the outbox table.
type Message struct {
	EventID       int64
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// schemaFor maps outbox event types to the JSON schema registered for them.
var schemaFor = map[string]string{
	events.TypeActivityRecorded: activityRecordedSchema,
	events.TypeActivityDeleted:  activityDeletedSchema,
}

// Dispatcher polls the outbox table and publishes pending rows. A batch that cannot be delivered
// is copied to outbox_dlq and still marked published so the loop never stalls on it.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	dlq          *DLQWriter
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger

	schemaIDs sync.Map // subject -> schema id
	done      chan struct{}
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		dlq:          NewDLQWriter(pool),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       slog.Default().With("component", "outbox"),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled. Call it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dispatch batch", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	started := time.Now()
	batch, err := d.claim(ctx)
	if err != nil || len(batch) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(started).Seconds()) }()

	if err := d.publish(ctx, batch); err != nil {
		d.logger.Warn("delivery failed, routing batch to dlq", "events", len(batch), "error", err)
		failedCounter.Add(float64(len(batch)))
		for _, msg := range batch {
			if err := d.dlq.Write(ctx, msg, fmt.Sprintf("%s (topic=%s)", err, msg.Topic)); err != nil {
				return err
			}
			dlqCounter.WithLabelValues(msg.Topic).Inc()
		}
	} else {
		deliveredCounter.Add(float64(len(batch)))
	}
	return d.markPublished(ctx, batch)
}

const claimQuery = `SELECT event_id, tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
    FROM outbox
    WHERE published_at IS NULL
    ORDER BY event_id
    LIMIT $1
    FOR UPDATE SKIP LOCKED`

// claim locks the next batch of unpublished rows and stamps claimed_at.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	var batch []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, claimQuery, d.batchSize)
		if err != nil {
			return err
		}
		batch, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
			var m Message
			err := row.Scan(&m.EventID, &m.TenantID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic, &m.SchemaSubject, &m.PartitionKey, &m.Payload)
			return m, err
		})
		if err != nil || len(batch) == 0 {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(batch))
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// publish groups the batch by topic and writes each group in one call.
func (d *Dispatcher) publish(ctx context.Context, batch []Message) error {
	byTopic := make(map[string][]kafka.Message)
	topics := make([]string, 0)
	for _, msg := range batch {
		schemaID, err := d.schemaID(ctx, msg)
		if err != nil {
			return err
		}
		if _, seen := byTopic[msg.Topic]; !seen {
			topics = append(topics, msg.Topic)
		}
		byTopic[msg.Topic] = append(byTopic[msg.Topic], kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "tenant_id", Value: []byte(msg.TenantID)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			},
		})
	}
	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, byTopic[topic]...); err != nil {
			return fmt.Errorf("write %s: %w", topic, err)
		}
	}
	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	schema, ok := schemaFor[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}
	if id, ok := d.schemaIDs.Load(msg.SchemaSubject); ok {
		return id.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return 0, fmt.Errorf("ensure schema %s: %w", msg.SchemaSubject, err)
	}
	d.schemaIDs.Store(msg.SchemaSubject, id)
	return id, nil
}

// markPublished stamps published_at per tenant so the row-level policy admits the update.
func (d *Dispatcher) markPublished(ctx context.Context, batch []Message) error {
	byTenant := make(map[string][]Message)
	for _, msg := range batch {
		byTenant[msg.TenantID] = append(byTenant[msg.TenantID], msg)
	}
	for tenantID, msgs := range byTenant {
		err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
			if err := setTenant(ctx, tx, tenantID); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(msgs))
			return err
		})
		if err != nil {
			return fmt.Errorf("mark published for tenant %s: %w", tenantID, err)
		}
	}
	return nil
}

func eventIDs(batch []Message) []int64 {
	ids := make([]int64, len(batch))
	for i, m := range batch {
		ids[i] = m.EventID
	}
	return ids
}

func setTenant(ctx context.Context, tx pgx.Tx, tenantID string) error {
	_, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID)
	return err
}

// encodeWireFormat prefixes payload with the Confluent magic byte and big-endian schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
