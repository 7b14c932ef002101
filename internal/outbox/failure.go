package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter keeps undeliverable events in outbox_dlq for inspection.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter returns a writer backed by pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write stores msg with the failure reason under the message's tenant.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		if err := setTenant(ctx, tx, msg.TenantID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			msg.TenantID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason,
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
		)
		return err
	})
}
