package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Replayer moves dead-lettered events back into the outbox with exponential backoff and
// quarantines entries that keep failing.
type Replayer struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewReplayer constructs a Replayer. Non-positive settings fall back to 5 retries and 1m.
func NewReplayer(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Replayer {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger.With("component", "dlq")}
}

type dlqEntry struct {
	ID            int64
	TenantID      string
	EventType     string
	Topic         string
	Payload       []byte
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

const dueEntriesQuery = `SELECT dlq_id, tenant_id, event_type, topic, payload, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
    FROM outbox_dlq
    WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
    ORDER BY created_at
    LIMIT $1`

// RunOnce handles up to limit due entries and returns how many went back to the outbox.
func (r *Replayer) RunOnce(ctx context.Context, limit int) (int, error) {
	rows, err := r.pool.Query(ctx, dueEntriesQuery, limit)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dlqEntry, error) {
		var e dlqEntry
		err := row.Scan(&e.ID, &e.TenantID, &e.EventType, &e.Topic, &e.Payload, &e.AggregateType, &e.AggregateID, &e.SchemaSubject, &e.PartitionKey, &e.RetryCount)
		return e, err
	})
	if err != nil {
		return 0, err
	}

	var errs []error
	requeued := 0
	for _, e := range entries {
		ok, err := r.handle(ctx, e)
		if err != nil {
			errs = append(errs, fmt.Errorf("dlq entry %d: %w", e.ID, err))
			continue
		}
		if ok {
			requeued++
		}
	}
	r.updateBacklog(ctx)
	return requeued, errors.Join(errs...)
}

// Run calls RunOnce every interval until ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, interval time.Duration, limit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RunOnce(ctx, limit)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("replay dead letters", "error", err)
			}
			if n > 0 {
				r.logger.Info("requeued dead letters", "count", n)
			}
		}
	}
}

func (r *Replayer) handle(ctx context.Context, e dlqEntry) (requeued bool, err error) {
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := setTenant(ctx, tx, e.TenantID); err != nil {
			return err
		}
		if e.RetryCount >= r.maxRetries {
			dlqQuarantined.WithLabelValues(e.Topic).Inc()
			_, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = 'retry limit reached' WHERE dlq_id = $1`, e.ID)
			return err
		}

		if insertErr := requeue(ctx, tx, e); insertErr != nil {
			dlqRetryScheduled.WithLabelValues(e.Topic).Inc()
			_, err := tx.Exec(ctx,
				`UPDATE outbox_dlq
                    SET retry_count = retry_count + 1, last_attempt_at = NOW(),
                        next_retry_at = NOW() + $1::interval, reason = $2
                  WHERE dlq_id = $3`,
				r.backoff(e.RetryCount+1), insertErr.Error(), e.ID)
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, e.ID); err != nil {
			return err
		}
		requeued = true
		dlqRequeued.WithLabelValues(e.Topic).Inc()
		return nil
	})
	return requeued, err
}

// backoff doubles baseDelay per attempt, capped at one hour.
func (r *Replayer) backoff(attempt int) time.Duration {
	if attempt > 12 {
		return time.Hour
	}
	return min(time.Hour, r.baseDelay<<(attempt-1))
}

func requeue(ctx context.Context, tx pgx.Tx, e dlqEntry) error {
	if e.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject")
	}
	if _, ok := schemaFor[e.EventType]; !ok {
		return fmt.Errorf("no schema metadata for event_type=%s", e.EventType)
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.TenantID, e.AggregateType, e.AggregateID, e.EventType, e.Topic, e.SchemaSubject, e.PartitionKey, e.Payload)
	return err
}

func (r *Replayer) updateBacklog(ctx context.Context) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&n); err != nil {
		return
	}
	dlqBacklog.Set(float64(n))
}
