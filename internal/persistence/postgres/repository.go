// Package postgres stores swim activities in Postgres and records their change events in the
// outbox within the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/events"
	"example.com/swimlog/internal/observability"
)

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// inTenant runs fn in a transaction scoped to owner's tenant for row-level security.
func (r *Repository) inTenant(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
			return err
		}
		return fn(tx)
	})
}

const upsertActivity = `INSERT INTO activities (tenant_id, user_id, activity_id, activity_date, location_name, location_type,
        pool_size, duration_minutes, distance, water_temp, feeling, heart_rate_avg, heart_rate_max, notes)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    ON CONFLICT (tenant_id, activity_id) DO UPDATE SET
        activity_date = EXCLUDED.activity_date,
        location_name = EXCLUDED.location_name,
        location_type = EXCLUDED.location_type,
        pool_size = EXCLUDED.pool_size,
        duration_minutes = EXCLUDED.duration_minutes,
        distance = EXCLUDED.distance,
        water_temp = EXCLUDED.water_temp,
        feeling = EXCLUDED.feeling,
        heart_rate_avg = EXCLUDED.heart_rate_avg,
        heart_rate_max = EXCLUDED.heart_rate_max,
        notes = EXCLUDED.notes,
        updated_at = NOW()
    WHERE activities.user_id = EXCLUDED.user_id`

// Save implements domain.ActivityRepository. The activity row, its intervals and the
// swim.activity.recorded outbox row are written atomically.
func (r *Repository) Save(ctx context.Context, owner domain.Owner, a domain.Activity) error {
	err := r.inTenant(ctx, owner.TenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upsertActivity,
			owner.TenantID, owner.UserID, a.ID, a.Date, a.LocationName, string(a.LocationType),
			a.PoolSize, a.DurationMinutes, a.Distance, a.WaterTemp, string(a.Feeling),
			a.HeartRateAvg, a.HeartRateMax, a.Notes,
		)
		if err != nil {
			return fmt.Errorf("upsert activity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("activity %s belongs to another user", a.ID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM activity_intervals WHERE tenant_id=$1 AND activity_id=$2`, owner.TenantID, a.ID); err != nil {
			return fmt.Errorf("clear intervals: %w", err)
		}
		if len(a.Intervals) > 0 {
			rows := make([][]any, len(a.Intervals))
			for i, in := range a.Intervals {
				rows[i] = []any{owner.TenantID, a.ID, i, in.ID, in.Distance, string(in.Type), string(in.Stroke), in.Time, in.RestSeconds, in.Notes}
			}
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{"activity_intervals"},
				[]string{"tenant_id", "activity_id", "position", "interval_id", "distance", "segment_type", "stroke", "segment_time", "rest_seconds", "notes"},
				pgx.CopyFromRows(rows),
			)
			if err != nil {
				return fmt.Errorf("copy intervals: %w", err)
			}
		}

		return insertOutbox(ctx, tx, owner, a.ID, events.TypeActivityRecorded, events.ActivityRecorded{
			ActivityID:      a.ID,
			TenantID:        owner.TenantID,
			UserID:          owner.UserID,
			Date:            a.Date,
			Distance:        a.Distance,
			DurationMinutes: a.DurationMinutes,
			Pace:            a.Pace(),
			Feeling:         string(a.Feeling),
			IntervalCount:   len(a.Intervals),
			RecordedAt:      r.now(),
		})
	})
	if err != nil {
		return err
	}
	observability.RecordActivityPersisted(r.now())
	return nil
}

const selectActivity = `SELECT activity_id, activity_date, location_name, location_type, pool_size, duration_minutes,
        distance, water_temp, feeling, heart_rate_avg, heart_rate_max, notes
    FROM activities`

func scanActivity(row pgx.CollectableRow) (domain.Activity, error) {
	var (
		a            domain.Activity
		locationType string
		feeling      string
	)
	err := row.Scan(&a.ID, &a.Date, &a.LocationName, &locationType, &a.PoolSize, &a.DurationMinutes,
		&a.Distance, &a.WaterTemp, &feeling, &a.HeartRateAvg, &a.HeartRateMax, &a.Notes)
	a.LocationType = domain.LocationType(locationType)
	a.Feeling = domain.Feeling(feeling)
	a.Intervals = []domain.Interval{}
	return a, err
}

// Get implements domain.ActivityRepository.
func (r *Repository) Get(ctx context.Context, owner domain.Owner, activityID string) (*domain.Activity, error) {
	var found *domain.Activity
	err := r.inTenant(ctx, owner.TenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectActivity+` WHERE tenant_id=$1 AND user_id=$2 AND activity_id=$3`,
			owner.TenantID, owner.UserID, activityID)
		if err != nil {
			return err
		}
		a, err := pgx.CollectExactlyOneRow(rows, scanActivity)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		list := []domain.Activity{a}
		if err := loadIntervals(ctx, tx, owner.TenantID, list); err != nil {
			return err
		}
		found = &list[0]
		return nil
	})
	return found, err
}

// ListByUser implements domain.ActivityRepository using keyset pagination on (date, id).
func (r *Repository) ListByUser(ctx context.Context, owner domain.Owner, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []any{owner.TenantID, owner.UserID, limit}
	query := selectActivity + ` WHERE tenant_id=$1 AND user_id=$2`
	if cursor != nil {
		query += ` AND (activity_date, activity_id) < ($4, $5)`
		args = append(args, cursor.Date, cursor.ID)
	}
	query += ` ORDER BY activity_date DESC, activity_id DESC LIMIT $3`

	var results []domain.Activity
	err := r.inTenant(ctx, owner.TenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		results, err = pgx.CollectRows(rows, scanActivity)
		if err != nil {
			return err
		}
		return loadIntervals(ctx, tx, owner.TenantID, results)
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{Date: last.Date, ID: last.ID}
	}
	return results, next, nil
}

// loadIntervals fills the intervals of activities in place, in swim order.
func loadIntervals(ctx context.Context, tx pgx.Tx, tenantID string, activities []domain.Activity) error {
	if len(activities) == 0 {
		return nil
	}
	index := make(map[string]int, len(activities))
	ids := make([]string, len(activities))
	for i, a := range activities {
		index[a.ID] = i
		ids[i] = a.ID
	}

	rows, err := tx.Query(ctx,
		`SELECT activity_id, interval_id, distance, segment_type, stroke, segment_time, rest_seconds, notes
           FROM activity_intervals
          WHERE tenant_id=$1 AND activity_id = ANY($2)
          ORDER BY activity_id, position`, tenantID, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			activityID   string
			in           domain.Interval
			kind, stroke string
		)
		if err := rows.Scan(&activityID, &in.ID, &in.Distance, &kind, &stroke, &in.Time, &in.RestSeconds, &in.Notes); err != nil {
			return err
		}
		in.Type = domain.IntervalType(kind)
		in.Stroke = domain.Stroke(stroke)
		i := index[activityID]
		activities[i].Intervals = append(activities[i].Intervals, in)
	}
	return rows.Err()
}

// Delete implements domain.ActivityRepository and records swim.activity.deleted.
func (r *Repository) Delete(ctx context.Context, owner domain.Owner, activityID string) error {
	return r.inTenant(ctx, owner.TenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM activities WHERE tenant_id=$1 AND user_id=$2 AND activity_id=$3`,
			owner.TenantID, owner.UserID, activityID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrActivityNotFound
		}
		return insertOutbox(ctx, tx, owner, activityID, events.TypeActivityDeleted, events.ActivityDeleted{
			ActivityID: activityID,
			TenantID:   owner.TenantID,
			UserID:     owner.UserID,
			DeletedAt:  r.now(),
		})
	})
}

// route describes where an outbox event type is published.
type route struct {
	Topic         string
	SchemaSubject string
}

var routes = map[string]route{
	events.TypeActivityRecorded: {Topic: events.TopicActivityRecorded, SchemaSubject: events.TopicActivityRecorded + "-value"},
	events.TypeActivityDeleted:  {Topic: events.TopicActivityDeleted, SchemaSubject: events.TopicActivityDeleted + "-value"},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, owner domain.Owner, activityID, eventType string, payload any) error {
	rt, ok := routes[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	// Keyed by swimmer so all of one user's events land on one partition in order.
	partitionKey := owner.TenantID + ":" + owner.UserID

	_, err = tx.Exec(ctx,
		`INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		owner.TenantID, "swim_activity", activityID, eventType, rt.Topic, rt.SchemaSubject, partitionKey, body,
	)
	if err != nil {
		return fmt.Errorf("insert outbox %s: %w", eventType, err)
	}
	return nil
}
