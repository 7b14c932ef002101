package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/swimlog/internal/domain"
)

// ProjectionStore keeps the weekly_progress read model maintained by the consumer.
type ProjectionStore struct {
	pool *pgxpool.Pool
}

// NewProjectionStore constructs a ProjectionStore.
func NewProjectionStore(pool *pgxpool.Pool) *ProjectionStore {
	return &ProjectionStore{pool: pool}
}

// UpsertWeekly stores report as the owner's progress for the week starting at report.Start.
func (s *ProjectionStore) UpsertWeekly(ctx context.Context, owner domain.Owner, report domain.WeeklyReport) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", owner.TenantID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO weekly_progress (tenant_id, user_id, week_start, activity_count, total_distance,
                    total_duration_minutes, average_pace, average_heart_rate, distance_progress, time_progress)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
             ON CONFLICT (tenant_id, user_id, week_start) DO UPDATE SET
                    activity_count = EXCLUDED.activity_count,
                    total_distance = EXCLUDED.total_distance,
                    total_duration_minutes = EXCLUDED.total_duration_minutes,
                    average_pace = EXCLUDED.average_pace,
                    average_heart_rate = EXCLUDED.average_heart_rate,
                    distance_progress = EXCLUDED.distance_progress,
                    time_progress = EXCLUDED.time_progress,
                    updated_at = NOW()`,
			owner.TenantID, owner.UserID, report.Start.Format("2006-01-02"),
			report.Stats.Count, report.Stats.TotalDistance, report.Stats.TotalDurationMinutes,
			report.Stats.AveragePace, report.Stats.AverageHeartRate,
			report.DistanceProgress, report.TimeProgress,
		)
		return err
	})
}

// WeeklyProgress is a stored weekly_progress row.
type WeeklyProgress struct {
	WeekStart        string
	Stats            domain.Summary
	DistanceProgress float64
	TimeProgress     float64
}

// GetWeekly returns the stored progress for weekStart (YYYY-MM-DD), or nil when absent.
func (s *ProjectionStore) GetWeekly(ctx context.Context, owner domain.Owner, weekStart string) (*WeeklyProgress, error) {
	var out *WeeklyProgress
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", owner.TenantID); err != nil {
			return err
		}
		var p WeeklyProgress
		err := tx.QueryRow(ctx,
			`SELECT to_char(week_start, 'YYYY-MM-DD'), activity_count, total_distance, total_duration_minutes,
                    average_pace, average_heart_rate, distance_progress, time_progress
               FROM weekly_progress WHERE tenant_id=$1 AND user_id=$2 AND week_start=$3`,
			owner.TenantID, owner.UserID, weekStart,
		).Scan(&p.WeekStart, &p.Stats.Count, &p.Stats.TotalDistance, &p.Stats.TotalDurationMinutes,
			&p.Stats.AveragePace, &p.Stats.AverageHeartRate, &p.DistanceProgress, &p.TimeProgress)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		out = &p
		return nil
	})
	return out, err
}
