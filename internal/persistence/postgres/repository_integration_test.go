//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/events"
)

func TestRepositorySaveAndReload(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	owner := domain.Owner{TenantID: uuid.NewString(), UserID: uuid.NewString()}
	hr := 140
	activity := domain.Activity{
		ID:              uuid.NewString(),
		Date:            time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		LocationName:    "Club Pool",
		LocationType:    domain.LocationPool,
		DurationMinutes: 45,
		Distance:        1500,
		Feeling:         domain.FeelingGood,
		HeartRateAvg:    &hr,
		Intervals: []domain.Interval{
			{ID: uuid.NewString(), Distance: 400, Type: domain.IntervalWarmUp, Stroke: domain.StrokeFreestyle, Time: "7:10.20"},
			{ID: uuid.NewString(), Distance: 100, Type: domain.IntervalSwim, Stroke: domain.StrokeButterfly, Time: "1:45.00", RestSeconds: 30},
		},
	}
	require.NoError(t, repo.Save(ctx, owner, activity))

	stored, err := repo.Get(ctx, owner, activity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, 1500, stored.Distance)
	require.Equal(t, 140, *stored.HeartRateAvg)
	require.Nil(t, stored.HeartRateMax)
	require.Len(t, stored.Intervals, 2)
	require.Equal(t, domain.IntervalWarmUp, stored.Intervals[0].Type)
	require.Equal(t, "1:45.00", stored.Intervals[1].Time)

	// Saving again replaces intervals rather than appending.
	activity.Intervals = activity.Intervals[:1]
	require.NoError(t, repo.Save(ctx, owner, activity))
	stored, err = repo.Get(ctx, owner, activity.ID)
	require.NoError(t, err)
	require.Len(t, stored.Intervals, 1)

	var recorded int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type=$1 AND aggregate_id=$2`,
		events.TypeActivityRecorded, activity.ID).Scan(&recorded))
	require.Equal(t, 2, recorded)
}

func TestRepositoryScopesByOwner(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	owner := domain.Owner{TenantID: uuid.NewString(), UserID: uuid.NewString()}
	activity := domain.Activity{ID: uuid.NewString(), Date: time.Now().UTC(), Distance: 1000, Feeling: domain.FeelingRegular}
	require.NoError(t, repo.Save(ctx, owner, activity))

	other, err := repo.Get(ctx, domain.Owner{TenantID: uuid.NewString(), UserID: owner.UserID}, activity.ID)
	require.NoError(t, err)
	require.Nil(t, other, "another tenant must not see the activity")

	other, err = repo.Get(ctx, domain.Owner{TenantID: owner.TenantID, UserID: uuid.NewString()}, activity.ID)
	require.NoError(t, err)
	require.Nil(t, other, "another user must not see the activity")
}

func TestRepositoryListPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	owner := domain.Owner{TenantID: uuid.NewString(), UserID: uuid.NewString()}
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, owner, domain.Activity{
			ID:       uuid.NewString(),
			Date:     base.AddDate(0, 0, i),
			Distance: 100 * (i + 1),
			Feeling:  domain.FeelingGood,
		}))
	}

	first, cursor, err := repo.ListByUser(ctx, owner, nil, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, cursor)
	require.Equal(t, 500, first[0].Distance)

	second, cursor, err := repo.ListByUser(ctx, owner, cursor, 3)
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Nil(t, cursor)
	require.Equal(t, 100, second[1].Distance)
}

func TestRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	owner := domain.Owner{TenantID: uuid.NewString(), UserID: uuid.NewString()}
	activity := domain.Activity{
		ID: uuid.NewString(), Date: time.Now().UTC(), Distance: 200, Feeling: domain.FeelingBad,
		Intervals: []domain.Interval{{ID: uuid.NewString(), Distance: 200, Type: domain.IntervalSwim, Stroke: domain.StrokeUnknown}},
	}
	require.NoError(t, repo.Save(ctx, owner, activity))
	require.NoError(t, repo.Delete(ctx, owner, activity.ID))
	require.ErrorIs(t, repo.Delete(ctx, owner, activity.ID), domain.ErrActivityNotFound)

	var intervals int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_intervals WHERE activity_id=$1`, activity.ID).Scan(&intervals))
	require.Zero(t, intervals)

	var deleted int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type=$1`, events.TypeActivityDeleted).Scan(&deleted))
	require.Equal(t, 1, deleted)
}

func TestProjectionStoreUpsertsWeek(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	store := NewProjectionStore(pool)

	owner := domain.Owner{TenantID: uuid.NewString(), UserID: uuid.NewString()}
	report := domain.WeeklyReport{
		Start:            time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Stats:            domain.Summary{Count: 2, TotalDistance: 3000, TotalDurationMinutes: 90, AveragePace: "3:00"},
		DistanceProgress: 30,
		TimeProgress:     50,
	}
	require.NoError(t, store.UpsertWeekly(ctx, owner, report))
	report.Stats.Count = 3
	require.NoError(t, store.UpsertWeekly(ctx, owner, report))

	got, err := store.GetWeekly(ctx, owner, "2024-03-04")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 3, got.Stats.Count)
	require.Equal(t, "3:00", got.Stats.AveragePace)

	missing, err := store.GetWeekly(ctx, owner, "2024-03-11")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("swimlog"),
		postgrescontainer.WithUsername("swimlog"),
		postgrescontainer.WithPassword("swimlog"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	files, err := filepath.Glob(filepath.Join(resolvePath(t, "../../../db/migrations"), "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)
	for _, file := range files {
		contents, err := os.ReadFile(file)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(contents))
		require.NoErrorf(t, err, "execute migration %s", file)
	}
	return pool
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
