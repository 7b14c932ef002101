package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/swimlog/internal/auth"
	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/export"
	"example.com/swimlog/internal/persistence/memory"
)

var swimmer = domain.Owner{TenantID: "tenant-1", UserID: "user-1"}

func newTestMux(t *testing.T, repo domain.ActivityRepository, target domain.WeeklyTarget) (*http.ServeMux, *Handler) {
	t.Helper()
	service := domain.NewService(repo, domain.WithLocation(time.UTC), domain.WithWeeklyTarget(target))
	handler := NewHandler(service, WithLocation(time.UTC))
	handler.now = func() time.Time { return time.Date(2024, time.January, 10, 18, 0, 0, 0, time.UTC) }
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux, handler
}

func authed(req *http.Request, owner domain.Owner, scopes ...string) *http.Request {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   owner.UserID,
		TenantID:  owner.TenantID,
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func serve(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func seed(t *testing.T, repo *memory.Repository) {
	t.Helper()
	day := func(d int) time.Time { return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC) }
	for _, a := range []domain.Activity{
		{ID: "jan10", Date: day(10), Distance: 1500, DurationMinutes: 30, Feeling: domain.FeelingGood, LocationName: "Clube"},
		{ID: "jan08", Date: day(8), Distance: 1000, DurationMinutes: 25, Feeling: domain.FeelingTired},
		{ID: "jan07", Date: day(7), Distance: 2000, DurationMinutes: 50, Feeling: domain.FeelingGood},
	} {
		require.NoError(t, repo.Save(context.Background(), swimmer, a))
	}
}

func TestImportRecords(t *testing.T) {
	repo := memory.NewRepository()
	mux, _ := newTestMux(t, repo, domain.WeeklyTarget{})

	body := `{"activities":[
		{"date":"2024-01-10","pool":"Clube","distance":1500,"duration":"1h 15m","feeling":"good"},
		{"date":"2024-01-09","feeling":"good"},
		{"date":"2024-01-08","distance":800,"feeling":"ecstatic"}
	]}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities/import", strings.NewReader(body)), swimmer, auth.ScopeActivitiesWrite)
	rr := serve(mux, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Imported)
	require.Equal(t, "Clube", resp.Activities[0].LocationName)
	require.Equal(t, 75, resp.Activities[0].DurationMinutes)
	require.Equal(t, "1h 15m", resp.Activities[0].DurationLabel)
	require.Equal(t, "5:00", resp.Activities[0].Pace)
	require.Len(t, resp.Rejected, 2)
	require.Equal(t, RejectionView{Index: 1, Reason: "missing_required_field", Detail: "missing required field: distance|duration"}, resp.Rejected[0])
	require.Equal(t, "invalid_feeling", resp.Rejected[1].Reason)

	stored, _, err := repo.ListByUser(context.Background(), swimmer, nil, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestImportRequiresWriteScope(t *testing.T) {
	mux, _ := newTestMux(t, memory.NewRepository(), domain.WeeklyTarget{})
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities/import", strings.NewReader(`{"activities":[{}]}`)), swimmer, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusForbidden, serve(mux, req).Code)
}

func TestImportRejectsBadBodies(t *testing.T) {
	mux, _ := newTestMux(t, memory.NewRepository(), domain.WeeklyTarget{})

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities/import", strings.NewReader(`{`)), swimmer, auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusBadRequest, serve(mux, req).Code)

	req = authed(httptest.NewRequest(http.MethodPost, "/v1/activities/import", strings.NewReader(`{"activities":[]}`)), swimmer, auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusBadRequest, serve(mux, req).Code)

	req = authed(httptest.NewRequest(http.MethodPost, "/v1/activities/import", strings.NewReader(`{"activities":[{"feeling":"good"}]}`)), swimmer, auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusUnprocessableEntity, serve(mux, req).Code)
}

func TestListActivitiesAppliesHistoryQuery(t *testing.T) {
	repo := memory.NewRepository()
	seed(t, repo)
	mux, _ := newTestMux(t, repo, domain.WeeklyTarget{})

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/activities?feeling=good&sort=distance", nil), swimmer, auth.ScopeActivitiesRead)
	rr := serve(mux, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	require.Equal(t, "jan07", resp.Items[0].ID)
	require.Equal(t, "jan10", resp.Items[1].ID)

	req = authed(httptest.NewRequest(http.MethodGet, "/v1/activities?q=clube", nil), swimmer, auth.ScopeActivitiesWrite)
	rr = serve(mux, req)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
}

func TestListActivitiesRejectsUnknownFeeling(t *testing.T) {
	mux, _ := newTestMux(t, memory.NewRepository(), domain.WeeklyTarget{})
	req := authed(httptest.NewRequest(http.MethodGet, "/v1/activities?feeling=ecstatic", nil), swimmer, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusBadRequest, serve(mux, req).Code)
}

func TestListActivitiesRequiresClaims(t *testing.T) {
	mux, _ := newTestMux(t, memory.NewRepository(), domain.WeeklyTarget{})
	rr := serve(mux, httptest.NewRequest(http.MethodGet, "/v1/activities", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetAndDeleteActivity(t *testing.T) {
	repo := memory.NewRepository()
	seed(t, repo)
	mux, _ := newTestMux(t, repo, domain.WeeklyTarget{})

	rr := serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/jan10", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusOK, rr.Code)
	var view ActivityView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Equal(t, "2:00", view.Pace)

	other := domain.Owner{TenantID: swimmer.TenantID, UserID: "user-2"}
	rr = serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/jan10", nil), other, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(mux, authed(httptest.NewRequest(http.MethodDelete, "/v1/activities/jan10", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(mux, authed(httptest.NewRequest(http.MethodDelete, "/v1/activities/jan10", nil), swimmer, auth.ScopeActivitiesWrite))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(mux, authed(httptest.NewRequest(http.MethodDelete, "/v1/activities/jan10", nil), swimmer, auth.ScopeActivitiesWrite))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFeedPagesWithCursor(t *testing.T) {
	repo := memory.NewRepository()
	seed(t, repo)
	mux, _ := newTestMux(t, repo, domain.WeeklyTarget{})

	rr := serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/feed?limit=2", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusOK, rr.Code)
	var first FeedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	require.Len(t, first.Items, 2)
	require.Equal(t, "jan10", first.Items[0].ID)
	require.Equal(t, "jan08", first.Items[1].ID)
	require.NotEmpty(t, first.NextCursor)

	rr = serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/feed?limit=2&cursor="+first.NextCursor, nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusOK, rr.Code)
	var second FeedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	require.Len(t, second.Items, 1)
	require.Equal(t, "jan07", second.Items[0].ID)
	require.Empty(t, second.NextCursor)

	rr = serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/feed?cursor=bm9waXBl", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSummary(t *testing.T) {
	repo := memory.NewRepository()
	seed(t, repo)
	mux, _ := newTestMux(t, repo, domain.WeeklyTarget{})

	rr := serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/summary", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp SummaryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Count)
	require.Equal(t, 4500, resp.TotalDistance)
	require.Equal(t, domain.Pace(4500, 105), resp.AveragePace)
	require.Equal(t, "1h 45m", resp.TotalDurationLabel)
}

func TestWeekly(t *testing.T) {
	repo := memory.NewRepository()
	seed(t, repo)
	mux, _ := newTestMux(t, repo, domain.WeeklyTarget{TargetDistance: 5000, TargetTimeHours: 2})

	rr := serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/weekly", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp WeeklyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Stats.Count)
	require.Equal(t, 2500, resp.Stats.TotalDistance)
	require.InDelta(t, 50.0, resp.DistanceProgress, 0.001)
	require.Equal(t, "2,500 of 5,000 m (50.0%), 55 min of 2h", resp.Label)
}

func TestWeeklyLabelWithoutTarget(t *testing.T) {
	_, handler := newTestMux(t, memory.NewRepository(), domain.WeeklyTarget{})
	label := handler.weeklyLabel(domain.WeeklyReport{Stats: domain.Summary{TotalDistance: 12000, TotalDurationMinutes: 240}})
	require.Equal(t, "12,000 m, 4h", label)
}

func TestExportParquet(t *testing.T) {
	repo := memory.NewRepository()
	seed(t, repo)
	mux, _ := newTestMux(t, repo, domain.WeeklyTarget{})

	rr := serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/export.parquet", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, export.ContentType, rr.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PAR1")))
}

func TestImportFITRejectsGarbage(t *testing.T) {
	mux, _ := newTestMux(t, memory.NewRepository(), domain.WeeklyTarget{})
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities/import/fit", strings.NewReader("nope")), swimmer, auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusBadRequest, serve(mux, req).Code)
}

func TestMethodsAndUnknownRoutes(t *testing.T) {
	mux, _ := newTestMux(t, memory.NewRepository(), domain.WeeklyTarget{})

	rr := serve(mux, authed(httptest.NewRequest(http.MethodPost, "/v1/activities/summary", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/import", nil), swimmer, auth.ScopeActivitiesWrite))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/a/b", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(mux, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

type brokenRepo struct {
	domain.ActivityRepository
}

func (brokenRepo) ListByUser(context.Context, domain.Owner, *domain.Cursor, int) ([]domain.Activity, *domain.Cursor, error) {
	return nil, nil, errors.New("connection refused")
}

func TestStorageFailureIsServerError(t *testing.T) {
	mux, _ := newTestMux(t, brokenRepo{}, domain.WeeklyTarget{})
	rr := serve(mux, authed(httptest.NewRequest(http.MethodGet, "/v1/activities/summary", nil), swimmer, auth.ScopeActivitiesRead))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "server_error", body["type"])
}
