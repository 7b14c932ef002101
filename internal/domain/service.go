// Package domain holds the swim activity model and the pure calculations over it, plus the
// service that ties them to storage.
package domain

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultPageSize = 200

// Cursor models the pagination token over (date, id).
type Cursor struct {
	Date time.Time
	ID   string
}

// ActivityRepository captures persistence operations.
type ActivityRepository interface {
	// Save inserts or replaces the activity and its intervals. IDs are already assigned.
	Save(ctx context.Context, owner Owner, activity Activity) error
	// Get returns nil without error when the activity does not exist.
	Get(ctx context.Context, owner Owner, activityID string) (*Activity, error)
	// ListByUser returns activities newest first.
	ListByUser(ctx context.Context, owner Owner, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	// Delete returns ErrActivityNotFound when nothing was removed.
	Delete(ctx context.Context, owner Owner, activityID string) error
}

// Service orchestrates activity workflows.
type Service struct {
	repo       ActivityRepository
	normalizer Normalizer
	target     WeeklyTarget
	pageSize   int
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLocation anchors imported dates in loc.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.normalizer.Location = loc
		}
	}
}

// WithWeeklyTarget sets the goal reported by Weekly.
func WithWeeklyTarget(target WeeklyTarget) ServiceOption {
	return func(s *Service) {
		s.target = target
	}
}

// WithPageSize sets how many rows ListActivities requests per page.
func WithPageSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Target returns the configured weekly target.
func (s *Service) Target() WeeklyTarget {
	return s.target
}

// RecordRejection describes a raw record that could not be normalized.
type RecordRejection struct {
	Index int
	Err   error
}

// ImportResult reports the outcome of ImportRecords.
type ImportResult struct {
	Imported []Activity
	Rejected []RecordRejection
}

// RejectionReasons classifies each rejection with RejectionReason.
func (r ImportResult) RejectionReasons() []string {
	reasons := make([]string, len(r.Rejected))
	for i, rej := range r.Rejected {
		reasons[i] = RejectionReason(rej.Err)
	}
	return reasons
}

// ImportRecords normalizes and stores each record. A record that fails normalization is reported
// in the result and does not stop the rest; a storage failure aborts the import.
func (s *Service) ImportRecords(ctx context.Context, owner Owner, records []Record) (ImportResult, error) {
	if !owner.Valid() {
		return ImportResult{}, ErrInvalidOwner
	}
	result := ImportResult{Imported: make([]Activity, 0, len(records))}
	for i, raw := range records {
		activity, err := s.normalizer.Normalize(raw)
		if err != nil {
			result.Rejected = append(result.Rejected, RecordRejection{Index: i, Err: err})
			continue
		}
		assignIDs(owner, &activity)
		if err := s.repo.Save(ctx, owner, activity); err != nil {
			return result, err
		}
		result.Imported = append(result.Imported, activity)
	}
	return result, nil
}

// activityNamespace scopes IDs derived for records that arrive without one.
var activityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://swimlog.example.com/activities"))

// assignIDs fills missing IDs deterministically: an activity ID comes from the owner and the
// session's content, interval IDs from the activity ID and position. Importing the same session
// again therefore replaces it instead of storing a copy.
func assignIDs(owner Owner, a *Activity) {
	if a.ID == "" {
		a.ID = derivedActivityID(owner, *a)
	}
	parent := uuid.NewSHA1(activityNamespace, []byte(owner.TenantID+"/"+owner.UserID+"/"+a.ID))
	for i := range a.Intervals {
		if a.Intervals[i].ID == "" {
			a.Intervals[i].ID = uuid.NewSHA1(parent, []byte(strconv.Itoa(i))).String()
		}
	}
}

func derivedActivityID(owner Owner, a Activity) string {
	date := ""
	if !a.Date.IsZero() {
		date = a.Date.UTC().Format(time.RFC3339)
	}
	key := strings.Join([]string{
		owner.TenantID,
		owner.UserID,
		date,
		strconv.Itoa(a.Distance),
		strconv.Itoa(a.DurationMinutes),
		string(a.LocationType),
		a.LocationName,
		strconv.Itoa(len(a.Intervals)),
		a.Notes,
	}, "\x1f")
	return uuid.NewSHA1(activityNamespace, []byte(key)).String()
}

// ListActivities returns every activity of the owner, newest first.
func (s *Service) ListActivities(ctx context.Context, owner Owner) ([]Activity, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}
	var (
		all    []Activity
		cursor *Cursor
	)
	for {
		page, next, err := s.repo.ListByUser(ctx, owner, cursor, s.pageSize)
		if err != nil {
			return nil, err
		}
		for _, a := range page {
			all = append(all, s.localize(a))
		}
		if next == nil {
			return all, nil
		}
		cursor = next
	}
}

// ListPage returns one page of the owner's activities, newest first, and the cursor for the next
// page (nil on the last one).
func (s *Service) ListPage(ctx context.Context, owner Owner, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	if !owner.Valid() {
		return nil, nil, ErrInvalidOwner
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	page, next, err := s.repo.ListByUser(ctx, owner, cursor, limit)
	if err != nil {
		return nil, nil, err
	}
	for i := range page {
		page[i] = s.localize(page[i])
	}
	return page, next, nil
}

// History returns the filtered and sorted history view.
func (s *Service) History(ctx context.Context, owner Owner, q HistoryQuery) ([]Activity, error) {
	all, err := s.ListActivities(ctx, owner)
	if err != nil {
		return nil, err
	}
	return q.Run(all), nil
}

// Summary aggregates all activities of the owner.
func (s *Service) Summary(ctx context.Context, owner Owner) (Summary, error) {
	all, err := s.ListActivities(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	return Aggregate(all), nil
}

// Weekly reports the week containing now against the configured target.
func (s *Service) Weekly(ctx context.Context, owner Owner, now time.Time) (WeeklyReport, error) {
	all, err := s.ListActivities(ctx, owner)
	if err != nil {
		return WeeklyReport{}, err
	}
	if loc := s.normalizer.Location; loc != nil {
		now = now.In(loc)
	}
	return WeeklyStats(all, now, s.target), nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, owner Owner, activityID string) (*Activity, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}
	activity, err := s.repo.Get(ctx, owner, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	local := s.localize(*activity)
	return &local, nil
}

// localize expresses stored dates in the configured zone so calendar days read as imported.
func (s *Service) localize(a Activity) Activity {
	if loc := s.normalizer.Location; loc != nil && !a.Date.IsZero() {
		a.Date = a.Date.In(loc)
	}
	return a
}

// DeleteActivity removes an activity.
func (s *Service) DeleteActivity(ctx context.Context, owner Owner, activityID string) error {
	if !owner.Valid() {
		return ErrInvalidOwner
	}
	return s.repo.Delete(ctx, owner, activityID)
}
