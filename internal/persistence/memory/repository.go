// Package memory provides an in-process activity store for local development and tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"example.com/swimlog/internal/domain"
)

// Repository stores activities in memory, keyed by tenant and user.
type Repository struct {
	mu         sync.RWMutex
	activities map[domain.Owner]map[string]domain.Activity
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{activities: make(map[domain.Owner]map[string]domain.Activity)}
}

// Save implements domain.ActivityRepository.
func (r *Repository) Save(ctx context.Context, owner domain.Owner, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.activities[owner]
	if !ok {
		byID = make(map[string]domain.Activity)
		r.activities[owner] = byID
	}
	byID[activity.ID] = clone(activity)
	return nil
}

// Get implements domain.ActivityRepository.
func (r *Repository) Get(ctx context.Context, owner domain.Owner, activityID string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[owner][activityID]
	if !ok {
		return nil, nil
	}
	out := clone(activity)
	return &out, nil
}

// ListByUser implements domain.ActivityRepository with the same (date DESC, id DESC) keyset
// ordering as the Postgres store.
func (r *Repository) ListByUser(ctx context.Context, owner domain.Owner, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Activity, 0, len(r.activities[owner]))
	for _, a := range r.activities[owner] {
		all = append(all, a)
	}
	slices.SortFunc(all, func(a, b domain.Activity) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	results := make([]domain.Activity, 0, limit)
	for _, a := range all {
		if cursor != nil && !before(a, *cursor) {
			continue
		}
		results = append(results, clone(a))
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{Date: last.Date, ID: last.ID}
	}
	return results, next, nil
}

// Delete implements domain.ActivityRepository.
func (r *Repository) Delete(ctx context.Context, owner domain.Owner, activityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activities[owner][activityID]; !ok {
		return domain.ErrActivityNotFound
	}
	delete(r.activities[owner], activityID)
	return nil
}

// before reports whether a sorts after the cursor position, i.e. (date, id) < cursor.
func before(a domain.Activity, c domain.Cursor) bool {
	if a.Date.Equal(c.Date) {
		return a.ID < c.ID
	}
	return a.Date.Before(c.Date)
}

func clone(a domain.Activity) domain.Activity {
	a.Intervals = slices.Clone(a.Intervals)
	if a.Intervals == nil {
		a.Intervals = []domain.Interval{}
	}
	return a
}
