// Package syncer pulls activities from the remote store into the local service.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/observability"
)

// Fetcher returns the raw records of one user.
type Fetcher interface {
	FetchActivities(ctx context.Context, userID string) ([]domain.Record, error)
}

// Importer stores raw records for an owner.
type Importer interface {
	ImportRecords(ctx context.Context, owner domain.Owner, records []domain.Record) (domain.ImportResult, error)
}

// Syncer copies store records into the service for a set of owners.
type Syncer struct {
	fetcher  Fetcher
	importer Importer
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Syncer. A nil logger uses slog.Default.
func New(fetcher Fetcher, importer Importer, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		fetcher:  fetcher,
		importer: importer,
		logger:   logger.With("component", "syncer"),
		now:      time.Now,
	}
}

// SyncOwner fetches and imports the owner's records. Records that fail normalization are logged and
// counted but do not fail the sync.
func (s *Syncer) SyncOwner(ctx context.Context, owner domain.Owner) (domain.ImportResult, error) {
	records, err := s.fetcher.FetchActivities(ctx, owner.UserID)
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("fetch %s/%s: %w", owner.TenantID, owner.UserID, err)
	}
	result, err := s.importer.ImportRecords(ctx, owner, records)
	observability.RecordImport("sync", len(result.Imported), result.RejectionReasons(), s.now())
	if err != nil {
		return result, fmt.Errorf("import %s/%s: %w", owner.TenantID, owner.UserID, err)
	}
	for _, rej := range result.Rejected {
		s.logger.Warn("record rejected", "tenant_id", owner.TenantID, "user_id", owner.UserID, "index", rej.Index, "error", rej.Err)
	}
	s.logger.Info("sync complete", "tenant_id", owner.TenantID, "user_id", owner.UserID,
		"imported", len(result.Imported), "rejected", len(result.Rejected))
	return result, nil
}

// SyncAll runs SyncOwner for every owner and joins the failures.
func (s *Syncer) SyncAll(ctx context.Context, owners []domain.Owner) error {
	var errs []error
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.SyncOwner(ctx, owner); err != nil {
			s.logger.Error("sync failed", "tenant_id", owner.TenantID, "user_id", owner.UserID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
