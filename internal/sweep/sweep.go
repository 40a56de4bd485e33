// Package sweep removes blobs that no item references.
//
// Such orphans are left behind when compensation after a failed create or
// update could not delete what it wrote. Blobs younger than the grace period
// are skipped because they may belong to an operation that has not committed
// yet.
package sweep

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/blob"
	"github.com/erazemk/porabnik/internal/store"
)

// Result summarizes one sweep.
type Result struct {
	Scanned int
	Recent  int
	Deleted []string
	Freed   int64
}

// Run deletes every unreferenced blob older than grace. Individual delete
// failures do not stop the sweep; they are returned together.
func Run(ctx context.Context, database *sql.DB, blobs blob.Store, grace time.Duration, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Blobs are listed before references are read, so a blob committed in
	// between is seen as referenced.
	objects, err := blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}
	refs, err := store.ReferencedFilenames(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("loading references: %w", err)
	}

	cutoff := time.Now().Add(-grace)
	res := &Result{Scanned: len(objects)}
	var errs error
	for _, obj := range objects {
		if refs[obj.Key] {
			continue
		}
		if obj.ModTime.After(cutoff) {
			res.Recent++
			continue
		}
		if err := blobs.Delete(ctx, obj.Key); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deleting %s: %w", obj.Key, err))
			continue
		}
		res.Deleted = append(res.Deleted, obj.Key)
		res.Freed += obj.Size
	}

	logger.Info("orphan sweep finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("recent", res.Recent),
		zap.Int("deleted", len(res.Deleted)),
		zap.String("freed", humanize.Bytes(uint64(res.Freed))),
		zap.Error(errs),
	)
	return res, errs
}

// Scheduler runs the sweep on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	db     *sql.DB
	blobs  blob.Store
	grace  time.Duration
	logger *zap.Logger
}

// NewScheduler creates a Scheduler. It does nothing until Start.
func NewScheduler(database *sql.DB, blobs blob.Store, grace time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		db:     database,
		blobs:  blobs,
		grace:  grace,
		logger: logger,
	}
}

// Start registers the sweep under a standard five-field cron spec and starts
// the scheduler.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("scheduling sweep %q: %w", spec, err)
	}
	s.logger.Info("starting sweep scheduler", zap.String("schedule", spec), zap.Duration("grace", s.grace))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping sweep scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := Run(ctx, s.db, s.blobs, s.grace, s.logger); err != nil {
		s.logger.Error("orphan sweep failed", zap.Error(err))
	}
}
