package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
	"github.com/MrSnakeDoc/vodrules/internal/logger"
)

const (
	// DefaultGCThreshold is how long a report of a removed site is kept
	DefaultGCThreshold = 7 * 24 * time.Hour // 7 days
)

// ReportStore is the part of the observation ledger the collector needs.
type ReportStore interface {
	Sites(ctx context.Context) ([]string, error)
	GetReport(ctx context.Context, site string) (*domain.SiteReport, error)
	DeleteReport(ctx context.Context, site string) error
}

// GarbageCollector removes ledger entries of sites that left the site database
type GarbageCollector struct {
	store     ReportStore
	logger    logger.Logger
	threshold time.Duration
	now       func() time.Time
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(store ReportStore, log logger.Logger, threshold time.Duration) *GarbageCollector {
	if threshold == 0 {
		threshold = DefaultGCThreshold
	}

	return &GarbageCollector{
		store:     store,
		logger:    log,
		threshold: threshold,
		now:       time.Now,
	}
}

// Collect deletes reports of sites missing from active once their last
// report is older than the threshold. Set members whose report already
// expired are dropped as well. It returns the number of sites removed.
func (gc *GarbageCollector) Collect(ctx context.Context, active []domain.SiteDescriptor) (int, error) {
	gc.logger.Debug("running ledger garbage collection")

	sites, err := gc.store.Sites(ctx)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]bool, len(active))
	for _, s := range active {
		keep[s.Name] = true
	}

	now := gc.now()
	deleted := 0

	for _, site := range sites {
		if keep[site] {
			continue
		}

		report, err := gc.store.GetReport(ctx, site)
		if err != nil {
			gc.logger.Warn("failed to read site report",
				logger.String("site", site),
				logger.Error(err))
			continue
		}

		// A nil report expired through its TTL and only the set member remains
		if report != nil {
			if report.FinishedAt.IsZero() || now.Sub(report.FinishedAt) < gc.threshold {
				continue
			}
		}

		if err := gc.store.DeleteReport(ctx, site); err != nil {
			gc.logger.Warn("failed to delete site report",
				logger.String("site", site),
				logger.Error(err))
			continue
		}

		gc.logger.Info("garbage collected removed site",
			logger.String("site", site))

		deleted++
	}

	if deleted > 0 {
		gc.logger.Info("ledger garbage collection completed",
			logger.Int("sites_deleted", deleted))
	} else {
		gc.logger.Debug("no ledger entries to garbage collect")
	}

	return deleted, nil
}
