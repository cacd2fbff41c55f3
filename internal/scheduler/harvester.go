package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
	"github.com/MrSnakeDoc/vodrules/internal/extractor"
	"github.com/MrSnakeDoc/vodrules/internal/index"
	"github.com/MrSnakeDoc/vodrules/internal/logger"
)

// SiteExtractor requests one site and returns the union of its attempts.
type SiteExtractor interface {
	Extract(ctx context.Context, site domain.SiteDescriptor) extractor.Extraction
}

// Harvester requests every site of the database across a bounded worker pool
// and collects the observations into an index.
type Harvester struct {
	extractor  SiteExtractor
	normalizer *domain.Normalizer
	index      *index.ObservationIndex
	logger     logger.Logger
	workers    int
}

// Harvest is the outcome of a complete run.
type Harvest struct {
	Observations domain.Observations
	Reports      []domain.SiteReport
	Duration     time.Duration
	// Unfinished counts sites cut short or never queried because the run
	// deadline expired.
	Unfinished int
}

// NewHarvester creates a new harvester
func NewHarvester(
	ext SiteExtractor,
	norm *domain.Normalizer,
	idx *index.ObservationIndex,
	log logger.Logger,
	workers int,
) *Harvester {
	if workers < 1 {
		workers = 1
	}
	return &Harvester{
		extractor:  ext,
		normalizer: norm,
		index:      idx,
		logger:     log,
		workers:    workers,
	}
}

// Run requests all sites. Sites run in parallel, attempts within a site run
// sequentially. When ctx reaches its deadline the remaining requests are
// abandoned and Run returns what was observed so far. When ctx is canceled
// Run returns ctx.Err() and the partial harvest must not be persisted.
func (h *Harvester) Run(ctx context.Context, sites []domain.SiteDescriptor) (Harvest, error) {
	start := time.Now()
	h.logger.Info("harvest started",
		logger.Int("sites", len(sites)),
		logger.Int("workers", h.workers))

	var g errgroup.Group
	g.SetLimit(h.workers)

	var finished atomic.Int32
	for _, site := range sites {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if h.harvestSite(ctx, site) {
				finished.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := ctx.Err()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("harvest interrupted",
			logger.Int("sites_done", int(finished.Load())),
			logger.Error(err))
		return Harvest{}, err
	}

	out := Harvest{
		Observations: h.index.Snapshot(),
		Reports:      h.index.Reports(),
		Duration:     time.Since(start),
		Unfinished:   len(sites) - int(finished.Load()),
	}

	if out.Unfinished > 0 {
		h.logger.Warn("run deadline reached, keeping partial harvest",
			logger.Int("sites_done", int(finished.Load())),
			logger.Int("sites_unfinished", out.Unfinished))
	}

	h.logger.Info("harvest completed",
		logger.Int("hosts", out.Observations.Hostnames.Len()),
		logger.Int("keywords", out.Observations.Keywords.Len()),
		logger.Duration("took", out.Duration))

	return out, nil
}

// harvestSite runs the fetch pipeline of one site and merges the result.
// It reports whether the site ran all its attempts. Hosts seen before a
// deadline cut the site short are merged too; nothing is merged once ctx
// is canceled.
func (h *Harvester) harvestSite(ctx context.Context, site domain.SiteDescriptor) bool {
	log := h.logger.With(logger.String("site", site.Name))

	ext := h.extractor.Extract(ctx, site)
	if errors.Is(ctx.Err(), context.Canceled) {
		return false
	}

	obs := h.normalizer.Observe(ext.Hosts.Sorted()...)
	h.index.Merge(obs)

	if ctx.Err() != nil {
		log.Debug("site cut short by run deadline",
			logger.Int("attempts", len(ext.Attempts)),
			logger.Int("hosts", obs.Hostnames.Len()))
		return false
	}

	report := NewSiteReport(site, ext, obs)
	h.index.AddReport(report)

	if !report.Productive {
		log.Warn("site yielded no playback hosts",
			logger.Int("attempts", report.Attempts),
			logger.Int("failures", report.Failures),
			logger.String("last_error", report.LastError))
		return true
	}

	log.Debug("site harvested",
		logger.Int("attempts", report.Attempts),
		logger.Int("hosts", len(report.Hosts)),
		logger.Strings("keywords", report.Keywords))
	return true
}

// NewSiteReport summarizes the extraction of one site.
func NewSiteReport(site domain.SiteDescriptor, ext extractor.Extraction, obs domain.Observations) domain.SiteReport {
	r := domain.SiteReport{
		Site:       site.Name,
		Endpoint:   site.APIEndpoint,
		Attempts:   len(ext.Attempts),
		Failures:   ext.Failures(),
		Hosts:      obs.Hostnames.Sorted(),
		Keywords:   obs.Keywords.Sorted(),
		FinishedAt: time.Now().UTC(),
	}

	for _, a := range ext.Attempts {
		if a.Productive() {
			r.Productive = true
		}
		switch {
		case a.Failure != nil:
			r.LastError = a.Failure.Error()
		case a.Err != nil:
			r.LastError = a.Err.Error()
		}
	}

	return r
}
