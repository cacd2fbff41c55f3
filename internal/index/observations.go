package index

import (
	"sort"
	"sync"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
)

// ObservationIndex collects what site workers observe during a harvest.
// It is safe for concurrent use.
type ObservationIndex struct {
	mu      sync.RWMutex
	obs     domain.Observations
	reports map[string]domain.SiteReport // site name -> report
}

// NewObservationIndex creates an empty index
func NewObservationIndex() *ObservationIndex {
	return &ObservationIndex{
		obs:     domain.NewObservations(),
		reports: make(map[string]domain.SiteReport),
	}
}

// Merge unions obs into the index
func (idx *ObservationIndex) Merge(obs domain.Observations) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.obs.Merge(obs)
}

// Snapshot returns a copy of everything observed so far
func (idx *ObservationIndex) Snapshot() domain.Observations {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return domain.Observations{
		Hostnames: idx.obs.Hostnames.Clone(),
		Keywords:  idx.obs.Keywords.Clone(),
	}
}

// AddReport adds or replaces the report of one site
func (idx *ObservationIndex) AddReport(r domain.SiteReport) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.reports[r.Site] = r
}

// Reports returns all reports ordered by site name
func (idx *ObservationIndex) Reports() []domain.SiteReport {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	reports := make([]domain.SiteReport, 0, len(idx.reports))
	for _, r := range idx.reports {
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Site < reports[j].Site
	})
	return reports
}
