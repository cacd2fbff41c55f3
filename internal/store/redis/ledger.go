package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
)

// DefaultReportTTL is the default lifetime of a site report (30 days)
const DefaultReportTTL = 30 * 24 * time.Hour

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store records per-site harvest reports in Redis
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new Redis store. A zero ttl selects DefaultReportTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// GetReport retrieves the last report of a site. A site without a report
// returns (nil, nil).
func (s *Store) GetReport(ctx context.Context, site string) (*domain.SiteReport, error) {
	data, err := s.client.Get(ctx, SiteKey(site)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get site report: %w", err)
	}

	var report domain.SiteReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal site report: %w", err)
	}

	return &report, nil
}

// Sites returns the names of all sites that ever reported
func (s *Store) Sites(ctx context.Context) ([]string, error) {
	sites, err := s.client.SMembers(ctx, AllSitesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get site names: %w", err)
	}
	return sites, nil
}

// SaveReports stores the reports of one run. The failure streak of each
// report continues the streak of the previously stored report.
func (s *Store) SaveReports(ctx context.Context, reports []domain.SiteReport) error {
	if len(reports) == 0 {
		return nil
	}

	previous, err := s.previousReports(ctx, reports)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for i := range reports {
		report := reports[i]
		report.FailureStreak = NextFailureStreak(previous[report.Site], report)

		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal site report %s: %w", report.Site, err)
		}

		pipe.Set(ctx, SiteKey(report.Site), data, s.ttl)
		pipe.SAdd(ctx, AllSitesKey(), report.Site)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save site reports: %w", err)
	}

	return nil
}

// DeleteReport removes a site report
func (s *Store) DeleteReport(ctx context.Context, site string) error {
	if err := s.client.Del(ctx, SiteKey(site)).Err(); err != nil {
		return fmt.Errorf("failed to delete site report: %w", err)
	}

	if err := s.client.SRem(ctx, AllSitesKey(), site).Err(); err != nil {
		return fmt.Errorf("failed to remove site from set: %w", err)
	}

	return nil
}

// previousReports loads the stored reports of the given sites in one round trip.
func (s *Store) previousReports(ctx context.Context, reports []domain.SiteReport) (map[string]*domain.SiteReport, error) {
	keys := make([]string, len(reports))
	for i, r := range reports {
		keys[i] = SiteKey(r.Site)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load previous site reports: %w", err)
	}

	previous := make(map[string]*domain.SiteReport, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r domain.SiteReport
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		previous[reports[i].Site] = &r
	}

	return previous, nil
}

// NextFailureStreak returns the failure streak of cur given the previous
// report of the same site, nil when there is none.
func NextFailureStreak(prev *domain.SiteReport, cur domain.SiteReport) int {
	if cur.Productive {
		return 0
	}
	if prev == nil {
		return 1
	}
	return prev.FailureStreak + 1
}
