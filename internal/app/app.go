package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/vodrules/internal/config"
	"github.com/MrSnakeDoc/vodrules/internal/domain"
	"github.com/MrSnakeDoc/vodrules/internal/extractor"
	"github.com/MrSnakeDoc/vodrules/internal/fetcher"
	"github.com/MrSnakeDoc/vodrules/internal/index"
	"github.com/MrSnakeDoc/vodrules/internal/logger"
	"github.com/MrSnakeDoc/vodrules/internal/metrics"
	"github.com/MrSnakeDoc/vodrules/internal/redis"
	"github.com/MrSnakeDoc/vodrules/internal/rulefile"
	"github.com/MrSnakeDoc/vodrules/internal/scheduler"
	"github.com/MrSnakeDoc/vodrules/internal/sources/sitedb"
	redisstore "github.com/MrSnakeDoc/vodrules/internal/store/redis"
	"github.com/MrSnakeDoc/vodrules/internal/utils"
	"github.com/MrSnakeDoc/vodrules/internal/version"
)

// ledgerTimeout bounds the ledger writes once the harvest is over.
const ledgerTimeout = 10 * time.Second

type App struct {
	cfg     *config.Config
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New loads the configuration from the environment
func New() *App {
	cfg := config.Load()
	return NewWithConfig(cfg, logger.New(cfg.LogLevel, cfg.PrettyLog))
}

// NewWithConfig creates an app from an explicit configuration
func NewWithConfig(cfg *config.Config, log logger.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  log,
		metrics: metrics.New(),
		now:     time.Now,
	}
}

// Run performs one generation run and stops early on SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() { _ = a.logger.Sync() }()

	return a.RunContext(ctx)
}

// RunContext loads the site database and the previous rule file, harvests
// every site, reconciles and writes the rule file once. When RunTimeout
// expires the sites queried so far are kept; a canceled ctx writes nothing.
func (a *App) RunContext(ctx context.Context) error {
	start := a.now()
	a.logger.Infof("🚀 Starting %s", version.String())

	sites, err := a.loadSites()
	if err != nil {
		return err
	}

	format, err := rulefile.ParseFormat(a.cfg.OutputFormat)
	if err != nil {
		return err
	}
	store := rulefile.NewStore(a.cfg.OutputFile, format)

	previous, err := store.Load()
	if err != nil {
		return err
	}
	for _, s := range previous.Skipped {
		a.logger.Debug("skipped rule line",
			logger.Int("line", s.Line),
			logger.String("text", s.Text),
			logger.String("reason", s.Reason))
	}
	a.logger.Info("loaded previous rule file",
		logger.String("path", store.Path()),
		logger.Int("keywords", previous.Rules.Keywords.Len()),
		logger.Int("suffixes", previous.Rules.Suffixes.Len()),
		logger.Int("skipped", len(previous.Skipped)))

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.RunTimeout)
	defer cancel()

	redisClient := a.connectLedger(runCtx)
	if redisClient != nil {
		defer utils.MustClose(redisClient, a.logger, "redis")
	}

	ext, err := a.newExtractor()
	if err != nil {
		return err
	}

	norm := domain.NewNormalizer(a.cfg.NormalizerConfig())
	harvester := scheduler.NewHarvester(ext, norm, index.NewObservationIndex(), a.logger, a.cfg.Workers)

	// Run deadline expiry is a soft stop: the sites that finished still
	// count. Only a cancellation (signal) aborts without writing.
	harvest, err := harvester.Run(runCtx, sites)
	if err != nil {
		return fmt.Errorf("harvest aborted, rule file left untouched: %w", err)
	}

	next := domain.NewReconciler(norm, a.cfg.PruneKeywords).Reconcile(previous.Rules, harvest.Observations)
	a.logDiff(previous.Rules, next)

	if err := store.Save(next); err != nil {
		return err
	}
	a.logger.Info("✅ rule file written",
		logger.String("path", store.Path()),
		logger.Int("keywords", next.Keywords.Len()),
		logger.Int("suffixes", next.Suffixes.Len()))

	if redisClient != nil {
		a.recordLedger(ctx, redisClient, sites, harvest.Reports)
	}

	a.metrics.ObserveReports(harvest.Reports)
	a.metrics.ObserveUnfinished(harvest.Unfinished)
	a.metrics.ObserveRules(next, a.now())
	a.metrics.ObserveDuration(a.now().Sub(start))
	if a.cfg.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Warn("failed to write metrics", logger.Error(err))
		}
	}

	return nil
}

// loadSites reads the site database. Any failure here is fatal and happens
// before network activity.
func (a *App) loadSites() ([]domain.SiteDescriptor, error) {
	db, err := sitedb.NewLoader(a.cfg.SiteDB).Load()
	if err != nil {
		return nil, err
	}

	sites, err := sitedb.NewMapper().MapSites(db)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.SiteDB, err)
	}

	a.logger.Info("loaded site database",
		logger.String("path", a.cfg.SiteDB),
		logger.Int("records", len(db.Sites)),
		logger.Int("sites", len(sites)))

	return sites, nil
}

func (a *App) newExtractor() (*extractor.Extractor, error) {
	f, err := fetcher.New(fetcher.Options{
		Timeout:      a.cfg.RequestTimeout,
		UserAgent:    a.cfg.UserAgent,
		ProxyURL:     a.cfg.HTTPProxy,
		ListingQuery: a.cfg.ListingQuery,
		Rate:         a.cfg.RequestRate,
	})
	if err != nil {
		return nil, err
	}

	policy := extractor.Policy{
		Attempts: a.cfg.Attempts,
		Delay:    a.cfg.AttemptDelay,
		Jitter:   a.cfg.AttemptJitter,
	}
	fields := extractor.Fields{List: a.cfg.ListField, URLs: a.cfg.URLField}

	return extractor.New(f, policy, fields, a.cfg.MinHostLen), nil
}

// connectLedger returns nil when the ledger is disabled or unreachable.
func (a *App) connectLedger(ctx context.Context) *goredis.Client {
	if !a.cfg.LedgerEnabled() {
		a.logger.Debug("redis address not configured, ledger disabled")
		return nil
	}

	client, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           a.cfg.RedisAddr,
		User:           a.cfg.RedisUser,
		Password:       a.cfg.RedisPassword,
		RedisDB:        a.cfg.RedisDB,
		DialTimeout:    a.cfg.RedisDT,
		ReadTimeout:    a.cfg.RedisRT,
		WriteTimeout:   a.cfg.RedisWT,
		PoolSize:       a.cfg.RedisPoolSize,
		ConnectTimeout: a.cfg.RedisConnectTimeout,
		RetryInterval:  a.cfg.RedisRetryInterval,
		MaxWait:        a.cfg.RedisMaxWait,
		PingTimeout:    a.cfg.RedisPingTimeout,
		WarnThreshold:  a.cfg.RedisWarnThreshold,
	}, a.logger)
	if err != nil {
		return nil
	}
	return client
}

// recordLedger stores the site reports and drops entries of removed sites.
// Ledger errors never fail the run.
func (a *App) recordLedger(ctx context.Context, client *goredis.Client, sites []domain.SiteDescriptor, reports []domain.SiteReport) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	ledger := redisstore.NewStore(client, a.cfg.LedgerTTL)
	if err := ledger.SaveReports(ctx, reports); err != nil {
		a.logger.Warn("failed to save site reports to redis", logger.Error(err))
		return
	}

	gc := scheduler.NewGarbageCollector(ledger, a.logger, scheduler.DefaultGCThreshold)
	if _, err := gc.Collect(ctx, sites); err != nil {
		a.logger.Warn("ledger garbage collection failed", logger.Error(err))
	}
}

func (a *App) logDiff(prev, next domain.RuleSet) {
	added, removed := 0, 0
	for _, pair := range [][2]domain.Set{{prev.Keywords, next.Keywords}, {prev.Suffixes, next.Suffixes}} {
		for v := range pair[1] {
			if !pair[0].Has(v) {
				added++
			}
		}
		for v := range pair[0] {
			if !pair[1].Has(v) {
				removed++
			}
		}
	}

	a.logger.Info("reconciled rule set",
		logger.Int("added", added),
		logger.Int("removed", removed),
		logger.Int("total", next.Len()))
}
