package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/vodrules/internal/logger"
	"github.com/redis/go-redis/v9"
)

// urgentWindow is the remaining budget under which retry logs escalate to error.
const urgentWindow = 10 * time.Second

// ConnectOptions describes the ledger Redis endpoint and how long to wait for it.
type ConnectOptions struct {
	Addr         string
	User         string
	Password     string
	RedisDB      int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	// ConnectTimeout bounds the whole dial loop.
	ConnectTimeout time.Duration
	// RetryInterval is the first pause between pings; it doubles up to MaxWait.
	RetryInterval time.Duration
	MaxWait       time.Duration
	// PingTimeout bounds a single PING.
	PingTimeout time.Duration
	// WarnThreshold is the number of failed pings logged at warn level
	// before the dialer switches to error level.
	WarnThreshold int
}

// Validate reports the first retry setting that cannot drive the dial loop.
func (o ConnectOptions) Validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"ConnectTimeout", o.ConnectTimeout},
		{"RetryInterval", o.RetryInterval},
		{"MaxWait", o.MaxWait},
		{"PingTimeout", o.PingTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("ledger redis: %s must be positive, got %v", d.name, d.value)
		}
	}
	if o.WarnThreshold < 0 {
		return fmt.Errorf("ledger redis: WarnThreshold must not be negative, got %d", o.WarnThreshold)
	}
	if o.Addr == "" {
		return errors.New("ledger redis: address is empty")
	}
	return nil
}

func (o ConnectOptions) clientOptions() *redis.Options {
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.User,
		Password:     o.Password,
		DB:           o.RedisDB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
	}
}

// New opens the ledger client and pings it until it answers, ConnectTimeout
// elapses or ctx is done. On failure the client is closed and nil returned.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := opts.Validate(); err != nil {
		log.Error("invalid ledger redis options", logger.Error(err))
		return nil, err
	}

	d := &ledgerDialer{
		client: redis.NewClient(opts.clientOptions()),
		opts:   opts,
		log:    log.With(logger.String("addr", opts.Addr)),
	}
	if err := d.dial(ctx); err != nil {
		_ = d.client.Close()
		return nil, err
	}
	return d.client, nil
}

// ledgerDialer runs the ping loop for one client.
type ledgerDialer struct {
	client *redis.Client
	opts   ConnectOptions
	log    logger.Logger
}

func (d *ledgerDialer) dial(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, d.opts.ConnectTimeout)
	defer cancel()

	d.log.Info("connecting to ledger redis", logger.Duration("timeout", d.opts.ConnectTimeout))
	started := time.Now()
	pause := d.opts.RetryInterval

	for attempt := 1; ; attempt++ {
		err := d.ping(ctx)
		if err == nil {
			d.reportConnected(attempt, time.Since(started))
			return nil
		}

		if waitErr := sleepCtx(ctx, pause); waitErr != nil {
			d.log.Warn("ledger redis unavailable, continuing without ledger",
				logger.Int("attempts", attempt),
				logger.Duration("timeout", d.opts.ConnectTimeout),
				logger.Error(err))
			return fmt.Errorf("ledger redis at %s unreachable after %d attempts: %w", d.opts.Addr, attempt, err)
		}

		d.reportRetry(attempt, remaining(ctx), pause, err)
		pause = nextPause(pause, d.opts.MaxWait)
	}
}

func (d *ledgerDialer) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, d.opts.PingTimeout)
	defer cancel()
	return d.client.Ping(pingCtx).Err()
}

func (d *ledgerDialer) reportConnected(attempts int, elapsed time.Duration) {
	if attempts == 1 {
		d.log.Info("connected to ledger redis")
		return
	}
	d.log.Warn("connected to ledger redis after retry",
		logger.Int("attempts", attempts),
		logger.Duration("elapsed", elapsed))
}

func (d *ledgerDialer) reportRetry(attempt int, left, pause time.Duration, err error) {
	fields := []logger.Field{
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", pause),
		logger.Error(err),
	}
	switch {
	case left < urgentWindow:
		d.log.Error("ledger redis still down, connect budget nearly spent",
			append(fields, logger.Duration("remaining", left))...)
	case attempt <= d.opts.WarnThreshold:
		d.log.Warn("ledger redis ping failed, retrying", fields...)
	default:
		d.log.Error("ledger redis ping keeps failing", fields...)
	}
}

// sleepCtx waits for pause or returns ctx.Err() when ctx ends first.
func sleepCtx(ctx context.Context, pause time.Duration) error {
	timer := time.NewTimer(pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextPause doubles the pause, capped at limit.
func nextPause(pause, limit time.Duration) time.Duration {
	pause *= 2
	if pause > limit {
		return limit
	}
	return pause
}

func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
