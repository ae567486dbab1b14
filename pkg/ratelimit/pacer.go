package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request pacing.
var (
	pacerWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reporter_pacer_wait_seconds",
		Help:    "Time spent waiting for a request slot by backend",
		Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"backend"})

	pacerFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporter_pacer_redis_fallbacks_total",
		Help: "Total number of times Redis pacing failed and local pacing was used",
	})
)

// minPoll bounds how often a waiter re-checks a Redis slot without a TTL.
const minPoll = 10 * time.Millisecond

// Pacer gates requests so that at most one starts per interval.
type Pacer struct {
	redis    *redis.Client
	key      string
	interval time.Duration
	logger   zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewPacer creates a pacer. redisClient may be nil for in-process pacing.
// An interval <= 0 disables pacing.
func NewPacer(redisClient *redis.Client, interval time.Duration, logger zerolog.Logger) *Pacer {
	return &Pacer{
		redis:    redisClient,
		key:      RedisKeySlot,
		interval: interval,
		logger:   logger,
		state:    State{Interval: interval},
	}
}

// Interval returns the configured minimum spacing.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until a request slot is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return nil
	}

	start := time.Now()
	backend := "local"

	var err error
	if p.redis != nil {
		backend = "redis"
		err = p.waitRedis(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("Redis pacing failed, falling back to local pacing")
			pacerFallbacksTotal.Inc()
			backend = "local"
			err = p.waitLocal(ctx)
		}
	} else {
		err = p.waitLocal(ctx)
	}

	waited := time.Since(start)
	pacerWaitSeconds.WithLabelValues(backend).Observe(waited.Seconds())
	if err != nil {
		return err
	}

	if waited > minPoll {
		p.logger.Debug().
			Str("backend", backend).
			Dur("waited", waited).
			Msg("Request paced")
	}
	return nil
}

// waitLocal enforces the interval within this process.
func (p *Pacer) waitLocal(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d := p.state.WaitDuration(time.Now()); d > 0 {
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
	p.state.LastRequest = time.Now()
	return nil
}

// waitRedis claims the shared slot key. The key expires after one interval, so
// whoever sets it owns the current slot and everyone else waits out its TTL.
func (p *Pacer) waitRedis(ctx context.Context) error {
	for {
		ok, err := p.redis.SetNX(ctx, p.key, time.Now().UnixMilli(), p.interval).Result()
		if err != nil {
			return fmt.Errorf("claim pacing slot: %w", err)
		}
		if ok {
			return nil
		}

		ttl, err := p.redis.PTTL(ctx, p.key).Result()
		if err != nil {
			return fmt.Errorf("read pacing slot ttl: %w", err)
		}
		// go-redis reports -1 for a key without expiry and -2 for a missing key.
		if ttl == -1 {
			if err := p.redis.PExpire(ctx, p.key, p.interval).Err(); err != nil {
				return fmt.Errorf("repair pacing slot ttl: %w", err)
			}
		}
		if ttl <= 0 {
			ttl = minPoll
		}

		if err := sleep(ctx, ttl); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for request slot: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
