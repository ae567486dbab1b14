package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.Del(ctx, RedisKeySlot).Err(); err != nil {
		t.Fatalf("Failed to clear pacing key: %v", err)
	}

	t.Cleanup(func() {
		client.Del(context.Background(), RedisKeySlot)
		client.Close()
	})

	return client
}

func TestState_WaitDuration(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		state   State
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "no previous request",
			state:   State{Interval: time.Second},
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "previous request just now",
			state:   State{Interval: time.Second, LastRequest: now},
			wantMin: time.Second,
			wantMax: time.Second,
		},
		{
			name:    "interval already elapsed",
			state:   State{Interval: time.Second, LastRequest: now.Add(-2 * time.Second)},
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "half elapsed",
			state:   State{Interval: time.Second, LastRequest: now.Add(-500 * time.Millisecond)},
			wantMin: 500 * time.Millisecond,
			wantMax: 500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.state.WaitDuration(now)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("WaitDuration() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestPacer_Disabled(t *testing.T) {
	p := NewPacer(nil, 0, zerolog.Nop())

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled pacer waited %v", elapsed)
	}
}

func TestPacer_NilIsNoop(t *testing.T) {
	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("nil pacer Wait() error = %v", err)
	}
}

func TestPacer_LocalSpacing(t *testing.T) {
	interval := 100 * time.Millisecond
	p := NewPacer(nil, interval, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// first slot is free, the next two wait one interval each
	if elapsed < 2*interval-10*time.Millisecond {
		t.Errorf("3 slots took %v, want at least %v", elapsed, 2*interval)
	}
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(nil, time.Hour, zerolog.Nop())

	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestPacer_RedisSharedSlot(t *testing.T) {
	redisClient := setupTestRedis(t)
	interval := 200 * time.Millisecond

	// Two pacers stand in for two processes sharing one Redis.
	a := NewPacer(redisClient, interval, zerolog.Nop())
	b := NewPacer(redisClient, interval, zerolog.Nop())
	ctx := context.Background()

	if err := a.Wait(ctx); err != nil {
		t.Fatalf("a.Wait() error = %v", err)
	}

	start := time.Now()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("b.Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < interval/2 {
		t.Errorf("second process waited %v, want roughly %v", elapsed, interval)
	}
}

func TestPacer_RedisKeyWithoutExpiry(t *testing.T) {
	redisClient := setupTestRedis(t)
	ctx := context.Background()

	if err := redisClient.Set(ctx, RedisKeySlot, "stale", 0).Err(); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	p := NewPacer(redisClient, 50*time.Millisecond, zerolog.Nop())

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Wait(waitCtx); err != nil {
		t.Fatalf("Wait() error = %v (stale key was not repaired)", err)
	}
}

func TestPacer_RedisUnavailableFallsBack(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer redisClient.Close()

	p := NewPacer(redisClient, 10*time.Millisecond, zerolog.Nop())
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v, want local fallback", err)
	}
}
