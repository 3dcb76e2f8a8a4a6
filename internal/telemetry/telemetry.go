// Package telemetry mirrors Statistics and AlertContext records onto Redis
// pub/sub channels for external dashboards, on a best-effort, throttled
// basis. Each publish is a synchronous Redis call bounded by a two-second
// timeout. Publish failures are logged and swallowed; they never propagate
// into the ingestion path.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lobstream/internal/alerts"
	"lobstream/internal/stats"
)

// Config parametrizes the Redis connection and throttle ceiling.
type Config struct {
	Address        string
	Password       string
	DB             int
	DialTimeout    time.Duration
	ThrottlePerSec int
}

// Publisher is the best-effort Statistics/AlertContext mirror. It satisfies
// supervisor.TelemetryPublisher structurally.
type Publisher struct {
	client *redis.Client
	log    *zap.Logger

	throttleMu    sync.Mutex
	limit         int
	count         int
	windowStart   time.Time
}

// New dials Redis and returns a Publisher. A failed ping is logged but
// does not prevent construction: telemetry is optional and the ingestion
// path must start regardless of Redis availability.
func New(cfg Config, log *zap.Logger) *Publisher {
	opts := &redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	}
	client := redis.NewClient(opts)

	limit := cfg.ThrottlePerSec
	if limit <= 0 {
		limit = 1000
	}

	p := &Publisher{
		client:      client,
		log:         log.Named("telemetry"),
		limit:       limit,
		windowStart: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		p.log.Warn("redis ping failed, telemetry will keep retrying on publish", zap.Error(err))
	}

	return p
}

// PublishStatistics mirrors s onto orderbook:<SYMBOL>, fire-and-forget.
func (p *Publisher) PublishStatistics(symbol string, s stats.Statistics) {
	p.publish(fmt.Sprintf("orderbook:%s", symbol), s)
}

// PublishAlert mirrors a onto alerts:<SYMBOL>, fire-and-forget.
func (p *Publisher) PublishAlert(symbol string, a alerts.AlertContext) {
	p.publish(fmt.Sprintf("alerts:%s", symbol), a)
}

func (p *Publisher) publish(channel string, payload any) {
	if !p.allow() {
		p.log.Debug("telemetry message throttled", zap.String("channel", channel))
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("failed to marshal telemetry payload", zap.String("channel", channel), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.log.Debug("failed to publish telemetry", zap.String("channel", channel), zap.Error(err))
	}
}

func (p *Publisher) allow() bool {
	p.throttleMu.Lock()
	defer p.throttleMu.Unlock()

	now := time.Now()
	if now.Sub(p.windowStart) >= time.Second {
		p.count = 0
		p.windowStart = now
	}
	if p.count >= p.limit {
		return false
	}
	p.count++
	return true
}

// Close closes the underlying Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
