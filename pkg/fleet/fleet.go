// Package fleet implements the optional Fleet Stats Aggregator: a periodic
// push of one engine instance's statistics snapshot into a per-instance Redis
// hash, so a fleet of embedding hosts running the same filter engine can be
// observed in aggregate. It generalizes this codebase's redis.Client
// wrapper (one struct around *redis.Client with a logger, context-scoped
// methods, wrapped errors) into a narrow write-mostly reporter.
package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// memberKey returns the Redis key of the hash this instance writes.
func memberKey(fleetID string) string {
	return "filterengine:fleet:" + fleetID
}

const fleetTTL = 2 * time.Minute

// StatsSource is the subset of pkg/engine.Engine the Aggregator needs,
// accepted as an interface so fleet never imports the engine package
// directly.
type StatsSource interface {
	GetStats() string
	RuleVersion() uint64
}

// Aggregator periodically pushes this instance's statistics snapshot to a
// Redis hash whose key is derived from the instance ID, with a TTL so a crashed instance
// ages out of the fleet view automatically.
type Aggregator struct {
	rdb      *redis.Client
	logger   *zap.Logger
	instance string
	interval time.Duration
	source   StatsSource

	cancel context.CancelFunc
	done   chan struct{}
}

// New connects to addr and constructs an Aggregator for instanceID. It pings
// Redis once up front, matching this codebase's redis.Client constructor
// convention of failing fast on an unreachable backend.
func New(addr, instanceID string, interval time.Duration, source StatsSource, logger *zap.Logger) (*Aggregator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("fleet: connect to redis: %w", err)
	}

	return &Aggregator{
		rdb:      rdb,
		logger:   logger,
		instance: instanceID,
		interval: interval,
		source:   source,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the background push loop. Calling Start twice is a
// programmer error (undefined); Stop cancels the loop and closes the Redis
// connection.
func (a *Aggregator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.push(ctx)
			}
		}
	}()
}

func (a *Aggregator) push(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	key := memberKey(a.instance)
	pipe := a.rdb.Pipeline()
	pipe.HSet(pctx, key, map[string]interface{}{
		"stats":        a.source.GetStats(),
		"rule_version": a.source.RuleVersion(),
		"updated_at":   time.Now().Unix(),
	})
	pipe.Expire(pctx, key, fleetTTL)

	if _, err := pipe.Exec(pctx); err != nil {
		a.logger.Warn("fleet: push failed", zap.Error(err), zap.String("instance", a.instance))
	}
}

// Stop halts the push loop and closes the Redis connection.
func (a *Aggregator) Stop() error {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	return a.rdb.Close()
}
