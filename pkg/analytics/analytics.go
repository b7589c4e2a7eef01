// Package analytics implements the optional Analytics Sink: an async,
// batched writer of block/allow decision events into ClickHouse, for hosts
// that want durable per-decision history beyond the in-memory
// Statistics/Metrics records. The engine never blocks the should_block hot
// path on this sink: events are handed to a buffered channel and flushed by
// a background worker.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one recorded decision.
type Event struct {
	ID         uuid.UUID
	Timestamp  time.Time
	URL        string
	SourceHost string
	Blocked    bool
	RuleID     uint64
}

// Options configures the sink's ClickHouse connection and batching.
type Options struct {
	Addresses  []string
	Database   string
	Username   string
	Password   string
	BatchSize  int           // rows buffered before a forced flush
	FlushEvery time.Duration // forced flush interval regardless of batch size
}

const (
	defaultBatchSize  = 500
	defaultFlushEvery = 2 * time.Second
	channelCapacity   = 10000
)

// batch is the subset of clickhouse-go's driver.Batch the sink needs,
// narrowed so insertBatch's call shape can be tested against a fake without
// a live ClickHouse server.
type batch interface {
	Append(v ...interface{}) error
	Send() error
}

// conn is the subset of clickhouse-go's driver.Conn the sink needs.
type conn interface {
	Ping(ctx context.Context) error
	PrepareBatch(ctx context.Context, query string) (batch, error)
	Close() error
}

// chConn adapts a real clickhouse.Conn to the narrow conn interface above;
// driver.Batch already satisfies batch, so only PrepareBatch needs
// forwarding.
type chConn struct {
	clickhouse.Conn
}

func (c chConn) PrepareBatch(ctx context.Context, query string) (batch, error) {
	return c.Conn.PrepareBatch(ctx, query)
}

// Sink batches Events and inserts them into ClickHouse on a background
// goroutine. Record never blocks the caller past a channel send; a full
// channel drops the event and logs the drop, so the hot path is never
// slowed by an optional sink.
type Sink struct {
	conn   conn
	logger *zap.Logger

	events     chan Event
	batchSize  int
	flushEvery time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New opens a ClickHouse connection and constructs a Sink. It does not start
// the background flush loop; call Start for that.
func New(opts Options, logger *zap.Logger) (*Sink, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("analytics: at least one clickhouse address is required")
	}

	c, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addresses,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: open clickhouse connection: %w", err)
	}

	return newSink(chConn{c}, opts, logger)
}

// newSink builds a Sink around an already-open conn, applying batching
// defaults and pinging once up front. Split out from New so tests can
// exercise Record/flush/insertBatch against a fake conn instead of a live
// ClickHouse server.
func newSink(c conn, opts Options, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("analytics: ping clickhouse: %w", err)
	}

	return &Sink{
		conn:       c,
		logger:     logger,
		events:     make(chan Event, channelCapacity),
		batchSize:  batchSize,
		flushEvery: flushEvery,
		done:       make(chan struct{}),
	}, nil
}

// Record enqueues an event for the next flush. Non-blocking: if the internal
// buffer is full the event is dropped and a warning is logged.
func (s *Sink) Record(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Warn("analytics: event buffer full, dropping event", zap.String("url", e.URL))
	}
}

// Start launches the background batching/flush loop.
func (s *Sink) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.done)
		batch := make([]Event, 0, s.batchSize)
		ticker := time.NewTicker(s.flushEvery)
		defer ticker.Stop()

		flushCtx := ctx
		flush := func() {
			if len(batch) == 0 {
				return
			}
			if err := s.insertBatch(flushCtx, batch); err != nil {
				s.logger.Warn("analytics: batch insert failed", zap.Error(err), zap.Int("rows", len(batch)))
			}
			batch = batch[:0]
		}

		for {
			select {
			case <-ctx.Done():
				// Drain what Record queued before Stop, then flush it under a
				// live context, since ctx itself is already cancelled.
				for drained := false; !drained; {
					select {
					case e := <-s.events:
						batch = append(batch, e)
					default:
						drained = true
					}
				}
				flushCtx = context.Background()
				flush()
				return
			case e := <-s.events:
				batch = append(batch, e)
				if len(batch) >= s.batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()
}

func (s *Sink) insertBatch(ctx context.Context, events []Event) error {
	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stmt, err := s.conn.PrepareBatch(ictx, "INSERT INTO filter_decisions (id, ts, url, source_host, blocked, rule_id)")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, e := range events {
		if err := stmt.Append(e.ID, e.Timestamp, e.URL, e.SourceHost, e.Blocked, e.RuleID); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return stmt.Send()
}

// Stop drains and flushes remaining events, then closes the connection.
func (s *Sink) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return s.conn.Close()
}
