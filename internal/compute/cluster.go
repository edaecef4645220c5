// Package compute provides the in-process worker pool used for parallel
// history-file reads.
package compute

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Map after Close.
var ErrClosed = errors.New("compute cluster is closed")

// Cluster runs tasks on a bounded number of workers.
type Cluster struct {
	workers int
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup // In-flight Map calls.
}

// NewCluster brings up a pool of the given size. Sizes below one are
// treated as one, which runs tasks serially.
func NewCluster(workers int, logger *zap.Logger) *Cluster {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers > 1 {
		logger.Info("Compute cluster started", zap.Int("workers", workers))
	} else {
		logger.Debug("Running serially", zap.Int("workers", workers))
	}
	return &Cluster{workers: workers, logger: logger}
}

// Workers returns the pool size.
func (c *Cluster) Workers() int { return c.workers }

// Map calls fn(ctx, i) for every i in [0, n) with at most Workers calls in
// flight. The first error cancels the context passed to the remaining
// calls and is returned once all started calls finish.
func (c *Cluster) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers)
	for i := 0; i < n; i++ {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			return fn(egCtx, i)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	// A cancelled parent may stop the loop before any task fails.
	return ctx.Err()
}

// Close tears the pool down, waiting for in-flight Map calls. It is safe to
// call more than once.
func (c *Cluster) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	if c.workers > 1 {
		c.logger.Info("Compute cluster stopped")
	}
}
