package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/photosmith/photosmith/internal/entity"
	"github.com/photosmith/photosmith/internal/repository"
	"github.com/photosmith/photosmith/internal/retry"
)

// PhotoProcessor is what the controller drives for each claimed item.
type PhotoProcessor interface {
	ProcessPhoto(ctx context.Context, photoID uuid.UUID, progress ProgressFunc) error
}

// Controller pulls claimed items from the queue and runs the pipeline
// under a bounded concurrency budget. Runs are independent; the only
// contended resource is the claim itself, which the queue repository
// serializes.
type Controller struct {
	queue  repository.QueueRepository
	proc   PhotoProcessor
	policy retry.Policy
	logger *slog.Logger

	workers      int
	batchSize    int
	pollInterval time.Duration
	lease        time.Duration

	inFlight atomic.Int32
	paused   atomic.Bool

	runMu     sync.Mutex
	batchCtx  context.Context
	runCancel context.CancelFunc

	wg sync.WaitGroup
}

type Option func(*Controller)

func WithWorkers(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithLease(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.lease = d
		}
	}
}

func NewController(queue repository.QueueRepository, proc PhotoProcessor, policy retry.Policy, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		queue:        queue,
		proc:         proc,
		policy:       policy,
		logger:       logger,
		workers:      4,
		batchSize:    8,
		pollInterval: 5 * time.Second,
		lease:        5 * time.Minute,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run polls and dispatches until ctx is done, then waits for in-flight
// runs to settle.
func (c *Controller) Run(ctx context.Context) {
	c.logger.Info("controller started",
		"workers", c.workers, "batch_size", c.batchSize, "poll_interval", c.pollInterval)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	c.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller shutting down")
			c.wg.Wait()
			c.logger.Info("controller stopped")
			return
		case <-ticker.C:
			c.dispatch(ctx)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context) {
	if c.paused.Load() || ctx.Err() != nil {
		return
	}
	free := c.workers - int(c.inFlight.Load())
	if free <= 0 {
		return
	}
	n := c.batchSize
	if free < n {
		n = free
	}

	items, err := c.queue.Claim(ctx, repository.ClaimParams{BatchSize: n, Lease: c.lease})
	if err != nil {
		c.logger.Error("controller claim failed", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	runCtx := c.batchContext(ctx)
	for _, item := range items {
		c.wg.Add(1)
		c.inFlight.Add(1)
		go func(it *entity.QueueItem) {
			defer c.wg.Done()
			defer c.inFlight.Add(-1)
			c.runItem(runCtx, it)
		}(item)
	}
}

// batchContext returns a context the current batch runs under, derived
// from parent and cancellable by CancelBatch.
func (c *Controller) batchContext(parent context.Context) context.Context {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.runCancel == nil {
		var runCtx context.Context
		runCtx, c.runCancel = context.WithCancel(parent)
		c.batchCtx = runCtx
	}
	return c.batchCtx
}

func (c *Controller) runItem(ctx context.Context, item *entity.QueueItem) {
	heartbeat := func(hbCtx context.Context) {
		if err := c.queue.Heartbeat(hbCtx, item.ID, c.lease); err != nil {
			c.logger.Warn("heartbeat failed", "item_id", item.ID, "error", err)
		}
	}

	err := c.proc.ProcessPhoto(ctx, item.PhotoID, heartbeat)
	if err == nil {
		if mErr := c.queue.MarkCompleted(context.WithoutCancel(ctx), item.ID); mErr != nil {
			c.logger.Error("mark completed failed", "item_id", item.ID, "error", mErr)
		}
		return
	}

	// Queue updates after a failure must survive batch cancellation.
	bg := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		// Cancelled mid-run. Leave the row PROCESSING: CancelBatch reverts
		// it (refunding the attempt), and on shutdown the lease expiry
		// makes it reclaimable.
		c.logger.Info("pipeline run cancelled", "item_id", item.ID)
		return
	}

	switch c.policy.Decide(err, item.Attempts, item.MaxAttempts) {
	case retry.OutcomeRetry:
		delay := c.policy.Backoff(item.Attempts)
		if rErr := c.queue.ReturnToPending(bg, item.ID, err.Error(), delay); rErr != nil {
			c.logger.Error("return to pending failed", "item_id", item.ID, "error", rErr)
		}
	default:
		if fErr := c.queue.MarkFailed(bg, item.ID, err.Error()); fErr != nil {
			c.logger.Error("mark failed failed", "item_id", item.ID, "error", fErr)
		}
	}
}

// InFlight reports how many pipeline runs are currently executing.
func (c *Controller) InFlight() int {
	return int(c.inFlight.Load())
}

// CancelBatch stops dispatching new claims, aborts in-flight runs at
// their next I/O boundary, waits for them to settle, and reverts
// anything still claimed to PENDING. Returns the number of reverted
// items. Dispatch stays paused until Resume.
func (c *Controller) CancelBatch(ctx context.Context) (int, error) {
	c.paused.Store(true)

	c.runMu.Lock()
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	c.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("cancel wait interrupted by context")
	}

	reverted, err := c.queue.RevertInFlight(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Info("batch cancelled", "reverted", reverted)
	return reverted, nil
}

// Resume re-enables dispatch after CancelBatch.
func (c *Controller) Resume() {
	c.paused.Store(false)
	c.logger.Info("dispatch resumed")
}
