package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/port"
)

type ConsumerOptions struct {
	Group        string
	Partitions   []int // nil consumes every partition of the log
	BatchSize    int
	LeaseTTL     time.Duration
	ApplyTimeout time.Duration
	RetryBase    time.Duration
	RetryMax     time.Duration
	Logger       *logger.Logger
}

// Consumer runs one worker per partition: read after the committed offset, apply, alert,
// then commit. Transport failures are retried with backoff; data errors are reported and
// skipped.
type Consumer struct {
	log      port.TransactionLog
	offsets  port.OffsetStore
	leases   port.LeaseManager
	applier  *Applier
	emitter  *AlertEmitter
	reporter port.ErrorReporter
	opts     ConsumerOptions
	logg     *logger.Logger

	owned atomic.Int32
}

func NewConsumer(log port.TransactionLog, offsets port.OffsetStore, leases port.LeaseManager,
	applier *Applier, emitter *AlertEmitter, reporter port.ErrorReporter, opts ConsumerOptions) *Consumer {
	if opts.Group == "" {
		opts.Group = "inventory-applier"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 15 * time.Second
	}
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = 5 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 100 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if len(opts.Partitions) == 0 {
		for p := 0; p < log.Partitions(); p++ {
			opts.Partitions = append(opts.Partitions, p)
		}
	}
	return &Consumer{
		log:      log,
		offsets:  offsets,
		leases:   leases,
		applier:  applier,
		emitter:  emitter,
		reporter: reporter,
		opts:     opts,
		logg:     opts.Logger,
	}
}

// OwnedPartitions returns how many partitions this consumer currently holds a lease for.
func (c *Consumer) OwnedPartitions() int {
	return int(c.owned.Load())
}

// Run blocks until ctx is cancelled and every worker has finished its in-flight entry.
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range c.opts.Partitions {
		wg.Add(1)
		go func(partition int) {
			defer wg.Done()
			c.runPartition(c.logg.WithPartition(ctx, partition), partition)
		}(p)
	}
	wg.Wait()
}

func (c *Consumer) runPartition(ctx context.Context, partition int) {
	for ctx.Err() == nil {
		lease, err := c.leases.Acquire(ctx, c.opts.Group, partition, c.opts.LeaseTTL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, domain.ErrLeaseNotObtained) {
				c.logg.Error(ctx, "acquire partition lease", err)
			}
			if !sleep(ctx, c.opts.LeaseTTL/3) {
				return
			}
			continue
		}

		c.owned.Add(1)
		c.logg.Info(ctx, "partition acquired")
		err = c.consume(ctx, partition, lease)
		c.owned.Add(-1)

		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ApplyTimeout)
		if rerr := lease.Release(releaseCtx); rerr != nil {
			c.logg.Error(ctx, "release partition lease", rerr)
		}
		cancel()

		if err == nil {
			c.logg.Info(ctx, "partition released")
			continue
		}
		c.logg.Error(ctx, "partition worker stopped", err)
		if !sleep(ctx, c.opts.RetryBase) {
			return
		}
	}
}

var errLeaseLost = errors.New("lease lost")

// consume holds the partition until ctx is cancelled or the lease is lost. The lease is kept
// alive in the background; losing it cancels leaseCtx so that reads, backoffs and commits of
// this worker stop before another owner can take over.
func (c *Consumer) consume(ctx context.Context, partition int, lease port.Lease) error {
	leaseCtx, lost := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.keepAlive(leaseCtx, lease, lost)
	}()
	defer func() {
		lost(nil)
		wg.Wait()
	}()

	var offset string
	err := c.withBackoff(leaseCtx, func(ctx context.Context) error {
		var err error
		offset, err = c.offsets.Committed(ctx, c.opts.Group, partition)
		return err
	})
	if err != nil {
		return stopReason(ctx, leaseCtx, err)
	}

	for leaseCtx.Err() == nil {
		var entries []domain.LogEntry
		err := c.withBackoff(leaseCtx, func(ctx context.Context) error {
			var err error
			entries, err = c.log.Read(ctx, partition, offset, c.opts.BatchSize)
			return err
		})
		if err != nil {
			return stopReason(ctx, leaseCtx, err)
		}

		for _, entry := range entries {
			if leaseCtx.Err() != nil {
				break
			}
			if err := c.process(ctx, leaseCtx, entry); err != nil {
				return stopReason(ctx, leaseCtx, err)
			}
			offset = entry.Position.Sequence
		}
	}
	return stopReason(ctx, leaseCtx, nil)
}

// keepAlive refreshes the lease every third of its TTL. A transport failure is tolerated while
// the last successful refresh is still comfortably inside the TTL.
func (c *Consumer) keepAlive(ctx context.Context, lease port.Lease, lost context.CancelCauseFunc) {
	interval := c.opts.LeaseTTL / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshed := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := lease.Refresh(ctx, c.opts.LeaseTTL)
		switch {
		case err == nil:
			refreshed = time.Now()
		case ctx.Err() != nil:
			return
		case errors.Is(err, domain.ErrTransport) && time.Since(refreshed)+interval < c.opts.LeaseTTL:
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "lease refresh failed, retrying")
		default:
			lost(fmt.Errorf("%w: %w", errLeaseLost, err))
			return
		}
	}
}

func leaseLost(leaseCtx context.Context) bool {
	return errors.Is(context.Cause(leaseCtx), errLeaseLost)
}

// stopReason maps a worker exit to its error: the lease failure when the lease was lost,
// nil on shutdown, err otherwise.
func stopReason(ctx, leaseCtx context.Context, err error) error {
	switch {
	case leaseLost(leaseCtx):
		return context.Cause(leaseCtx)
	case ctx.Err() != nil:
		return nil
	}
	return err
}

// process handles one entry and commits its offset. Once started an apply attempt runs to
// completion on a context detached from shutdown, bounded by the apply timeout. Backoff between
// attempts stops as soon as leaseCtx is done, and nothing is committed after the lease is lost.
func (c *Consumer) process(ctx, leaseCtx context.Context, entry domain.LogEntry) error {
	ctx = c.logg.WithField(ctx, "sequence", entry.Position.Sequence)

	tx, err := domain.DecodeTransaction(entry.Payload)
	if err != nil {
		c.reporter.Report(ctx, entry, err)
		return c.commit(ctx, leaseCtx, entry)
	}
	ctx = c.logg.WithTransaction(ctx, tx.TransactionID, tx.ProductID, tx.StoreLocation)

	attempt := func(context.Context) error {
		applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ApplyTimeout)
		defer cancel()

		result, err := c.applier.Apply(applyCtx, tx)
		if err != nil {
			if domain.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		c.emitter.Emit(applyCtx, result)
		return nil
	}

	err = attempt(ctx)
	if domain.IsRetryable(err) {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "apply failed, retrying with backoff")
		err = retry.Do(leaseCtx, c.backoff(), attempt)
	}

	switch {
	case err == nil:
	case leaseCtx.Err() != nil, domain.IsRetryable(err):
		// not committed, the entry is redelivered to the next owner
		return err
	default:
		c.reporter.Report(ctx, entry, err)
	}
	return c.commit(ctx, leaseCtx, entry)
}

// commit records entry as consumed unless the lease was lost while it was processed. On
// shutdown the in-flight entry is still committed.
func (c *Consumer) commit(ctx, leaseCtx context.Context, entry domain.LogEntry) error {
	if leaseLost(leaseCtx) {
		return context.Cause(leaseCtx)
	}
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ApplyTimeout)
	defer cancel()
	return c.withBackoff(commitCtx, func(ctx context.Context) error {
		return c.offsets.Commit(ctx, c.opts.Group, entry.Position.Partition, entry.Position.Sequence)
	})
}

func (c *Consumer) backoff() retry.Backoff {
	return retry.WithCappedDuration(c.opts.RetryMax, retry.NewExponential(c.opts.RetryBase))
}

// withBackoff retries fn while it fails with a transport error.
func (c *Consumer) withBackoff(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, domain.ErrTransport) {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "transport error, backing off")
			return retry.RetryableError(err)
		}
		return err
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
