package poller

import (
	"context"
	"sync"
	"time"

	"server/internal/gateway"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// StatusSource retrieves the upstream state of one execution.
type StatusSource interface {
	FetchStatus(ctx context.Context, executionID string) (gateway.StatusReport, error)
}

// JobLifecycle is the slice of the job service the coordinator drives.
type JobLifecycle interface {
	ApplyStatus(ctx context.Context, jobID string, report gateway.StatusReport) error
	Fail(ctx context.Context, jobID, message string) error
	RetrySubmission(ctx context.Context, jobID string) error
}

// Options bounds the polling loop.
type Options struct {
	Interval         time.Duration
	BatchSize        int
	Debounce         time.Duration
	CallTimeout      time.Duration
	MaxFailures      int
	MaxNotFound      int
	MaxJobAge        time.Duration
	SubmitRetryAfter time.Duration
}

// NewOptions derives polling options from service configuration.
func NewOptions(cfg *infra.Config) Options {
	return Options{
		Interval:         cfg.PollInterval,
		BatchSize:        cfg.PollBatchSize,
		Debounce:         cfg.PollDebounce,
		CallTimeout:      cfg.PollCallTimeout,
		MaxFailures:      cfg.PollMaxFailures,
		MaxNotFound:      cfg.PollMaxNotFound,
		MaxJobAge:        cfg.PollMaxJobAge,
		SubmitRetryAfter: cfg.SubmitRetryAfter,
	}
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 5
	}
	if o.MaxNotFound <= 0 {
		o.MaxNotFound = 3
	}
	if o.MaxJobAge <= 0 {
		o.MaxJobAge = 30 * time.Minute
	}
	if o.SubmitRetryAfter <= 0 {
		o.SubmitRetryAfter = time.Minute
	}
	return o
}

// pollable is one row from the active-jobs selection.
type pollable struct {
	jobID       string
	executionID string
	createdAt   time.Time
}

// Coordinator sweeps active jobs against the external pipeline: it fans a
// bounded batch of status calls out per tick, reconciles the reports into
// the job lifecycle, and retries submissions that never got acknowledged.
type Coordinator struct {
	sql    infra.SQLExecutor
	source StatusSource
	jobs   JobLifecycle
	cache  *infra.Cache
	logger infra.Logger
	opts   Options
	now    func() time.Time
}

func NewCoordinator(sql infra.SQLExecutor, source StatusSource, jobs JobLifecycle, cache *infra.Cache, logger infra.Logger, opts Options) *Coordinator {
	return &Coordinator{
		sql:    sql,
		source: source,
		jobs:   jobs,
		cache:  cache,
		logger: logger,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// Run polls until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	c.logger.Info().
		Dur("interval", c.opts.Interval).
		Int("batch_size", c.opts.BatchSize).
		Msg("poller: started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("poller: stopped")
			return ctx.Err()
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep performs one polling pass: active jobs first, then stalled
// submissions.
func (c *Coordinator) Sweep(ctx context.Context) {
	c.pollActive(ctx)
	c.retryStalled(ctx)
}

func (c *Coordinator) pollActive(ctx context.Context) {
	rows, err := c.sql.Query(ctx, sqlinline.QSelectPollable, c.opts.Debounce.Seconds(), c.opts.BatchSize)
	if err != nil {
		c.logger.Error().Err(err).Msg("poller: select pollable")
		return
	}
	var batch []pollable
	for rows.Next() {
		var p pollable
		var executionID *string
		var pollFailures, notFoundCount int
		if err := rows.Scan(&p.jobID, &executionID, &pollFailures, &notFoundCount, &p.createdAt); err != nil {
			rows.Close()
			c.logger.Error().Err(err).Msg("poller: scan pollable")
			return
		}
		if executionID != nil {
			p.executionID = *executionID
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		c.logger.Error().Err(err).Msg("poller: read pollable")
		return
	}

	var wg sync.WaitGroup
	for _, p := range batch {
		// Cross-instance debounce: one poller per job per debounce window.
		if !c.cache.AcquireOnce(ctx, "poll:"+p.jobID, c.opts.Debounce) {
			continue
		}
		wg.Add(1)
		go func(p pollable) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
			defer cancel()
			c.pollOne(callCtx, p)
		}(p)
	}
	wg.Wait()
}

// pollOne fetches one execution's state and folds it into the lifecycle.
func (c *Coordinator) pollOne(ctx context.Context, p pollable) {
	if _, err := c.sql.Exec(ctx, sqlinline.QTouchLastPolled, p.jobID); err != nil {
		c.logger.Error().Err(err).Str("job_id", p.jobID).Msg("poller: touch last polled")
		return
	}
	if c.now().Sub(p.createdAt) > c.opts.MaxJobAge {
		c.fail(ctx, p.jobID, "generation timed out")
		return
	}

	report, err := c.source.FetchStatus(ctx, p.executionID)
	if err != nil {
		if gateway.IsNotFound(err) {
			c.recordNotFound(ctx, p.jobID)
			return
		}
		c.recordFailure(ctx, p.jobID, err)
		return
	}

	if _, err := c.sql.Exec(ctx, sqlinline.QResetPollCounters, p.jobID); err != nil {
		c.logger.Error().Err(err).Str("job_id", p.jobID).Msg("poller: reset counters")
	}
	if err := c.jobs.ApplyStatus(ctx, p.jobID, report); err != nil {
		c.logger.Error().Err(err).Str("job_id", p.jobID).Msg("poller: apply status")
	}
}

// recordNotFound tolerates a bounded number of upstream 404s. Executions can
// be briefly invisible right after submission; a persistent 404 means the
// pipeline lost the job.
func (c *Coordinator) recordNotFound(ctx context.Context, jobID string) {
	var count int
	if err := c.sql.QueryRow(ctx, sqlinline.QIncrementNotFound, jobID).Scan(&count); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("poller: increment not found")
		return
	}
	if count >= c.opts.MaxNotFound {
		c.fail(ctx, jobID, "execution not found upstream")
		return
	}
	c.logger.Warn().Str("job_id", jobID).Int("not_found_count", count).Msg("poller: execution not found yet")
}

func (c *Coordinator) recordFailure(ctx context.Context, jobID string, cause error) {
	var count int
	if err := c.sql.QueryRow(ctx, sqlinline.QIncrementPollFailures, jobID).Scan(&count); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("poller: increment failures")
		return
	}
	if count >= c.opts.MaxFailures {
		c.fail(ctx, jobID, "status polling failed repeatedly")
		return
	}
	c.logger.Warn().Err(cause).Str("job_id", jobID).Int("poll_failures", count).Msg("poller: status call failed")
}

func (c *Coordinator) fail(ctx context.Context, jobID, message string) {
	if err := c.jobs.Fail(ctx, jobID, message); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("poller: fail job")
		return
	}
	c.logger.Warn().Str("job_id", jobID).Str("reason", message).Msg("poller: job failed")
}

// retryStalled reconciles pending jobs whose submission never produced an
// execution id.
func (c *Coordinator) retryStalled(ctx context.Context) {
	rows, err := c.sql.Query(ctx, sqlinline.QSelectUnsubmitted, c.opts.SubmitRetryAfter.Seconds(), c.opts.BatchSize)
	if err != nil {
		c.logger.Error().Err(err).Msg("poller: select unsubmitted")
		return
	}
	type stalled struct {
		jobID     string
		createdAt time.Time
	}
	var batch []stalled
	for rows.Next() {
		var s stalled
		if err := rows.Scan(&s.jobID, &s.createdAt); err != nil {
			rows.Close()
			c.logger.Error().Err(err).Msg("poller: scan unsubmitted")
			return
		}
		batch = append(batch, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		c.logger.Error().Err(err).Msg("poller: read unsubmitted")
		return
	}

	for _, s := range batch {
		if c.now().Sub(s.createdAt) > c.opts.MaxJobAge {
			c.fail(ctx, s.jobID, "submission timed out")
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		if err := c.jobs.RetrySubmission(callCtx, s.jobID); err != nil {
			c.logger.Warn().Err(err).Str("job_id", s.jobID).Msg("poller: retry submission")
		}
		cancel()
	}
}
