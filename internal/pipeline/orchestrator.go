// Package pipeline drives search-and-enrich jobs through their state
// machine, checkpointing after every page so interrupted work resumes
// without re-paying for pages already consumed.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadgrid/leadgen-cli/internal/budget"
	"github.com/leadgrid/leadgen-cli/internal/model"
	"github.com/leadgrid/leadgen-cli/internal/resilience"
	"github.com/leadgrid/leadgen-cli/internal/search"
	"github.com/leadgrid/leadgen-cli/internal/store"
)

// Searcher pages through provider results. Satisfied by
// *search.Provider.
type Searcher interface {
	Run(ctx context.Context, req search.Request, pageFn search.PageFunc) (*search.Summary, error)
}

// Enricher resolves emails for one business. Satisfied by
// *enrich.Waterfall.
type Enricher interface {
	Enrich(ctx context.Context, b *model.BusinessRecord) (*model.EnrichmentResult, error)
}

// Admitter decides whether a place id is new. Satisfied by
// *dedup.Deduplicator.
type Admitter interface {
	Admit(ctx context.Context, placeID string) (bool, error)
}

// DefaultEnrichWorkers bounds how many businesses enrich in parallel.
// Enrichment is network-bound; dedup and budget state are lock-guarded.
const DefaultEnrichWorkers = 4

// Orchestrator owns job lifecycle: create, run, resume, cancel.
type Orchestrator struct {
	store   store.Store
	search  Searcher
	enrich  Enricher
	dedup   Admitter
	pub     Publisher
	workers int
	// strict fails a job on budget exhaustion instead of completing it
	// with whatever was fetched.
	strict bool
	now    func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets the progress publisher.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.pub = p }
}

// WithStrictBudget makes budget exhaustion fail the job.
func WithStrictBudget(strict bool) Option {
	return func(o *Orchestrator) { o.strict = strict }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithEnrichWorkers bounds per-page enrichment parallelism.
func WithEnrichWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// New creates an Orchestrator.
func New(st store.Store, searcher Searcher, enricher Enricher, admitter Admitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   st,
		search:  searcher,
		enrich:  enricher,
		dedup:   admitter,
		pub:     LogPublisher{},
		workers: DefaultEnrichWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewJob builds a queued single-search job. Checkpoint -1 means no page
// has been processed yet.
func (o *Orchestrator) NewJob(query, location string, maxResults int) *model.Job {
	return o.newJob("", model.JobKindSingle, query, location, maxResults)
}

// NewBatchJob builds a queued job belonging to a batch.
func (o *Orchestrator) NewBatchJob(batchID, query, location string, maxResults int) *model.Job {
	return o.newJob(batchID, model.JobKindBatch, query, location, maxResults)
}

func (o *Orchestrator) newJob(batchID string, kind model.JobKind, query, location string, maxResults int) *model.Job {
	now := o.now().UTC()
	return &model.Job{
		ID:         uuid.NewString(),
		BatchID:    batchID,
		Kind:       kind,
		Query:      query,
		Location:   location,
		MaxResults: maxResults,
		Status:     model.JobStatusQueued,
		Total:      maxResults,
		Checkpoint: -1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Submit persists a new job in the queued state.
func (o *Orchestrator) Submit(ctx context.Context, job *model.Job) error {
	if job.Query == "" {
		return &resilience.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	return o.store.CreateJob(ctx, job)
}

// Cancel moves a non-terminal job to cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return eris.Errorf("pipeline: job %s is already %s", jobID, job.Status)
	}
	return o.store.UpdateJobStatus(ctx, jobID, model.JobStatusCancelled, "")
}

// Run executes a job to a terminal state and returns its final record.
// Running a completed job is a no-op, so retrying a finished batch is
// safe. Failed and cancelled jobs restart from their checkpoint: pages
// the previous attempt fully processed are never fetched again.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusCompleted {
		zap.L().Info("job already completed", zap.String("job_id", jobID))
		return job, nil
	}

	if err := o.store.UpdateJobStatus(ctx, jobID, model.JobStatusRunning, ""); err != nil {
		return nil, err
	}
	job.Status = model.JobStatusRunning
	o.publish(job, -1, 0, "started")

	// A resumed job may hold businesses whose enrichment never ran.
	if job.Checkpoint >= 0 {
		if err := o.enrichStored(ctx, job); err != nil {
			return o.finish(ctx, job, err)
		}
	}

	runErr := o.runSearch(ctx, job)
	return o.finish(ctx, job, runErr)
}

// runSearch streams pages from the provider, admitting, persisting, and
// enriching each one before the next page is fetched.
func (o *Orchestrator) runSearch(ctx context.Context, job *model.Job) error {
	req := search.Request{
		Query:      job.Query,
		Location:   job.Location,
		MaxResults: job.MaxResults,
		StartPage:  job.Checkpoint + 1,
	}
	if job.Checkpoint >= 0 {
		// Earlier pages already counted toward Processed; only fetch
		// the remainder.
		req.MaxResults = job.MaxResults - job.Processed
		if req.MaxResults <= 0 {
			return nil
		}
	}

	_, err := o.search.Run(ctx, req, func(ctx context.Context, page search.Page) error {
		admitted, err := o.admitPage(ctx, job, page)
		if err != nil {
			return err
		}

		job.Processed += len(page.Records)
		job.Checkpoint = page.Index
		if err := o.store.UpdateJobProgress(ctx, job.ID, job.Processed, job.Total, job.Checkpoint); err != nil {
			return err
		}
		o.publish(job, page.Index, len(admitted), "")

		return o.enrichAll(ctx, admitted)
	})
	return err
}

// enrichAll runs the waterfall for a page of businesses under the
// worker limit. Individual enrichment failures are absorbed; only
// cancellation stops the group.
func (o *Orchestrator) enrichAll(ctx context.Context, recs []model.BusinessRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range recs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o.enrichOne(gctx, &recs[i])
			return nil
		})
	}
	return g.Wait()
}

// admitPage filters a page through dedup and persists the survivors.
func (o *Orchestrator) admitPage(ctx context.Context, job *model.Job, page search.Page) ([]model.BusinessRecord, error) {
	admitted := make([]model.BusinessRecord, 0, len(page.Records))
	for _, rec := range page.Records {
		if rec.PlaceID == "" || rec.Name == "" {
			zap.L().Debug("skipping malformed record", zap.String("name", rec.Name))
			continue
		}
		ok, err := o.dedup.Admit(ctx, rec.PlaceID)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: admit place")
		}
		if !ok {
			continue
		}
		admitted = append(admitted, rec)
	}
	if len(admitted) == 0 {
		return nil, nil
	}
	if err := o.store.UpsertBusinesses(ctx, job.ID, admitted); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist page")
	}
	return admitted, nil
}

// enrichOne runs the waterfall for one business and saves the outcome.
// Enrichment failures never fail the job; the record just stays bare.
func (o *Orchestrator) enrichOne(ctx context.Context, rec *model.BusinessRecord) {
	res, err := o.enrich.Enrich(ctx, rec)
	if err != nil {
		if ctx.Err() == nil {
			zap.L().Warn("enrichment failed",
				zap.String("place_id", rec.PlaceID),
				zap.Error(err))
		}
		return
	}
	if err := o.store.SaveEnrichment(ctx, res); err != nil {
		zap.L().Warn("saving enrichment failed",
			zap.String("place_id", rec.PlaceID),
			zap.Error(err))
	}
}

// enrichStored re-runs enrichment for businesses a previous attempt
// persisted but never enriched. Idempotent: already-enriched records
// are skipped, and the cache absorbs re-runs of failed ones.
func (o *Orchestrator) enrichStored(ctx context.Context, job *model.Job) error {
	recs, err := o.store.ListJobBusinesses(ctx, job.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: list businesses for resume")
	}
	pending := recs[:0:0]
	for _, rec := range recs {
		if rec.EnrichedAt != nil || rec.EnrichmentFailed {
			continue
		}
		pending = append(pending, rec)
	}
	if len(pending) == 0 {
		return nil
	}
	return o.enrichAll(ctx, pending)
}

// finish maps the run outcome onto a terminal state.
func (o *Orchestrator) finish(ctx context.Context, job *model.Job, runErr error) (*model.Job, error) {
	status := model.JobStatusCompleted
	msg := ""

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = model.JobStatusCancelled
		msg = "cancelled"
	case errors.Is(runErr, budget.ErrBudgetExhausted):
		if o.strict {
			status = model.JobStatusFailed
			msg = runErr.Error()
		} else {
			msg = "budget exhausted, partial results kept"
			zap.L().Warn("job completed early on budget exhaustion",
				zap.String("job_id", job.ID),
				zap.Int("processed", job.Processed))
		}
	case resilience.IsTransient(runErr):
		// A page that exhausted its retries stops the fetch loop, not the
		// job: only auth failures and strict budget exhaustion abort a
		// run. Pages already checkpointed stay kept.
		msg = "provider unavailable, partial results kept"
		zap.L().Warn("job completed early on provider outage",
			zap.String("job_id", job.ID),
			zap.Int("processed", job.Processed),
			zap.Error(runErr))
	default:
		status = model.JobStatusFailed
		msg = runErr.Error()
	}

	// Terminal writes use a fresh context so cancellation cannot strand
	// the job in running.
	updateCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		updateCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := o.store.UpdateJobStatus(updateCtx, job.ID, status, msg); err != nil {
		return nil, eris.Wrap(err, "pipeline: finalize job")
	}
	job.Status = status
	job.Error = msg
	o.publish(job, job.Checkpoint, 0, msg)

	if status == model.JobStatusFailed {
		return job, eris.Wrapf(runErr, "pipeline: job %s failed", job.ID)
	}
	return job, nil
}

func (o *Orchestrator) publish(job *model.Job, page, admitted int, msg string) {
	if o.pub == nil {
		return
	}
	o.pub.Publish(Event{
		JobID:     job.ID,
		BatchID:   job.BatchID,
		Status:    job.Status,
		Page:      page,
		Admitted:  admitted,
		Processed: job.Processed,
		Total:     job.Total,
		Message:   msg,
	})
}
