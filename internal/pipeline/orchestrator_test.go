package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/leadgen-cli/internal/budget"
	"github.com/leadgrid/leadgen-cli/internal/dedup"
	"github.com/leadgrid/leadgen-cli/internal/model"
	"github.com/leadgrid/leadgen-cli/internal/resilience"
	"github.com/leadgrid/leadgen-cli/internal/search"
	"github.com/leadgrid/leadgen-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stubSearcher replays canned pages at or past the requested start page.
type stubSearcher struct {
	mu    sync.Mutex
	pages []search.Page
	err   error
	reqs  []search.Request
}

func (s *stubSearcher) Run(ctx context.Context, req search.Request, fn search.PageFunc) (*search.Summary, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	sum := &search.Summary{}
	for _, p := range s.pages {
		if p.Index < req.StartPage {
			continue
		}
		if err := fn(ctx, p); err != nil {
			return sum, err
		}
		sum.PagesFetched++
		sum.Records += len(p.Records)
	}
	return sum, s.err
}

// stubEnricher counts enrichment calls per place id.
type stubEnricher struct {
	mu    sync.Mutex
	calls map[string]int
}

func newStubEnricher() *stubEnricher {
	return &stubEnricher{calls: map[string]int{}}
}

func (e *stubEnricher) Enrich(_ context.Context, b *model.BusinessRecord) (*model.EnrichmentResult, error) {
	e.mu.Lock()
	e.calls[b.PlaceID]++
	e.mu.Unlock()
	return &model.EnrichmentResult{
		PlaceID:    b.PlaceID,
		Emails:     []model.EmailMatch{{Address: "info@" + b.PlaceID + ".com", Confidence: 0.8, Source: "scrape"}},
		Source:     "scrape",
		EnrichedAt: time.Now().UTC(),
	}, nil
}

func (e *stubEnricher) count(placeID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[placeID]
}

func makePage(index, n int) search.Page {
	p := search.Page{Index: index}
	for i := 0; i < n; i++ {
		p.Records = append(p.Records, model.BusinessRecord{
			ID:      fmt.Sprintf("id-%d-%d", index, i),
			PlaceID: fmt.Sprintf("place-%d-%d", index, i),
			Name:    fmt.Sprintf("Biz %d-%d", index, i),
			Website: fmt.Sprintf("https://biz%d%d.com", index, i),
		})
	}
	return p
}

func newOrchestrator(t *testing.T, st store.Store, searcher Searcher, enricher Enricher, opts ...Option) *Orchestrator {
	t.Helper()
	return New(st, searcher, enricher, dedup.New(st), opts...)
}

func TestRunJobCompletes(t *testing.T) {
	st := newTestStore(t)
	searcher := &stubSearcher{pages: []search.Page{makePage(0, 20), makePage(1, 5)}}
	enricher := newStubEnricher()
	o := newOrchestrator(t, st, searcher, enricher)
	ctx := context.Background()

	job := o.NewJob("plumbers", "San Francisco, CA", 100)
	require.NoError(t, o.Submit(ctx, job))

	final, err := o.Run(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Equal(t, 25, final.Processed)
	assert.Equal(t, 1, final.Checkpoint)

	stored, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.Checkpoint)

	recs, err := st.ListJobBusinesses(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 25)

	// Every admitted business was enriched and the result persisted.
	assert.Equal(t, 1, enricher.count("place-0-0"))
	got, err := st.GetBusiness(ctx, "place-0-0")
	require.NoError(t, err)
	require.NotNil(t, got.EnrichedAt)
	assert.Equal(t, "info@place-0-0.com", got.Emails[0].Address)
}

func TestRunCompletedJobIsNoOp(t *testing.T) {
	st := newTestStore(t)
	searcher := &stubSearcher{pages: []search.Page{makePage(0, 5)}}
	o := newOrchestrator(t, st, searcher, newStubEnricher())
	ctx := context.Background()

	job := o.NewJob("plumbers", "", 10)
	require.NoError(t, o.Submit(ctx, job))
	_, err := o.Run(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, searcher.reqs, 1)

	final, err := o.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Len(t, searcher.reqs, 1, "completed jobs never hit the provider again")
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	st := newTestStore(t)
	enricher := newStubEnricher()
	ctx := context.Background()

	// First attempt processes page 0 and then dies.
	first := &stubSearcher{
		pages: []search.Page{makePage(0, 20)},
		err:   fmt.Errorf("provider melted"),
	}
	o := newOrchestrator(t, st, first, enricher)
	job := o.NewJob("plumbers", "", 40)
	require.NoError(t, o.Submit(ctx, job))
	_, err := o.Run(ctx, job.ID)
	require.Error(t, err)

	stored, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.Equal(t, 0, stored.Checkpoint)

	// Resume starts past the checkpoint and only wants the remainder.
	second := &stubSearcher{pages: []search.Page{makePage(0, 20), makePage(1, 20)}}
	o2 := newOrchestrator(t, st, second, enricher)
	final, err := o2.Run(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, final.Status)
	require.Len(t, second.reqs, 1)
	assert.Equal(t, 1, second.reqs[0].StartPage)
	assert.Equal(t, 20, second.reqs[0].MaxResults)

	assert.Equal(t, 40, final.Processed)
	recs, err := st.ListJobBusinesses(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 40)
	// Page 0 records were enriched once, not twice.
	assert.Equal(t, 1, enricher.count("place-0-0"))
}

func TestRunResumeNothingLeft(t *testing.T) {
	st := newTestStore(t)
	enricher := newStubEnricher()
	ctx := context.Background()

	first := &stubSearcher{
		pages: []search.Page{makePage(0, 20)},
		err:   fmt.Errorf("boom"),
	}
	o := newOrchestrator(t, st, first, enricher)
	job := o.NewJob("plumbers", "", 20)
	require.NoError(t, o.Submit(ctx, job))
	_, err := o.Run(ctx, job.ID)
	require.Error(t, err)

	second := &stubSearcher{}
	o2 := newOrchestrator(t, st, second, enricher)
	final, err := o2.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Empty(t, second.reqs, "nothing left to fetch")
}

func TestRunBudgetExhaustedCompletesPartial(t *testing.T) {
	st := newTestStore(t)
	searcher := &stubSearcher{
		pages: []search.Page{makePage(0, 20)},
		err:   budget.Decision{Window: model.WindowDay}.Err("scrapingdog"),
	}
	o := newOrchestrator(t, st, searcher, newStubEnricher())
	ctx := context.Background()

	job := o.NewJob("plumbers", "", 100)
	require.NoError(t, o.Submit(ctx, job))
	final, err := o.Run(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Equal(t, 20, final.Processed)
	assert.Contains(t, final.Error, "budget exhausted")
}

func TestRunProviderOutageCompletesPartial(t *testing.T) {
	st := newTestStore(t)
	searcher := &stubSearcher{
		pages: []search.Page{makePage(0, 20)},
		err: eris.Wrap(
			resilience.NewTransientError(fmt.Errorf("503 from provider after retries"), 503),
			"search: page 1"),
	}
	o := newOrchestrator(t, st, searcher, newStubEnricher())
	ctx := context.Background()

	job := o.NewJob("plumbers", "", 100)
	require.NoError(t, o.Submit(ctx, job))
	final, err := o.Run(ctx, job.ID)
	require.NoError(t, err)

	// The page that kept failing is abandoned; everything before it stays.
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Equal(t, 20, final.Processed)
	assert.Equal(t, 0, final.Checkpoint)
	assert.Contains(t, final.Error, "provider unavailable")

	recs, err := st.ListJobBusinesses(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

func TestRunBudgetExhaustedStrictFails(t *testing.T) {
	st := newTestStore(t)
	searcher := &stubSearcher{
		err: budget.Decision{Window: model.WindowDay}.Err("scrapingdog"),
	}
	o := newOrchestrator(t, st, searcher, newStubEnricher(), WithStrictBudget(true))
	ctx := context.Background()

	job := o.NewJob("plumbers", "", 100)
	require.NoError(t, o.Submit(ctx, job))
	_, err := o.Run(ctx, job.ID)
	require.Error(t, err)

	stored, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
}

func TestRunCancelledContext(t *testing.T) {
	st := newTestStore(t)
	searcher := &stubSearcher{err: context.Canceled}
	o := newOrchestrator(t, st, searcher, newStubEnricher())
	ctx := context.Background()

	job := o.NewJob("plumbers", "", 100)
	require.NoError(t, o.Submit(ctx, job))
	final, err := o.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, final.Status)
}

func TestCancelQueuedJob(t *testing.T) {
	st := newTestStore(t)
	o := newOrchestrator(t, st, &stubSearcher{}, newStubEnricher())
	ctx := context.Background()

	job := o.NewJob("plumbers", "", 10)
	require.NoError(t, o.Submit(ctx, job))
	require.NoError(t, o.Cancel(ctx, job.ID))

	stored, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, stored.Status)

	assert.Error(t, o.Cancel(ctx, job.ID), "terminal jobs cannot be cancelled")
}

func TestDedupAcrossJobs(t *testing.T) {
	st := newTestStore(t)
	enricher := newStubEnricher()
	ctx := context.Background()

	o := newOrchestrator(t, st, &stubSearcher{pages: []search.Page{makePage(0, 5)}}, enricher)
	job1 := o.NewJob("plumbers", "", 10)
	require.NoError(t, o.Submit(ctx, job1))
	_, err := o.Run(ctx, job1.ID)
	require.NoError(t, err)

	// Same places again under a second job: all rejected by dedup.
	o2 := newOrchestrator(t, st, &stubSearcher{pages: []search.Page{makePage(0, 5)}}, enricher)
	job2 := o2.NewJob("plumbers", "", 10)
	require.NoError(t, o2.Submit(ctx, job2))
	final, err := o2.Run(ctx, job2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, final.Status)

	recs, err := st.ListJobBusinesses(ctx, job2.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 1, enricher.count("place-0-0"), "duplicates are not re-enriched")
}

func TestSubmitEmptyQuery(t *testing.T) {
	st := newTestStore(t)
	o := newOrchestrator(t, st, &stubSearcher{}, newStubEnricher())
	job := o.NewJob("", "", 10)
	assert.Error(t, o.Submit(context.Background(), job))
}

func TestChanPublisherReceivesEvents(t *testing.T) {
	st := newTestStore(t)
	pub := NewChanPublisher(32)
	o := newOrchestrator(t, st, &stubSearcher{pages: []search.Page{makePage(0, 3)}}, newStubEnricher(),
		WithPublisher(pub))
	ctx := context.Background()

	job := o.NewJob("plumbers", "", 10)
	require.NoError(t, o.Submit(ctx, job))
	_, err := o.Run(ctx, job.ID)
	require.NoError(t, err)
	pub.Close()

	var events []Event
	for ev := range pub.Events() {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, model.JobStatusRunning, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, model.JobStatusCompleted, last.Status)
	assert.Equal(t, 3, last.Processed)
}
