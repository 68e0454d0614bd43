package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func TestSQLiteBusinessRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := model.BusinessRecord{
		PlaceID:      "ChIJplumbing1",
		Name:         "Ace Plumbing",
		Address:      "1 Main St, Austin, TX",
		Phone:        "+1 512 555 0100",
		Website:      "https://aceplumbing.com",
		Rating:       floatPtr(4.6),
		ReviewsCount: intPtr(128),
		Categories:   []string{"Plumber", "Contractor"},
		Hours:        map[string]string{"monday": "8-5"},
		Latitude:     floatPtr(30.2672),
		Longitude:    floatPtr(-97.7431),
		SourceSearch: "plumbers in austin",
	}
	require.NoError(t, s.UpsertBusiness(ctx, "job-1", &b))
	assert.NotEmpty(t, b.ID)

	got, err := s.GetBusiness(ctx, "ChIJplumbing1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ace Plumbing", got.Name)
	assert.Equal(t, []string{"Plumber", "Contractor"}, got.Categories)
	assert.Equal(t, "8-5", got.Hours["monday"])
	require.NotNil(t, got.Rating)
	assert.InDelta(t, 4.6, *got.Rating, 1e-9)
	require.NotNil(t, got.ReviewsCount)
	assert.Equal(t, 128, *got.ReviewsCount)
	assert.Empty(t, got.Emails)
	assert.False(t, got.EnrichmentFailed)
}

func TestSQLiteBusinessUpsertNoDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := model.BusinessRecord{PlaceID: "p1", Name: "Old Name"}
	require.NoError(t, s.UpsertBusiness(ctx, "job-1", &b))

	b2 := model.BusinessRecord{PlaceID: "p1", Name: "New Name", Phone: "555"}
	require.NoError(t, s.UpsertBusiness(ctx, "job-2", &b2))

	got, err := s.GetBusiness(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)
	assert.Equal(t, "555", got.Phone)
	// identity is the first insert's row
	assert.Equal(t, b.ID, got.ID)

	recs, err := s.ListJobBusinesses(ctx, "job-2")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSQLiteUpsertBusinessesBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	page := []model.BusinessRecord{
		{PlaceID: "p1", Name: "A"},
		{PlaceID: "p2", Name: "B"},
		{PlaceID: "p3", Name: "C"},
	}
	require.NoError(t, s.UpsertBusinesses(ctx, "job-1", page))

	recs, err := s.ListJobBusinesses(ctx, "job-1")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestSQLiteGetBusinessMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetBusiness(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteSaveEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := model.BusinessRecord{PlaceID: "p1", Name: "A", Website: "https://a.com"}
	require.NoError(t, s.UpsertBusiness(ctx, "job-1", &b))

	res := &model.EnrichmentResult{
		PlaceID:     "p1",
		Emails:      []model.EmailMatch{{Address: "info@a.com", Confidence: 0.9, Source: "scrape"}},
		ContactName: "Jo Smith",
		Source:      "scrape",
		EnrichedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.SaveEnrichment(ctx, res))

	got, err := s.GetBusiness(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got.Emails, 1)
	assert.Equal(t, "info@a.com", got.Emails[0].Address)
	assert.Equal(t, "Jo Smith", got.ContactName)
	require.NotNil(t, got.EnrichedAt)
	assert.False(t, got.EnrichmentFailed)
}

func TestSQLiteSaveEnrichmentFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := model.BusinessRecord{PlaceID: "p1", Name: "A"}
	require.NoError(t, s.UpsertBusiness(ctx, "job-1", &b))

	res := &model.EnrichmentResult{PlaceID: "p1", Failed: true, EnrichedAt: time.Now().UTC()}
	require.NoError(t, s.SaveEnrichment(ctx, res))

	got, err := s.GetBusiness(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.EnrichmentFailed)
	assert.Empty(t, got.Emails)
}

func TestSQLiteSaveEnrichmentUnknownPlace(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveEnrichment(context.Background(), &model.EnrichmentResult{PlaceID: "ghost"})
	assert.Error(t, err)
}

func TestSQLiteAdmitPlaceID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admitted, err := s.AdmitPlaceID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, admitted)

	again, err := s.AdmitPlaceID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := s.AdmitPlaceID(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestSQLiteCountDedupIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.CountDedupIndex(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range []string{"p1", "p2", "p1"} {
		_, err := s.AdmitPlaceID(ctx, id)
		require.NoError(t, err)
	}
	n, err = s.CountDedupIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "re-admitted ids count once")
}

func TestSQLiteCountBusinesses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, place := range []string{"c1", "c2", "c3"} {
		b := model.BusinessRecord{PlaceID: place, Name: "Biz"}
		require.NoError(t, s.UpsertBusiness(ctx, "job-1", &b))
		if i == 0 {
			require.NoError(t, s.SaveEnrichment(ctx, &model.EnrichmentResult{
				PlaceID:    place,
				Emails:     []model.EmailMatch{{Address: "info@c1.com", Confidence: 0.9, Source: "scrape"}},
				EnrichedAt: time.Now().UTC(),
			}))
		}
	}

	total, enriched, err := s.CountBusinesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, enriched)
}

func TestSQLiteCostLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	events := []model.CostEvent{
		{Provider: "scrapingdog", Endpoint: "/google_maps", Cost: 0.00165, Success: true, Timestamp: base},
		{Provider: "scrapingdog", Endpoint: "/google_maps", Cost: 0.00165, Success: true, Timestamp: base.Add(time.Hour)},
		{Provider: "scrapingdog", Endpoint: "/google_maps", Cost: 0, Success: false, ErrorMessage: "timeout", Timestamp: base.Add(2 * time.Hour)},
		{Provider: "hunter", Endpoint: "/domain-search", Cost: 0.049, Success: true, Timestamp: base.Add(time.Hour)},
	}
	for i := range events {
		require.NoError(t, s.AppendCostEvent(ctx, &events[i]))
		assert.NotZero(t, events[i].ID)
	}

	// failed calls still count as requests
	requests, cost, err := s.SumCostsSince(ctx, "scrapingdog", base)
	require.NoError(t, err)
	assert.Equal(t, 3, requests)
	assert.InDelta(t, 0.0033, cost, 1e-9)

	// since excludes earlier events
	requests, _, err = s.SumCostsSince(ctx, "scrapingdog", base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, requests)

	rollups, err := s.ProviderRollups(ctx, base)
	require.NoError(t, err)
	require.Len(t, rollups, 2)
	assert.Equal(t, "hunter", rollups[0].Provider)
	assert.InDelta(t, 0.049, rollups[0].TotalCost, 1e-9)
	assert.Equal(t, "scrapingdog", rollups[1].Provider)
	assert.Equal(t, 3, rollups[1].CallCount)
	assert.InDelta(t, 0.0011, rollups[1].AvgCost, 1e-9)

	list, err := s.ListCostEvents(ctx, "scrapingdog", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].Success)
	assert.Equal(t, "timeout", list[0].ErrorMessage)
}

func TestSQLiteEnrichmentCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := &model.EnrichmentResult{
		PlaceID:    "p1",
		Emails:     []model.EmailMatch{{Address: "info@a.com", Confidence: 0.9, Source: "scrape"}},
		Source:     "scrape",
		EnrichedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SetCachedEnrichment(ctx, "a.com", res, time.Hour))

	got, err := s.GetCachedEnrichment(ctx, "a.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "info@a.com", got.Emails[0].Address)

	miss, err := s.GetCachedEnrichment(ctx, "b.com")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestSQLiteEnrichmentCacheExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := &model.EnrichmentResult{PlaceID: "p1", Failed: true}
	require.NoError(t, s.SetCachedEnrichment(ctx, "a.com", res, -time.Minute))

	got, err := s.GetCachedEnrichment(ctx, "a.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.DeleteExpiredEnrichments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &model.Job{
		Kind:       model.JobKindSingle,
		Query:      "plumbers",
		Location:   "Austin, TX",
		MaxResults: 50,
	}
	require.NoError(t, s.CreateJob(ctx, job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusQueued, job.Status)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, model.JobStatusRunning, ""))
	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 20, 50, 1))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)
	assert.Equal(t, 20, got.Processed)
	assert.Equal(t, 50, got.Total)
	assert.Equal(t, 1, got.Checkpoint)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, model.JobStatusFailed, "budget exhausted"))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, "budget exhausted", got.Error)
}

func TestSQLiteGetJobMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJob(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSQLiteListJobsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, q := range []string{"plumbers", "dentists", "roofers"} {
		job := &model.Job{Kind: model.JobKindBatch, BatchID: "batch-1", Query: q, MaxResults: 10}
		require.NoError(t, s.CreateJob(ctx, job))
		if i == 0 {
			require.NoError(t, s.UpdateJobStatus(ctx, job.ID, model.JobStatusCompleted, ""))
		}
	}
	solo := &model.Job{Kind: model.JobKindSingle, Query: "cafes", MaxResults: 10}
	require.NoError(t, s.CreateJob(ctx, solo))

	batch, err := s.ListJobs(ctx, JobFilter{BatchID: "batch-1"})
	require.NoError(t, err)
	assert.Len(t, batch, 3)

	done, err := s.ListJobs(ctx, JobFilter{Status: model.JobStatusCompleted})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "plumbers", done[0].Query)

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSQLiteUpdateJobUnknown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	assert.Error(t, s.UpdateJobStatus(ctx, "ghost", model.JobStatusRunning, ""))
	assert.Error(t, s.UpdateJobProgress(ctx, "ghost", 1, 2, 0))
}
