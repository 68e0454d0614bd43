package store

import (
	"context"
	"time"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status  model.JobStatus `json:"status,omitempty"`
	BatchID string          `json:"batch_id,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Businesses
	UpsertBusiness(ctx context.Context, jobID string, b *model.BusinessRecord) error
	UpsertBusinesses(ctx context.Context, jobID string, recs []model.BusinessRecord) error
	GetBusiness(ctx context.Context, placeID string) (*model.BusinessRecord, error)
	ListJobBusinesses(ctx context.Context, jobID string) ([]model.BusinessRecord, error)
	SaveEnrichment(ctx context.Context, res *model.EnrichmentResult) error

	// Dedup index. AdmitPlaceID returns true exactly once per place id;
	// concurrent callers racing on the same id see a single winner.
	AdmitPlaceID(ctx context.Context, placeID string) (bool, error)
	CountDedupIndex(ctx context.Context) (int, error)

	// Stats for the status command.
	CountBusinesses(ctx context.Context) (total, enriched int, err error)

	// Cost ledger
	AppendCostEvent(ctx context.Context, ev *model.CostEvent) error
	SumCostsSince(ctx context.Context, provider string, since time.Time) (int, float64, error)
	ProviderRollups(ctx context.Context, since time.Time) ([]model.ProviderRollup, error)
	ListCostEvents(ctx context.Context, provider string, limit int) ([]model.CostEvent, error)

	// Enrichment cache
	GetCachedEnrichment(ctx context.Context, key string) (*model.EnrichmentResult, error)
	SetCachedEnrichment(ctx context.Context, key string, res *model.EnrichmentResult, ttl time.Duration) error
	DeleteExpiredEnrichments(ctx context.Context) (int, error)

	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error
	UpdateJobProgress(ctx context.Context, jobID string, processed, total, checkpoint int) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the given driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return NewSQLite(dsn)
	}
}
