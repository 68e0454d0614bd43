package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadgrid/leadgen-cli/internal/db"
	"github.com/leadgrid/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"admit_place":          `INSERT INTO seen_places (place_id, admitted_at) VALUES ($1, $2) ON CONFLICT (place_id) DO NOTHING`,
	"append_cost_event":    `INSERT INTO cost_events (provider, endpoint, cost, success, error_message, ts) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
	"sum_costs_since":      `SELECT COUNT(*), COALESCE(SUM(cost), 0) FROM cost_events WHERE provider = $1 AND ts >= $2`,
	"get_cached_enrich":    `SELECT result FROM enrichment_cache WHERE key = $1 AND expires_at > now()`,
	"set_cached_enrich":    `INSERT INTO enrichment_cache (key, result, cached_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO UPDATE SET result = $2, cached_at = $3, expires_at = $4`,
	"update_job_progress":  `UPDATE jobs SET processed = $1, total = $2, checkpoint = $3, updated_at = $4 WHERE id = $5`,
	"update_job_status":    `UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_job":              `SELECT id, batch_id, kind, query, location, max_results, status, total, processed, checkpoint, error, created_at, updated_at FROM jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	place_id          TEXT NOT NULL UNIQUE,
	job_id            TEXT,
	name              TEXT NOT NULL,
	address           TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	rating            DOUBLE PRECISION,
	reviews_count     INTEGER,
	categories        JSONB,
	hours             JSONB,
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	source_search     TEXT NOT NULL DEFAULT '',
	emails            JSONB,
	contact_name      TEXT NOT NULL DEFAULT '',
	enriched_at       TIMESTAMPTZ,
	enrichment_failed BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS seen_places (
	place_id    TEXT PRIMARY KEY,
	admitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cost_events (
	id            BIGSERIAL PRIMARY KEY,
	provider      TEXT NOT NULL,
	endpoint      TEXT NOT NULL,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	success       BOOLEAN NOT NULL DEFAULT true,
	error_message TEXT NOT NULL DEFAULT '',
	ts            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	key        TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	query       TEXT NOT NULL,
	location    TEXT NOT NULL DEFAULT '',
	max_results INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'queued',
	total       INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0,
	checkpoint  INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_businesses_job_id ON businesses(job_id);
CREATE INDEX IF NOT EXISTS idx_cost_events_provider_ts ON cost_events(provider, ts);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires ON enrichment_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_batch_id ON jobs(batch_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var businessColumns = []string{
	"id", "place_id", "job_id", "name", "address", "phone", "website",
	"rating", "reviews_count", "categories", "hours", "latitude", "longitude",
	"source_search", "created_at",
}

func businessRow(jobID string, b *model.BusinessRecord) ([]any, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	categoriesJSON, err := jsonOrNil(b.Categories, len(b.Categories) == 0)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal categories")
	}
	hoursJSON, err := jsonOrNil(b.Hours, len(b.Hours) == 0)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal hours")
	}
	return []any{
		b.ID, b.PlaceID, jobID, b.Name, b.Address, b.Phone, b.Website,
		b.Rating, b.ReviewsCount, categoriesJSON, hoursJSON, b.Latitude, b.Longitude,
		b.SourceSearch, b.CreatedAt,
	}, nil
}

func (s *PostgresStore) UpsertBusiness(ctx context.Context, jobID string, b *model.BusinessRecord) error {
	return s.UpsertBusinesses(ctx, jobID, []model.BusinessRecord{*b})
}

// UpsertBusinesses persists one provider page of records. Dedup admission
// means page records are normally all fresh, so the COPY protocol goes
// first; a place-id collision falls back to the slower bulk upsert.
// Enrichment columns are left untouched on conflict.
func (s *PostgresStore) UpsertBusinesses(ctx context.Context, jobID string, recs []model.BusinessRecord) error {
	if len(recs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(recs))
	for i := range recs {
		row, err := businessRow(jobID, &recs[i])
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	_, err := db.CopyFrom(ctx, s.pool, "businesses", businessColumns, rows)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return eris.Wrap(err, "postgres: copy businesses")
	}

	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "businesses",
		Columns:      businessColumns,
		ConflictKeys: []string{"place_id"},
		UpdateCols: []string{
			"job_id", "name", "address", "phone", "website", "rating",
			"reviews_count", "categories", "hours", "latitude", "longitude",
			"source_search",
		},
	}, rows)
	return eris.Wrap(err, "postgres: upsert businesses")
}

const postgresSelectBusiness = `
SELECT id, place_id, name, address, phone, website, rating, reviews_count,
       categories, hours, latitude, longitude, source_search,
       emails, contact_name, enriched_at, enrichment_failed, created_at
FROM businesses`

func (s *PostgresStore) GetBusiness(ctx context.Context, placeID string) (*model.BusinessRecord, error) {
	row := s.pool.QueryRow(ctx, postgresSelectBusiness+` WHERE place_id = $1`, placeID)
	b, err := scanPostgresBusiness(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get business %s", placeID)
	}
	return b, nil
}

func (s *PostgresStore) ListJobBusinesses(ctx context.Context, jobID string) ([]model.BusinessRecord, error) {
	rows, err := s.pool.Query(ctx, postgresSelectBusiness+` WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list job businesses")
	}
	defer rows.Close()

	var recs []model.BusinessRecord
	for rows.Next() {
		b, err := scanPostgresBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		recs = append(recs, *b)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list job businesses iterate")
}

func (s *PostgresStore) SaveEnrichment(ctx context.Context, res *model.EnrichmentResult) error {
	emailsJSON, err := jsonOrNil(res.Emails, len(res.Emails) == 0)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal emails")
	}

	var enrichedAt *time.Time
	if !res.EnrichedAt.IsZero() {
		t := res.EnrichedAt.UTC()
		enrichedAt = &t
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses
		 SET emails = $1, contact_name = $2, enriched_at = $3, enrichment_failed = $4
		 WHERE place_id = $5`,
		emailsJSON, res.ContactName, enrichedAt, res.Failed, res.PlaceID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save enrichment %s", res.PlaceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("business not found: %s", res.PlaceID)
	}
	return nil
}

func (s *PostgresStore) AdmitPlaceID(ctx context.Context, placeID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO seen_places (place_id, admitted_at) VALUES ($1, $2) ON CONFLICT (place_id) DO NOTHING`,
		placeID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: admit place %s", placeID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CountDedupIndex(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM seen_places`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count dedup index")
}

// CountBusinesses reports totals for the status command; a business counts
// as enriched once it carries at least one email.
func (s *PostgresStore) CountBusinesses(ctx context.Context) (int, int, error) {
	var total, enriched int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE emails IS NOT NULL) FROM businesses`,
	).Scan(&total, &enriched)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: count businesses")
	}
	return total, enriched, nil
}

func (s *PostgresStore) AppendCostEvent(ctx context.Context, ev *model.CostEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cost_events (provider, endpoint, cost, success, error_message, ts)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		ev.Provider, ev.Endpoint, ev.Cost, ev.Success, ev.ErrorMessage, ev.Timestamp,
	).Scan(&ev.ID)
	return eris.Wrap(err, "postgres: append cost event")
}

func (s *PostgresStore) SumCostsSince(ctx context.Context, provider string, since time.Time) (int, float64, error) {
	var requests int
	var cost float64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cost), 0) FROM cost_events WHERE provider = $1 AND ts >= $2`,
		provider, since.UTC(),
	).Scan(&requests, &cost)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "postgres: sum costs for %s", provider)
	}
	return requests, cost, nil
}

func (s *PostgresStore) ProviderRollups(ctx context.Context, since time.Time) ([]model.ProviderRollup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, COUNT(*), COALESCE(SUM(cost), 0)
		 FROM cost_events WHERE ts >= $1
		 GROUP BY provider ORDER BY SUM(cost) DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: provider rollups")
	}
	defer rows.Close()

	var rollups []model.ProviderRollup
	for rows.Next() {
		var r model.ProviderRollup
		if err := rows.Scan(&r.Provider, &r.CallCount, &r.TotalCost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rollup")
		}
		if r.CallCount > 0 {
			r.AvgCost = r.TotalCost / float64(r.CallCount)
		}
		rollups = append(rollups, r)
	}
	return rollups, eris.Wrap(rows.Err(), "postgres: provider rollups iterate")
}

func (s *PostgresStore) ListCostEvents(ctx context.Context, provider string, limit int) ([]model.CostEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, provider, endpoint, cost, success, error_message, ts FROM cost_events`
	args := []any{}
	argIdx := 1
	if provider != "" {
		query += fmt.Sprintf(` WHERE provider = $%d`, argIdx)
		args = append(args, provider)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cost events")
	}
	defer rows.Close()

	var events []model.CostEvent
	for rows.Next() {
		var ev model.CostEvent
		if err := rows.Scan(&ev.ID, &ev.Provider, &ev.Endpoint, &ev.Cost, &ev.Success, &ev.ErrorMessage, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cost event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list cost events iterate")
}

func (s *PostgresStore) GetCachedEnrichment(ctx context.Context, key string) (*model.EnrichmentResult, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM enrichment_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&resultJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get cached enrichment %s", key)
	}

	var res model.EnrichmentResult
	if err := json.Unmarshal(resultJSON, &res); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached enrichment")
	}
	return &res, nil
}

func (s *PostgresStore) SetCachedEnrichment(ctx context.Context, key string, res *model.EnrichmentResult, ttl time.Duration) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_cache (key, result, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET result = $2, cached_at = $3, expires_at = $4`,
		key, resultJSON, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "postgres: set cached enrichment %s", key)
}

func (s *PostgresStore) DeleteExpiredEnrichments(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM enrichment_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired enrichments")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobStatusQueued
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, batch_id, kind, query, location, max_results, status, total, processed, checkpoint, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.BatchID, string(job.Kind), job.Query, job.Location, job.MaxResults,
		string(job.Status), job.Total, job.Processed, job.Checkpoint, job.Error,
		job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert job")
}

const postgresSelectJob = `SELECT id, batch_id, kind, query, location, max_results, status, total, processed, checkpoint, error, created_at, updated_at FROM jobs`

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, postgresSelectJob+` WHERE id = $1`, jobID)
	j, err := scanPostgresJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := postgresSelectJob + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, argIdx)
		args = append(args, filter.BatchID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanPostgresJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, processed, total, checkpoint int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET processed = $1, total = $2, checkpoint = $3, updated_at = $4 WHERE id = $5`,
		processed, total, checkpoint, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

// helpers

// jsonOrNil marshals v, returning nil when empty so the column stays NULL.
func jsonOrNil(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}

func scanPostgresBusiness(row scannable) (*model.BusinessRecord, error) {
	var b model.BusinessRecord
	var categoriesJSON, hoursJSON, emailsJSON []byte
	var enrichedAt *time.Time

	err := row.Scan(&b.ID, &b.PlaceID, &b.Name, &b.Address, &b.Phone, &b.Website,
		&b.Rating, &b.ReviewsCount, &categoriesJSON, &hoursJSON, &b.Latitude, &b.Longitude,
		&b.SourceSearch, &emailsJSON, &b.ContactName, &enrichedAt, &b.EnrichmentFailed, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.EnrichedAt = enrichedAt

	if len(categoriesJSON) > 0 {
		if err := json.Unmarshal(categoriesJSON, &b.Categories); err != nil {
			return nil, eris.Wrap(err, "unmarshal categories")
		}
	}
	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &b.Hours); err != nil {
			return nil, eris.Wrap(err, "unmarshal hours")
		}
	}
	if len(emailsJSON) > 0 {
		if err := json.Unmarshal(emailsJSON, &b.Emails); err != nil {
			return nil, eris.Wrap(err, "unmarshal emails")
		}
	}
	return &b, nil
}

func scanPostgresJob(row scannable) (*model.Job, error) {
	var j model.Job
	var kind, status string
	err := row.Scan(&j.ID, &j.BatchID, &kind, &j.Query, &j.Location, &j.MaxResults,
		&status, &j.Total, &j.Processed, &j.Checkpoint, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)
	return &j, nil
}
