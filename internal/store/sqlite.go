package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                TEXT PRIMARY KEY,
	place_id          TEXT NOT NULL UNIQUE,
	job_id            TEXT,
	name              TEXT NOT NULL,
	address           TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	rating            REAL,
	reviews_count     INTEGER,
	categories        TEXT,
	hours             TEXT,
	latitude          REAL,
	longitude         REAL,
	source_search     TEXT NOT NULL DEFAULT '',
	emails            TEXT,
	contact_name      TEXT NOT NULL DEFAULT '',
	enriched_at       DATETIME,
	enrichment_failed INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS seen_places (
	place_id    TEXT PRIMARY KEY,
	admitted_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cost_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	provider      TEXT NOT NULL,
	endpoint      TEXT NOT NULL,
	cost          REAL NOT NULL DEFAULT 0,
	success       INTEGER NOT NULL DEFAULT 1,
	error_message TEXT NOT NULL DEFAULT '',
	ts            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	key        TEXT PRIMARY KEY,
	result     TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
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
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_businesses_job_id ON businesses(job_id);
CREATE INDEX IF NOT EXISTS idx_cost_events_provider_ts ON cost_events(provider, ts);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires ON enrichment_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_batch_id ON jobs(batch_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertBusiness = `
INSERT INTO businesses
	(id, place_id, job_id, name, address, phone, website, rating, reviews_count,
	 categories, hours, latitude, longitude, source_search, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(place_id) DO UPDATE SET
	job_id = excluded.job_id,
	name = excluded.name,
	address = excluded.address,
	phone = excluded.phone,
	website = excluded.website,
	rating = excluded.rating,
	reviews_count = excluded.reviews_count,
	categories = excluded.categories,
	hours = excluded.hours,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	source_search = excluded.source_search`

func (s *SQLiteStore) UpsertBusiness(ctx context.Context, jobID string, b *model.BusinessRecord) error {
	return s.upsertBusinessExec(ctx, s.db, jobID, b)
}

func (s *SQLiteStore) UpsertBusinesses(ctx context.Context, jobID string, recs []model.BusinessRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert tx")
	}
	defer tx.Rollback()

	for i := range recs {
		if err := s.upsertBusinessExec(ctx, tx, jobID, &recs[i]); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert tx")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsertBusinessExec(ctx context.Context, ex execer, jobID string, b *model.BusinessRecord) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	categoriesJSON, err := marshalNullable(b.Categories)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal categories")
	}
	hoursJSON, err := marshalNullable(b.Hours)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal hours")
	}

	_, err = ex.ExecContext(ctx, sqliteUpsertBusiness,
		b.ID, b.PlaceID, jobID, b.Name, b.Address, b.Phone, b.Website,
		b.Rating, b.ReviewsCount, categoriesJSON, hoursJSON,
		b.Latitude, b.Longitude, b.SourceSearch, b.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert business %s", b.PlaceID)
}

const sqliteSelectBusiness = `
SELECT id, place_id, name, address, phone, website, rating, reviews_count,
       categories, hours, latitude, longitude, source_search,
       emails, contact_name, enriched_at, enrichment_failed, created_at
FROM businesses`

func (s *SQLiteStore) GetBusiness(ctx context.Context, placeID string) (*model.BusinessRecord, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectBusiness+` WHERE place_id = ?`, placeID)
	b, err := scanBusiness(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get business %s", placeID)
	}
	return b, nil
}

func (s *SQLiteStore) ListJobBusinesses(ctx context.Context, jobID string) ([]model.BusinessRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectBusiness+` WHERE job_id = ? ORDER BY created_at`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list job businesses")
	}
	defer rows.Close()

	var recs []model.BusinessRecord
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		recs = append(recs, *b)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list job businesses iterate")
}

func (s *SQLiteStore) SaveEnrichment(ctx context.Context, res *model.EnrichmentResult) error {
	emailsJSON, err := marshalNullable(res.Emails)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal emails")
	}

	var enrichedAt any
	if !res.EnrichedAt.IsZero() {
		enrichedAt = res.EnrichedAt.UTC()
	}

	r, err := s.db.ExecContext(ctx,
		`UPDATE businesses
		 SET emails = ?, contact_name = ?, enriched_at = ?, enrichment_failed = ?
		 WHERE place_id = ?`,
		emailsJSON, res.ContactName, enrichedAt, boolToInt(res.Failed), res.PlaceID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save enrichment %s", res.PlaceID)
	}
	return checkRowsAffected(r, "business", res.PlaceID)
}

func (s *SQLiteStore) AdmitPlaceID(ctx context.Context, placeID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_places (place_id, admitted_at) VALUES (?, ?)
		 ON CONFLICT(place_id) DO NOTHING`,
		placeID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: admit place %s", placeID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: admit rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) CountDedupIndex(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_places`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dedup index")
}

// CountBusinesses reports totals for the status command; a business counts
// as enriched once it carries at least one email.
func (s *SQLiteStore) CountBusinesses(ctx context.Context) (int, int, error) {
	var total, enriched int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN emails IS NOT NULL THEN 1 ELSE 0 END), 0)
		 FROM businesses`,
	).Scan(&total, &enriched)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: count businesses")
	}
	return total, enriched, nil
}

func (s *SQLiteStore) AppendCostEvent(ctx context.Context, ev *model.CostEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_events (provider, endpoint, cost, success, error_message, ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Provider, ev.Endpoint, ev.Cost, boolToInt(ev.Success), ev.ErrorMessage, ev.Timestamp,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: append cost event")
	}
	ev.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: cost event id")
}

func (s *SQLiteStore) SumCostsSince(ctx context.Context, provider string, since time.Time) (int, float64, error) {
	var requests int
	var cost float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cost), 0) FROM cost_events WHERE provider = ? AND ts >= ?`,
		provider, since.UTC(),
	).Scan(&requests, &cost)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "sqlite: sum costs for %s", provider)
	}
	return requests, cost, nil
}

func (s *SQLiteStore) ProviderRollups(ctx context.Context, since time.Time) ([]model.ProviderRollup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COUNT(*), COALESCE(SUM(cost), 0)
		 FROM cost_events WHERE ts >= ?
		 GROUP BY provider ORDER BY SUM(cost) DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: provider rollups")
	}
	defer rows.Close()

	var rollups []model.ProviderRollup
	for rows.Next() {
		var r model.ProviderRollup
		if err := rows.Scan(&r.Provider, &r.CallCount, &r.TotalCost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rollup")
		}
		if r.CallCount > 0 {
			r.AvgCost = r.TotalCost / float64(r.CallCount)
		}
		rollups = append(rollups, r)
	}
	return rollups, eris.Wrap(rows.Err(), "sqlite: provider rollups iterate")
}

func (s *SQLiteStore) ListCostEvents(ctx context.Context, provider string, limit int) ([]model.CostEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, provider, endpoint, cost, success, error_message, ts FROM cost_events`
	var args []any
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cost events")
	}
	defer rows.Close()

	var events []model.CostEvent
	for rows.Next() {
		var ev model.CostEvent
		var success int
		if err := rows.Scan(&ev.ID, &ev.Provider, &ev.Endpoint, &ev.Cost, &success, &ev.ErrorMessage, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cost event")
		}
		ev.Success = success != 0
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list cost events iterate")
}

func (s *SQLiteStore) GetCachedEnrichment(ctx context.Context, key string) (*model.EnrichmentResult, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM enrichment_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cached enrichment %s", key)
	}

	var res model.EnrichmentResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached enrichment")
	}
	return &res, nil
}

func (s *SQLiteStore) SetCachedEnrichment(ctx context.Context, key string, res *model.EnrichmentResult, ttl time.Duration) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (key, result, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET result = excluded.result, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(resultJSON), now, now.Add(ttl),
	)
	return eris.Wrapf(err, "sqlite: set cached enrichment %s", key)
}

func (s *SQLiteStore) DeleteExpiredEnrichments(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM enrichment_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired enrichments")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, batch_id, kind, query, location, max_results, status, total, processed, checkpoint, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.BatchID, string(job.Kind), job.Query, job.Location, job.MaxResults,
		string(job.Status), job.Total, job.Processed, job.Checkpoint, job.Error,
		job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert job")
}

const sqliteSelectJob = `
SELECT id, batch_id, kind, query, location, max_results, status, total, processed, checkpoint, error, created_at, updated_at
FROM jobs`

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectJob+` WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := sqliteSelectJob + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, processed, total, checkpoint int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET processed = ?, total = ?, checkpoint = ?, updated_at = ? WHERE id = ?`,
		processed, total, checkpoint, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalNullable returns NULL for empty slices/maps instead of "[]"/"{}".
func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(t) == 0 {
			return nil, nil
		}
	case []model.EmailMatch:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBusiness(row scannable) (*model.BusinessRecord, error) {
	var b model.BusinessRecord
	var rating, latitude, longitude sql.NullFloat64
	var reviews sql.NullInt64
	var categoriesJSON, hoursJSON, emailsJSON sql.NullString
	var enrichedAt sql.NullTime
	var failed int

	err := row.Scan(&b.ID, &b.PlaceID, &b.Name, &b.Address, &b.Phone, &b.Website,
		&rating, &reviews, &categoriesJSON, &hoursJSON, &latitude, &longitude,
		&b.SourceSearch, &emailsJSON, &b.ContactName, &enrichedAt, &failed, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	if rating.Valid {
		b.Rating = &rating.Float64
	}
	if reviews.Valid {
		n := int(reviews.Int64)
		b.ReviewsCount = &n
	}
	if latitude.Valid {
		b.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		b.Longitude = &longitude.Float64
	}
	if enrichedAt.Valid {
		t := enrichedAt.Time
		b.EnrichedAt = &t
	}
	b.EnrichmentFailed = failed != 0

	if categoriesJSON.Valid && categoriesJSON.String != "" {
		if err := json.Unmarshal([]byte(categoriesJSON.String), &b.Categories); err != nil {
			return nil, eris.Wrap(err, "unmarshal categories")
		}
	}
	if hoursJSON.Valid && hoursJSON.String != "" {
		if err := json.Unmarshal([]byte(hoursJSON.String), &b.Hours); err != nil {
			return nil, eris.Wrap(err, "unmarshal hours")
		}
	}
	if emailsJSON.Valid && emailsJSON.String != "" {
		if err := json.Unmarshal([]byte(emailsJSON.String), &b.Emails); err != nil {
			return nil, eris.Wrap(err, "unmarshal emails")
		}
	}
	return &b, nil
}

func scanJob(row scannable) (*model.Job, error) {
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
