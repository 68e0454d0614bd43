package pipeline

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// DefaultBatchConcurrency is how many jobs a batch runs at once.
const DefaultBatchConcurrency = 2

// BatchRow is one line of a batch input file.
type BatchRow struct {
	Query      string
	Location   string
	MaxResults int
}

// ReadBatchFile parses a CSV of query,location,max_results rows. A
// header row is detected and skipped. Location and max_results are
// optional per row.
func ReadBatchFile(path string) ([]BatchRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows []BatchRow
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "batch: parse %s", path)
		}
		line++

		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "query") {
			continue
		}

		row := BatchRow{Query: strings.TrimSpace(rec[0])}
		if row.Query == "" {
			continue
		}
		if len(rec) > 1 {
			row.Location = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(rec[2]))
			if err != nil {
				return nil, eris.Wrapf(err, "batch: line %d: bad max_results %q", line, rec[2])
			}
			row.MaxResults = n
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("batch: %s has no usable rows", path)
	}
	return rows, nil
}

// BatchSummary reports a finished batch.
type BatchSummary struct {
	BatchID   string
	Jobs      []model.Job
	Completed int
	Failed    int
	Cancelled int
}

// BatchRunner fans batch rows out as jobs with bounded concurrency.
type BatchRunner struct {
	orch        *Orchestrator
	concurrency int
	defaultMax  int
}

// NewBatchRunner creates a BatchRunner. defaultMax fills in rows that
// omit max_results.
func NewBatchRunner(orch *Orchestrator, concurrency, defaultMax int) *BatchRunner {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	return &BatchRunner{orch: orch, concurrency: concurrency, defaultMax: defaultMax}
}

// Run submits one job per row under a shared batch id and runs them
// with bounded concurrency. Row failures do not stop the batch; the
// summary carries each job's terminal state.
func (br *BatchRunner) Run(ctx context.Context, rows []BatchRow) (*BatchSummary, error) {
	batchID := uuid.NewString()
	jobs := make([]*model.Job, 0, len(rows))
	for _, row := range rows {
		maxResults := row.MaxResults
		if maxResults <= 0 {
			maxResults = br.defaultMax
		}
		job := br.orch.NewBatchJob(batchID, row.Query, row.Location, maxResults)
		if err := br.orch.Submit(ctx, job); err != nil {
			return nil, eris.Wrapf(err, "batch: submit job for %q", row.Query)
		}
		jobs = append(jobs, job)
	}

	zap.L().Info("batch started",
		zap.String("batch_id", batchID),
		zap.Int("jobs", len(jobs)),
		zap.Int("concurrency", br.concurrency))

	var mu sync.Mutex
	sum := &BatchSummary{BatchID: batchID}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(br.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			final, err := br.orch.Run(gctx, job.ID)
			if err != nil && gctx.Err() == nil {
				zap.L().Error("batch job failed",
					zap.String("batch_id", batchID),
					zap.String("job_id", job.ID),
					zap.Error(err))
			}
			if final == nil {
				final = job
			}
			mu.Lock()
			sum.Jobs = append(sum.Jobs, *final)
			switch final.Status {
			case model.JobStatusCompleted:
				sum.Completed++
			case model.JobStatusCancelled:
				sum.Cancelled++
			default:
				sum.Failed++
			}
			mu.Unlock()
			// Job failures are recorded, not propagated, so the rest of
			// the batch keeps running.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	return sum, nil
}
