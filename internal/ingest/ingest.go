package ingest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/async"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

// BatchResult is the outcome of processing one directory.
type BatchResult struct {
	BatchID   uuid.UUID
	Status    constants.BatchStatus
	Total     int
	Processed int
	Failed    int
	Reports   []*entity.LabReport
	Duration  time.Duration
}

// BatchRunner feeds every report in a directory through a queue and waits for them.
type BatchRunner struct {
	queue  async.Queue
	logger *slog.Logger
}

func NewBatchRunner(q async.Queue, logger *slog.Logger) *BatchRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{queue: q, logger: logger}
}

// Run processes every candidate file under root. If ctx ends first, the result
// covers what was handled so far and its status is partial.
func (b *BatchRunner) Run(ctx context.Context, root string) (*BatchResult, error) {
	start := time.Now()
	paths, stats, err := ListReports(root)
	if err != nil {
		return nil, err
	}
	batchID := uuid.New()
	ctx = common.WithBatchID(ctx, batchID)
	b.logger.Info("batch.start", "batch_id", batchID, "dir", root, "files", len(paths), "scanned", stats.Scanned)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		res = &BatchResult{BatchID: batchID, Total: len(paths)}
	)
	record := func(rep *entity.LabReport, err error) {
		mu.Lock()
		defer mu.Unlock()
		if rep != nil {
			res.Reports = append(res.Reports, rep)
		}
		if err == nil && rep != nil && rep.Status == constants.ReportStatusProcessed {
			res.Processed++
		} else {
			res.Failed++
		}
	}

	reqID := common.RequestIDFromContext(ctx)
	for _, p := range paths {
		wg.Add(1)
		job := async.Job{
			Path:    p,
			BatchID: &batchID,
			TraceID: reqID,
			Done: func(rep *entity.LabReport, err error) {
				defer wg.Done()
				record(rep, err)
			},
		}
		if err := b.queue.Enqueue(ctx, job); err != nil {
			wg.Done()
			b.logger.Warn("batch.enqueue.failed", "batch_id", batchID, "path", p, "error", err)
			break
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("batch.interrupted", "batch_id", batchID, "error", ctx.Err())
	}

	mu.Lock()
	out := *res
	out.Reports = append([]*entity.LabReport(nil), res.Reports...)
	mu.Unlock()

	out.Status = constants.ResolveBatchStatus(out.Total, out.Processed, out.Failed)
	out.Duration = time.Since(start)
	sortReports(out.Reports)
	b.logger.Info("batch.done",
		"batch_id", batchID,
		"status", out.Status,
		"processed", out.Processed,
		"failed", out.Failed,
		"total", out.Total,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return &out, nil
}

func sortReports(reps []*entity.LabReport) {
	sort.SliceStable(reps, func(i, j int) bool { return reps[i].SourcePath < reps[j].SourcePath })
}
