package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/lab-report-parser/internal/async"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
)

// Inbox enqueues every file that lands in the watched directories.
type Inbox struct {
	cfg    common.InboxConfig
	queue  async.Queue
	logger *slog.Logger
}

func NewInbox(cfg common.InboxConfig, q async.Queue, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{cfg: cfg, queue: q, logger: logger}
}

// Run blocks until ctx is done. Files already present are processed first.
func (i *Inbox) Run(ctx context.Context) error {
	paths, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       i.cfg.Dirs,
		InitialScan: true,
		Debounce:    i.cfg.Debounce,
		Logger:      i.logger,
	})
	if err != nil {
		return err
	}
	i.logger.Info("inbox.started", "dirs", i.cfg.Dirs, "debounce", i.cfg.Debounce.String())

	for {
		select {
		case p, ok := <-paths:
			if !ok {
				return ctx.Err()
			}
			job := async.Job{Path: p, SubmittedAt: time.Now()}
			if err := i.queue.Enqueue(ctx, job); err != nil {
				i.logger.Warn("inbox.enqueue.failed", "path", p, "error", err)
				continue
			}
			i.logger.Info("inbox.enqueued", "path", p)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			i.logger.Warn("inbox.watch.error", "error", err)
		}
	}
}
