package async

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

// Job is one file to run through the pipeline.
type Job struct {
	Path        string
	BatchID     *uuid.UUID
	SubmittedAt time.Time
	TraceID     string
	// Done, if set, is called from the worker once the job has been handled.
	Done func(*entity.LabReport, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
