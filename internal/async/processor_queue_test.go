package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

type procFunc func(ctx context.Context, path string) (*entity.LabReport, error)

func (f procFunc) ProcessFile(ctx context.Context, path string) (*entity.LabReport, error) {
	return f(ctx, path)
}

func TestQueueProcessesAllJobs(t *testing.T) {
	var n atomic.Int32
	batch := uuid.New()
	var sawBatch atomic.Bool
	q := NewProcessorQueue(procFunc(func(ctx context.Context, path string) (*entity.LabReport, error) {
		n.Add(1)
		if id, ok := common.BatchIDFromContext(ctx); ok && id == batch {
			sawBatch.Store(true)
		}
		if path == "bad.pdf" {
			return nil, errors.New("boom")
		}
		return &entity.LabReport{ID: uuid.New(), SourcePath: path}, nil
	}), nil, WithWorkers(4), WithQueueSize(2))

	var wg sync.WaitGroup
	var failed atomic.Int32
	paths := []string{"a.txt", "b.txt", "bad.pdf", "c.png", "d.json"}
	for _, p := range paths {
		wg.Add(1)
		err := q.Enqueue(context.Background(), Job{Path: p, BatchID: &batch, Done: func(_ *entity.LabReport, err error) {
			if err != nil {
				failed.Add(1)
			}
			wg.Done()
		}})
		require.NoError(t, err)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, int32(len(paths)), n.Load())
	assert.Equal(t, int32(1), failed.Load())
	assert.True(t, sawBatch.Load())
}

func TestQueueRejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(procFunc(func(context.Context, string) (*entity.LabReport, error) {
		return &entity.LabReport{}, nil
	}), nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{Path: "late.txt"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEnqueueFullQueueHonorsContext(t *testing.T) {
	release := make(chan struct{})
	q := NewProcessorQueue(procFunc(func(context.Context, string) (*entity.LabReport, error) {
		<-release
		return &entity.LabReport{}, nil
	}), nil, WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(release)
		q.Shutdown(context.Background())
	}()

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "1"}))
	// The worker may or may not have taken job 1 yet; fill until the buffer is full.
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "2"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = q.Enqueue(ctx, Job{Path: "overflow"})
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
