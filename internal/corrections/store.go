package corrections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/metrics"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
)

// Store learns reviewer corrections and answers best-correction lookups.
// It satisfies normalize.CorrectionLookup.
type Store interface {
	// Learn records original -> corrected. It reports false when the pair is a no-op.
	Learn(ctx context.Context, original, corrected string, typ constants.CorrectionType) (bool, error)
	BestCorrection(ctx context.Context, text string, typ constants.CorrectionType) (string, bool, error)
}

// RepositoryStore is the Store backed by a CorrectionRepository.
type RepositoryStore struct {
	repo     repository.CorrectionRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

type StoreOption func(*RepositoryStore)

func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *RepositoryStore) { s.metrics = m }
}

// WithRetry sets how often a failed upsert is attempted and the base delay between attempts.
func WithRetry(attempts uint, delay time.Duration) StoreOption {
	return func(s *RepositoryStore) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.delay = delay
	}
}

func NewRepositoryStore(repo repository.CorrectionRepository, logger *slog.Logger, opts ...StoreOption) *RepositoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RepositoryStore{repo: repo, logger: logger, attempts: 3, delay: 100 * time.Millisecond}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RepositoryStore) Learn(ctx context.Context, original, corrected string, typ constants.CorrectionType) (bool, error) {
	if !typ.Valid() {
		return false, common.NewAppError("INVALID_TYPE", fmt.Sprintf("unknown correction type %q", typ), common.ErrInvalidInput)
	}
	if original == "" || corrected == "" {
		return false, common.NewAppError("INVALID_CORRECTION", "original and corrected text are required", common.ErrInvalidInput)
	}
	if original == corrected {
		return false, nil
	}

	var saved bool
	err := retry.Do(
		func() error {
			c, err := s.repo.Upsert(ctx, original, corrected, typ)
			if err != nil {
				return err
			}
			saved = true
			s.logger.Info("corrections.learn.ok",
				"type", string(typ),
				"frequency", c.Frequency,
				"confidence", c.ConfidenceScore,
			)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, common.ErrDatabase) }),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("corrections.learn.retry", "type", string(typ), "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		s.logger.Error("corrections.learn.failed", "type", string(typ), "error", err)
		return false, err
	}
	if saved {
		s.metrics.CorrectionLearned(string(typ))
	}
	return saved, nil
}

// BestCorrection tries an exact match first, then scans the most frequent
// high-confidence corrections of the same type for a similar original.
func (s *RepositoryStore) BestCorrection(ctx context.Context, text string, typ constants.CorrectionType) (string, bool, error) {
	if text == "" {
		return "", false, nil
	}

	c, err := s.repo.FindExact(ctx, text, typ, constants.ExactMatchMinConfidence)
	switch {
	case err == nil:
		s.metrics.CorrectionLookup(string(typ), metrics.OutcomeHit)
		return c.CorrectedText, true, nil
	case !errors.Is(err, common.ErrNotFound):
		s.metrics.CorrectionLookup(string(typ), metrics.OutcomeError)
		return "", false, err
	}

	candidates, err := s.repo.TopByFrequency(ctx, typ, constants.FuzzyMinConfidence, constants.FuzzyCandidateLimit)
	if err != nil {
		s.metrics.CorrectionLookup(string(typ), metrics.OutcomeError)
		return "", false, err
	}
	for _, cand := range candidates {
		if Similar(text, cand.OriginalText) {
			s.logger.Debug("corrections.lookup.fuzzy", "type", string(typ), "original", cand.OriginalText, "text", text)
			s.metrics.CorrectionLookup(string(typ), metrics.OutcomeHit)
			return cand.CorrectedText, true, nil
		}
	}
	s.metrics.CorrectionLookup(string(typ), metrics.OutcomeMiss)
	return "", false, nil
}
