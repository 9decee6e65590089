package corrections

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
)

const (
	testPrefix = "labreport:corrections:"
	testTTL    = 10 * time.Minute
)

type countingStore struct {
	Store
	lookups int
}

func (c *countingStore) BestCorrection(ctx context.Context, text string, typ constants.CorrectionType) (string, bool, error) {
	c.lookups++
	return c.Store.BestCorrection(ctx, text, typ)
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	s := newStore(repository.NewMemoryCorrectionRepository())
	_, err := s.Learn(context.Background(), "Glucse", "Glucose", constants.CorrectionTestName)
	require.NoError(t, err)
	return &countingStore{Store: s}
}

func TestCachedStoreReadThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := newCountingStore(t)
	c := NewCachedStore(next, db, testTTL, testPrefix, nil)
	key := CacheKey(testPrefix, constants.CorrectionTestName, "Glucse")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, "Glucose", testTTL).SetVal("OK")
	mock.ExpectGet(key).SetVal("Glucose")

	for i := 0; i < 2; i++ {
		got, ok, err := c.BestCorrection(context.Background(), "Glucse", constants.CorrectionTestName)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Glucose", got)
	}
	assert.Equal(t, 1, next.lookups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStoreCachesMisses(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := newCountingStore(t)
	c := NewCachedStore(next, db, testTTL, testPrefix, nil)
	key := CacheKey(testPrefix, constants.CorrectionValue, "Sodium")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, missMarker, testTTL).SetVal("OK")
	mock.ExpectGet(key).SetVal(missMarker)

	for i := 0; i < 2; i++ {
		_, ok, err := c.BestCorrection(context.Background(), "Sodium", constants.CorrectionValue)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, next.lookups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStoreRedisDownFallsThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := newCountingStore(t)
	c := NewCachedStore(next, db, testTTL, testPrefix, nil)
	key := CacheKey(testPrefix, constants.CorrectionTestName, "Glucse")

	mock.ExpectGet(key).SetErr(errors.New("dial tcp: connection refused"))
	mock.ExpectSet(key, "Glucose", testTTL).SetErr(errors.New("dial tcp: connection refused"))

	got, ok, err := c.BestCorrection(context.Background(), "Glucse", constants.CorrectionTestName)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Glucose", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStoreLearnInvalidates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewCachedStore(newCountingStore(t), db, testTTL, testPrefix, nil)
	key := CacheKey(testPrefix, constants.CorrectionValue, "Negatlve")

	mock.ExpectDel(key).SetVal(1)

	learned, err := c.Learn(context.Background(), "Negatlve", "NEGATIVE", constants.CorrectionValue)
	require.NoError(t, err)
	assert.True(t, learned)

	learned, err = c.Learn(context.Background(), "same", "same", constants.CorrectionValue)
	require.NoError(t, err)
	assert.False(t, learned, "no-op learns do not touch redis")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKeyIsStable(t *testing.T) {
	a := CacheKey(testPrefix, constants.CorrectionTestName, "Hb")
	assert.Equal(t, a, CacheKey(testPrefix, constants.CorrectionTestName, "Hb"))
	assert.NotEqual(t, a, CacheKey(testPrefix, constants.CorrectionValue, "Hb"))
	assert.Contains(t, a, testPrefix+"test_name:")
}

// learnDuringLookup learns a correction for the looked-up text after reading
// from the store but before the cache is written.
type learnDuringLookup struct {
	Store
	cache *CachedStore
	t     *testing.T
}

func (l *learnDuringLookup) BestCorrection(ctx context.Context, text string, typ constants.CorrectionType) (string, bool, error) {
	got, found, err := l.Store.BestCorrection(ctx, text, typ)
	learned, lerr := l.cache.Learn(ctx, text, "Sodium (Na)", typ)
	require.NoError(l.t, lerr)
	require.True(l.t, learned)
	return got, found, err
}

func TestCachedStoreLookupRacingLearnDoesNotPinMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &learnDuringLookup{Store: newStore(repository.NewMemoryCorrectionRepository()), t: t}
	c := NewCachedStore(next, db, testTTL, testPrefix, nil)
	next.cache = c
	key := CacheKey(testPrefix, constants.CorrectionValue, "Sodium")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectDel(key).SetVal(0)
	mock.ExpectSet(key, missMarker, testTTL).SetVal("OK")
	mock.ExpectDel(key).SetVal(1)

	_, ok, err := c.BestCorrection(context.Background(), "Sodium", constants.CorrectionValue)
	require.NoError(t, err)
	assert.False(t, ok, "the in-flight lookup still answers with what it read")
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, "Sodium (Na)", testTTL).SetVal("OK")
	plain := NewCachedStore(next.Store, db, testTTL, testPrefix, nil)
	got, ok, err := plain.BestCorrection(context.Background(), "Sodium", constants.CorrectionValue)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Sodium (Na)", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
