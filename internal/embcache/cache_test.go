package embcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls   atomic.Int32
	vec     []float32
	err     error
	release chan struct{}
	texts   chan string
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.texts != nil {
		p.texts <- text
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.vec, p.err
}

type memStore struct {
	mu        sync.Mutex
	entries   map[string][]float32
	inserts   int
	lookups   int
	lookupErr error
	insertErr error

	// staleLookups reports a miss for the next n lookups even when the entry exists.
	staleLookups int
}

func newMemStore() *memStore { return &memStore{entries: map[string][]float32{}} }

func (s *memStore) Lookup(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.staleLookups > 0 {
		s.staleLookups--
		return nil, ErrMiss
	}
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	v, ok := s.entries[text]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (s *memStore) Insert(_ context.Context, text string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	s.entries[text] = vec
	return nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

func (s *memStore) Backend() string { return "memory" }

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_embedding_cache_total"}, []string{"result"})
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGetEmbedding_NormalizesText(t *testing.T) {
	p := &fakeProvider{vec: []float32{1, 2, 3}}
	store := newMemStore()
	counter := newCounter()
	c := New(p, store, counter, quietLogger())

	v1, err := c.GetEmbedding(context.Background(), "Drug X")
	require.NoError(t, err)
	v2, err := c.GetEmbedding(context.Background(), "  drug x ")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Contains(t, store.entries, "drug x")
	assert.Equal(t, float64(1), testutil.ToFloat64(counter.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(counter.WithLabelValues("hit")))
}

func TestGetEmbedding_ProviderReceivesNormalizedText(t *testing.T) {
	p := &fakeProvider{vec: []float32{1}, texts: make(chan string, 1)}
	c := New(p, newMemStore(), nil, quietLogger())

	_, err := c.GetEmbedding(context.Background(), " Heart FAILURE ")
	require.NoError(t, err)
	assert.Equal(t, "heart failure", <-p.texts)
}

func TestGetEmbedding_EmptyVectorIsMiss(t *testing.T) {
	p := &fakeProvider{vec: []float32{4}}
	store := newMemStore()
	store.entries["x"] = []float32{}
	c := New(p, store, nil, quietLogger())

	v, err := c.GetEmbedding(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, v)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestGetEmbedding_ProviderErrorNotCached(t *testing.T) {
	p := &fakeProvider{err: errors.New("quota")}
	store := newMemStore()
	c := New(p, store, nil, quietLogger())

	_, err := c.GetEmbedding(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, p.err)
	assert.Zero(t, store.inserts)

	_, err = c.GetEmbedding(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(2), p.calls.Load(), "failures are retried on the next call")
}

func TestGetEmbedding_InsertFailureIgnored(t *testing.T) {
	p := &fakeProvider{vec: []float32{7}}
	store := newMemStore()
	store.insertErr = errors.New("write conflict")
	c := New(p, store, nil, quietLogger())

	v, err := c.GetEmbedding(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, v)
	assert.Equal(t, 1, store.inserts)
}

func TestGetEmbedding_LookupFailureFallsThrough(t *testing.T) {
	p := &fakeProvider{vec: []float32{7}}
	store := newMemStore()
	store.lookupErr = errors.New("connection reset")
	c := New(p, store, nil, quietLogger())

	v, err := c.GetEmbedding(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, v)
}

func TestGetEmbedding_ConcurrentMissesShareOneCall(t *testing.T) {
	p := &fakeProvider{vec: []float32{0.5}, release: make(chan struct{}), texts: make(chan string, 16)}
	store := newMemStore()
	c := New(p, store, nil, quietLogger())

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]float32, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetEmbedding(context.Background(), "Asthma")
		}(i)
	}

	select {
	case <-p.texts:
	case <-time.After(2 * time.Second):
		t.Fatal("provider was never called")
	}
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []float32{0.5}, results[i])
	}
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, 1, store.inserts)
}

func TestGetEmbedding_SharedFlightOutlivesStarterCancel(t *testing.T) {
	p := &fakeProvider{vec: []float32{0.25}, release: make(chan struct{}), texts: make(chan string, 2)}
	store := newMemStore()
	c := New(p, store, nil, quietLogger())

	starterCtx, cancelStarter := context.WithCancel(context.Background())
	defer cancelStarter()
	starterDone := make(chan struct{})
	go func() {
		defer close(starterDone)
		_, _ = c.GetEmbedding(starterCtx, "asthma")
	}()

	select {
	case <-p.texts:
	case <-time.After(2 * time.Second):
		t.Fatal("provider was never called")
	}

	var got []float32
	var joinErr error
	joinerDone := make(chan struct{})
	go func() {
		defer close(joinerDone)
		got, joinErr = c.GetEmbedding(context.Background(), "Asthma")
	}()

	// Let the second caller join, then drop the caller that started the flight.
	time.Sleep(50 * time.Millisecond)
	cancelStarter()
	time.Sleep(20 * time.Millisecond)
	close(p.release)

	select {
	case <-joinerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("joined caller never returned")
	}
	<-starterDone

	require.NoError(t, joinErr)
	assert.Equal(t, []float32{0.25}, got)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, 1, store.inserts, "the vector is persisted even though the starter went away")
}

func TestGetEmbedding_RacedFillCountsAsHit(t *testing.T) {
	p := &fakeProvider{vec: []float32{1}}
	store := newMemStore()
	store.entries["copd"] = []float32{3}
	store.staleLookups = 1
	counter := newCounter()
	c := New(p, store, counter, quietLogger())

	v, err := c.GetEmbedding(context.Background(), "COPD")
	require.NoError(t, err)

	assert.Equal(t, []float32{3}, v)
	assert.Zero(t, p.calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(counter.WithLabelValues("hit")))
	assert.Equal(t, float64(0), testutil.ToFloat64(counter.WithLabelValues("miss")))
}

func TestWarm_OneLookupPerText(t *testing.T) {
	p := &fakeProvider{vec: []float32{1}}
	store := newMemStore()
	store.entries["cached"] = []float32{9}
	c := New(p, store, nil, quietLogger())

	n, err := c.Warm(context.Background(), []string{"cached", "fresh"})
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, 2, store.lookups)
}

func TestWarm(t *testing.T) {
	p := &fakeProvider{vec: []float32{1}}
	store := newMemStore()
	store.entries["cached"] = []float32{9}
	c := New(p, store, nil, quietLogger())

	n, err := c.Warm(context.Background(), []string{"Cached", "new one", "  ", "NEW ONE"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), p.calls.Load())

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, int64(2), stats.Entries)
}

func TestWarm_StopsOnProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("down")}
	c := New(p, newMemStore(), nil, quietLogger())

	n, err := c.Warm(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(1), p.calls.Load())
}
