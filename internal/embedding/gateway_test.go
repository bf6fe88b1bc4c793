package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEmbedder embeds text as [len(text)] and records batch sizes.
type recordingEmbedder struct {
	mu      sync.Mutex
	batches []int
	calls   atomic.Int32
	fail    func(batch []string) error
	delay   time.Duration
	short   bool
}

func (r *recordingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.batches = append(r.batches, len(texts))
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.fail != nil {
		if err := r.fail(texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	if r.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (r *recordingEmbedder) Dimensions() int { return 2 }
func (r *recordingEmbedder) Close() error    { return nil }

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%0*d", i+1, 0)
	}
	return out
}

func TestGateway_PreservesOrderAcrossBatches(t *testing.T) {
	rec := &recordingEmbedder{}
	g := NewGateway(rec, WithBatchSize(3), WithConcurrency(4))
	in := texts(10)

	out, err := g.Embed(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 10)
	for i, v := range out {
		assert.Equal(t, float32(len(in[i])), v[0], "slot %d", i)
	}
	assert.EqualValues(t, 4, rec.calls.Load())
	assert.ElementsMatch(t, []int{3, 3, 3, 1}, rec.batches)
}

func TestGateway_AnyBatchFailureFailsCall(t *testing.T) {
	rec := &recordingEmbedder{fail: func(batch []string) error {
		for _, s := range batch {
			if len(s) == 5 {
				return errors.New("provider exploded")
			}
		}
		return nil
	}}
	g := NewGateway(rec, WithBatchSize(2))

	out, err := g.Embed(context.Background(), texts(8))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbeddingFailed)
	assert.Nil(t, out)
}

func TestGateway_CountMismatchFails(t *testing.T) {
	g := NewGateway(&recordingEmbedder{short: true})
	_, err := g.Embed(context.Background(), texts(3))
	assert.ErrorIs(t, err, models.ErrEmbeddingFailed)
}

func TestGateway_Timeout(t *testing.T) {
	g := NewGateway(&recordingEmbedder{delay: time.Second}, WithTimeout(20*time.Millisecond))
	_, err := g.Embed(context.Background(), texts(2))
	assert.ErrorIs(t, err, models.ErrEmbeddingFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateway_Cache(t *testing.T) {
	rec := &recordingEmbedder{}
	g := NewGateway(rec, WithCache(NewEmbeddingCache(10)))
	ctx := context.Background()

	_, err := g.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	out, err := g.Embed(ctx, []string{"bb", "a"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.calls.Load(), "second call should be served from cache")
	assert.Equal(t, float32(2), out[0][0])
	assert.Equal(t, float32(1), out[1][0])
}

func TestGateway_FailureIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	rec := &recordingEmbedder{fail: func([]string) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}}
	g := NewGateway(rec, WithCache(NewEmbeddingCache(10)))
	_, err := g.Embed(context.Background(), []string{"x"})
	require.Error(t, err)

	fail.Store(false)
	out, err := g.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestGateway_Empty(t *testing.T) {
	rec := &recordingEmbedder{}
	out, err := NewGateway(rec).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, rec.calls.Load())
}

func TestHashingEmbedder_SharedWordsScoreHigher(t *testing.T) {
	e := NewHashingEmbedder(256)
	vecs, err := e.EmbedBatch(context.Background(), []string{
		"the zebra migration crosses the river",
		"Zebra migration!",
		"quarterly revenue report",
	})
	require.NoError(t, err)
	dot := func(a, b []float32) float32 {
		var s float32
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
	assert.Equal(t, vecs[1], e.Embed("zebra MIGRATION"), "embedding should ignore case and punctuation")
	assert.Len(t, vecs[2], 256)
}

func TestHashingEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashingEmbedder(8).EmbedBatch(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
