package harvest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest/harvesttest"
)

func TestNewGateMinimumOne(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, harvest.NewGate(0).Size())
	assert.Equal(t, 4, harvest.NewGate(4).Size())
}

func TestGateAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	g := harvest.NewGate(1)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	g.Release()
	require.NoError(t, g.Acquire(context.Background()))
}

func TestDoAllIsPositional(t *testing.T) {
	t.Parallel()

	f := harvesttest.NewFetcher().
		Get("http://x/a", "A").
		Get("http://x/b", "B").
		Get("http://x/c", "C").
		Fail("http://x/b")
	c := harvest.NewClient(f, harvest.NewGate(3), "test", nil)

	results := c.DoAll(context.Background(), []harvest.Request{
		harvest.NewGet("http://x/c"),
		harvest.NewGet("http://x/b"),
		harvest.NewGet("http://x/a"),
		harvest.NewGet("http://x/missing"),
	})

	require.Len(t, results, 4)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "C", string(results[0].Doc.Body))
	assert.ErrorIs(t, results[1].Err, harvest.ErrNoResult)
	assert.Nil(t, results[1].Doc)
	require.NoError(t, results[2].Err)
	assert.Equal(t, "A", string(results[2].Doc.Body))
	assert.ErrorIs(t, results[3].Err, harvest.ErrNoResult)
}

func TestDoAllRespectsGate(t *testing.T) {
	t.Parallel()

	f := harvesttest.NewFetcher().Delay(15 * time.Millisecond)
	reqs := make([]harvest.Request, 12)
	for i := range reqs {
		url := "http://x/" + string(rune('a'+i))
		f.Get(url, "ok")
		reqs[i] = harvest.NewGet(url)
	}
	c := harvest.NewClient(f, harvest.NewGate(2), "test", nil)

	results := c.DoAll(context.Background(), reqs)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	assert.LessOrEqual(t, f.Peak(), 2)
	assert.Len(t, f.Calls(), 12)
}

func TestDoReturnsContextError(t *testing.T) {
	t.Parallel()

	f := harvesttest.NewFetcher().Get("http://x/a", "A")
	c := harvest.NewClient(f, harvest.NewGate(1), "test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, harvest.NewGet("http://x/a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, harvest.ErrNoResult))
}
