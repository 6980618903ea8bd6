package shortlink_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/app/shortlink/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeUnknownAndExpired(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, shortlink.Link{Code: "old", OriginalURL: "https://x.example", CreatedAt: now - 1000, ExpiresAt: now - 1}))

	agg := shortlink.NewAggregator(store)
	_, err := agg.Summarize(ctx, "nope", now)
	assert.ErrorIs(t, err, shortlink.ErrNotFound)
	_, err = agg.Summarize(ctx, "old", now)
	assert.ErrorIs(t, err, shortlink.ErrNotFound)
}

func TestSummarizeEmptyLinkHasEmptyArrays(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, shortlink.Link{Code: "new", OriginalURL: "https://x.example", CreatedAt: now, ExpiresAt: now + 600}))

	r, err := shortlink.NewAggregator(store).Summarize(ctx, "new", now)
	require.NoError(t, err)
	assert.Zero(t, r.TotalVisits)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, k := range []string{"countries", "referers", "daily", "recent_visits"} {
		assert.Equal(t, []any{}, m[k], k)
	}
	assert.Equal(t, "https://x.example", m["original_url"])
}

func TestSummarizeAggregates(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, shortlink.Link{Code: "hot", OriginalURL: "https://x.example", CreatedAt: now - 100*86400, ExpiresAt: now + 600}))

	// 一条在 30 天窗口外
	outside := now - 31*86400
	require.NoError(t, store.InsertVisit(ctx, shortlink.Visit{Code: "hot", VisitedAt: outside, Country: strp("US")}))
	for i := int64(0); i < 25; i++ {
		v := shortlink.Visit{Code: "hot", VisitedAt: now - i*60}
		if i%2 == 0 {
			v.Country = strp("US")
		} else {
			v.Country = strp("DE")
		}
		require.NoError(t, store.InsertVisit(ctx, v))
	}
	require.NoError(t, store.InsertVisit(ctx, shortlink.Visit{Code: "other", VisitedAt: now}))

	r, err := shortlink.NewAggregator(store).Summarize(ctx, "hot", now)
	require.NoError(t, err)
	assert.Equal(t, int64(26), r.TotalVisits)
	require.Len(t, r.Countries, 2)
	assert.Equal(t, "US", *r.Countries[0].Value)
	assert.Equal(t, int64(14), r.Countries[0].Count)

	var inWindow int64
	for _, d := range r.Daily {
		inWindow += d.Count
	}
	assert.Equal(t, int64(25), inWindow)

	require.Len(t, r.RecentVisits, shortlink.RecentVisitsLimit)
	assert.Equal(t, now, r.RecentVisits[0].VisitedAt)
	for i := 1; i < len(r.RecentVisits); i++ {
		assert.GreaterOrEqual(t, r.RecentVisits[i-1].VisitedAt, r.RecentVisits[i].VisitedAt)
	}
}

type failingVisits struct{ *memstore.Store }

func (failingVisits) VisitsDaily(context.Context, string, int64) ([]shortlink.DailyStat, error) {
	return nil, errors.New("boom")
}

func TestSummarizePropagatesStoreError(t *testing.T) {
	store := failingVisits{memstore.New()}
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, shortlink.Link{Code: "c", OriginalURL: "https://x.example", CreatedAt: now, ExpiresAt: now + 600}))

	_, err := shortlink.NewAggregator(store).Summarize(ctx, "c", now)
	require.Error(t, err)
	assert.False(t, errors.Is(err, shortlink.ErrNotFound))
}
