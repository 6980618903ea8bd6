package memstore

import (
	"context"
	"testing"
	"time"

	"cutl.local/internal/app/shortlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestInsertRejectsDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	link := shortlink.Link{Code: "abc", OriginalURL: "https://a.example", CreatedAt: 1, ExpiresAt: 1000}

	require.NoError(t, s.Insert(ctx, link))
	err := s.Insert(ctx, shortlink.Link{Code: "abc", OriginalURL: "https://b.example", CreatedAt: 2, ExpiresAt: 2000})
	assert.ErrorIs(t, err, shortlink.ErrDuplicateCode)

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", got.OriginalURL)
}

func TestDeleteExpiredIsStrict(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, shortlink.Link{Code: "old", ExpiresAt: 99}))
	require.NoError(t, s.Insert(ctx, shortlink.Link{Code: "edge", ExpiresAt: 100}))
	require.NoError(t, s.Insert(ctx, shortlink.Link{Code: "new", ExpiresAt: 200}))

	n, err := s.DeleteExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, shortlink.ErrLinkNotFound)
	ok, _ := s.Exists(ctx, "edge")
	assert.True(t, ok)
}

func TestVisitAggregations(t *testing.T) {
	s := New()
	ctx := context.Background()
	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Unix()
	day2 := time.Date(2025, 3, 2, 23, 59, 0, 0, time.UTC).Unix()

	visits := []shortlink.Visit{
		{Code: "x", VisitedAt: day1, Country: strp("US")},
		{Code: "x", VisitedAt: day1 + 1, Country: strp("US"), Referer: strp("https://t.co")},
		{Code: "x", VisitedAt: day2, Country: strp("DE")},
		{Code: "x", VisitedAt: day2 + 1},
		{Code: "y", VisitedAt: day2, Country: strp("FR")},
	}
	for _, v := range visits {
		require.NoError(t, s.InsertVisit(ctx, v))
	}

	total, err := s.CountVisits(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	countries, err := s.VisitsByCountry(ctx, "x")
	require.NoError(t, err)
	require.Len(t, countries, 3)
	assert.Equal(t, "US", *countries[0].Value)
	assert.Equal(t, int64(2), countries[0].Count)

	referers, err := s.VisitsByReferer(ctx, "x")
	require.NoError(t, err)
	require.Len(t, referers, 2)
	assert.Nil(t, referers[0].Value)
	assert.Equal(t, int64(3), referers[0].Count)

	daily, err := s.VisitsDaily(ctx, "x", 0)
	require.NoError(t, err)
	assert.Equal(t, []shortlink.DailyStat{{Date: "2025-03-02", Count: 2}, {Date: "2025-03-01", Count: 2}}, daily)

	recent, err := s.RecentVisits(ctx, "x", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, day2+1, recent[0].VisitedAt)
	assert.Equal(t, day2, recent[1].VisitedAt)
}
