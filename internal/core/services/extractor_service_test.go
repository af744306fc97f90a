package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"roomcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExtractor struct {
	calls int
	err   error
}

func (e *countingExtractor) GetVideoInfo(ctx context.Context, service, id string) (*domain.Video, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return &domain.Video{
		VideoID: domain.VideoID{Service: service, ID: id},
		Title:   fmt.Sprintf("video %s", id),
		Length:  120,
	}, nil
}

func (e *countingExtractor) GetManyVideoInfo(ctx context.Context, ids []domain.VideoID) ([]*domain.Video, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	videos := make([]*domain.Video, 0, len(ids))
	for _, id := range ids {
		videos = append(videos, &domain.Video{VideoID: id, Title: fmt.Sprintf("video %s", id.ID), Length: 120})
	}
	return videos, nil
}

func TestCachedExtractorCachesSingleLookups(t *testing.T) {
	base := &countingExtractor{}
	cached := NewCachedInfoExtractor(base, time.Minute)
	ctx := context.Background()

	v1, err := cached.GetVideoInfo(ctx, "direct", "a")
	require.NoError(t, err)
	assert.Equal(t, "video a", v1.Title)
	assert.Equal(t, 1, base.calls)

	v2, err := cached.GetVideoInfo(ctx, "direct", "a")
	require.NoError(t, err)
	assert.Equal(t, v1.Title, v2.Title)
	assert.Equal(t, 1, base.calls, "second lookup must come from cache")

	_, err = cached.GetVideoInfo(ctx, "direct", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, base.calls)
}

func TestCachedExtractorBatchFetchesOnlyMisses(t *testing.T) {
	base := &countingExtractor{}
	cached := NewCachedInfoExtractor(base, time.Minute)
	ctx := context.Background()

	_, err := cached.GetVideoInfo(ctx, "direct", "a")
	require.NoError(t, err)

	videos, err := cached.GetManyVideoInfo(ctx, []domain.VideoID{
		{Service: "direct", ID: "a"},
		{Service: "direct", ID: "b"},
		{Service: "direct", ID: "c"},
	})
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, "a", videos[0].ID)
	assert.Equal(t, "b", videos[1].ID)
	assert.Equal(t, "c", videos[2].ID)
	// one single fetch plus one batch for the two misses
	assert.Equal(t, 2, base.calls)

	// fully cached batch never reaches the base extractor
	_, err = cached.GetManyVideoInfo(ctx, []domain.VideoID{
		{Service: "direct", ID: "b"},
		{Service: "direct", ID: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, base.calls)
}

func TestCachedExtractorBreakerFailsFast(t *testing.T) {
	base := &countingExtractor{err: errors.New("scraper down")}
	cached := NewCachedInfoExtractor(base, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := cached.GetVideoInfo(ctx, "direct", "a")
		require.Error(t, err)
	}
	assert.Equal(t, 5, base.calls)

	// breaker is open now, the base must not be hit again
	_, err := cached.GetVideoInfo(ctx, "direct", "a")
	require.Error(t, err)
	assert.Equal(t, 5, base.calls)
}
