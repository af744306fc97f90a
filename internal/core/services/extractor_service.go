package services

import (
	"context"
	"fmt"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/pkg/cache"
	"roomcast/pkg/circuitbreaker"
)

// CachedInfoExtractor wraps an InfoExtractor with a TTL cache and a circuit
// breaker. Metadata scrapers are slow external collaborators; a broken one
// must fail fast instead of stalling every add request in a room.
type CachedInfoExtractor struct {
	base    ports.InfoExtractor
	cache   *cache.Cache
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
}

func NewCachedInfoExtractor(base ports.InfoExtractor, ttl time.Duration) ports.InfoExtractor {
	return &CachedInfoExtractor{
		base:    base,
		cache:   cache.NewCache(ttl),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		ttl:     ttl,
	}
}

func (e *CachedInfoExtractor) GetVideoInfo(ctx context.Context, service, id string) (*domain.Video, error) {
	key := fmt.Sprintf("video:%s:%s", service, id)
	if cached, ok := e.cache.Get(key); ok {
		return cached.(*domain.Video), nil
	}

	var video *domain.Video
	err := e.breaker.Execute(ctx, func() error {
		var err error
		video, err = e.base.GetVideoInfo(ctx, service, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video info for %s:%s: %w", service, id, err)
	}
	e.cache.SetWithTTL(key, video, e.ttl)
	return video, nil
}

func (e *CachedInfoExtractor) GetManyVideoInfo(ctx context.Context, ids []domain.VideoID) ([]*domain.Video, error) {
	videos := make([]*domain.Video, 0, len(ids))
	var misses []domain.VideoID
	missIdx := make(map[string]int, len(ids))

	for _, id := range ids {
		key := fmt.Sprintf("video:%s:%s", id.Service, id.ID)
		if cached, ok := e.cache.Get(key); ok {
			videos = append(videos, cached.(*domain.Video))
			continue
		}
		missIdx[id.Key()] = len(videos)
		videos = append(videos, nil)
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return videos, nil
	}

	var fetched []*domain.Video
	err := e.breaker.Execute(ctx, func() error {
		var err error
		fetched, err = e.base.GetManyVideoInfo(ctx, misses)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video info batch: %w", err)
	}
	for _, v := range fetched {
		e.cache.SetWithTTL(fmt.Sprintf("video:%s:%s", v.Service, v.ID), v, e.ttl)
		if idx, ok := missIdx[v.VideoID.Key()]; ok {
			videos[idx] = v
		}
	}
	// drop any holes the extractor could not resolve
	result := videos[:0]
	for _, v := range videos {
		if v != nil {
			result = append(result, v)
		}
	}
	return result, nil
}
