package memory

import (
	"context"
	"sync"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
)

// StaticInfoExtractor resolves video metadata from a preloaded table. It
// stands in for the real scraper adapters in tests and single-node runs:
// unknown videos come back with their id echoed and no metadata.
type StaticInfoExtractor struct {
	mu     sync.RWMutex
	videos map[string]*domain.Video
}

var _ ports.InfoExtractor = (*StaticInfoExtractor)(nil)

func NewStaticInfoExtractor() *StaticInfoExtractor {
	return &StaticInfoExtractor{videos: make(map[string]*domain.Video)}
}

// AddVideo preloads metadata for a video.
func (e *StaticInfoExtractor) AddVideo(video *domain.Video) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.videos[video.VideoID.Key()] = video
}

func (e *StaticInfoExtractor) GetVideoInfo(ctx context.Context, service, id string) (*domain.Video, error) {
	vid := domain.VideoID{Service: service, ID: id}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if video, ok := e.videos[vid.Key()]; ok {
		copied := *video
		return &copied, nil
	}
	return &domain.Video{VideoID: vid}, nil
}

func (e *StaticInfoExtractor) GetManyVideoInfo(ctx context.Context, ids []domain.VideoID) ([]*domain.Video, error) {
	videos := make([]*domain.Video, 0, len(ids))
	for _, id := range ids {
		video, err := e.GetVideoInfo(ctx, id.Service, id.ID)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, nil
}
