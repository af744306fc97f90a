package domain

import "fmt"

// VideoID identifies a video by the service that hosts it and the service's
// own id for it. Queue identity is (service, id); metadata never matters for
// equality.
type VideoID struct {
	Service string `json:"service"`
	ID      string `json:"id"`
}

func (v VideoID) Equal(other VideoID) bool {
	return v.Service == other.Service && v.ID == other.ID
}

func (v VideoID) IsZero() bool {
	return v.Service == "" && v.ID == ""
}

// Key returns the string form used for vote maps and cache keys.
func (v VideoID) Key() string {
	return fmt.Sprintf("%s:%s", v.Service, v.ID)
}

// Video is a VideoID plus whatever metadata the info extractor resolved.
type Video struct {
	VideoID
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Length      float64 `json:"length,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	Mime        string  `json:"mime,omitempty"`
	HlsURL      string  `json:"hls_url,omitempty"`
	DashURL     string  `json:"dash_url,omitempty"`
}

// QueueItem is a queued video with optional clip bounds.
type QueueItem struct {
	Video
	StartAt *float64 `json:"startAt,omitempty"`
	EndAt   *float64 `json:"endAt,omitempty"`
}

// EffectiveStart returns the position playback should begin from.
func (q *QueueItem) EffectiveStart() float64 {
	if q.StartAt != nil {
		return *q.StartAt
	}
	return 0
}
