package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roomcast/internal/core/ports"

	"roomcast/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	syncChannelPrefix   = "roomcast:sync:"
	announcementChannel = "roomcast:announcements"
)

// envelope tags every published payload with the origin instance so a
// monolith can skip its own messages.
type envelope struct {
	InstanceID string          `json:"instance_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// RedisSyncPublisher carries room sync payloads and global announcements
// between monolith processes over redis pub/sub.
type RedisSyncPublisher struct {
	client     *redis.Client
	instanceID string
	log        *zap.SugaredLogger
}

var _ ports.SyncPublisher = (*RedisSyncPublisher)(nil)

func NewRedisSyncPublisher(client *redis.Client, instanceID string, log *zap.SugaredLogger) *RedisSyncPublisher {
	return &RedisSyncPublisher{
		client:     client,
		instanceID: instanceID,
		log:        log.With("component", "sync_publisher"),
	}
}

func (p *RedisSyncPublisher) publish(ctx context.Context, channel string, payload []byte) error {
	data, err := json.Marshal(envelope{
		InstanceID: p.instanceID,
		Timestamp:  time.Now(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sync envelope: %w", err)
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (p *RedisSyncPublisher) PublishSync(ctx context.Context, room domain.RoomName, payload []byte) error {
	return p.publish(ctx, syncChannelPrefix+string(room), payload)
}

// PublishAnnouncement fans a site-wide announcement out to every monolith,
// this one included.
func (p *RedisSyncPublisher) PublishAnnouncement(ctx context.Context, text string) error {
	msg, err := json.Marshal(domain.NewAnnouncementMessage(text))
	if err != nil {
		return fmt.Errorf("failed to marshal announcement: %w", err)
	}
	return p.publish(ctx, announcementChannel, msg)
}

func (p *RedisSyncPublisher) subscribe(ctx context.Context, channel string, skipOwn bool) (<-chan []byte, func(), error) {
	pubsub := p.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					p.log.Warnw("dropping malformed sync envelope", "channel", channel, "error", err)
					continue
				}
				if skipOwn && env.InstanceID == p.instanceID {
					continue
				}
				select {
				case out <- env.Payload:
				case <-done:
					return
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		pubsub.Close()
	}
	return out, cancel, nil
}

func (p *RedisSyncPublisher) SubscribeSync(ctx context.Context, room domain.RoomName) (<-chan []byte, func(), error) {
	return p.subscribe(ctx, syncChannelPrefix+string(room), true)
}

func (p *RedisSyncPublisher) SubscribeAnnouncements(ctx context.Context) (<-chan []byte, func(), error) {
	// announcements are delivered everywhere, own instance included
	return p.subscribe(ctx, announcementChannel, false)
}
