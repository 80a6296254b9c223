package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/campus-kit/helpdesk/internal/domain"
)

// RedisFeed delivers notifications to connected clients over Redis
// pub/sub. Each user gets a channel (<prefix>:<user id>) their sessions
// subscribe to; the publish receiver count tells us whether anyone was
// listening.
type RedisFeed struct {
	client *redis.Client
	prefix string
}

// NewRedisFeed builds the feed.
func NewRedisFeed(client *redis.Client, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = "user"
	}
	return &RedisFeed{client: client, prefix: prefix}
}

// PushToUser publishes the notification on the recipient's channel.
// Returns false when no session is subscribed.
func (f *RedisFeed) PushToUser(ctx context.Context, userID string, notification domain.Notification) (bool, error) {
	if f.client == nil {
		return false, nil
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return false, err
	}
	receivers, err := f.client.Publish(ctx, f.channel(userID), payload).Result()
	if err != nil {
		return false, err
	}
	return receivers > 0, nil
}

func (f *RedisFeed) channel(userID string) string {
	return fmt.Sprintf("%s:%s", f.prefix, userID)
}
