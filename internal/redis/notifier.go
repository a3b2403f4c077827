package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/omega-realm/economy/internal/notify"
)

// Notifier publishes events on Redis pub/sub channels
type Notifier struct {
	client *Client
}

// Notifier returns a publisher backed by this client
func (c *Client) Notifier() *Notifier {
	return &Notifier{client: c}
}

// Channel returns the pub/sub channel for an event
func Channel(ev notify.Event) string {
	if ev.ForOperators() {
		return "notifications:operators"
	}
	return fmt.Sprintf("notifications:%s", ev.AccountID)
}

func (n *Notifier) Publish(ctx context.Context, ev notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, Channel(ev), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
