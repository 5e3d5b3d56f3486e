package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Backplane relays router broadcasts through a fanout exchange. Every node
// consumes its own exclusive queue, so each broadcast reaches every node once.
type Backplane struct {
	client *Client
	nodeID string
	logger *logger.Logger
}

var _ ports.Backplane = (*Backplane)(nil)

func NewBackplane(client *Client, nodeID string, logger *logger.Logger) *Backplane {
	return &Backplane{client: client, nodeID: nodeID, logger: logger}
}

func (bp *Backplane) Queue() string { return NodeQueuePrefix + bp.nodeID }

func (bp *Backplane) Publish(ctx context.Context, b contracts.Broadcast) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	return bp.client.PublishMessage(ctx, bp.client.exchange, "", body)
}

// Subscribe consumes the node queue, re-attaching after channel loss, until ctx ends.
func (bp *Backplane) Subscribe(ctx context.Context, fn func(context.Context, contracts.Broadcast)) error {
	handler := func(ctx context.Context, d amqp.Delivery) error {
		b, err := decodeBroadcast(d.Body)
		if err != nil {
			bp.logger.Warn(ctx, "backplane_bad_frame", "Dropping undecodable broadcast", map[string]any{"size": len(d.Body)})
			return err
		}
		fn(ctx, b)
		return nil
	}

	backoff := time.Second
	for {
		err := bp.client.ConsumeNode(ctx, bp.Queue(), bp.nodeID, 64, handler)
		if ctx.Err() != nil {
			return nil
		}
		bp.logger.Warn(ctx, "backplane_consume_restart", "Node queue consumer stopped, retrying", map[string]any{
			"queue": bp.Queue(), "reason": errText(err), "backoff_ms": backoff.Milliseconds(),
		})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (bp *Backplane) Close() error {
	return bp.client.Close()
}

func decodeBroadcast(body []byte) (contracts.Broadcast, error) {
	var b contracts.Broadcast
	if err := json.Unmarshal(body, &b); err != nil {
		return contracts.Broadcast{}, fmt.Errorf("decode broadcast: %w", err)
	}
	if b.Group == "" || len(b.Frame) == 0 {
		return contracts.Broadcast{}, fmt.Errorf("decode broadcast: missing group or frame")
	}
	return b, nil
}

func errText(err error) string {
	if err == nil {
		return "stream ended"
	}
	return err.Error()
}
