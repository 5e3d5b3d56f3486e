package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NodeQueuePrefix names the per-process queue: fleet.realtime.node.<nodeId>.
const NodeQueuePrefix = "fleet.realtime.node."

// declareTopology declares the durable fanout exchange every node publishes to.
func declareTopology(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// declareNodeQueue declares an exclusive auto-delete queue and binds it to the
// exchange. It disappears with the connection that owns it.
func declareNodeQueue(ch *amqp.Channel, queue, exchange string) error {
	if _, err := ch.QueueDeclare(queue, false, true, true, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}
	return nil
}
