package sink

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velasec/traceverdict"
)

// Publisher pushes per-event verdict updates to an AMQP queue so downstream
// responders can react to a session going hot before it finishes
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewPublisher connects to the broker and declares a durable queue
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, channel: channel, queue: queue}, nil
}

// Publish sends one evaluation as a JSON message
func (p *Publisher) Publish(ctx context.Context, eval *traceverdict.Evaluation) error {
	body, err := json.Marshal(NewReport(eval, ""))
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close releases the channel and connection
func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
