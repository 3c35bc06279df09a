package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pasteline/pkg/domain"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes lifecycle events to a topic exchange, routed by event type.
type AMQP struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "pasteline",
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange}, nil
}

func (a *AMQP) Publish(ctx context.Context, ev domain.Event) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	// amqp091 channels are not safe for concurrent publishes.
	a.mu.Lock()
	defer a.mu.Unlock()
	return errors.Wrap(a.ch.PublishWithContext(ctx, a.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.At,
		MessageId:    ev.PasteID + ":" + string(ev.Type),
		Body:         body,
	}), "publish event")
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		a.conn.Close()
		return errors.Wrap(err, "close amqp channel")
	}
	return a.conn.Close()
}

// Encode renders ev as the JSON message body.
func Encode(ev domain.Event) ([]byte, error) {
	ev.At = ev.At.UTC()
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event")
	}
	return body, nil
}
