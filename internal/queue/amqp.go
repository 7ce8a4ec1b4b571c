package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/unclebandit/charityng-backend/internal/logger"
)

// AMQPQueue publishes over RabbitMQ. Broadcast topics use a fanout exchange
// with one exclusive queue per subscriber, every other topic is a durable
// work queue shared by all consumers.
type AMQPQueue struct {
	conn      *amqp.Connection
	mu        sync.Mutex
	pub       *amqp.Channel
	declared  map[string]bool
	broadcast map[string]bool
}

// NewAMQPQueue connects to the broker.
func NewAMQPQueue(url string, broadcastTopics ...string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	q := &AMQPQueue{
		conn:      conn,
		pub:       ch,
		declared:  make(map[string]bool),
		broadcast: make(map[string]bool),
	}
	for _, t := range broadcastTopics {
		q.broadcast[t] = true
	}
	return q, nil
}

func (q *AMQPQueue) declare(ch *amqp.Channel, topic string) error {
	if q.broadcast[topic] {
		return ch.ExchangeDeclare(topic, "fanout", true, false, false, false, nil)
	}
	_, err := ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

// Publish JSON encodes payload and sends it to topic.
func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declared[topic] {
		if err := q.declare(q.pub, topic); err != nil {
			return fmt.Errorf("failed to declare %s: %w", topic, err)
		}
		q.declared[topic] = true
	}

	exchange, key := "", topic
	if q.broadcast[topic] {
		exchange, key = topic, ""
	}
	return q.pub.Publish(exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Subscribe starts a consumer goroutine. Handlers receive the raw JSON body.
// A failing work queue job is requeued once and then dropped.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := q.declare(ch, topic); err != nil {
		return fmt.Errorf("failed to declare %s: %w", topic, err)
	}

	queueName := topic
	autoAck := false
	if q.broadcast[topic] {
		tmp, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return fmt.Errorf("failed to declare subscriber queue: %w", err)
		}
		if err := ch.QueueBind(tmp.Name, "", topic, false, nil); err != nil {
			return fmt.Errorf("failed to bind subscriber queue: %w", err)
		}
		queueName = tmp.Name
		autoAck = true
	} else if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", autoAck, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		log := logger.L().WithField("topic", topic)
		for d := range msgs {
			err := handler(d.Body)
			if autoAck {
				if err != nil {
					log.WithError(err).Warn("broadcast handler failed")
				}
				continue
			}
			if err == nil {
				d.Ack(false)
				continue
			}
			requeue := !d.Redelivered
			log.WithError(err).WithField("requeue", requeue).Warn("job failed")
			d.Nack(false, requeue)
		}
		log.Info("consumer stopped")
	}()
	return nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pub != nil {
		q.pub.Close()
	}
	return q.conn.Close()
}
