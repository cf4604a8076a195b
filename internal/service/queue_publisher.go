// Package queue_publisher provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package queue_publisher

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/typing-contest/internal/logger"
    q "github.com/iliyamo/typing-contest/internal/queue"
)

// Publisher sends score events to the broker at URL. Each publish uses its
// own short-lived connection.
type Publisher struct {
    URL string
    Log logger.Logger
}

func New(url string, log logger.Logger) *Publisher {
    if log == nil {
        log = logger.Nop()
    }
    return &Publisher{URL: url, Log: log}
}

// PublishScoreRecorded publishes event to the "score.recorded" queue as a
// persistent JSON message.
func (p *Publisher) PublishScoreRecorded(ctx context.Context, event q.ScoreRecordedEvent) error {
    body, err := json.Marshal(event)
    if err != nil {
        p.Log.Error("rabbitmq: marshal event failed", "error", err)
        return err
    }

    conn, err := amqp.Dial(p.URL)
    if err != nil {
        p.Log.Warn("rabbitmq: dial failed", "error", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.Log.Warn("rabbitmq: channel open failed", "error", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        q.ScoreQueueName, // name
        true,             // durable
        false,            // autoDelete
        false,            // exclusive
        false,            // noWait
        nil,              // args
    ); err != nil {
        p.Log.Warn("rabbitmq: queue declare failed", "error", err)
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }

    if err := ch.PublishWithContext(ctx,
        "",               // default exchange
        q.ScoreQueueName, // routing key = queue name
        false,            // mandatory
        false,            // immediate
        pub,
    ); err != nil {
        p.Log.Warn("rabbitmq: publish failed", "error", err)
        return err
    }
    return nil
}
