package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/domain/port"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	return p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
		},
	)
}

type StatusPublisher struct {
	pub        *Publisher
	routingKey string
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub, routingKey: "gif.status"}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.publish(ctx, sp.pub.exchange, sp.routingKey, msg, nil)
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue, msg, amqp.Table{
		"x-dlq-reason": reason,
	})
}

// ProgressPublisher emits progress events to the gif.progress queue.
// Publish failures are logged and swallowed: progress is advisory.
type ProgressPublisher struct {
	pub        *Publisher
	routingKey string
	logger     *zap.Logger
}

func NewProgressPublisher(pub *Publisher, logger *zap.Logger) *ProgressPublisher {
	return &ProgressPublisher{pub: pub, routingKey: "gif.progress", logger: logger}
}

// ForJob binds the publisher to one job, yielding a sink the pipelines can
// emit to without knowing the job ID.
func (pp *ProgressPublisher) ForJob(jobID uuid.UUID) port.ProgressSink {
	return &jobProgressSink{pp: pp, jobID: jobID}
}

type jobProgressSink struct {
	pp    *ProgressPublisher
	jobID uuid.UUID
}

func (s *jobProgressSink) Emit(ctx context.Context, p port.Progress) {
	event := entity.ProgressEvent{
		JobID:   s.jobID,
		Stage:   string(p.Stage),
		Message: p.Message,
		Current: p.Current,
		Total:   p.Total,
		Details: p.Details,
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.pp.logger.Warn("marshal progress event", zap.Error(err))
		return
	}
	if err := s.pp.pub.publish(ctx, s.pp.pub.exchange, s.pp.routingKey, body, nil); err != nil {
		s.pp.logger.Warn("publish progress event",
			zap.String("job_id", s.jobID.String()),
			zap.Error(err),
		)
	}
}
