package sink

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	mqcontracts "mail-summary-service/contracts/mq"
	"mail-summary-service/internal/model"
	"mail-summary-service/pkg/metrics"
	"mail-summary-service/pkg/otel"
)

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// EventSink 把任务结果作为事件发布到 RabbitMQ
type EventSink struct {
	publisher Publisher
}

func NewEventSink(publisher Publisher) *EventSink {
	return &EventSink{publisher: publisher}
}

func (s *EventSink) Name() string { return "mq" }

func (s *EventSink) JobFinished(ctx context.Context, job model.Job) error {
	routingKey, payload, err := eventFor(job)
	if err != nil {
		return err
	}

	err = otel.Traced(ctx, "mq.publish", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, routingKey, payload)
	}, attribute.String("messaging.destination", routingKey), attribute.String("job.id", job.ID))

	if err != nil {
		metrics.IncrementEventPublished(routingKey, "error")
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	metrics.IncrementEventPublished(routingKey, "success")
	return nil
}

func eventFor(job model.Job) (string, any, error) {
	switch job.Status {
	case model.JobStatusCompleted:
		results := make([]mqcontracts.SummaryEntry, 0, len(job.Results))
		for _, e := range job.Results {
			results = append(results, mqcontracts.SummaryEntry{
				Sender:  e.Sender,
				Subject: e.Subject,
				Summary: e.Summary,
			})
		}
		return mqcontracts.RoutingKeySummaryCompleted, mqcontracts.SummaryJobCompletedPayload{
			JobID:       job.ID,
			EntryCount:  len(results),
			Results:     results,
			SubmittedAt: job.CreatedAt,
			CompletedAt: job.UpdatedAt,
		}, nil
	case model.JobStatusFailed:
		return mqcontracts.RoutingKeySummaryFailed, mqcontracts.SummaryJobFailedPayload{
			JobID:       job.ID,
			Error:       job.Error,
			SubmittedAt: job.CreatedAt,
			FailedAt:    job.UpdatedAt,
		}, nil
	default:
		return "", nil, fmt.Errorf("job %s is not finished (status %q)", job.ID, job.Status)
	}
}
