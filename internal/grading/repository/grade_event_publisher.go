package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"autograde/internal/common/mq"
	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"
)

// GradeEventPublisher publishes one event per recorded submission.
type GradeEventPublisher interface {
	PublishGrade(ctx context.Context, event model.GradeEvent) error
}

// MQGradeEventPublisher publishes grade events to a message queue.
type MQGradeEventPublisher struct {
	producer mq.Producer
	topic    string
	now      func() time.Time
}

// NewMQGradeEventPublisher creates a new MQ grade event publisher.
func NewMQGradeEventPublisher(producer mq.Producer, topic string) *MQGradeEventPublisher {
	return &MQGradeEventPublisher{producer: producer, topic: topic, now: time.Now}
}

// PublishGrade publishes a grade event keyed by student.
func (p *MQGradeEventPublisher) PublishGrade(ctx context.Context, event model.GradeEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("grade publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("grade topic is required")
	}
	if event.Student == "" {
		return appErr.ValidationError("student", "required")
	}
	if event.FinishedAt == 0 {
		event.FinishedAt = p.now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal grade event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.Student
	message.SetHeader("run_id", event.RunID)
	message.SetHeader("outcome", event.Outcome)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.PublishFailed, "publish grade event failed")
	}
	return nil
}
