package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"autograde/internal/common/mq"
	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"
)

type fakeProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.topic = topic
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeProducer) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	for _, m := range messages {
		if err := f.Publish(ctx, topic, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProducer) Ping(ctx context.Context) error { return nil }
func (f *fakeProducer) Close() error                   { return nil }

func TestPublishGrade(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewMQGradeEventPublisher(producer, "grades")
	pub.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := pub.PublishGrade(context.Background(), model.GradeEvent{
		RunID:   "run-1",
		Student: "alice@x",
		Grade:   10,
		Outcome: string(model.OutcomeCompleted),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if producer.topic != "grades" || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish %q %d", producer.topic, len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.ID != "alice@x" {
		t.Fatalf("unexpected key %q", msg.ID)
	}
	if v, _ := msg.GetHeader("run_id"); v != "run-1" {
		t.Fatalf("unexpected run header %q", v)
	}
	var event model.GradeEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Grade != 10 || event.FinishedAt != 1700000000 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestPublishGradeValidation(t *testing.T) {
	var nilPub *MQGradeEventPublisher
	if err := nilPub.PublishGrade(context.Background(), model.GradeEvent{Student: "a"}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
	pub := NewMQGradeEventPublisher(&fakeProducer{}, "")
	if err := pub.PublishGrade(context.Background(), model.GradeEvent{Student: "a"}); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
	pub = NewMQGradeEventPublisher(&fakeProducer{}, "grades")
	if err := pub.PublishGrade(context.Background(), model.GradeEvent{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestPublishGradeWrapsProducerError(t *testing.T) {
	pub := NewMQGradeEventPublisher(&fakeProducer{err: errors.New("broker down")}, "grades")
	err := pub.PublishGrade(context.Background(), model.GradeEvent{Student: "a"})
	if !appErr.Is(err, appErr.PublishFailed) {
		t.Fatalf("expected PublishFailed, got %v", err)
	}
}
