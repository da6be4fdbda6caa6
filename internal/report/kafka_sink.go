package report

import (
	"context"
	"encoding/json"
	"fmt"

	"reftester/internal/common/mq"
	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/clock"
)

const (
	headerKind   = "kind"
	kindOutcome  = "outcome"
	kindBatch    = "batch"
	defaultTopic = "reftester.outcomes"
)

// EventSink publishes every outcome and the final summary to a message queue.
type EventSink struct {
	producer mq.Producer
	topic    string
	runID    string
	clock    clock.Clock
}

func NewEventSink(producer mq.Producer, topic, runID string, clk clock.Clock) (*EventSink, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if topic == "" {
		topic = defaultTopic
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &EventSink{producer: producer, topic: topic, runID: runID, clock: clk}, nil
}

func (s *EventSink) RecordOutcome(ctx context.Context, o model.Outcome) error {
	return s.publish(ctx, s.runID+"/"+o.Path, kindOutcome, newEvent(s.runID, o, s.clock.Now()))
}

func (s *EventSink) RecordBatch(ctx context.Context, res model.BatchResult) error {
	return s.publish(ctx, s.runID, kindBatch, newSummary(s.runID, res, s.clock.Now()))
}

func (s *EventSink) publish(ctx context.Context, id, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "marshal %s event failed", kind)
	}
	msg := mq.NewMessage(id, body)
	msg.Timestamp = s.clock.Now()
	msg.SetHeader(headerKind, kind)
	if err := s.producer.Publish(ctx, s.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "publish %s event failed", kind)
	}
	return nil
}
