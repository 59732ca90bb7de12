package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eddielth/machine-bridge/alert"
	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/telemetry"
)

// Publisher is the outbound side of the broker session.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// AlertSink republishes the verdict of every reading on the alert topic,
// whether or not any flag is raised.
type AlertSink struct {
	publisher Publisher
	topic     string
}

func NewAlertSink(publisher Publisher, topic string) *AlertSink {
	return &AlertSink{publisher: publisher, topic: topic}
}

func (s *AlertSink) Name() string { return "alert" }

func (s *AlertSink) Deliver(ctx context.Context, r telemetry.Reading, v *alert.Verdict) error {
	if v == nil {
		return nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}

	if err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		return err
	}

	logger.Info("published alert for reading %s: %s", r.ID, payload)
	return nil
}
