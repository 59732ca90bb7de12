package sink

import (
	"context"

	"github.com/eddielth/machine-bridge/alert"
	"github.com/eddielth/machine-bridge/telemetry"
)

// Event is what live subscribers receive for each reading.
type Event struct {
	Type    string            `json:"type"`
	Payload telemetry.Reading `json:"payload"`
	Alerts  *alert.Verdict    `json:"alerts,omitempty"`
}

// Broadcaster fans an event out to connected viewers without blocking.
type Broadcaster interface {
	Broadcast(e Event)
}

// LiveSink pushes readings and verdicts to the websocket feed.
type LiveSink struct {
	hub Broadcaster
}

func NewLiveSink(hub Broadcaster) *LiveSink {
	return &LiveSink{hub: hub}
}

func (s *LiveSink) Name() string { return "live" }

func (s *LiveSink) Deliver(_ context.Context, r telemetry.Reading, v *alert.Verdict) error {
	s.hub.Broadcast(Event{Type: "reading", Payload: r, Alerts: v})
	return nil
}
