// Package pipeline turns one inbound broker message into deliveries to every
// configured sink. Failures are isolated per message and per sink, logged,
// and never retried.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/eddielth/machine-bridge/alert"
	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/sink"
	"github.com/eddielth/machine-bridge/telemetry"
)

const defaultSinkTimeout = 15 * time.Second

type Decoder interface {
	Decode(payload []byte) (telemetry.Reading, error)
}

type Evaluator interface {
	Evaluate(r telemetry.Reading) alert.Verdict
}

// Outcome is the result of one sink for one message.
type Outcome struct {
	Sink     string
	Err      error
	Duration time.Duration
}

// Report describes what happened to one message.
type Report struct {
	Topic     string
	Reading   telemetry.Reading
	Verdict   *alert.Verdict
	DecodeErr error
	// Outcomes has one entry per sink, in the order the sinks were configured.
	Outcomes []Outcome
}

// Failed returns the outcomes that carry an error.
func (r Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Stats are cumulative counters since the pipeline was created.
type Stats struct {
	Received       uint64
	DecodeFailures uint64
	SinkFailures   map[string]uint64
}

type Pipeline struct {
	decoder     Decoder
	evaluator   Evaluator
	sinks       []sink.Sink
	sinkTimeout time.Duration

	received       atomic.Uint64
	decodeFailures atomic.Uint64
	// keys are fixed at construction so the map itself is never written concurrently
	sinkFailures map[string]*atomic.Uint64
}

func New(decoder Decoder, evaluator Evaluator, sinkTimeout time.Duration, sinks ...sink.Sink) *Pipeline {
	if sinkTimeout <= 0 {
		sinkTimeout = defaultSinkTimeout
	}

	failures := make(map[string]*atomic.Uint64, len(sinks))
	for _, s := range sinks {
		failures[s.Name()] = &atomic.Uint64{}
	}

	return &Pipeline{
		decoder:      decoder,
		evaluator:    evaluator,
		sinks:        sinks,
		sinkTimeout:  sinkTimeout,
		sinkFailures: failures,
	}
}

// Sinks returns the names of the configured sinks in delivery order.
func (p *Pipeline) Sinks() []string {
	names := make([]string, 0, len(p.sinks))
	for _, s := range p.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Handle processes one message. It is safe to call concurrently for
// different messages and is meant to be the session's message handler.
func (p *Pipeline) Handle(topic string, payload []byte) Report {
	p.received.Add(1)
	report := Report{Topic: topic}

	logger.Debug("message received on %s: %s", topic, payload)

	r, err := p.decoder.Decode(payload)
	if err != nil {
		p.decodeFailures.Add(1)
		logger.Error("dropping message from %s: %v", topic, err)
		report.DecodeErr = err
		return report
	}
	report.Reading = r

	verdict := p.evaluator.Evaluate(r)
	report.Verdict = &verdict
	logVerdict(r, verdict)

	report.Outcomes = make([]Outcome, len(p.sinks))
	wg := conc.NewWaitGroup()
	for i, s := range p.sinks {
		i, s := i, s
		v := verdict
		wg.Go(func() {
			report.Outcomes[i] = p.deliver(s, r, &v)
		})
	}
	wg.Wait()

	if failed := len(report.Failed()); failed > 0 {
		logger.Warn("reading %s from %s: %d of %d sinks failed", r.ID, r.Maquina, failed, len(p.sinks))
	} else {
		logger.Info("reading %s from %s delivered to %d sinks", r.ID, r.Maquina, len(p.sinks))
	}

	return report
}

// deliver runs one sink with its own timeout; a panic becomes that sink's error.
func (p *Pipeline) deliver(s sink.Sink, r telemetry.Reading, v *alert.Verdict) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), p.sinkTimeout)
	defer cancel()

	start := time.Now()
	var err error
	var catcher panics.Catcher
	catcher.Try(func() {
		err = s.Deliver(ctx, r, v)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		err = fmt.Errorf("sink panicked: %w", recovered.AsError())
	}

	outcome := Outcome{Sink: s.Name(), Err: err, Duration: time.Since(start)}
	if err != nil {
		p.sinkFailures[s.Name()].Add(1)
		logger.Error("sink %s failed for reading %s: %v", s.Name(), r.ID, err)
	} else {
		logger.Debug("sink %s delivered reading %s in %s", s.Name(), r.ID, outcome.Duration)
	}
	return outcome
}

func logVerdict(r telemetry.Reading, v alert.Verdict) {
	if v.AltaTemperatura {
		logger.Warn("high temperature on %s: %d°C", r.Maquina, r.Temperatura)
	}
	if v.LubrificaMaquina {
		logger.Warn("low volume on %s: %d, lubrication needed", r.Maquina, r.Volume)
	}
	if v.ExcessoDescarte {
		logger.Warn("high volume on %s: %d, excess discard", r.Maquina, r.Volume)
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	st := Stats{
		Received:       p.received.Load(),
		DecodeFailures: p.decodeFailures.Load(),
		SinkFailures:   make(map[string]uint64, len(p.sinkFailures)),
	}
	for name, n := range p.sinkFailures {
		st.SinkFailures[name] = n.Load()
	}
	return st
}
