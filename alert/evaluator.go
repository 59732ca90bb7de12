package alert

import (
	"sync/atomic"

	"github.com/eddielth/machine-bridge/config"
	"github.com/eddielth/machine-bridge/telemetry"
)

// Thresholds are exclusive bounds: a value equal to a threshold never alerts.
type Thresholds struct {
	MaxTemperature int
	MinVolume      int
	MaxVolume      int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxTemperature: 80,
		MinVolume:      20,
		MaxVolume:      90,
	}
}

func ThresholdsFromConfig(cfg config.AlertsConfig) Thresholds {
	return Thresholds{
		MaxTemperature: cfg.MaxTemperature,
		MinVolume:      cfg.MinVolume,
		MaxVolume:      cfg.MaxVolume,
	}
}

// Verdict is the alert command published for every decoded reading.
type Verdict struct {
	LubrificaMaquina bool `json:"lubrifica_maquina"`
	ExcessoDescarte  bool `json:"excesso_descarte"`
	AltaTemperatura  bool `json:"alta_temperatura"`
}

// Any reports whether at least one condition was raised.
func (v Verdict) Any() bool {
	return v.LubrificaMaquina || v.ExcessoDescarte || v.AltaTemperatura
}

// Evaluate classifies r against t. Each flag is computed independently.
func (t Thresholds) Evaluate(r telemetry.Reading) Verdict {
	return Verdict{
		LubrificaMaquina: r.Volume < t.MinVolume,
		ExcessoDescarte:  r.Volume > t.MaxVolume,
		AltaTemperatura:  r.Temperatura > t.MaxTemperature,
	}
}

// Evaluator holds the active thresholds; they can be replaced while messages are in flight.
type Evaluator struct {
	thresholds atomic.Pointer[Thresholds]
}

func NewEvaluator(t Thresholds) *Evaluator {
	e := &Evaluator{}
	e.SetThresholds(t)
	return e
}

func (e *Evaluator) SetThresholds(t Thresholds) {
	e.thresholds.Store(&t)
}

func (e *Evaluator) Thresholds() Thresholds {
	return *e.thresholds.Load()
}

func (e *Evaluator) Evaluate(r telemetry.Reading) Verdict {
	return e.thresholds.Load().Evaluate(r)
}
