// Package sink holds the independent delivery targets a decoded reading is fanned out to.
package sink

import (
	"context"

	"github.com/eddielth/machine-bridge/alert"
	"github.com/eddielth/machine-bridge/telemetry"
)

// Sink is one delivery target. Implementations must be safe for concurrent
// use and must not mutate the reading or verdict.
type Sink interface {
	Name() string
	// Deliver hands over one reading. v is nil when no verdict was computed.
	Deliver(ctx context.Context, r telemetry.Reading, v *alert.Verdict) error
}
