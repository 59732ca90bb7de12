package sink

import (
	"context"

	"github.com/eddielth/machine-bridge/alert"
	"github.com/eddielth/machine-bridge/storage"
	"github.com/eddielth/machine-bridge/telemetry"
)

// StoreSink persists every reading through a storage backend.
type StoreSink struct {
	backend storage.Backend
}

func NewStoreSink(backend storage.Backend) *StoreSink {
	return &StoreSink{backend: backend}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, r telemetry.Reading, _ *alert.Verdict) error {
	return s.backend.Store(ctx, r)
}
