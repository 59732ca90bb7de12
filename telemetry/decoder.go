package telemetry

import (
	"time"

	"github.com/eddielth/machine-bridge/validator"
)

// Transformer rewrites a device-specific payload into the canonical JSON shape.
type Transformer interface {
	Transform(payload []byte) ([]byte, error)
}

// Decoder runs the optional normalization script, Decode and the plausibility rules.
// Every failure is reported as a *DecodeError.
type Decoder struct {
	transformer Transformer
	validators  []validator.Validator
	now         func() time.Time
}

func NewDecoder(t Transformer, validators ...validator.Validator) *Decoder {
	return &Decoder{
		transformer: t,
		validators:  validators,
		now:         time.Now,
	}
}

func (d *Decoder) Decode(payload []byte) (Reading, error) {
	if d.transformer != nil {
		normalized, err := d.transformer.Transform(payload)
		if err != nil {
			return Reading{}, &DecodeError{Cause: err}
		}
		payload = normalized
	}

	r, err := Decode(payload, d.now())
	if err != nil {
		return Reading{}, err
	}

	for _, v := range d.validators {
		if err := v.Validate(r); err != nil {
			return Reading{}, &DecodeError{Cause: err}
		}
	}

	return r, nil
}
