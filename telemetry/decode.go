package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DecodeError reports a payload that could not be turned into a Reading.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode reading: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

var (
	ErrMissingVolume      = errors.New("missing Volume")
	ErrMissingTemperatura = errors.New("missing Temperatura")
)

// wireReading mirrors Reading with pointers so absent keys can be told apart from zero values.
type wireReading struct {
	ID          *string    `json:"Id"`
	Maquina     *string    `json:"Maquina"`
	Volume      *int       `json:"Volume"`
	Temperatura *int       `json:"Temperatura"`
	Status      *string    `json:"Status"`
	DataHora    *time.Time `json:"DataHora"`
}

// Decode parses a device payload. receivedAt fills DataHora when the payload
// has none. DataHora is truncated to milliseconds, the finest precision every
// storage backend keeps.
func Decode(payload []byte, receivedAt time.Time) (Reading, error) {
	var w wireReading
	if err := json.Unmarshal(payload, &w); err != nil {
		return Reading{}, &DecodeError{Cause: err}
	}
	if w.Volume == nil {
		return Reading{}, &DecodeError{Cause: ErrMissingVolume}
	}
	if w.Temperatura == nil {
		return Reading{}, &DecodeError{Cause: ErrMissingTemperatura}
	}

	r := Reading{
		Volume:      *w.Volume,
		Temperatura: *w.Temperatura,
		DataHora:    receivedAt.UTC().Truncate(time.Millisecond),
	}
	if w.ID != nil && *w.ID != "" {
		r.ID = *w.ID
	} else {
		r.ID = uuid.NewString()
	}
	if w.Maquina != nil {
		r.Maquina = *w.Maquina
	}
	if w.Status != nil {
		r.Status = *w.Status
	}
	if w.DataHora != nil && !w.DataHora.IsZero() {
		r.DataHora = w.DataHora.UTC().Truncate(time.Millisecond)
	}

	return r, nil
}

// Encode renders a Reading in the wire format Decode accepts.
func Encode(r Reading) ([]byte, error) {
	return json.Marshal(r)
}
