package telemetry

import (
	"strings"
	"time"
)

// Reading is one machine sample as received from the field.
type Reading struct {
	ID          string    `json:"Id" bson:"_id"`
	Maquina     string    `json:"Maquina" bson:"Maquina"`
	Volume      int       `json:"Volume" bson:"Volume"`
	Temperatura int       `json:"Temperatura" bson:"Temperatura"`
	Status      string    `json:"Status,omitempty" bson:"Status,omitempty"`
	DataHora    time.Time `json:"DataHora" bson:"DataHora"`
}

// Field returns the numeric value of a named field, for range rules.
func (r Reading) Field(name string) (float64, bool) {
	switch strings.ToLower(name) {
	case "volume":
		return float64(r.Volume), true
	case "temperatura", "temperature":
		return float64(r.Temperatura), true
	default:
		return 0, false
	}
}
