package alert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/machine-bridge/config"
	"github.com/eddielth/machine-bridge/telemetry"
)

func reading(volume, temperatura int) telemetry.Reading {
	return telemetry.Reading{Maquina: "M1", Volume: volume, Temperatura: temperatura}
}

func TestHighTemperature(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	for _, temp := range []int{-10, 0, 79, 80} {
		assert.False(t, e.Evaluate(reading(50, temp)).AltaTemperatura, "temperature %d", temp)
	}
	for _, temp := range []int{81, 85, 500} {
		assert.True(t, e.Evaluate(reading(50, temp)).AltaTemperatura, "temperature %d", temp)
	}
}

func TestVolumeBounds(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	cases := []struct {
		volume     int
		lubrificar bool
		descarte   bool
	}{
		{volume: -5, lubrificar: true},
		{volume: 0, lubrificar: true},
		{volume: 19, lubrificar: true},
		{volume: 20},
		{volume: 55},
		{volume: 90},
		{volume: 91, descarte: true},
		{volume: 1000, descarte: true},
	}

	for _, tc := range cases {
		v := e.Evaluate(reading(tc.volume, 25))
		assert.Equal(t, tc.lubrificar, v.LubrificaMaquina, "volume %d", tc.volume)
		assert.Equal(t, tc.descarte, v.ExcessoDescarte, "volume %d", tc.volume)
		assert.False(t, v.AltaTemperatura)
	}
}

func TestFlagsAreIndependent(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	assert.Equal(t, Verdict{LubrificaMaquina: true, AltaTemperatura: true}, e.Evaluate(reading(10, 85)))
	assert.Equal(t, Verdict{ExcessoDescarte: true, AltaTemperatura: true}, e.Evaluate(reading(95, 81)))
	assert.Equal(t, Verdict{}, e.Evaluate(reading(20, 80)))
	assert.False(t, e.Evaluate(reading(50, 50)).Any())
}

func TestVerdictWireFormat(t *testing.T) {
	data, err := json.Marshal(Verdict{LubrificaMaquina: true, AltaTemperatura: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lubrifica_maquina":true,"excesso_descarte":false,"alta_temperatura":true}`, string(data))
}

func TestSetThresholds(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	assert.False(t, e.Evaluate(reading(50, 75)).AltaTemperatura)

	e.SetThresholds(ThresholdsFromConfig(config.AlertsConfig{MaxTemperature: 70, MinVolume: 20, MaxVolume: 90}))
	assert.True(t, e.Evaluate(reading(50, 75)).AltaTemperatura)
	assert.Equal(t, 70, e.Thresholds().MaxTemperature)
}
