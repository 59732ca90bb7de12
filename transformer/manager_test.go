package transformer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/machine-bridge/config"
)

const fahrenheitScript = `
function transform(raw) {
	var p = parseJSON(raw);
	return {
		Maquina: p.machine,
		Volume: p.level,
		Temperatura: convertTemperature(p.temp_f, "F", "C")
	};
}
`

func TestTransformNormalizesPayload(t *testing.T) {
	m, err := NewManager(config.TransformerConfig{ScriptCode: fahrenheitScript})
	require.NoError(t, err)

	out, err := m.Transform([]byte(`{"machine":"M1","level":15,"temp_f":185}`))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "M1", got["Maquina"])
	assert.EqualValues(t, 15, got["Volume"])
	assert.EqualValues(t, 85, got["Temperatura"])
}

func TestNewManagerErrors(t *testing.T) {
	_, err := NewManager(config.TransformerConfig{})
	assert.ErrorIs(t, err, ErrNoScript)

	_, err = NewManager(config.TransformerConfig{ScriptCode: "var x = 1;"})
	assert.ErrorContains(t, err, "transform")

	_, err = NewManager(config.TransformerConfig{ScriptCode: "function ("})
	assert.Error(t, err)

	_, err = NewManager(config.TransformerConfig{ScriptPath: filepath.Join(t.TempDir(), "missing.js")})
	assert.Error(t, err)
}

func TestTransformScriptFailure(t *testing.T) {
	m, err := NewManager(config.TransformerConfig{ScriptCode: `function transform(raw) { throw new Error("boom"); }`})
	require.NoError(t, err)

	_, err = m.Transform([]byte(`{}`))
	assert.ErrorContains(t, err, "boom")

	m, err = NewManager(config.TransformerConfig{ScriptCode: `function transform(raw) { return null; }`})
	require.NoError(t, err)
	_, err = m.Transform([]byte(`{}`))
	assert.Error(t, err)
}

func TestReloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transform.js")
	require.NoError(t, os.WriteFile(path, []byte(`function transform(raw) { return {Volume: 1, Temperatura: 1}; }`), 0644))

	m, err := NewManager(config.TransformerConfig{ScriptPath: path})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`function transform(raw) { return {Volume: 2, Temperatura: 2}; }`), 0644))
	require.NoError(t, m.Reload(config.TransformerConfig{ScriptPath: path}))

	out, err := m.Transform(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Volume":2,"Temperatura":2}`, string(out))

	assert.Error(t, m.Reload(config.TransformerConfig{ScriptCode: "nope("}))
	out, err = m.Transform(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Volume":2,"Temperatura":2}`, string(out))
}

func TestTransformConcurrentCalls(t *testing.T) {
	m, err := NewManager(config.TransformerConfig{ScriptCode: fahrenheitScript})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Transform([]byte(`{"machine":"M","level":1,"temp_f":32}`))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestConvertTemperature(t *testing.T) {
	assert.InDelta(t, 100, convertTemperature(212, "F", "C"), 0.001)
	assert.InDelta(t, 0, convertTemperature(273.15, "k", "c"), 0.001)
	assert.InDelta(t, 5, convertTemperature(5, "X", "C"), 0.001)
}
