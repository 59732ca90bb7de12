package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eddielth/machine-bridge/config"
)

type fields map[string]float64

func (f fields) Field(name string) (float64, bool) {
	v, ok := f[name]
	return v, ok
}

func TestRangeValidator(t *testing.T) {
	rv := &RangeValidator{Field: "volume", Min: 0, Max: 100}

	assert.NoError(t, rv.Validate(fields{"volume": 0}))
	assert.NoError(t, rv.Validate(fields{"volume": 100}))
	assert.Error(t, rv.Validate(fields{"volume": -1}))
	assert.Error(t, rv.Validate(fields{"volume": 100.5}))
	assert.ErrorContains(t, rv.Validate(fields{"temperatura": 20}), "does not exist")
}

func TestFromConfig(t *testing.T) {
	validators := FromConfig([]config.RangeRule{
		{Field: "volume", Min: 0, Max: 100},
		{Field: "temperatura", Min: -40, Max: 200},
	})

	assert.Len(t, validators, 2)
	assert.Error(t, validators[1].Validate(fields{"temperatura": 250}))
}
