package validator

import (
	"fmt"

	"github.com/eddielth/machine-bridge/config"
)

// Subject exposes named numeric fields to the validators.
type Subject interface {
	Field(name string) (float64, bool)
}

// Validator 表示数据验证器接口
type Validator interface {
	// Validate 验证数据
	Validate(data Subject) error
}

// RangeValidator 表示范围验证器
type RangeValidator struct {
	Field string
	Min   float64
	Max   float64
}

// Validate 验证数据字段是否在指定范围内
func (rv *RangeValidator) Validate(data Subject) error {
	value, ok := data.Field(rv.Field)
	if !ok {
		return fmt.Errorf("field %s does not exist", rv.Field)
	}

	if value < rv.Min || value > rv.Max {
		return fmt.Errorf("field %s value %g is outside range [%g, %g]", rv.Field, value, rv.Min, rv.Max)
	}

	return nil
}

// FromConfig builds one RangeValidator per configured rule.
func FromConfig(rules []config.RangeRule) []Validator {
	validators := make([]Validator, 0, len(rules))
	for _, rule := range rules {
		validators = append(validators, &RangeValidator{
			Field: rule.Field,
			Min:   rule.Min,
			Max:   rule.Max,
		})
	}
	return validators
}
