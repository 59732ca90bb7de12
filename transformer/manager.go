package transformer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/eddielth/machine-bridge/config"
	"github.com/eddielth/machine-bridge/logger"
)

// ErrNoScript is returned when neither script_code nor script_path is configured.
var ErrNoScript = errors.New("no script code or script path provided")

// Manager holds the active normalization script and swaps it on reload.
type Manager struct {
	current *Transformer
	mutex   sync.RWMutex
}

// Transformer wraps one compiled script.
// A goja runtime is not safe for concurrent use, so calls are serialized.
type Transformer struct {
	vm         *goja.Runtime
	transform  goja.Callable
	scriptPath string
	mu         sync.Mutex
}

// NewManager 创建一个新的转换器管理器
func NewManager(cfg config.TransformerConfig) (*Manager, error) {
	t, err := load(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("loaded payload transformer %s", describe(cfg))
	return &Manager{current: t}, nil
}

// Enabled reports whether the configuration names a script.
func Enabled(cfg config.TransformerConfig) bool {
	return cfg.ScriptCode != "" || cfg.ScriptPath != ""
}

func describe(cfg config.TransformerConfig) string {
	if cfg.ScriptCode != "" {
		return "(inline)"
	}
	return cfg.ScriptPath
}

func load(cfg config.TransformerConfig) (*Transformer, error) {
	var scriptCode string

	// 优先使用配置中的脚本代码
	switch {
	case cfg.ScriptCode != "":
		scriptCode = cfg.ScriptCode
	case cfg.ScriptPath != "":
		scriptBytes, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load script file %s: %w", cfg.ScriptPath, err)
		}
		scriptCode = string(scriptBytes)
	default:
		return nil, ErrNoScript
	}

	return newTransformer(scriptCode, cfg.ScriptPath)
}

// newTransformer 创建一个新的转换器
func newTransformer(scriptCode, scriptPath string) (*Transformer, error) {
	vm := goja.New()

	_ = vm.Set("log", func(msg string) {
		logger.Info("[JS] %s", msg)
	})

	_ = vm.Set("parseJSON", func(jsonStr string) interface{} {
		var data interface{}
		if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
			logger.Warn("failed to parse JSON in script: %v", err)
			return nil
		}
		return data
	})

	_ = vm.Set("formatDate", func(timestamp int64, format string) string {
		if format == "" {
			format = time.RFC3339
		}
		return time.Unix(timestamp, 0).UTC().Format(format)
	})

	// Result is rounded to whole degrees; readings carry integers.
	_ = vm.Set("convertTemperature", func(value float64, fromUnit string, toUnit string) int64 {
		return int64(math.Round(convertTemperature(value, fromUnit, toUnit)))
	})

	_ = vm.Set("validateRange", func(value float64, min float64, max float64) bool {
		return value >= min && value <= max
	})

	if _, err := vm.RunString(scriptCode); err != nil {
		return nil, fmt.Errorf("failed to run script: %w", err)
	}

	transform, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return nil, fmt.Errorf("script does not define a 'transform' function")
	}

	return &Transformer{
		vm:         vm,
		transform:  transform,
		scriptPath: scriptPath,
	}, nil
}

// per-unit conversions through Celsius; unknown units pass values through
var (
	toCelsius = map[string]func(float64) float64{
		"C": func(v float64) float64 { return v },
		"F": func(v float64) float64 { return (v - 32) / 1.8 },
		"K": func(v float64) float64 { return v - 273.15 },
	}
	fromCelsius = map[string]func(float64) float64{
		"C": func(v float64) float64 { return v },
		"F": func(v float64) float64 { return v*1.8 + 32 },
		"K": func(v float64) float64 { return v + 273.15 },
	}
)

func convertTemperature(value float64, fromUnit, toUnit string) float64 {
	in, ok := toCelsius[strings.ToUpper(fromUnit)]
	if !ok {
		return value
	}
	out, ok := fromCelsius[strings.ToUpper(toUnit)]
	if !ok {
		out = fromCelsius["C"]
	}
	return out(in(value))
}

func (t *Transformer) run(payload []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.transform(goja.Undefined(), t.vm.ToValue(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("transform failed: %w", err)
	}
	if goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, fmt.Errorf("transform returned no value")
	}

	out, err := json.Marshal(result.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize script result: %w", err)
	}
	return out, nil
}

// Transform 使用当前脚本转换数据
func (m *Manager) Transform(payload []byte) ([]byte, error) {
	m.mutex.RLock()
	t := m.current
	m.mutex.RUnlock()

	return t.run(payload)
}

// Reload swaps in a freshly loaded script. The previous script stays
// active on failure.
func (m *Manager) Reload(cfg config.TransformerConfig) error {
	t, err := load(cfg)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	m.current = t
	m.mutex.Unlock()

	logger.Info("reloaded payload transformer %s", describe(cfg))
	return nil
}
