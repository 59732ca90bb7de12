package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/eddielth/machine-bridge/logger"
)

// EnvPrefix is prepended to every environment override, e.g. BRIDGE_MQTT_PASSWORD.
const EnvPrefix = "BRIDGE"

// Config 表示应用程序的配置
type Config struct {
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Analytics   AnalyticsConfig   `mapstructure:"analytics"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	Sinks       SinksConfig       `mapstructure:"sinks"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Transformer TransformerConfig `mapstructure:"transformer"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	API         APIConfig         `mapstructure:"api"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// MQTTConfig 表示MQTT连接的配置
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	Port           int           `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	UseTLS         bool          `mapstructure:"use_tls"`
	ClientIDPrefix string        `mapstructure:"client_id_prefix"`
	TopicSubscribe string        `mapstructure:"topic_subscribe"`
	TopicPublish   string        `mapstructure:"topic_publish"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
}

// StorageConfig selects and configures the durable store behind the store sink.
type StorageConfig struct {
	Type       string `mapstructure:"type"`
	DSN        string `mapstructure:"dsn"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Path       string `mapstructure:"path"`
}

// AnalyticsConfig controls whether the analytics sink forwards anything.
// With Enabled off or an empty URL the sink stays in the pipeline and
// succeeds without a request; sinks.analytics removes it altogether.
type AnalyticsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AlertsConfig holds the alert thresholds. Comparisons are strict.
type AlertsConfig struct {
	MaxTemperature int `mapstructure:"max_temperature"`
	MinVolume      int `mapstructure:"min_volume"`
	MaxVolume      int `mapstructure:"max_volume"`
}

// SinksConfig decides which sinks are part of the pipeline at all.
type SinksConfig struct {
	Store     SinkToggle `mapstructure:"store"`
	Alert     SinkToggle `mapstructure:"alert"`
	Analytics SinkToggle `mapstructure:"analytics"`
	Live      SinkToggle `mapstructure:"live"`
}

type SinkToggle struct {
	Enabled bool `mapstructure:"enabled"`
}

type PipelineConfig struct {
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
}

// TransformerConfig 表示数据转换脚本的配置
type TransformerConfig struct {
	ScriptPath string `mapstructure:"script_path"`
	ScriptCode string `mapstructure:"script_code"`
}

// ValidationConfig lists plausibility rules applied after decoding.
type ValidationConfig struct {
	Rules []RangeRule `mapstructure:"rules"`
}

type RangeRule struct {
	Field string  `mapstructure:"field"`
	Min   float64 `mapstructure:"min"`
	Max   float64 `mapstructure:"max"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggerConfig 表示日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Console    bool   `mapstructure:"console"`
}

// ConfigChangeCallback 是配置文件变更时的回调函数类型
type ConfigChangeCallback func(cfg *Config) error

func setDefaults() {
	viper.SetDefault("mqtt.broker", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.use_tls", false)
	viper.SetDefault("mqtt.client_id_prefix", "machine-bridge")
	viper.SetDefault("mqtt.topic_subscribe", "sensores/dados")
	viper.SetDefault("mqtt.topic_publish", "sensores/alertas")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.connect_timeout", 10*time.Second)
	viper.SetDefault("mqtt.keep_alive", 30*time.Second)

	viper.SetDefault("storage.type", "mongodb")
	viper.SetDefault("storage.dsn", "mongodb://localhost:27017")
	viper.SetDefault("storage.database", "automacao")
	viper.SetDefault("storage.collection", "sensores")
	viper.SetDefault("storage.path", "./data")

	viper.SetDefault("analytics.enabled", false)
	viper.SetDefault("analytics.url", "")
	viper.SetDefault("analytics.timeout", 10*time.Second)

	viper.SetDefault("alerts.max_temperature", 80)
	viper.SetDefault("alerts.min_volume", 20)
	viper.SetDefault("alerts.max_volume", 90)

	viper.SetDefault("sinks.store.enabled", true)
	viper.SetDefault("sinks.alert.enabled", true)
	viper.SetDefault("sinks.analytics.enabled", true)
	viper.SetDefault("sinks.live.enabled", true)

	viper.SetDefault("pipeline.sink_timeout", 15*time.Second)

	viper.SetDefault("transformer.script_path", "")
	viper.SetDefault("transformer.script_code", "")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.addr", ":8080")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.file_path", "./logs/app.log")
	viper.SetDefault("logger.max_size", 10)
	viper.SetDefault("logger.max_backups", 5)
	viper.SetDefault("logger.console", true)
}

// LoadConfig 从指定路径加载配置文件
// 配置文件不存在时不报错，仍使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	viper.Reset()
	setDefaults()

	envFile := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
		logger.Warn("config file %s not found, using defaults and environment", configPath)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.MQTT.Broker == "" {
		missing = append(missing, "mqtt.broker")
	}
	if c.MQTT.TopicSubscribe == "" {
		missing = append(missing, "mqtt.topic_subscribe")
	}
	if c.Sinks.Alert.Enabled && c.MQTT.TopicPublish == "" {
		missing = append(missing, "mqtt.topic_publish")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos %d", c.MQTT.QoS)
	}

	if c.Alerts.MinVolume > c.Alerts.MaxVolume {
		return fmt.Errorf("alerts.min_volume (%d) is greater than alerts.max_volume (%d)",
			c.Alerts.MinVolume, c.Alerts.MaxVolume)
	}

	switch c.Storage.Type {
	case "mongodb", "mysql", "postgresql", "file":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	for _, rule := range c.Validation.Rules {
		if rule.Min > rule.Max {
			return fmt.Errorf("validation rule for %s has min %v greater than max %v", rule.Field, rule.Min, rule.Max)
		}
	}

	return nil
}

// WatchConfig 监听配置文件变化并调用回调函数
func WatchConfig(configPath string, callback ConfigChangeCallback) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("cannot watch %s: %w", absPath, err)
	}

	viper.SetConfigFile(absPath)
	viper.WatchConfig()

	// 防抖动处理，避免短时间内多次触发
	var (
		mu               sync.Mutex
		lastChangeTime   time.Time
		debounceInterval = 2 * time.Second
	)

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		mu.Lock()
		now := time.Now()
		if now.Sub(lastChangeTime) < debounceInterval {
			mu.Unlock()
			return
		}
		lastChangeTime = now
		mu.Unlock()

		logger.Info("config file changed: %s", e.Name)

		var newConfig Config
		if err := viper.Unmarshal(&newConfig); err != nil {
			logger.Error("failed to decode updated config: %v", err)
			return
		}
		if err := newConfig.Validate(); err != nil {
			logger.Error("updated config rejected: %v", err)
			return
		}

		if err := callback(&newConfig); err != nil {
			logger.Error("failed to apply updated config: %v", err)
			return
		}

		logger.Info("updated config applied")
	})

	return nil
}
