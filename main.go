package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eddielth/machine-bridge/alert"
	"github.com/eddielth/machine-bridge/api"
	"github.com/eddielth/machine-bridge/config"
	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/mqtt"
	"github.com/eddielth/machine-bridge/pipeline"
	"github.com/eddielth/machine-bridge/sink"
	"github.com/eddielth/machine-bridge/storage"
	"github.com/eddielth/machine-bridge/telemetry"
	"github.com/eddielth/machine-bridge/transformer"
	"github.com/eddielth/machine-bridge/validator"
)

const shutdownGrace = 5 * time.Second

func main() {
	// 配置文件路径
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	if err := logger.InitFromConfig(cfg.Logger.Level, cfg.Logger.FilePath,
		cfg.Logger.MaxSize, cfg.Logger.MaxBackups, cfg.Logger.Console); err != nil {
		logger.Error("failed to initialize logger: %v", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := run(*configPath, cfg); err != nil {
		logger.Error("%v", err)
		logger.Close()
		os.Exit(1)
	}
}

func run(configPath string, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化存储
	var backend storage.Backend
	if cfg.Sinks.Store.Enabled || cfg.API.Enabled {
		var err error
		backend, err = storage.New(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer func() {
			if err := backend.Close(); err != nil {
				logger.Error("failed to close storage: %v", err)
			}
		}()
	}

	// 初始化转换器
	var scripts *transformer.Manager
	var normalizer telemetry.Transformer
	if transformer.Enabled(cfg.Transformer) {
		var err error
		scripts, err = transformer.NewManager(cfg.Transformer)
		if err != nil {
			return err
		}
		normalizer = scripts
	}

	decoder := telemetry.NewDecoder(normalizer, validator.FromConfig(cfg.Validation.Rules)...)
	evaluator := alert.NewEvaluator(alert.ThresholdsFromConfig(cfg.Alerts))

	// The session handler closes over p, which is assigned before Start.
	var p *pipeline.Pipeline
	session, err := mqtt.NewSession(cfg.MQTT, func(topic string, payload []byte) {
		p.Handle(topic, payload)
	})
	if err != nil {
		return err
	}

	var hub *api.Hub
	if cfg.API.Enabled && cfg.Sinks.Live.Enabled {
		hub = api.NewHub()
		go hub.Run(ctx)
	}

	var sinks []sink.Sink
	if cfg.Sinks.Store.Enabled {
		sinks = append(sinks, sink.NewStoreSink(backend))
	}
	if cfg.Sinks.Alert.Enabled {
		sinks = append(sinks, sink.NewAlertSink(session, cfg.MQTT.TopicPublish))
	}
	if cfg.Sinks.Analytics.Enabled {
		// A non-forwarding sink still runs and reports success for every reading.
		analytics := sink.NewAnalyticsSink(cfg.Analytics, nil)
		if !analytics.Enabled() {
			logger.Info("analytics sink will not forward: analytics.enabled is off or analytics.url is empty")
		}
		sinks = append(sinks, analytics)
	}
	if hub != nil {
		sinks = append(sinks, sink.NewLiveSink(hub))
	}

	p = pipeline.New(decoder, evaluator, cfg.Pipeline.SinkTimeout, sinks...)
	logger.Info("pipeline sinks: %v", p.Sinks())

	// 连接MQTT服务器并订阅
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	var server *api.Server
	if cfg.API.Enabled {
		gin.SetMode(gin.ReleaseMode)
		deps := api.Deps{
			Publisher:    session,
			PublishTopic: cfg.MQTT.TopicPublish,
			Hub:          hub,
			Status: func() interface{} {
				return gin.H{
					"client_id": session.ClientID(),
					"session":   session.State().String(),
					"sinks":     p.Sinks(),
					"stats":     p.Stats(),
				}
			},
		}
		if backend != nil {
			deps.Readings = backend
		}
		server = api.NewServer(cfg.API.Addr, api.NewHandler(deps))
		server.Start()
	}

	// 监听配置文件变化
	err = config.WatchConfig(configPath, func(newCfg *config.Config) error {
		evaluator.SetThresholds(alert.ThresholdsFromConfig(newCfg.Alerts))

		if err := logger.SetLevel(newCfg.Logger.Level); err != nil {
			logger.Warn("keeping log level: %v", err)
		}

		if scripts != nil && transformer.Enabled(newCfg.Transformer) {
			if err := scripts.Reload(newCfg.Transformer); err != nil {
				return err
			}
		} else if transformer.Enabled(newCfg.Transformer) != (scripts != nil) {
			logger.Warn("enabling or disabling the transformer takes effect after restart")
		}

		if newCfg.MQTT != cfg.MQTT || newCfg.Storage != cfg.Storage {
			logger.Warn("MQTT and storage changes take effect after restart")
		}
		return nil
	})
	if err != nil {
		// 不致命，继续运行
		logger.Warn("config watch disabled: %v", err)
	}

	logger.Info("machine bridge started, waiting for readings on %s", cfg.MQTT.TopicSubscribe)

	// 等待中断信号退出
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received %s, shutting down", sig)

	session.Stop()

	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown: %v", err)
		}
	}

	logger.Info("service stopped")
	return nil
}
