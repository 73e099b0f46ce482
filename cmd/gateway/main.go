package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"smartgateway/internal/automation"
	"smartgateway/internal/config"
	"smartgateway/internal/db"
	"smartgateway/internal/engine"
	"smartgateway/internal/llm"
	"smartgateway/internal/models"
	"smartgateway/internal/mqtt"
	"smartgateway/internal/redis"
	"smartgateway/internal/scheduler"
	"smartgateway/internal/switchbot"
	"smartgateway/internal/taskqueue"
	"smartgateway/internal/utils"
	"smartgateway/internal/web"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := utils.InitLogging(cfg.LogLevel, cfg.LogFormat)
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SwitchBotToken == "" || cfg.SwitchBotSecret == "" {
		logger.Warn("SWITCHBOT_TOKEN or SWITCHBOT_SECRET not set, device calls will fail")
	}
	clientOpts := []switchbot.Option{
		switchbot.WithBaseURL(cfg.SwitchBotBaseURL),
		switchbot.WithLimiter(switchbot.NewLimiter(switchbot.Limits{
			PerMinute: cfg.SwitchBotRatePerMinute,
			PerHour:   cfg.SwitchBotRatePerHour,
			PerDay:    cfg.SwitchBotRatePerDay,
		})),
		switchbot.WithTTLs(switchbot.TTLs{
			Devices: cfg.CacheDevicesTTL,
			Status:  cfg.CacheStatusTTL,
			Scenes:  cfg.CacheScenesTTL,
		}),
		switchbot.WithRetry(cfg.SwitchBotMaxRetries, 0),
		switchbot.WithLogger(logger),
	}

	var engineOpts []engine.Option
	var cleanups []func()

	if cfg.RedisAddr != "" {
		rdb, err := redis.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		cleanups = append(cleanups, func() { _ = rdb.Close() })
		clientOpts = append(clientOpts, switchbot.WithCache(switchbot.NewRedisCache(rdb)))
		logger.Info("switchbot cache backed by redis", "addr", cfg.RedisAddr)
	}
	devices := switchbot.NewClient(cfg.SwitchBotToken, cfg.SwitchBotSecret, clientOpts...)

	var sinks []scheduler.ExecutionSink
	if cfg.DBURL != "" {
		dbConn, err := db.NewDB(ctx, cfg.DBURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := dbConn.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare execution journal", "error", err)
			os.Exit(1)
		}
		cleanups = append(cleanups, dbConn.Close)
		sinks = append(sinks, dbConn)
	}

	var bridge *mqtt.Bridge
	if cfg.MQTTBroker != "" {
		mqttClient, err := mqtt.NewMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			logger.Error("failed to connect to mqtt", "broker", cfg.MQTTBroker, "error", err)
			os.Exit(1)
		}
		bridge = mqtt.NewBridge(mqttClient, cfg.MQTTTopicPrefix, logger)
		cleanups = append(cleanups, bridge.Close)
		sinks = append(sinks, bridge)
		engineOpts = append(engineOpts, engine.WithNotifier(bridge))
	} else {
		engineOpts = append(engineOpts, engine.WithNotifier(automation.LogNotifier{Logger: logger}))
	}

	var dispatcher *taskqueue.Dispatcher
	if cfg.TaskQueueEnabled {
		if cfg.RedisAddr == "" {
			logger.Warn("TASKQUEUE_ENABLED needs REDIS_ADDR, running rules in-process")
		} else {
			dispatcher = taskqueue.NewDispatcher(cfg.RedisAddr, logger)
			cleanups = append(cleanups, func() { _ = dispatcher.Close() })
			engineOpts = append(engineOpts, engine.WithDispatcher(dispatcher))
		}
	}

	if cfg.OpenAIAPIKey != "" {
		engineOpts = append(engineOpts, engine.WithLLM(llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)))
	} else {
		logger.Info("OPENAI_API_KEY not set, workflow parsing uses keyword rules only")
	}

	engineOpts = append(engineOpts,
		engine.WithSinks(sinks...),
		engine.WithLocation(cfg.Location()),
		engine.WithLogger(logger),
	)
	eng := engine.NewEngine(devices, engineOpts...)
	eng.Start()

	var worker *taskqueue.Worker
	if dispatcher != nil {
		isGone := func(err error) bool { return errors.Is(err, scheduler.ErrRuleNotFound) }
		worker = taskqueue.NewWorker(cfg.RedisAddr, cfg.TaskQueueConcurrency, eng.Scheduler(), isGone, logger)
		if err := worker.Start(); err != nil {
			logger.Error("failed to start task workers", "error", err)
			os.Exit(1)
		}
	}

	if bridge != nil {
		err := bridge.SubscribeEvents(func(ev models.AutomationEvent) {
			eng.HandleDeviceEvent(ctx, ev)
		})
		if err != nil {
			logger.Error("failed to subscribe to device events", "error", err)
		}
	}

	webServer := web.NewWebServer(eng, cfg.SwitchBotWebhookSecret, logger)
	go func() {
		if err := webServer.Start(cfg.Addr()); err != nil {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	if cfg.MDNSEnabled {
		if conn, err := startMDNSServer(cfg.MDNSLocalName, logger); err != nil {
			logger.Warn("mdns disabled", "error", err)
		} else {
			cleanups = append(cleanups, func() { _ = conn.Close() })
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if worker != nil {
		worker.Stop()
	}
	eng.Stop()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	logger.Info("shutdown complete")
}

func startMDNSServer(localName string, logger *slog.Logger) (*mdns.Conn, error) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return nil, err
	}
	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		return nil, err
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return nil, err
	}
	var pc6 *ipv6.PacketConn
	if l6, err := net.ListenUDP("udp6", addr6); err != nil {
		logger.Debug("mdns ipv6 unavailable", "error", err)
	} else {
		pc6 = ipv6.NewPacketConn(l6)
	}

	conn, err := mdns.Server(ipv4.NewPacketConn(l4), pc6, &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		return nil, err
	}
	logger.Info("mdns responder started", "name", localName)
	return conn, nil
}
