// Package main is the entry point for the lacylights-dmx daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bbernstein/lacylights-dmx/internal/api"
	"github.com/bbernstein/lacylights-dmx/internal/config"
	"github.com/bbernstein/lacylights-dmx/internal/database"
	"github.com/bbernstein/lacylights-dmx/internal/database/models"
	"github.com/bbernstein/lacylights-dmx/internal/database/repositories"
	"github.com/bbernstein/lacylights-dmx/internal/logger"
	"github.com/bbernstein/lacylights-dmx/internal/services/command"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/idlewatch"
	"github.com/bbernstein/lacylights-dmx/internal/services/indicator"
	"github.com/bbernstein/lacylights-dmx/internal/services/mirror"
	"github.com/bbernstein/lacylights-dmx/internal/services/mqtt"
	"github.com/bbernstein/lacylights-dmx/internal/services/network"
	"github.com/bbernstein/lacylights-dmx/internal/services/patch"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
	"github.com/bbernstein/lacylights-dmx/internal/services/serialport"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// mqttConnectTimeout bounds the initial broker connection at startup.
const mqttConnectTimeout = 10 * time.Second

func main() {
	// Load .env file if present
	envErr := godotenv.Load()

	cfg := config.Load()

	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lacylights-dmx: %v\n", err)
		os.Exit(1)
	}
	if envErr != nil {
		log.Debug("No .env file found, using environment variables")
	}

	printBanner(cfg)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("lacylights-dmx stopped")
	}
	log.Info("Server stopped")
}

// run wires the daemon together and blocks until a signal arrives or the
// frame engine fails.
func run(cfg *config.Config, log *logger.Log) error {
	ctx := context.Background()

	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 2,
		MaxOpenConn: 4,
		Debug:       cfg.IsDevelopment() && cfg.LogLevel == "debug",
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	fixtureRepo := repositories.NewFixtureRepository(db)
	settingRepo := repositories.NewSettingRepository(db)

	if cfg.PatchFile != "" {
		f, err := patch.Load(cfg.PatchFile)
		if err != nil {
			return err
		}
		if err := patch.Import(ctx, fixtureRepo, f); err != nil {
			return err
		}
		log.WithField("file", cfg.PatchFile).Infof("📋 Imported %d fixtures", len(f.Fixtures))
	}

	bus := pubsub.New()

	engine, err := dmx.NewEngine(engineConfig(cfg, bus), serialport.Opener(cfg.SerialDevice, log), log)
	if err != nil {
		return fmt.Errorf("frame engine: %w", err)
	}

	// Slot conflicts abort before anything is streamed.
	fixtures, err := patch.Build(ctx, fixtureRepo, engine, float64(engine.Config().FrameRate))
	if err != nil {
		return err
	}
	log.Infof("💡 %d fixtures patched", len(fixtures.Fixtures))

	dispatcher := command.NewDispatcher(engine, bus, log)

	watch := idlewatch.New(engine, engine, bus, idlewatch.Config{
		Duration:      loadIdleShutdown(ctx, settingRepo, cfg.IdleShutdown, log),
		CheckInterval: cfg.IdleCheckInterval,
	}, log)

	var outputs indicator.Outputs
	for _, d := range fixtures.Indicators() {
		outputs = append(outputs, d)
	}

	var bridge *mqtt.Bridge
	if cfg.MQTTEnabled() {
		bridge = mqtt.New(mqtt.Config{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			User:        cfg.MQTTUser,
			Password:    cfg.MQTTPassword,
		}, dispatcher, bus, log)

		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := bridge.Start(connectCtx)
		cancel()
		if err != nil {
			// Continue anyway, commands still arrive over HTTP
			log.WithError(err).Warn("MQTT bridge unavailable")
			bridge = nil
		} else {
			outputs = append(outputs, bridge)
		}
	}

	var lamp *indicator.Indicator
	if len(outputs) > 0 {
		easing, err := indicator.ParseEasing(cfg.IndicatorEasing)
		if err != nil {
			log.WithError(err).Warn("using default indicator easing")
			easing = indicator.EasingInOutSine
		}
		lamp = indicator.New(outputs, bus, indicator.Config{Easing: easing}, log)
		lamp.Start()
	}

	var artnet *mirror.Mirror
	if cfg.ArtNetEnabled {
		artnet, err = startMirror(cfg, engine, log)
		if err != nil {
			// The serial line is the real output
			log.WithError(err).Warn("Art-Net mirror disabled")
			artnet = nil
		}
	}

	if err := engine.Start(); err != nil {
		return err
	}
	bus.PublishAll(pubsub.TopicEngineState, engine.State())
	watch.Start()

	server := api.New(api.Deps{
		Engine:     engine,
		Commands:   dispatcher,
		Idle:       watch,
		Settings:   settingRepo,
		Patch:      fixtureRepo,
		Bus:        bus,
		Log:        log,
		Version:    Version,
		CORSOrigin: cfg.CORSOrigin,
		Debug:      cfg.IsDevelopment() && cfg.LogLevel == "debug",
	})
	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Server listening on http://localhost:%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		log.Infof("Received %s, shutting down...", sig)
	case runErr = <-engine.Failed():
		log.WithError(runErr).Error("frame engine failed")
	case runErr = <-serverErr:
		log.WithError(runErr).Error("HTTP server failed")
	}

	// Cleanup services in reverse order
	watch.Stop()
	if lamp != nil {
		lamp.Stop()
	}
	if artnet != nil {
		artnet.Stop()
	}
	if bridge != nil {
		bridge.Stop()
	}
	if err := shutdownEngine(engine); err != nil && runErr == nil {
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown: %w", err)
	}

	return runErr
}

// engineConfig maps the daemon configuration onto the frame engine and
// publishes every stats snapshot on the bus.
func engineConfig(cfg *config.Config, bus *pubsub.PubSub) dmx.Config {
	ec := dmx.DefaultConfig()
	ec.Channels = cfg.DMXChannels
	ec.FrameRate = cfg.DMXFrameRate
	ec.StatsInterval = cfg.DMXStatsInterval
	ec.StopTimeout = cfg.DMXStopTimeout
	ec.MaxTransmitFailures = cfg.DMXMaxTransmitFailures
	ec.OnStats = func(s dmx.Stats) {
		bus.PublishAll(pubsub.TopicStats, s)
	}
	return ec
}

// loadIdleShutdown prefers the operator setting saved through the API over
// the environment default.
func loadIdleShutdown(ctx context.Context, settings *repositories.SettingRepository, def time.Duration, log *logger.Log) time.Duration {
	value, err := settings.Value(ctx, models.SettingIdleShutdown, "")
	if err != nil {
		log.WithError(err).Warn("failed to read idle shutdown setting")
		return def
	}
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.WithField("value", value).Warn("ignoring invalid idle shutdown setting")
		return def
	}
	log.WithField("duration", d).Info("⏱️  Loading saved idle shutdown")
	return d
}

// startMirror resolves the Art-Net destination and starts the mirror.
func startMirror(cfg *config.Config, src mirror.Source, log *logger.Log) (*mirror.Mirror, error) {
	ifaces, err := network.List()
	if err != nil {
		return nil, err
	}
	addr, err := network.Resolve(cfg.ArtNetBroadcast, ifaces)
	if err != nil {
		return nil, err
	}
	m := mirror.New(src, mirror.Config{
		Broadcast:        addr,
		Port:             cfg.ArtNetPort,
		Channels:         cfg.DMXChannels,
		RefreshRateHz:    cfg.ArtNetRefreshRate,
		IdleRateHz:       cfg.ArtNetIdleRate,
		HighRateDuration: cfg.ArtNetHighRateDuration,
	}, log)
	if err := m.Start(); err != nil {
		return nil, err
	}
	return m, nil
}

// shutdownEngine stops streaming and makes the engine terminal. A stop that
// times out is reported after the engine is shut down.
func shutdownEngine(engine *dmx.Engine) error {
	stopErr := engine.Stop()
	if err := engine.Shutdown(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	serial := cfg.SerialDevice
	if serial == "" {
		serial = serialport.Simulate
	}
	mqttBroker := cfg.MQTTBroker
	if mqttBroker == "" {
		mqttBroker = "off"
	}

	fmt.Println("============================================")
	fmt.Println("  LacyLights DMX")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Serial:      %s\n", serial)
	fmt.Printf("  DMX:         %d channels @ %d fps\n", cfg.DMXChannels, cfg.DMXFrameRate)
	fmt.Printf("  Art-Net:     %v\n", cfg.ArtNetEnabled)
	fmt.Printf("  MQTT:        %s\n", mqttBroker)
	fmt.Println("============================================")
}
