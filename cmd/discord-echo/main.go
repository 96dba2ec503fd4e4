// discord-echo relays Discord channel messages into a Hercules map server.
//
// Every message posted in a mapped Discord channel is encoded as a
// fixed-size packet and delivered over a short-lived TCP connection to the
// map server, which broadcasts it in the matching in-game channel. A local
// status API, MQTT telemetry, SQLite relay history and an interactive
// console run alongside the relay.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/api"
	"github.com/energizer-project/discord-echo/internal/channel"
	"github.com/energizer-project/discord-echo/internal/cli"
	"github.com/energizer-project/discord-echo/internal/config"
	"github.com/energizer-project/discord-echo/internal/connector"
	"github.com/energizer-project/discord-echo/internal/db"
	"github.com/energizer-project/discord-echo/internal/events"
	"github.com/energizer-project/discord-echo/internal/health"
	"github.com/energizer-project/discord-echo/internal/network"
	"github.com/energizer-project/discord-echo/internal/relay"
	"github.com/energizer-project/discord-echo/internal/scheduler"
	"github.com/energizer-project/discord-echo/internal/telemetry"
	"github.com/energizer-project/discord-echo/internal/util"
)

const Banner = `
     _ _                       _                 _
  __| (_)___  ___ ___  _ __ __| |   ___  ___| |__   ___
 / _' | / __|/ __/ _ \| '__/ _' |  / _ \/ __| '_ \ / _ \
| (_| | \__ \ (_| (_) | | | (_| | |  __/ (__| | | | (_) |
 \__,_|_|___/\___\___/|_|  \__,_|  \___|\___|_| |_|\___/
  v%s  Discord -> map server chat relay
`

func main() {
	fmt.Printf(Banner, util.Version)
	fmt.Println()

	// Defaults first; reconfigured once the config is loaded.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", util.Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting discord-echo")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	overrides, err := config.ParseEnvOverrides()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read environment overrides")
	}
	cfg.ApplyEnv(overrides)

	appData := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      appData.Logging.Level,
		Directory:  appData.Logging.Directory,
		MaxSizeMB:  appData.Logging.MaxSizeMB,
		MaxBackups: appData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	bridge := cfg.GetBridgeData()
	appData = cfg.GetApplicationData()

	channels := channel.New(bridge.Channels)
	log.Info().Int("channels", channels.Len()).Msg("channel map loaded")

	transport := network.NewTransport(cfg.MapServerAddr(), network.TransportOptions{
		ConnectTimeout: cfg.ConnectTimeout(),
		WriteTimeout:   cfg.WriteTimeout(),
	}, eventBus)

	// Validate already rejected unknown policies.
	policy, _ := relay.ParseUnmappedPolicy(bridge.UnmappedPolicy)
	relayer := relay.New(channels, transport,
		relay.WithUnmappedPolicy(policy, bridge.PlaceholderChannel),
		relay.WithEventBus(eventBus),
	)

	discord, err := connector.NewDiscordConnector(bridge.DiscordToken, relayer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Discord connector")
	}

	var relayLog *db.RelayLog
	if appData.Database.Enabled {
		relayLog, err = db.NewRelayLog(appData.Database.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open relay history, history disabled")
			relayLog = nil
		} else {
			relayLog.Subscribe(eventBus)
		}
	}

	deps := api.Dependencies{
		Channels:  channels,
		Relay:     relayer,
		Transport: transport,
	}
	// A nil *RelayLog in the interface would not compare equal to nil.
	if relayLog != nil {
		deps.History = relayLog
	}

	var pruner scheduler.Pruner
	if relayLog != nil {
		pruner = relayLog
	}
	sched := scheduler.NewScheduler(appData.Database, pruner, func() map[string]interface{} {
		rs := relayer.Stats()
		ts := transport.Stats()
		return map[string]interface{}{
			"received":         rs.Received,
			"relayed":          rs.Relayed,
			"injected":         rs.Injected,
			"dropped_bot":      rs.DroppedBot,
			"dropped_unmapped": rs.DroppedUnmapped,
			"sent":             ts.Sent,
			"send_failed":      ts.Failed,
		}
	})

	healthMgr := health.NewManager(appData.Health, watchedPaths(appData), transport, eventBus)

	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(appData.MQTT, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		cancel()
		return nil
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Discord gateway. Without it there is nothing to relay.
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("map_server", transport.Addr()).Msg("starting Discord connector")
		if err := discord.Start(ctx); err != nil {
			errCh <- fmt.Errorf("discord: %w", err)
		}
	}()

	if appData.Sink.Enabled {
		sink := network.NewSink(net.JoinHostPort(appData.Sink.BindAddress, strconv.Itoa(appData.Sink.Port)), eventBus)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", appData.Sink.Port).Msg("starting packet sink")
			if err := startWithRetry(ctx, "packet sink", sink.Start, 5); err != nil {
				log.Warn().Err(err).Msg("packet sink failed after retries")
			}
		}()
	}

	if appData.API.Enabled {
		apiServer := api.NewServer(cfg, deps)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", appData.API.Port).Msg("starting status API")
			if err := startWithRetry(ctx, "status API", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("status API failed after retries (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	if appData.Console.Enabled {
		console := cli.NewCLI(os.Stdin, os.Stdout, eventBus, channels, relayer, transport)
		// Not in wg: a blocked stdin read must not hold up shutdown.
		go console.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fatalErr := waitForShutdown(ctx, sigCh, errCh)

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timed out after 15 seconds, forcing exit")
	}

	// Drains in-flight history and telemetry handlers.
	eventBus.Stop()

	if relayLog != nil {
		if err := relayLog.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close relay history")
		}
	}

	rs := relayer.Stats()
	log.Info().
		Uint64("received", rs.Received).
		Uint64("relayed", rs.Relayed).
		Uint64("dropped", rs.DroppedBot+rs.DroppedUnmapped).
		Msg("discord-echo stopped")

	// Non-zero exit so a supervisor can tell a failed login from an interrupt.
	if fatalErr != nil {
		log.Fatal().Err(fatalErr).Msg("discord-echo exited with a critical error")
	}
}

// waitForShutdown blocks until a signal arrives, a component reports a
// critical error or ctx is cancelled. Only the critical error is returned.
func waitForShutdown(ctx context.Context, sigCh <-chan os.Signal, errCh <-chan error) error {
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		return nil
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
		return err
	case <-ctx.Done():
		log.Info().Msg("shutdown requested from console")
		return nil
	}
}

// watchedPaths lists the directories whose filesystems the health checks watch.
func watchedPaths(appData config.ApplicationData) []string {
	var paths []string
	if appData.Logging.Directory != "" {
		paths = append(paths, appData.Logging.Directory)
	}
	if appData.Database.Enabled {
		paths = append(paths, filepath.Dir(appData.Database.Path))
	}
	return paths
}

// startWithRetry starts a listener, retrying bind failures every 3 seconds.
// It returns nil on success or the last error once retries run out.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
