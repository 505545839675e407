package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"teamlink/internal"
	"teamlink/observability"
	"teamlink/relay"
	"teamlink/relay/workers"
	"teamlink/sink"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the relay lifecycle, and centralizes
// error reporting so every defer executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context tied to termination signals (Ctrl+C, service stop).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. The core: one instance, role decided by configuration for the whole run.
	monitor := observability.NewRelayMonitor()
	core := relay.NewCore(logger, relay.Options{
		Role:          config.RoleValue(),
		Port:          config.Port,
		HostAddress:   config.HostAddress,
		Team:          config.Team(),
		ShutdownGrace: config.ShutdownGrace,
	}, monitor)

	if err := core.Start(); err != nil {
		return exitRuntime, err
	}
	defer core.Stop()

	unsubscribe := core.Subscribe(sink.NewConsoleSink())
	defer unsubscribe()

	// 4. Local input: host lines broadcast to everyone (and mirror back to
	// our own subscribers), peer lines go straight to the host.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if config.RoleValue().IsHost() {
				core.Broadcast(line, nil)
				continue
			}
			if err := core.Send(line); err != nil {
				logger.Warn("Send failed", "err", err)
			}
		}
	}()

	// 5. Background workers: the dispatcher tick and the heartbeat.
	supervisor := workers.NewSupervisor(logger)
	supervisor.Add(
		workers.NewTickWorker(logger, core, config.TickInterval),
		workers.NewHeartbeatWorker(logger, core, monitor, config.HeartbeatInterval),
	)
	supervisor.Run(ctx)

	logger.Info("Stopping relay...")
	return exitOK, nil
}
