package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"capital-bot/auth"
	"capital-bot/domain/event"
	"capital-bot/observability"
	"capital-bot/repositories"
	"capital-bot/runtime"
	"capital-bot/runtime/workers"
	"capital-bot/services"
	"capital-bot/sink"
	"capital-bot/transport"
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
		fmt.Fprintf(os.Stderr, "Bot terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return exitConfig, fmt.Errorf("config validation: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	for _, dir := range []string{filepath.Dir(config.LedgerFilepath), config.OpLogDir, config.BadgerFilepath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return exitRuntime, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// 2. Database (BadgerDB audit trail)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories, access control and event sinks
	ledgerRepository := repositories.NewLedgerRepository(config.LedgerFilepath, config.MaxHistoryRecords, logger)
	auditRepository := repositories.NewAuditRepository(db, logger)
	adminChecker := auth.NewAdminChecker(logger, config.AdminIDs)
	stats := observability.NewStatsManager()

	opLog := sink.NewOpLogSink(config.OpLogDir, logger)
	defer func() {
		logger.Info("Closing operation log...")
		_ = opLog.Close()
	}()

	eventChan := make(chan event.DomainEvent, config.BufferSize)

	// 4. Transport, state machine and queue
	session := transport.NewMQTTTransport(logger, transport.MQTTConfig{
		BrokerURL:   config.MQTTBrokerURL,
		ClientID:    config.MQTTClientID,
		Username:    config.MQTTUsername,
		Password:    config.MQTTPassword,
		TopicPrefix: config.MQTTTopicPrefix,
	})

	lifecycle := workers.NewLifecycle(logger, session, eventChan, workers.LifecycleConfig{
		ConnectTimeout:       config.ConnectTimeout,
		ReconnectBaseDelay:   config.ReconnectBaseDelay,
		MaxReconnectAttempts: config.MaxReconnectAttempts,
	})
	outbound := workers.NewOutbound(logger, session, lifecycle, stats, eventChan, workers.OutboundConfig{
		Capacity:     config.QueueCapacity,
		TTL:          config.QueueTTL,
		SendDelay:    config.SendDelay,
		MaxRetries:   config.MaxRetries,
		RetryBackoff: config.RetryBackoff,
	})
	heartbeat := workers.NewHeartbeat(logger, session, lifecycle, stats, config.HeartbeatInterval)
	fanout := workers.NewEventFanout(logger, eventChan,
		sink.NewAuditSink(auditRepository, logger),
		opLog,
	)

	commands := services.NewCommandService(logger, ledgerRepository, adminChecker, eventChan)
	engine := runtime.NewEngine(logger, session, lifecycle, outbound, commands, stats)

	// 5. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervision
	// The supervisor restarts any worker that panics or fails; the lifecycle
	// worker owns the transport session itself.
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(lifecycle, outbound, heartbeat, fanout, engine)

	logger.Info("Starting capital bot", "admins", len(config.AdminIDs), "broker", config.MQTTBrokerURL)
	sup.Run(ctx)

	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.ERROR)
	}

	return options
}
