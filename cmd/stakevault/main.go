package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StakeVault/internal/accesskey"
	"StakeVault/internal/config"
	"StakeVault/internal/core"
	"StakeVault/internal/event"
	"StakeVault/internal/ingestion"
	"StakeVault/internal/observability"
	"StakeVault/internal/persistence"
	"StakeVault/internal/query"
	"StakeVault/internal/rewards"
	"StakeVault/internal/schedule"
	"StakeVault/internal/server"
	"StakeVault/internal/token"
	"StakeVault/internal/vault"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("StakeVault starting")

	cfgPath := os.Getenv("SV_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("validate config")
	}

	admin, err := uuid.Parse(cfg.Accounts.Admin)
	if err != nil {
		log.Fatal().Err(err).Msg("parse admin account")
	}
	vaultAccount := accountOrDerived(cfg.Accounts.Vault, "sv:vault", log)
	poolAccount := accountOrDerived(cfg.Accounts.Pool, "sv:pool", log)
	registryAccount := accountOrDerived(cfg.Accounts.Registry, "sv:registry", log)
	treasuryAccount := accountOrDerived(cfg.Accounts.Treasury, "sv:treasury", log)

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()
	healthChecker.SetCheck("postgres", true)

	// --- Event log channels ---
	// Persist sends block (backpressure); publish sends drop when full.
	persistChan := make(chan event.Event, cfg.Channels.PersistChanSize)
	publishChan := make(chan event.Event, cfg.Channels.PublishChanSize)
	eventLog := event.NewLog(persistChan, publishChan, metrics)

	// Resume event numbering after the last persisted sequence.
	writer := persistence.NewEventLogWriter(db)
	lastSeq, err := writer.LastSequence(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("read last event sequence")
	}
	eventLog.SetSequence(lastSeq)
	log.Info().Uint64("sequence", lastSeq).Msg("event log resumed")

	// --- Components ---
	ledger := token.NewInMemoryLedger(admin)

	v := vault.New(vault.Config{
		Ledger:       ledger,
		Account:      vaultAccount,
		Admin:        admin,
		PullInterval: cfg.PullInterval(),
		Recorder:     eventLog,
		Metrics:      metrics,
	})

	scheduler := rewards.New(rewards.Config{
		Ledger:       ledger,
		Account:      poolAccount,
		Admin:        admin,
		VaultAccount: vaultAccount,
		Recorder:     eventLog,
		Metrics:      metrics,
	})

	registry, err := accesskey.New(accesskey.Config{
		Ledger:                         ledger,
		Account:                        registryAccount,
		Admin:                          admin,
		Treasury:                       treasuryAccount,
		Vault:                          v,
		InitialFeePerSecond:            cfg.Keys.FeePerSecond,
		InitialLiquidatorRewardPercent: cfg.Keys.LiquidatorRewardPercent,
		InitialSweepPercent:            cfg.Keys.SweepPercent,
		Recorder:                       eventLog,
		Metrics:                        metrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build registry")
	}

	if err := v.SetRewardsPool(admin, scheduler); err != nil {
		log.Fatal().Err(err).Msg("attach rewards pool")
	}

	processor := core.NewProcessor(ledger, v, scheduler, registry, metrics)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	healthChecker.SetCheck("nats", true)
	log.Info().Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure op stream")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure outbound stream")
	}

	rawChan := make(chan ingestion.RawOp, cfg.Channels.OpChanSize)
	subscriber := ingestion.NewNATSSubscriber(js, rawChan)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	publisher := ingestion.NewOutboundPublisher(js, publishChan)

	// --- Services ---
	queryService := query.NewService(ledger, v, scheduler, registry, writer)
	httpServer := server.NewHTTPServer(cfg.HTTP.Addr, queryService, healthChecker, metrics)

	// --- Cron jobs ---
	cronJobs := schedule.New(scheduler, registry)
	if err := cronJobs.RegisterAll(cfg.Schedule.IssueCron, cfg.Schedule.SweepCron); err != nil {
		log.Fatal().Err(err).Msg("register cron jobs")
	}

	// --- Start goroutines ---
	errChan := make(chan error, 8)

	persistWorker := persistence.NewWorker(db, persistChan, cfg.Persist.BatchSize, cfg.FlushTimeout(), metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	go func() {
		errChan <- publisher.Run(ctx)
	}()

	opChan := make(chan core.Op, cfg.Channels.OpChanSize)
	go runIngestionLoop(ctx, rawChan, opChan, metrics)
	go func() {
		errChan <- processor.Run(ctx, opChan)
	}()

	go func() {
		errChan <- httpServer.Run(ctx)
	}()

	go func() {
		errChan <- runMetricsServer(ctx, cfg.HTTP.MetricsAddr)
	}()

	cronJobs.Start()
	healthChecker.SetReady(true)

	log.Info().
		Str("http", cfg.HTTP.Addr).
		Str("metrics", cfg.HTTP.MetricsAddr).
		Uint64("sequence", lastSeq).
		Msg("StakeVault ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	cronJobs.Stop()
	subscriber.Stop()
	cancel()

	// The persistence worker flushes its remaining batch on ctx cancel.
	time.Sleep(500 * time.Millisecond)

	log.Info().Msg("StakeVault shutdown complete")
}

// runIngestionLoop parses raw NATS messages into typed ops and forwards
// them to the processor. Messages are acked once the op is accepted into
// opChan, not after processing; backpressure propagates to NATS via the
// blocking send. Malformed messages are acked and dropped to avoid
// redelivery loops.
func runIngestionLoop(ctx context.Context, rawChan <-chan ingestion.RawOp, opChan chan<- core.Op, metrics *observability.Metrics) {
	log := observability.NewLogger("ingestion")

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				close(opChan)
				return
			}

			opName := ingestion.OpName(raw.Subject)
			op, err := ingestion.ParseRawOp(raw, opName)
			if err != nil {
				log.Warn().Str("subject", raw.Subject).Err(err).Msg("drop unparseable op")
				if raw.AckFunc != nil {
					raw.AckFunc()
				}
				if metrics != nil {
					metrics.OpsRejected.WithLabelValues(opName, "parse").Inc()
				}
				continue
			}

			select {
			case opChan <- op:
				if raw.AckFunc != nil {
					raw.AckFunc()
				}
			case <-ctx.Done():
				if raw.NakFunc != nil {
					raw.NakFunc()
				}
				return
			}
		}
	}
}

func runMetricsServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// accountOrDerived parses a configured account ID, or derives a stable
// one from the component name so restarts reuse the same accounts.
func accountOrDerived(configured, name string, log zerolog.Logger) uuid.UUID {
	if configured == "" {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
	}
	id, err := uuid.Parse(configured)
	if err != nil {
		log.Fatal().Err(err).Str("account", name).Msg("parse account")
	}
	return id
}
