// Command server runs the evidentiary review API and its background workers.
//
// Infrastructure is optional: without ATTEST_POSTGRES_URL the stores are
// in-memory, without ATTEST_REDIS_URL the sweep lock is in-process, and
// without ATTEST_KAFKA_BROKERS notifications go to the log.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/jackc/pgx/v5/stdlib"

	"attest/internal/aivalidation"
	"attest/internal/audittrail"
	"attest/internal/chain"
	"attest/internal/escalation"
	"attest/internal/export"
	"attest/internal/notify"
	"attest/internal/platform/config"
	"attest/internal/platform/httpserver"
	"attest/internal/platform/logger"
	platformredis "attest/internal/platform/redis"
	"attest/internal/requirement"
	transporthttp "attest/internal/transport/http"
	"attest/internal/verification"
	"attest/internal/workflow"
	"attest/pkg/platform/tx"
)

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	if err := run(log, cfg); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		db     *sql.DB
		runner tx.Runner = tx.NoopRunner{}

		chainStore       chain.Store
		requirementStore requirement.Store
		authorities      requirement.AuthorityDirectory
		submissionStore  workflow.SubmissionStore
		escalationStore  escalation.Store
		checks           []transporthttp.HealthCheck
	)

	if cfg.PostgresURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}

		chainPG := chain.NewPostgresStore(db)
		requirementPG := requirement.NewPostgresStore(db)
		submissionPG := workflow.NewPostgresStore(db)
		escalationPG := escalation.NewPostgresStore(db)
		for _, ensure := range []func(context.Context) error{
			chainPG.EnsureSchema,
			requirementPG.EnsureSchema,
			submissionPG.EnsureSchema,
			escalationPG.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				return err
			}
		}

		runner = &tx.SQLRunner{DB: db}
		chainStore = chainPG
		requirementStore = requirementPG
		authorities = requirement.NewPostgresAuthorities(db)
		submissionStore = submissionPG
		escalationStore = escalationPG
		checks = append(checks, db.PingContext)
		log.Info("using postgres stores")
	} else {
		chainStore = chain.NewInMemoryStore()
		requirementStore = requirement.NewInMemoryStore()
		authorities = requirement.NewInMemoryAuthorities()
		submissionStore = workflow.NewInMemoryStore()
		escalationStore = escalation.NewInMemoryStore()
		log.Warn("no postgres configured, using in-memory stores")
	}

	var locker escalation.Locker = escalation.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = escalation.NewRedisLocker(redisClient)
		checks = append(checks, redisClient.Health)
		log.Info("using redis sweep lock")
	}

	var sink notify.Sink = notify.NewLogSink(log)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.NotificationTopic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("using kafka notification sink", "topic", cfg.NotificationTopic)
	}

	auditRecorder := audittrail.NewRecorder(chainStore)
	decisionChain := verification.NewChain(chainStore)

	machine := workflow.NewMachine(
		submissionStore,
		requirementStore,
		decisionChain,
		auditRecorder,
		runner,
		sink,
		workflow.NewMetrics(registry),
		log,
	)

	var adapter aivalidation.Adapter = aivalidation.Unconfigured{}
	if cfg.AIValidatorURL != "" {
		adapter = aivalidation.NewHTTPClient(cfg.AIValidatorURL, &http.Client{Timeout: cfg.AIValidatorTimeout})
		log.Info("using ai validator", "url", cfg.AIValidatorURL)
	} else {
		log.Warn("no ai validator configured, submissions route to human review")
	}
	dispatcher := aivalidation.NewDispatcher(adapter, machine, cfg.AIValidatorTimeout, log)

	engine := escalation.NewEngine(
		requirementStore,
		authorities,
		escalationStore,
		submissionStore,
		machine,
		auditRecorder,
		sink,
		cfg.StalenessWindow,
		escalation.NewMetrics(registry),
		log,
	)
	scheduler := escalation.NewScheduler(engine, locker, cfg.SweepInterval, log)
	go scheduler.Run(ctx)

	requirementSvc := requirement.NewService(requirementStore, log)
	exportSvc := export.NewService(machine, decisionChain, auditRecorder, log)

	handlers := transporthttp.NewHandlers(requirementSvc, machine, dispatcher, engine, exportSvc, log)
	router := transporthttp.NewRouter(handlers, []byte(cfg.JWTSigningKey), registry, log, checks...)

	server := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	dispatcher.Wait()
	return nil
}
