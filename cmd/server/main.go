package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"circulation/internal/access"
	authhandler "circulation/internal/auth/handler"
	authservice "circulation/internal/auth/service"
	"circulation/internal/auth/store/revocation"
	cataloghandler "circulation/internal/catalog/handler"
	catalogservice "circulation/internal/catalog/service"
	catalogstore "circulation/internal/catalog/store"
	circhandler "circulation/internal/circulation/handler"
	circmetrics "circulation/internal/circulation/metrics"
	circservice "circulation/internal/circulation/service"
	circstore "circulation/internal/circulation/store"
	jwttoken "circulation/internal/jwt_token"
	memberhandler "circulation/internal/members/handler"
	memberservice "circulation/internal/members/service"
	memberstore "circulation/internal/members/store"
	"circulation/internal/platform/config"
	"circulation/internal/platform/httpserver"
	"circulation/internal/platform/logger"
	"circulation/internal/platform/metrics"
	"circulation/internal/platform/postgres"
	"circulation/internal/platform/redis"
	ratelimitservice "circulation/internal/ratelimit/service"
	ratelimitstore "circulation/internal/ratelimit/store"
	httptransport "circulation/internal/transport/http"
	dErrors "circulation/pkg/domain-errors"
	"circulation/pkg/platform/audit"
	"circulation/pkg/platform/audit/publisher"
	"circulation/pkg/platform/audit/store/kafka"
	auditmemory "circulation/pkg/platform/audit/store/memory"
	"circulation/pkg/platform/circuit"
	"circulation/pkg/platform/tx"
)

const (
	shutdownTimeout = 10 * time.Second
	auditBuffer     = 256
)

// main wires the stores, services and router, then serves until signalled.
// Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	books   catalogservice.Store
	members memberservice.Store
	txns    interface {
		circservice.Store
		catalogservice.LoanChecker
		memberservice.LoanChecker
	}
	runner tx.Runner
	db     *sqlx.DB
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}
	health := map[string]httptransport.HealthCheck{}
	if st.db != nil {
		health["postgres"] = st.db.PingContext
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var trl authservice.RevocationList
	switch {
	case rc != nil:
		defer rc.Close()
		health["redis"] = rc.Health
		trl = revocation.NewRedisTRL(rc.Client)
		log.Info("token revocation list backed by redis")
	case st.db != nil:
		trl = revocation.NewPostgresTRL(st.db.DB)
		log.Info("token revocation list backed by postgres")
	default:
		trl = revocation.NewInMemoryTRL(nil)
		log.Warn("token revocation list is in memory; revocations are lost on restart")
	}

	auditStore, closeAudit, err := openAuditStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	pub := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBuffer),
		publisher.WithLogger(log))
	defer func() {
		pub.Close()
		closeAudit()
	}()

	lockout := newLoginLockout(cfg.LoginLockout, rc, pub, log)

	platformMetrics := metrics.New()
	circulationMetrics := circmetrics.New()

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	validator := jwttoken.NewJWTServiceAdapter(jwtService)
	guard := access.NewGuard(access.WithLogger(log))

	catalog := catalogservice.New(st.books, st.txns, guard,
		catalogservice.WithLogger(log),
		catalogservice.WithAuditPublisher(pub),
		catalogservice.WithTxRunner(st.runner))
	members := memberservice.New(st.members, st.txns, guard,
		memberservice.WithLogger(log),
		memberservice.WithAuditPublisher(pub),
		memberservice.WithMetrics(platformMetrics),
		memberservice.WithTxRunner(st.runner))
	engine := circservice.New(st.txns, catalog, members, guard,
		circservice.WithLogger(log),
		circservice.WithAuditPublisher(pub),
		circservice.WithMetrics(circulationMetrics),
		circservice.WithTxRunner(st.runner),
		circservice.WithDebtLimit(cfg.DebtLimit))
	auth := authservice.New(members, jwtService, trl,
		authservice.WithLogger(log),
		authservice.WithAuditPublisher(pub),
		authservice.WithMetrics(platformMetrics),
		authservice.WithTokenTTL(cfg.TokenTTL),
		authservice.WithTRLFailureMode(authservice.TRLFailureMode(cfg.TRLFailureMode)),
		authservice.WithLoginLimiter(lockout))

	if cfg.Bootstrap.Enabled() {
		bootstrapLibrarian(ctx, members, cfg.Bootstrap, log)
	}

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:         log,
		Observer:       platformMetrics,
		MetricsHandler: promhttp.Handler(),
		Validator:      validator,
		Revocations:    auth,
		Handlers: []httptransport.Registrar{
			authhandler.New(auth, log),
			cataloghandler.New(catalog, guard, log),
			memberhandler.New(members, guard, log),
			circhandler.New(engine, guard, log),
		},
		HealthChecks: health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting circulation", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStores picks postgres when DATABASE_URL is set and the in-memory stores
// otherwise. Every service shares the returned runner.
func openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		return &stores{
			books:   catalogstore.NewInMemory(),
			members: memberstore.NewInMemory(),
			txns:    circstore.NewInMemory(),
			runner:  tx.NewSharded(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &stores{
		books:   catalogstore.NewPostgres(db),
		members: memberstore.NewPostgres(db),
		txns:    circstore.NewPostgres(db),
		runner:  postgres.NewTxRunner(db),
		db:      db,
	}, nil
}

func openAuditStore(ctx context.Context, cfg config.Server, log *slog.Logger) (audit.Store, func(), error) {
	if len(cfg.Audit.KafkaBrokers) == 0 {
		return auditmemory.NewInMemoryStore(), func() {}, nil
	}
	store, err := kafka.New(ctx, cfg.Audit.KafkaBrokers, cfg.Audit.Topic)
	if err != nil {
		return nil, nil, fmt.Errorf("connect kafka: %w", err)
	}
	if err := store.EnsureTopic(ctx, 1, 1); err != nil {
		log.Warn("could not ensure audit topic", "topic", cfg.Audit.Topic, "error", err)
	}
	log.Info("audit events published to kafka", "topic", cfg.Audit.Topic)
	return store, store.Close, nil
}

// newLoginLockout keeps failure counts in redis when configured so every
// replica sees them, with an in-process fallback while redis is failing.
func newLoginLockout(cfg config.LoginLockoutConfig, rc *redis.Client, pub *publisher.Publisher, log *slog.Logger) *ratelimitservice.Service {
	opts := []ratelimitservice.Option{
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithAuditPublisher(pub),
		ratelimitservice.WithConfig(ratelimitservice.Config{
			MaxFailures:  cfg.MaxFailures,
			Window:       cfg.Window,
			LockDuration: cfg.LockDuration,
		}),
	}
	if rc == nil {
		return ratelimitservice.New(ratelimitstore.NewInMemory(), opts...)
	}
	opts = append(opts, ratelimitservice.WithFallback(ratelimitstore.NewInMemory(), circuit.New("login-lockout")))
	return ratelimitservice.New(ratelimitstore.NewRedis(rc.Client), opts...)
}

func bootstrapLibrarian(ctx context.Context, members *memberservice.Service, b config.BootstrapLibrarian, log *slog.Logger) {
	m, err := members.BootstrapLibrarian(ctx, b.Name, b.Email, b.Password)
	switch {
	case err == nil:
		log.Info("bootstrap librarian created", "member_id", m.ID.String())
	case dErrors.HasCode(err, dErrors.CodeConflict):
		log.Info("bootstrap librarian already exists", "email", b.Email)
	default:
		log.Error("failed to create bootstrap librarian", "error", err)
	}
}
