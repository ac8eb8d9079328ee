package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	authv1 "blog-cms/backend/api/auth/v1"
	"blog-cms/backend/internal/audit"
	auditrepo "blog-cms/backend/internal/audit/repository"
	"blog-cms/backend/internal/config"
	"blog-cms/backend/internal/db"
	healthchecker "blog-cms/backend/internal/health"
	identityrepo "blog-cms/backend/internal/identity/repository"
	identityservice "blog-cms/backend/internal/identity/service"
	"blog-cms/backend/internal/notification"
	"blog-cms/backend/internal/notification/mail"
	passwordresetrepo "blog-cms/backend/internal/passwordreset/repository"
	"blog-cms/backend/internal/platform/clock"
	"blog-cms/backend/internal/policy/engine"
	refreshtokenrepo "blog-cms/backend/internal/refreshtoken/repository"
	rolerepo "blog-cms/backend/internal/role/repository"
	"blog-cms/backend/internal/security"
	"blog-cms/backend/internal/server"
	"blog-cms/backend/internal/server/interceptors"
	"blog-cms/backend/internal/telemetry"
	oteltelemetry "blog-cms/backend/internal/telemetry/otel"
	userrepo "blog-cms/backend/internal/user/repository"
)

const (
	healthInterval = 15 * time.Second
	notifyTimeout  = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := oteltelemetry.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	clk := clock.System{}
	hasher, err := security.NewPasswordHasher(cfg.PasswordHashAlgo, cfg.BcryptCost, nil)
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}
	tokens, err := security.LoadTokenProvider(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTSigningKey,
		cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), clk)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	evaluator, policyChecker, err := newEvaluator(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("authz: %v", err)
	}

	dispatcher, closeDispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		log.Fatalf("notification: %v", err)
	}
	async := notification.NewAsync(dispatcher, notifyTimeout, logger)

	metrics, err := telemetry.NewAuthMetrics(providers.MeterProvider.Meter(cfg.ServiceName))
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	clientIPs, err := interceptors.NewClientIPResolver(cfg.TrustedProxiesList())
	if err != nil {
		log.Fatalf("TRUSTED_PROXIES: %v", err)
	}
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), clientIPs.ClientIP,
		audit.WithEmitter(oteltelemetry.NewEventEmitter(providers.LoggerProvider)),
		audit.WithClock(clk),
		audit.WithSlog(logger),
	)

	authSvc, err := identityservice.NewAuthService(identityservice.Deps{
		Users:         userrepo.NewPostgresRepository(conn),
		Identities:    identityrepo.NewPostgresRepository(conn),
		Roles:         rolerepo.NewPostgresRepository(conn),
		RefreshTokens: refreshtokenrepo.NewPostgresRepository(conn),
		ResetTokens:   passwordresetrepo.NewPostgresRepository(conn),
		Dispatcher:    async,
		Hasher:        hasher,
		Tokens:        tokens,
		Evaluator:     evaluator,
		Audit:         auditLogger,
		Metrics:       metrics,
		Clock:         clk,
		Logger:        logger,
	}, identityservice.Config{
		RefreshTTL:     cfg.RefreshTTL(),
		ResetTTL:       cfg.ResetTTL(),
		ReuseDetection: cfg.RefreshReuseDetection,
		PasswordPolicy: identityservice.PasswordPolicy{MinLength: cfg.PasswordMinLength},
	})
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	healthServer := health.NewServer()
	s := server.NewGRPCServer(server.Deps{
		Auth:               authSvc,
		Evaluator:          evaluator,
		Tokens:             tokens,
		Audit:              auditLogger,
		Health:             healthServer,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ClientIP:           clientIPs.ClientIP,
		Logger:             logger,
	})

	checker := healthchecker.NewChecker(healthServer, conn, policyChecker, logger, authv1.ServiceName)
	checker.Check(ctx)
	go checker.Run(ctx, healthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr, "alg", tokens.Alg(), "authz", cfg.AuthzEngine, "notify", cfg.NotifyTransport)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down gRPC server")
	s.GracefulStop()
	authSvc.Wait()
	async.Wait()
	if err := closeDispatcher(); err != nil {
		logger.Warn("notification: close failed", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel: shutdown failed", "error", err)
	}
	logger.Info("gRPC server stopped")
}

// newEvaluator returns the configured permission evaluator and, for rego, the engine health probe.
func newEvaluator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Evaluator, healthchecker.PolicyChecker, error) {
	if cfg.AuthzEngine != "rego" {
		return engine.SetEvaluator{}, nil, nil
	}
	module := ""
	if cfg.AuthzRegoPath != "" {
		var err error
		if module, err = engine.LoadRegoPolicy(cfg.AuthzRegoPath); err != nil {
			return nil, nil, err
		}
	}
	opa, err := engine.NewOPAEvaluator(ctx, module, logger)
	if err != nil {
		return nil, nil, err
	}
	return opa, opa, nil
}

// newDispatcher builds the reset-message transport and a func that releases it.
func newDispatcher(cfg *config.Config, logger *slog.Logger) (notification.Dispatcher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.NotifyTransport {
	case "kafka":
		d, err := notification.NewKafkaDispatcher(cfg.KafkaBrokersList(), cfg.NotifyKafkaTopic, cfg.PasswordResetURL)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	case "http":
		return mail.NewClient(cfg.MailAPIKey, cfg.MailAPIURL, cfg.MailSender, cfg.PasswordResetURL), noop, nil
	default:
		return notification.NewLogDispatcher(logger), noop, nil
	}
}
