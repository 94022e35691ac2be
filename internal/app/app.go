package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/invfetch/internal/health"
	"github.com/vladislavdragonenkov/invfetch/internal/metrics"
	"github.com/vladislavdragonenkov/invfetch/internal/service/outbox"
	"github.com/vladislavdragonenkov/invfetch/internal/service/transition"
	"github.com/vladislavdragonenkov/invfetch/internal/tracing"
	"github.com/vladislavdragonenkov/invfetch/internal/version"
)

const (
	shutdownTimeout     = 5 * time.Second
	healthWatchInterval = 10 * time.Second
	outboxMaxRetryDelay = 2 * time.Second
	revertMaxRetryDelay = 500 * time.Millisecond
)

// App собирает хранилища, сервис переходов, outbox relay и служебные серверы.
type App struct {
	cfg    Config
	logger *log.Entry

	deps        *runtimeDependencies
	relay       relayPublishers
	transitions *transition.Service
	worker      *outbox.Worker
	tracer      *sdktrace.TracerProvider

	health     *healthcheck.Handler
	grpcServer *grpc.Server
	grpcHealth *health.Server
}

// New инициализирует зависимости по конфигурации. Серверы стартуют в Run.
func New(ctx context.Context, cfg Config, logger *log.Entry) (*App, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, deps: deps}

	if cfg.TracingEndpoint != "" {
		tp, err := tracing.InitTracerProvider(cfg.TracingServiceName, cfg.TracingEndpoint, logger.WithField("component", "tracing"))
		if err != nil {
			logger.WithError(err).Warn("failed to init tracing, continuing without it")
		} else {
			a.tracer = tp
		}
	}

	a.transitions = transition.NewService(deps.units, deps.orders,
		transition.WithLogger(logger.WithField("component", "transition")),
		transition.WithMetrics(metrics.NewTransitionMetrics()),
		transition.WithOutbox(deps.outbox),
		transition.WithTimeline(deps.timeline),
		transition.WithCompensationTimeout(cfg.CompensationTimeout),
		transition.WithRetryConfig(transition.RetryConfig{
			MaxAttempts:  cfg.RevertMaxAttempts,
			InitialDelay: cfg.RevertRetryDelay,
			MaxDelay:     revertMaxRetryDelay,
		}),
	)

	a.relay = initRelay(cfg, logger)
	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryDelay(cfg.OutboxRetryDelay, outboxMaxRetryDelay),
	}
	if a.relay.dlq != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(a.relay.dlq))
	}
	a.worker = outbox.NewWorker(deps.outbox, a.relay.events, workerOpts...)

	a.health = healthcheck.NewHandler(version.GetVersion())
	if deps.store != nil {
		a.health.RegisterChecker(deps.store.Name(), healthcheck.NewStoreChecker(deps.store))
	}
	a.health.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outbox, cfg.OutboxMaxPending))

	a.grpcServer, a.grpcHealth = newGRPCServer(logger)
	return a, nil
}

// Transitions возвращает сервис переходов для встраивающего кода.
func (a *App) Transitions() *transition.Service {
	return a.transitions
}

// Units возвращает репозиторий единиц выбранного драйвера.
func (a *App) Units() domain.UnitRepository {
	return a.deps.units
}

// Orders возвращает репозиторий заказов выбранного драйвера.
func (a *App) Orders() domain.OrderRepository {
	return a.deps.orders
}

// Outbox возвращает outbox событий переходов.
func (a *App) Outbox() domain.OutboxRepository {
	return a.deps.outbox
}

// Run запускает gRPC, HTTP и outbox relay и блокируется до отмены ctx или ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	grpcLis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", a.cfg.GRPCAddr, err)
	}
	httpLis, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen metrics %s: %w", a.cfg.MetricsAddr, err)
	}
	httpSrv := newHTTPServer(a.health)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := a.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Infof("метрики и health checks доступны по адресу %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.watchHealth(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("получен сигнал остановки, останавливаем серверы")
		a.grpcHealth.Shutdown()
		stopGRPC(a.grpcServer, a.logger)
		shutdownHTTP(httpSrv, a.logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Close освобождает хранилище, producer и tracer provider.
func (a *App) Close() {
	closeKafka(a.relay.producer, a.logger)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tracing.Shutdown(ctx, a.tracer); err != nil {
		a.logger.WithError(err).Warn("failed to shutdown tracer provider")
	}

	a.deps.close(a.logger)
}

// watchHealth синхронизирует gRPC health со статусом проверок хранилища.
func (a *App) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthWatchInterval)
	defer ticker.Stop()

	for {
		a.syncHealth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) syncHealth(ctx context.Context) {
	overall, _ := a.health.RunChecks(ctx)
	if ctx.Err() != nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if overall == healthcheck.StatusUnhealthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	a.grpcHealth.SetServingStatus("", status)
}

// Run: точка входа cmd: собирает App, запускает и освобождает ресурсы.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg, log.WithField("component", "app"))
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	reflection.Register(srv)
	grpcMetrics.InitializeMetrics(srv)

	return srv, healthServer
}

func newHTTPServer(healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	return &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
