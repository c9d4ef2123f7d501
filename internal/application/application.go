package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/v-starostin/tacbridge/internal/api"
	"github.com/v-starostin/tacbridge/internal/bridge"
	"github.com/v-starostin/tacbridge/internal/config"
	"github.com/v-starostin/tacbridge/internal/jobs/broadcaster"
	"github.com/v-starostin/tacbridge/internal/metrics"
	"github.com/v-starostin/tacbridge/internal/service"
)

const (
	serviceName     = "tacbridge"
	shutdownTimeout = 5 * time.Second
)

// App is a fully wired bridge: store, bridge, account service, HTTP API,
// gRPC health endpoint and the outbox broadcaster.
type App struct {
	logger      *slog.Logger
	cfg         *config.Config
	store       Store
	bridge      *bridge.Bridge
	handler     http.Handler
	broadcaster *broadcaster.Broadcaster
	health      *health.Server
}

func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	initial, err := cfg.InitialSubunits()
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b := bridge.New(logger, bridge.Config{Rate: cfg.Rate, Custody: cfg.Custody}, store, m)
	svc := service.New(logger, store, []byte(cfg.Secret), cfg.Custody, initial)

	handler, err := api.NewRouter(logger, api.RouterConfig{
		Secret:    []byte(cfg.Secret),
		RateLimit: cfg.RateLimit,
		Gatherer:  reg,
	}, api.NewTACBridge(logger, svc, b))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	publisher, err := newPublisher(logger, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		logger:      logger,
		cfg:         cfg,
		store:       store,
		bridge:      b,
		handler:     handler,
		broadcaster: broadcaster.New(logger, store, publisher, cfg.PublishInterval, m),
		health:      health.NewServer(),
	}, nil
}

func newPublisher(logger *slog.Logger, cfg *config.Config) (broadcaster.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return broadcaster.NewLogPublisher(logger), nil
	}

	p, err := broadcaster.DialKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("connect to kafka: %w", err)
	}
	logger.Info("Publishing conversions to Kafka", slog.Any("brokers", cfg.KafkaBrokers), slog.String("topic", cfg.KafkaTopic))
	return p, nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) Bridge() *bridge.Bridge {
	return a.bridge
}

// Run serves HTTP and gRPC and broadcasts conversions until ctx is done,
// then shuts everything down and closes the store.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	httpListener, err := net.Listen("tcp", a.cfg.Address)
	if err != nil {
		return err
	}
	grpcListener, err := net.Listen("tcp", a.cfg.GRPCAddress)
	if err != nil {
		_ = httpListener.Close()
		return err
	}

	server := NewServer(a.logger, a.handler)
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, a.health)
	reflection.Register(grpcServer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.broadcaster.Run(ctx)
	}()

	wg.Add(1)
	go server.HandleShutdown(ctx, &wg)

	go func() {
		a.logger.Info("Server is listening on", slog.String("address", httpListener.Addr().String()))
		if err := server.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		a.logger.Info("gRPC health server is listening on", slog.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	a.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		a.logger.Info("Starting server error", slog.String("error", runErr.Error()))
	}

	a.health.Shutdown()
	cancel()
	grpcServer.GracefulStop()
	wg.Wait()

	return runErr
}

func (a *App) close() {
	if err := a.broadcaster.Close(); err != nil {
		a.logger.Info("Close publisher error", slog.String("error", err.Error()))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Info("Close store error", slog.String("error", err.Error()))
	}
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(l *slog.Logger, h http.Handler) *Server {
	return &Server{
		srv:    &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second},
		logger: l,
	}
}

func (s *Server) Serve(l net.Listener) error {
	return s.srv.Serve(l)
}

func (s *Server) HandleShutdown(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	<-ctx.Done()
	s.logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Info("Shutdown server error", slog.String("error", err.Error()))
		return
	}

	s.logger.Info("Server stopped gracefully")
}
