package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"campus-care-api/internal/appointment"
	"campus-care-api/internal/auth"
	"campus-care-api/internal/chat"
	"campus-care-api/internal/config"
	"campus-care-api/internal/feed"
	gweb "campus-care-api/internal/grpcweb"
	"campus-care-api/internal/handler"
	"campus-care-api/internal/httpapi"
	"campus-care-api/internal/identity"
	"campus-care-api/internal/logger"
	"campus-care-api/internal/metrics"
	"campus-care-api/internal/middleware"
	"campus-care-api/internal/notify"
	"campus-care-api/internal/presence"
	"campus-care-api/internal/search"
	"campus-care-api/internal/security"
	"campus-care-api/internal/store"
	"campus-care-api/internal/wire"
	"campus-care-api/internal/ws"
)

func main() {
	_ = godotenv.Load()
	log := logger.SetupDefault(nil)

	if err := run(log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// database
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()
	st := store.New(pool)
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	log.Info("connected to postgres")

	// live feeds and presence: redis when configured, in-process otherwise
	var (
		bus     feed.Bus
		tracker presence.Tracker
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		bus = feed.NewRedisBus(rdb, log)
		tracker = presence.NewRedis(rdb, cfg.PresenceTTL)
		log.Info("using redis for feeds and presence")
	} else {
		bus = feed.NewMemoryBus()
		tracker = presence.NewMemory()
		log.Info("using in-process feeds and presence")
	}

	var engine search.Engine
	if cfg.MeiliURL != "" {
		m := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer m.Close()
		engine = m
	}
	searchSvc := search.NewService(engine, st, log)
	go func() {
		if err := searchSvc.Reindex(ctx); err != nil {
			log.Warn("search: initial reindex failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.NewCollector(reg)

	san := security.NewSanitizer()
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	resolver := identity.NewResolver(st, issuer, cfg.DefaultRole, log)
	directory := chat.NewDirectory(st, bus, log)
	chatStream := chat.NewStream(st, bus, tracker, san, mc, log)
	workflow := appointment.NewWorkflow(st, bus, san, mc, log)
	inbox := notify.NewInbox(st, bus, san, log)

	fanout := notify.NewFanout(st, tracker, bus, mc, log)
	dispatcher := notify.NewDispatcher(st, fanout, cfg.OutboxInterval, cfg.OutboxBatch, mc, log)
	go dispatcher.Run(ctx)

	h := handler.New(handler.Deps{
		Accounts:    st,
		Tokens:      issuer,
		Resolver:    resolver,
		Directory:   directory,
		Stream:      chatStream,
		Workflow:    workflow,
		Inbox:       inbox,
		Search:      searchSvc,
		Sanitizer:   san,
		Metrics:     mc,
		RefreshTTL:  cfg.RefreshTokenTTL,
		DefaultRole: cfg.DefaultRole,
		Log:         log,
	})

	// grpc server
	rl := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(wire.Codec{}),
		grpc.ChainUnaryInterceptor(
			middleware.Observe(mc, log),
			middleware.Auth(resolver),
			middleware.RateLimit(rl),
		),
		grpc.ChainStreamInterceptor(
			middleware.StreamObserve(mc, log),
			middleware.StreamAuth(resolver),
		),
	)
	handler.Register(srv, h)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() {
		log.Info("grpc listening", "port", cfg.GRPCPort)
		if err := srv.Serve(lis); err != nil {
			log.Error("grpc serve", "error", err)
		}
	}()

	// grpc-web bridge -> forwards browser requests to grpc on localhost
	bridge, err := gweb.New("localhost:"+cfg.GRPCPort, cfg.CORSAllowedOrigin, log)
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	defer bridge.Close()

	gateway := ws.NewGateway(resolver, ws.Feeds{
		Directory: directory,
		Stream:    chatStream,
		Workflow:  workflow,
		Inbox:     inbox,
	}, cfg.WSInsecureSkipOrigin, mc, log)

	httpSrv := &http.Server{
		Addr: ":" + cfg.WebPort,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Store:    st,
			Gatherer: reg,
			Bridge:   bridge.Handler(),
			Gateway:  gateway,
			Log:      log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.Info("http listening", "port", cfg.WebPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http serve", "error", err)
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// grpc first: once its streams end, bridged grpc-web requests finish too
	if !stopGRPC(shutdownCtx, srv) {
		log.Warn("grpc shutdown timed out, closed open streams")
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
		httpSrv.Close()
	}
	return nil
}

// stopGRPC lets in-flight calls drain until ctx is done and then cuts off
// whatever is still open. Live feeds never end on their own, so a graceful
// stop alone would wait forever. It reports whether the drain finished.
func stopGRPC(ctx context.Context, srv *grpc.Server) bool {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		srv.Stop()
		<-done
		return false
	}
}
