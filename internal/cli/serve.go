package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"messaging-service/internal/cache"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/digest"
	"messaging-service/internal/handlers"
	"messaging-service/internal/messaging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/natsbus"
	"messaging-service/internal/notify"
	"messaging-service/internal/observability"
	"messaging-service/internal/query"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const (
	auditRoutingKey = "audit.log"
	tokenTTL        = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

// broker is what the server needs from either message bus.
type broker interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket push and digest scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown failed: err=%v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer database.Close()
	store := repositories.NewStore(database, repositories.WithBatchSize(cfg.BatchSize))

	bus, err := newBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	readCache, closeCache := newCache(ctx, cfg)
	defer closeCache()

	hub := ws.NewHub(bus)
	emitter := telemetry.NewAuditEmitter(bus, auditRoutingKey, serviceName, cfg.Environment)
	svc := messaging.NewService(store, notify.NewDispatcher(bus, hub),
		messaging.WithConflictRetries(cfg.ConflictRetry),
		messaging.WithAuditor(emitter),
	)
	facade := query.NewFacade(store)
	auth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer, tokenTTL)

	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		observability.RequestIDMiddleware(),
		observability.HTTPMetricsMiddleware(),
	)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(router,
		handlers.NewMessageHandler(svc, facade, readCache),
		handlers.NewNotificationHandler(svc, facade),
		handlers.NewUserHandler(svc, auth),
		middleware.AuthMiddleware(auth),
		middleware.RateLimit(cfg.MutationRate, cfg.MutationBurst),
	)
	router.GET("/ws/notifications", ws.NewNotificationsHandler(hub, auth).Handle)
	handlers.RegisterDebugRoutes(router, emitter, store, cfg.Debug)

	runner, err := digest.NewRunner(store, bus, cfg.DigestSchedule)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("http listening: addr=%s broker=%s", srv.Addr, cfg.Broker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return runner.Run(gctx)
	})
	return g.Wait()
}

func newBroker(ctx context.Context, cfg config.Config) (broker, error) {
	switch cfg.Broker {
	case config.BrokerNATS:
		p, err := natsbus.NewPublisher(ctx, cfg.NATSURL, cfg.NATSStream)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BrokerNone:
		return rabbitmq.NewNoop("broker disabled"), nil
	default:
		return rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange), nil
	}
}

// newCache falls back to a noop cache when redis is not configured or not
// reachable at startup.
func newCache(ctx context.Context, cfg config.Config) (cache.Cache, func()) {
	if cfg.RedisAddr == "" {
		return cache.Noop{}, func() {}
	}
	rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, "", cfg.CacheTTL)
	if err != nil {
		log.Printf("cache disabled: err=%v", err)
		return cache.Noop{}, func() {}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		log.Printf("cache disabled: addr=%s err=%v", cfg.RedisAddr, err)
		_ = rc.Close()
		return cache.Noop{}, func() {}
	}
	log.Printf("cache connected: addr=%s ttl=%s", cfg.RedisAddr, cfg.CacheTTL)
	return rc, func() { _ = rc.Close() }
}
