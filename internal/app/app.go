// Package app wires storage, services and the HTTP server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/events"
	"github.com/xenking/shopcart/internal/handler"
	"github.com/xenking/shopcart/internal/storage/redisstore"
	"github.com/xenking/shopcart/pkg/health"
	"github.com/xenking/shopcart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	st, err := openStorage(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.close()

	sessions := st.sessions
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "connect to redis")
		}
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
		sessions = redisstore.NewSessionStore(rdb)
		lg.Info("Sessions stored in redis", zap.String("addr", cfg.Redis.Addr))
	}

	var publisher checkout.Publisher
	if cfg.AMQP.URL != "" {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return errors.Wrap(err, "connect to amqp")
		}
		defer func() { _ = conn.Close() }()
		ch, err := conn.Channel()
		if err != nil {
			return errors.Wrap(err, "open amqp channel")
		}
		if err := events.Setup(ch, cfg.AMQP.Exchange); err != nil {
			return err
		}
		healthSvc.AddReadinessCheck("amqp", time.Second, health.ConnectionCheck(conn))
		publisher = events.NewPublisher(ch, cfg.AMQP.Exchange)
		lg.Info("Publishing order events", zap.String("exchange", cfg.AMQP.Exchange))
	}

	rater := checkout.DefaultRates()
	if cfg.RatesFile != "" {
		if rater, err = checkout.LoadRates(cfg.RatesFile); err != nil {
			return errors.Wrap(err, "load rates")
		}
	}

	h, err := newHandler(cfg, st, sessions, publisher, rater, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := newMux(h, healthSvc)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.KeyBySession(handler.SessionCookie, handler.SessionHeader),
				Routes: []httpmiddleware.RouteLimit{
					{Method: http.MethodPost, Prefix: "/api/admin/", Suffix: "/login", Max: 10, Window: time.Minute},
					{Method: http.MethodPost, Prefix: "/api/checkout/", Max: 10, Window: time.Minute},
				},
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("shopcart-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler builds the domain services over st and the HTTP handler serving
// them.
func newHandler(
	cfg *Config,
	st *storage,
	sessions auth.SessionStore,
	publisher checkout.Publisher,
	rater checkout.Rater,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*handler.Handler, error) {
	evaluator := coupon.NewEvaluator(st.coupons)
	checkoutSvc, err := checkout.NewService(st.tx, st.payments, evaluator, rater, checkout.Options{
		Publisher:      publisher,
		TracerProvider: tp,
		MeterProvider:  mp,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create checkout service")
	}
	return handler.New(handler.Config{SecureCookie: cfg.SecureCookie}, handler.Services{
		Auth: auth.NewService(sessions, st.admins, auth.Config{
			JWTSecret:  []byte(cfg.Auth.JWTSecret),
			TokenTTL:   cfg.Auth.TokenTTL,
			SessionTTL: cfg.Auth.SessionTTL,
		}),
		Carts:    cart.NewService(st.products, st.carts, evaluator),
		Checkout: checkoutSvc,
		Orders:   order.NewService(st.orders),
	}), nil
}

// newMux serves the probes next to the API routes.
func newMux(h *handler.Handler, hs *health.Health) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", hs.LiveEndpoint)
	mux.HandleFunc("GET /readyz", hs.ReadyEndpoint)
	h.Register(mux)
	return mux
}
