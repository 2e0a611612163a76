package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/v2"
	"github.com/exaring/otelpgx"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/auth"
	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/contention"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/events"
	"github.com/metinatakli/cinex-booking/internal/mailer"
	"github.com/metinatakli/cinex-booking/internal/payment"
	"github.com/metinatakli/cinex-booking/internal/realtime"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/seatgrid"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/metinatakli/cinex-booking/internal/vcs"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
	"golang.org/x/sync/errgroup"
)

type bookingService interface {
	Create(ctx context.Context, input booking.CreateBookingInput) (*booking.CreateResult, error)
	ApplyPaymentResult(ctx context.Context, outcome domain.PaymentOutcome) (*domain.Booking, error)
	Cancel(ctx context.Context, bookingID, userID int) (*domain.Booking, error)
}

type seatMapReader interface {
	Snapshot(ctx context.Context, showtimeID int) (*domain.ShowtimeSeats, error)
}

type contentionReader interface {
	Snapshot(showtimeID int) []domain.SeatContention
}

type realtimeServer interface {
	Serve(w http.ResponseWriter, r *http.Request, identity *domain.Identity, showtimeID int) error
}

// worker is a background loop that runs until its context is cancelled.
type worker func(ctx context.Context) error

type Application struct {
	config         Config
	logger         *slog.Logger
	validator      *validator.Validate
	sessionManager *scs.SessionManager
	tokens         *auth.TokenVerifier

	seats       seatMapReader
	contention  contentionReader
	bookings    bookingService
	bookingRepo domain.BookingRepository
	providers   *payment.Providers
	realtime    realtimeServer

	workers []worker
	closers []func()
}

func Run() error {
	cfg, displayVersion, err := ParseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if displayVersion {
		fmt.Printf("Version:\t%s\n", vcs.Version())
		return nil
	}

	bootLogger := NewLogger(Config{Env: cfg.Env, LogLevel: cfg.LogLevel}, os.Stdout)

	shutdownTelemetry, err := InitTelemetry(cfg, bootLogger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	logger := NewLogger(cfg, os.Stdout)

	if cfg.MigrationsSource != "" {
		err = RunMigrations(cfg.DB.DSN, cfg.MigrationsSource)
		if err != nil {
			return err
		}
		logger.Info("database migrations applied", "source", cfg.MigrationsSource)
	}

	app, err := NewApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx)
}

// NewApplication connects to PostgreSQL and Redis and wires every component.
func NewApplication(cfg Config, logger *slog.Logger) (*Application, error) {
	app := &Application{
		config:    cfg,
		logger:    logger,
		validator: appvalidator.NewValidator(),
		tokens:    auth.NewTokenVerifier(cfg.JWT.Secret),
	}

	db, err := newDatabasePool(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	app.closers = append(app.closers, db.Close)

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	app.closers = append(app.closers, func() { redisClient.Close() })

	app.sessionManager = newSessionManager(redisClient)

	seatRepo := repository.NewPostgresSeatRepository(db)
	bookingRepo := repository.NewPostgresBookingRepository(db)
	promotionRepo := repository.NewPostgresPromotionRepository(db)
	userRepo := repository.NewPostgresUserRepository(db)

	seatManager := seatgrid.NewManager(seatRepo)
	gateway := realtime.NewGateway(contention.NewRegistry(), app.validator, logger)
	app.closers = append(app.closers, gateway.Close)

	providers := newPaymentProviders(cfg)

	wmLogger := events.NewSlogAdapter(logger)

	publisher, err := events.NewRedisPublisher(redisClient, wmLogger)
	if err != nil {
		app.Close()
		return nil, err
	}

	eventBus, err := events.NewEventBus(publisher, wmLogger)
	if err != nil {
		app.Close()
		return nil, err
	}

	router, err := events.NewRouter(events.RouterDeps{
		Logger:      logger,
		RedisClient: redisClient,
		Users:       userRepo,
		Mailer:      mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender),
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	coordinator := booking.NewCoordinator(
		booking.Config{
			HoldWindow:         cfg.Booking.HoldWindow,
			CancellationWindow: cfg.Booking.CancellationWindow,
		},
		seatManager,
		bookingRepo,
		promotionRepo,
		providers,
		gateway,
		eventBus,
		logger,
	)

	sweeper := booking.NewSweeper(coordinator, cfg.Booking.SweepInterval, logger)

	app.seats = seatManager
	app.contention = gateway
	app.bookings = coordinator
	app.bookingRepo = bookingRepo
	app.providers = providers
	app.realtime = realtime.NewServer(gateway, logger, cfg.AllowedOrigins)

	app.workers = []worker{
		sweeper.Run,
		func(ctx context.Context) error {
			return gateway.RunIdleSweeper(ctx, cfg.Contention.SweepInterval, cfg.Contention.IdleTimeout)
		},
		func(ctx context.Context) error {
			defer router.Close()
			return router.Run(ctx)
		},
	}

	return app, nil
}

// Close releases the connections opened by NewApplication in reverse order.
func (app *Application) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
}

func newPaymentProviders(cfg Config) *payment.Providers {
	var providers []domain.PaymentProvider

	if cfg.VNPay.HashSecret != "" {
		providers = append(providers, payment.NewVNPayProvider(payment.VNPayConfig{
			TmnCode:    cfg.VNPay.TmnCode,
			HashSecret: cfg.VNPay.HashSecret,
			PayURL:     cfg.VNPay.PayUrl,
			ReturnURL:  cfg.VNPay.ReturnUrl,
		}))
	}

	if cfg.Momo.SecretKey != "" {
		providers = append(providers, payment.NewMomoProvider(payment.MomoConfig{
			PartnerCode: cfg.Momo.PartnerCode,
			AccessKey:   cfg.Momo.AccessKey,
			SecretKey:   cfg.Momo.SecretKey,
			Endpoint:    cfg.Momo.Endpoint,
			RedirectURL: cfg.Momo.RedirectUrl,
			IPNURL:      cfg.Momo.IpnUrl,
		}, nil))
	}

	if cfg.Stripe.SecretKey != "" {
		stripe.Key = cfg.Stripe.SecretKey

		providers = append(providers, payment.NewStripePaymentProvider(payment.StripeConfig{
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessUrl,
			FailureURL:    cfg.Stripe.FailureUrl,
			Currency:      cfg.Stripe.Currency,
		}))
	}

	return payment.NewProviders(providers...)
}

func newSessionManager(client *redis.Client) *scs.SessionManager {
	sessionManager := scs.New()

	sessionManager.Store = goredisstore.New(client)
	sessionManager.IdleTimeout = 20 * time.Minute
	sessionManager.Cookie.Name = "session_id"

	return sessionManager
}

func newRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	err := errors.Join(redisotel.InstrumentTracing(rdb), redisotel.InstrumentMetrics(rdb))
	if err != nil {
		rdb.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = rdb.Ping(ctx).Err()
	if err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}

func newDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Serve runs the HTTP server and the background workers until ctx is
// cancelled or one of them fails.
func (app *Application) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:        fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:     app.Routes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 5 * time.Second,
		// no WriteTimeout: websocket connections are long lived
		ErrorLog: slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)

		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		app.logger.Info("shutting down server", "addr", srv.Addr)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	for _, w := range app.workers {
		g.Go(func() error {
			return w(gctx)
		})
	}

	err := g.Wait()
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}
