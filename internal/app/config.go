package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "CINEX_"

type Config struct {
	Port             int
	Env              string
	LogLevel         string
	OtelCollectorUrl string
	AllowedOrigins   []string
	MigrationsSource string
	DB               DBConfig
	Redis            RedisConfig
	SMTP             SMTPConfig
	JWT              JWTConfig
	Stripe           StripeConfig
	VNPay            VNPayConfig
	Momo             MomoConfig
	Booking          BookingConfig
	Contention       ContentionConfig
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type JWTConfig struct {
	Secret string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessUrl    string
	FailureUrl    string
	Currency      string
}

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayUrl     string
	ReturnUrl  string
}

type MomoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectUrl string
	IpnUrl      string
}

type BookingConfig struct {
	HoldWindow         time.Duration
	SweepInterval      time.Duration
	CancellationWindow time.Duration
}

type ContentionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// ParseConfig reads the configuration from the command line. Every flag can
// also be set through an environment variable named after it, e.g.
// -db-dsn becomes CINEX_DB_DSN. A .env file in the working directory is
// loaded first when present. Explicit flags win over the environment.
func ParseConfig(args []string) (Config, bool, error) {
	var cfg Config

	fs := flag.NewFlagSet("cinex-booking", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "port", 3000, "server port")
	fs.StringVar(&cfg.Env, "env", "dev", "Environment (dev|staging|prod)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", "", "OpenTelemetry collector gRPC endpoint")
	fs.Func("allowed-origins", "Comma separated websocket origins, * allows any", func(s string) error {
		cfg.AllowedOrigins = splitList(s)
		return nil
	})

	fs.StringVar(&cfg.MigrationsSource, "migrate", "", "Apply migrations from this source (e.g. file://migrations) before starting")

	fs.StringVar(&cfg.DB.DSN, "db-dsn", "", "PostgreSQL DSN")
	fs.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	fs.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	fs.StringVar(&cfg.Redis.URL, "redis-url", "", "Redis URL")
	fs.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	fs.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	fs.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	fs.StringVar(&cfg.SMTP.Host, "smtp-host", "sandbox.smtp.mailtrap.io", "SMTP host")
	fs.IntVar(&cfg.SMTP.Port, "smtp-port", 2525, "SMTP port")
	fs.StringVar(&cfg.SMTP.Username, "smtp-username", "", "SMTP username")
	fs.StringVar(&cfg.SMTP.Password, "smtp-password", "", "SMTP password")
	fs.StringVar(&cfg.SMTP.Sender, "smtp-sender", "CineX <no-reply@cinex.metinatakli.net>", "SMTP sender")

	fs.StringVar(&cfg.JWT.Secret, "jwt-secret", "", "HMAC secret of bearer tokens")

	fs.StringVar(&cfg.Stripe.SecretKey, "stripe-key", "", "Stripe secret key")
	fs.StringVar(&cfg.Stripe.WebhookSecret, "stripe-webhook-secret", "", "Stripe webhook secret")
	fs.StringVar(&cfg.Stripe.SuccessUrl, "stripe-success-url", "https://example.com/success.html", "Stripe payment success page")
	fs.StringVar(&cfg.Stripe.FailureUrl, "stripe-failure-url", "https://example.com/failure.html", "Stripe payment failure page")
	fs.StringVar(&cfg.Stripe.Currency, "stripe-currency", "usd", "Stripe checkout currency")

	fs.StringVar(&cfg.VNPay.TmnCode, "vnpay-tmn-code", "", "VNPay terminal code")
	fs.StringVar(&cfg.VNPay.HashSecret, "vnpay-hash-secret", "", "VNPay hash secret")
	fs.StringVar(&cfg.VNPay.PayUrl, "vnpay-pay-url", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html", "VNPay payment page")
	fs.StringVar(&cfg.VNPay.ReturnUrl, "vnpay-return-url", "", "VNPay return URL")

	fs.StringVar(&cfg.Momo.PartnerCode, "momo-partner-code", "", "MoMo partner code")
	fs.StringVar(&cfg.Momo.AccessKey, "momo-access-key", "", "MoMo access key")
	fs.StringVar(&cfg.Momo.SecretKey, "momo-secret-key", "", "MoMo secret key")
	fs.StringVar(&cfg.Momo.Endpoint, "momo-endpoint", "https://test-payment.momo.vn/v2/gateway/api/create", "MoMo create payment endpoint")
	fs.StringVar(&cfg.Momo.RedirectUrl, "momo-redirect-url", "", "MoMo redirect URL")
	fs.StringVar(&cfg.Momo.IpnUrl, "momo-ipn-url", "", "MoMo IPN URL")

	fs.DurationVar(&cfg.Booking.HoldWindow, "booking-hold-window", 15*time.Minute, "How long a pending booking holds its seats")
	fs.DurationVar(&cfg.Booking.SweepInterval, "booking-sweep-interval", 30*time.Second, "Interval of the expired booking sweep")
	fs.DurationVar(&cfg.Booking.CancellationWindow, "cancellation-window", 0, "How long a paid booking can be cancelled, 0 disables it")

	fs.DurationVar(&cfg.Contention.IdleTimeout, "contention-idle-timeout", 5*time.Minute, "Age after which a seat selection is dropped")
	fs.DurationVar(&cfg.Contention.SweepInterval, "contention-sweep-interval", 30*time.Second, "Interval of the idle selection sweep")

	displayVersion := fs.Bool("version", false, "Display version and exit")

	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, false, fmt.Errorf("loading .env: %w", err)
	}

	err = applyEnv(fs)
	if err != nil {
		return cfg, false, err
	}

	err = fs.Parse(args)
	if err != nil {
		return cfg, false, err
	}

	return cfg, *displayVersion, cfg.validate()
}

func applyEnv(fs *flag.FlagSet) error {
	var errs []error

	fs.VisitAll(func(f *flag.Flag) {
		value, ok := os.LookupEnv(envName(f.Name))
		if !ok {
			return
		}

		if err := fs.Set(f.Name, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envName(f.Name), err))
		}
	})

	return errors.Join(errs...)
}

func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func (c Config) validate() error {
	var errs []error

	if c.Booking.HoldWindow <= 0 {
		errs = append(errs, errors.New("booking-hold-window must be positive"))
	}

	if c.Booking.SweepInterval <= 0 {
		errs = append(errs, errors.New("booking-sweep-interval must be positive"))
	}

	if c.Booking.CancellationWindow < 0 {
		errs = append(errs, errors.New("cancellation-window must not be negative"))
	}

	if c.Contention.IdleTimeout <= 0 || c.Contention.SweepInterval <= 0 {
		errs = append(errs, errors.New("contention timeouts must be positive"))
	}

	return errors.Join(errs...)
}
