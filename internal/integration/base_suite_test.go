package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
)

const (
	dbName         = "cinex"
	dbUser         = "test_user"
	dbPassword     = "test_password"
	dbImageName    = "postgres:17-alpine"
	cacheImageName = "redis:7"

	jwtSecret       = "integration-secret"
	vnpayHashSecret = "integration-vnpay-secret"
)

type TestApp struct {
	App     *app.Application
	Handler http.Handler
	DB      *pgxpool.Pool
}

type BaseSuite struct {
	suite.Suite
	app            *TestApp
	dbContainer    *PostgresContainer
	cacheContainer *RedisContainer
}

func (s *BaseSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := getDbContainer(ctx)
	s.Require().NoError(err, "failed to start postgres container")
	s.dbContainer = postgresContainer

	redisContainer, err := getCacheContainer(ctx)
	s.Require().NoError(err, "failed to start redis container")
	s.cacheContainer = redisContainer

	cfg := app.Config{
		Port: 3000,
		Env:  "test",
		DB: app.DBConfig{
			DSN:          postgresContainer.ConnectionString,
			MaxOpenConns: 25,
			MaxIdleTime:  2 * time.Minute,
		},
		Redis: app.RedisConfig{
			URL:          redisContainer.ConnectionString,
			MaxOpenConns: 10,
			MaxIdleConns: 10,
			MaxIdleTime:  2 * time.Minute,
		},
		JWT: app.JWTConfig{Secret: jwtSecret},
		VNPay: app.VNPayConfig{
			TmnCode:    "CINEXTST",
			HashSecret: vnpayHashSecret,
			PayUrl:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
			ReturnUrl:  "https://example.com/return",
		},
		Booking: app.BookingConfig{
			HoldWindow:    15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Contention: app.ContentionConfig{
			IdleTimeout:   5 * time.Minute,
			SweepInterval: time.Minute,
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	application, err := app.NewApplication(cfg, logger)
	s.Require().NoError(err, "cannot initialize app")

	db, err := pgxpool.New(ctx, postgresContainer.ConnectionString)
	s.Require().NoError(err)

	s.app = &TestApp{
		App:     application,
		Handler: application.Routes(),
		DB:      db,
	}

	executeSQLFile(s.T(), db, "testdata/seed.sql")
}

func (s *BaseSuite) TearDownSuite() {
	if s.app != nil {
		s.app.DB.Close()
		s.app.App.Close()
	}
	if s.dbContainer != nil {
		if err := testcontainers.TerminateContainer(s.dbContainer.Container); err != nil {
			s.T().Logf("failed to terminate container: %s", err)
		}
	}
	if s.cacheContainer != nil {
		if err := testcontainers.TerminateContainer(s.cacheContainer.Container); err != nil {
			s.T().Logf("failed to terminate container: %s", err)
		}
	}
}

type Scenario struct {
	Name             string
	Method           string
	URL              string
	Body             io.Reader
	Headers          map[string]string
	ExpectedStatus   int
	ExpectedResponse string
	BeforeTestFunc   func(t testing.TB, app *TestApp)
	AfterTestFunc    func(t testing.TB, app *TestApp, res *http.Response)
}

func (s Scenario) Run(t *testing.T, testApp *TestApp) {
	t.Run(s.Name, func(t *testing.T) {
		req := prepareRequest(s.Method, s.URL, s.Body, s.Headers)

		if s.BeforeTestFunc != nil {
			s.BeforeTestFunc(t, testApp)
		}

		rec := httptest.NewRecorder()
		testApp.Handler.ServeHTTP(rec, req)

		res := rec.Result()
		defer res.Body.Close()

		assert.Equal(t, s.ExpectedStatus, res.StatusCode)

		if s.ExpectedResponse != "" {
			compareResponse(t, res.Body, s.ExpectedResponse)
		}

		if s.AfterTestFunc != nil {
			s.AfterTestFunc(t, testApp, res)
		}
	})
}

// do sends a single request through the application's router.
func (a *TestApp) do(t testing.TB, method, url string, body any, headers map[string]string) *http.Response {
	t.Helper()

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, prepareRequest(method, url, jsonBody(t, body), headers))

	res := rec.Result()
	t.Cleanup(func() { res.Body.Close() })

	require.NotNil(t, res)
	return res
}
