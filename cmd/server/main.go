// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jason-s-yu/njuka/internal/auth"
	"github.com/jason-s-yu/njuka/internal/cache"
	"github.com/jason-s-yu/njuka/internal/config"
	"github.com/jason-s-yu/njuka/internal/database"
	apihandlers "github.com/jason-s-yu/njuka/internal/handlers"
	"github.com/jason-s-yu/njuka/internal/hub"
	"github.com/jason-s-yu/njuka/internal/ledger"
	"github.com/jason-s-yu/njuka/internal/middleware"
	"github.com/jason-s-yu/njuka/internal/payments"
	"github.com/jason-s-yu/njuka/internal/session"
	"github.com/jason-s-yu/njuka/internal/settlement"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const readTimeout = time.Second * 5
const writeTimeout = time.Second * 10
const shutdownTimeout = time.Second * 15

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("could not load configuration")
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.WithError(err).Fatal("could not set up logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// fail fast
	verifier := newVerifier(cfg, logger)

	l, closeLedger := newLedger(ctx, cfg, logger)
	defer closeLedger()

	actions, closeActions := newPublisher(ctx, cfg, logger)
	defer closeActions()

	h := hub.New(logger)
	engine := settlement.NewEngine(l.ledger, cfg.Ledger.HouseAccount, logger)
	sessions := session.New(engine, h, logger, session.Options{
		UnstartedTTL: cfg.Lobby.UnstartedTTL,
		StartedTTL:   cfg.Lobby.StartedTTL,
		Actions:      actions,
	})
	defer sessions.Close()

	if cfg.Lipila.APIKey == "" {
		logger.Warn("no Lipila API key configured, gateway calls will be rejected")
	}
	if cfg.Lipila.WebhookSecret == "" {
		logger.Warn("no webhook secret configured, every webhook will fail verification")
	}
	gateway := payments.NewLipilaClient(cfg.Lipila.BaseURL, cfg.Lipila.APIKey, cfg.Lipila.Timeout, logger)
	pay := payments.NewService(gateway, l.payments, l.ledger, logger, payments.Options{
		CallbackURL:   cfg.Lipila.CallbackURL,
		WebhookSecret: cfg.Lipila.WebhookSecret,
		Currency:      cfg.Lipila.Currency,
	})

	api := apihandlers.NewAPI(sessions, pay, verifier, logger, apihandlers.Options{
		IsAdmin:        cfg.IsAdmin,
		OriginPatterns: originPatterns(cfg.AllowedOrigins),
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedHeaders:   []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	})

	var handler http.Handler = api.Router()
	handler = c.Handler(handler)
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(true))(handler)
	handler = middleware.LogMiddleware(logger)(handler)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	logger.WithFields(logrus.Fields{"addr": srv.Addr, "ledger": cfg.Ledger.Backend}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server exited")
	}
}

type storage struct {
	ledger   ledger.Ledger
	payments payments.Store
}

// newLedger picks the wallet and payment storage for the configured backend.
func newLedger(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage, func()) {
	if cfg.Ledger.Backend != "postgres" {
		logger.WithField("seed_balance", cfg.Ledger.SeedBalance).Warn("using the in-memory ledger, balances are lost on restart")
		return storage{ledger: ledger.NewMemory(cfg.Ledger.SeedBalance), payments: payments.NewMemoryStore()}, func() {}
	}

	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(cfg.Postgres.DSN); err != nil {
			logger.WithError(err).Fatal("could not run migrations")
		}
	}
	pool, err := database.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.WithError(err).Fatal("could not connect to postgres")
	}
	return storage{ledger: database.NewLedger(pool), payments: database.NewPaymentStore(pool)}, pool.Close
}

// newPublisher feeds game actions to the historian queue when Redis is configured.
func newPublisher(ctx context.Context, cfg config.Config, logger *logrus.Logger) (cache.Publisher, func()) {
	if cfg.Redis.Addr == "" {
		logger.Info("no redis configured, game actions are not archived")
		return cache.NopPublisher{}, func() {}
	}
	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, game actions are not archived")
		return cache.NopPublisher{}, func() {}
	}
	return cache.NewRedisPublisher(rdb, cfg.Redis.QueueName), func() { _ = rdb.Close() }
}

func newVerifier(cfg config.Config, logger *logrus.Logger) auth.Verifier {
	if cfg.JWT.PublicKeyPath == "" {
		logger.Warn("no JWT public key configured, authenticated endpoints will answer 503")
		return auth.NewJWTVerifier(nil, cfg.JWT.Issuer)
	}
	key, err := auth.LoadPublicKey(cfg.JWT.PublicKeyPath)
	if err != nil {
		logger.WithError(err).Fatal("could not load JWT public key")
	}
	return auth.NewJWTVerifier(key, cfg.JWT.Issuer)
}

// originPatterns converts CORS origins into websocket host patterns.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
