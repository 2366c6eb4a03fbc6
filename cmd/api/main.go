package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"makao/internal/auth"
	"makao/internal/cache"
	"makao/internal/db"
	"makao/internal/domain/storage"
	"makao/internal/events"
	"makao/internal/mailer"
	"makao/internal/notifications"
	"makao/internal/onboarding"
	"makao/internal/payments"
	"makao/internal/ratelimiter"
	"makao/internal/reconcile"

	"github.com/9ssi7/exponent"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func envString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %d\n", key, fallback)
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %s\n", key, fallback)
		return fallback
	}
	return parsed
}

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	enabled := false
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", enabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: envInt("RATELIMITER_REQUESTS_COUNT", 200),
		TimeFrame:            envDuration("RATELIMITER_TIME_FRAME", 5*time.Second),
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level)
	return zap.New(core).Sugar(), nil
}

var version = "1.0.0"

//	@title			Makao API
//	@description	Rental management API: properties, units, tenants, maintenance reports and PesaPal payments.

//	@contact.name	API Support
//	@contact.email	support@makao.co.ke

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading configuration from the environment")
	}

	cfg := config{
		addr:        envString("ADDR", ":8080"),
		env:         envString("ENV", "development"),
		frontendURL: envString("FRONTEND_URL", "http://localhost:5173"),
		apiURL:      envString("EXTERNAL_URL", "localhost:8080"),
		db: dbConfig{
			addr:         os.Getenv("DB_ADDR"),
			maxOpenConns: int32(envInt("DB_MAX_OPEN_CONNS", 30)),
			maxIdleTime:  envString("DB_MAX_IDLE_TIME", "15m"),
		},
		mail: mailConfig{
			host:      os.Getenv("SMTP_HOST"),
			port:      envInt("SMTP_PORT", 587),
			username:  os.Getenv("SMTP_USERNAME"),
			password:  os.Getenv("SMTP_PASSWORD"),
			fromEmail: envString("SMTP_FROM_EMAIL", "no-reply@makao.co.ke"),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret:          os.Getenv("AUTH_TOKEN_SECRET"),
				refreshSecret:   os.Getenv("AUTH_TOKEN_REFRESH_SECRET"),
				accessTokenExp:  envDuration("AUTH_ACCESS_TOKEN_EXP", 24*time.Hour),
				refreshTokenExp: envDuration("AUTH_REFRESH_TOKEN_EXP", 7*24*time.Hour),
				iss:             "Makao",
			},
		},
		pesapal: payments.PesapalConfig{
			ConsumerKey:    os.Getenv("PESAPAL_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("PESAPAL_CONSUMER_SECRET"),
			Env:            envString("PESAPAL_ENV", "sandbox"),
			IPNURL:         os.Getenv("PESAPAL_IPN_URL"),
			CallbackURL:    os.Getenv("PESAPAL_CALLBACK_URL"),
		},
		poll: reconcile.PollConfig{
			Interval: envDuration("POLL_INTERVAL", reconcile.DefaultPollConfig().Interval),
			Timeout:  envDuration("POLL_TIMEOUT", reconcile.DefaultPollConfig().Timeout),
		},
		natsURL:         os.Getenv("NATS_URL"),
		cloudinaryURL:   os.Getenv("CLOUDINARY_URL"),
		expoAccessToken: os.Getenv("EXPO_ACCESS_TOKEN"),
		hashidsSalt:     envString("HASHIDS_SALT", "makao"),
		cacheMaxBytes:   int64(envInt("CACHE_MAX_BYTES", 64<<20)),
		rateLimiter:     LoadRateLimiterConfig(),
	}

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	ctx := context.Background()

	// Database
	pool, err := db.New(ctx, db.Config{
		Addr:        cfg.db.addr,
		MaxConns:    cfg.db.maxOpenConns,
		MaxIdleTime: cfg.db.maxIdleTime,
	})
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	if err := db.Migrate(ctx, cfg.db.addr); err != nil {
		logger.Fatal(err)
	}

	store := storage.NewContainer(pool)

	kv, err := cache.New(cfg.cacheMaxBytes)
	if err != nil {
		logger.Fatal(err)
	}
	defer kv.Close()

	// Payments
	paymentManager := payments.NewPaymentManager()
	paymentManager.RegisterGateway(payments.ProviderPesapal, payments.NewPesapalAdapter(cfg.pesapal, kv, logger))

	// Events
	var bus events.Bus
	if cfg.natsURL != "" {
		bus, err = events.ConnectNats(ctx, cfg.natsURL, logger)
		if err != nil {
			logger.Fatal(err)
		}
	} else {
		logger.Warn("NATS_URL not set, using in-process event bus")
		bus = events.NewLocalBus(logger)
	}

	tracker := reconcile.NewTracker(
		reconcile.NewStoreLedger(store, logger),
		paymentManager,
		bus,
		reconcile.NewHub(),
		cfg.poll,
		logger,
	)

	// Mail and push
	var mail mailer.Client
	if cfg.mail.host != "" {
		mail, err = mailer.NewSMTPMailer(cfg.mail.host, cfg.mail.port, cfg.mail.username, cfg.mail.password, cfg.mail.fromEmail)
		if err != nil {
			logger.Fatal(err)
		}
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
		mail = mailer.NewLogMailer(logger)
	}

	var push notifications.PushSender = notifications.NopSender{}
	if cfg.expoAccessToken != "" {
		push = notifications.NewExpoSender(exponent.NewClient(exponent.WithAccessToken(cfg.expoAccessToken)))
	}
	notifier := notifications.NewNotifier(store.Repos, mail, push, logger)

	// cloudinary
	var uploads fileUploader = noUploader{}
	if cfg.cloudinaryURL != "" {
		cld, err := cloudinary.NewFromURL(cfg.cloudinaryURL)
		if err != nil {
			logger.Fatal(err)
		}
		uploads = &cloudinaryUploader{cld: cld}
	}

	codes, err := onboarding.NewCodeGenerator(cfg.hashidsSalt)
	if err != nil {
		logger.Fatal(err)
	}

	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)
	defer rateLimiter.Stop()

	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.refreshSecret,
		cfg.auth.token.iss,
		cfg.auth.token.iss,
		cfg.auth.token.accessTokenExp,
		cfg.auth.token.refreshTokenExp,
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		store:         store,
		payments:      paymentManager,
		tracker:       tracker,
		bus:           bus,
		uploads:       uploads,
		mailer:        mail,
		push:          push,
		notifier:      notifier,
		wizard:        onboarding.NewWizard(kv, store.Users, store.Units),
		codes:         codes,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
	}

	stopNotifier, err := notifier.Subscribe(ctx, bus)
	if err != nil {
		logger.Fatal(err)
	}
	defer stopNotifier()

	resumed, err := tracker.Resume(ctx)
	if err != nil {
		logger.Errorw("resuming payment polls failed", "error", err)
	} else if resumed > 0 {
		logger.Infow("resumed payment polls", "count", resumed)
	}

	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	app.startBackgroundJobs(jobsCtx)

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		s := pool.Stat()
		return map[string]any{
			"total_conns":    s.TotalConns(),
			"idle_conns":     s.IdleConns(),
			"acquired_conns": s.AcquiredConns(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	if err := app.run(mux); err != nil {
		logger.Fatal(err)
	}
}
