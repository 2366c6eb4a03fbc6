package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"makao/docs" //this is required to generate swagger docs
	"makao/internal/auth"
	"makao/internal/domain/paymentsrepo"
	"makao/internal/domain/storage"
	"makao/internal/domain/users"
	"makao/internal/events"
	"makao/internal/mailer"
	"makao/internal/notifications"
	"makao/internal/onboarding"
	"makao/internal/payments"
	"makao/internal/ratelimiter"
	"makao/internal/reconcile"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// gateway starts hosted checkouts; satisfied by payments.PaymentManager.
type gateway interface {
	InitiatePayment(ctx context.Context, provider string, req payments.PaymentRequest) (payments.PaymentResponse, error)
}

// paymentTracker is satisfied by reconcile.Tracker.
type paymentTracker interface {
	Track(ctx context.Context, m paymentsrepo.Marker) error
	Refresh(ctx context.Context, paymentID int64, source string) (*paymentsrepo.Payment, error)
	RefreshByTrackingID(ctx context.Context, trackingID, source string) (*paymentsrepo.Payment, error)
	Hub() *reconcile.Hub
	Shutdown(ctx context.Context) error
}

type application struct {
	config        config
	store         *storage.Container
	logger        *zap.SugaredLogger
	payments      gateway
	tracker       paymentTracker
	bus           events.Bus
	uploads       fileUploader
	mailer        mailer.Client
	push          notifications.PushSender
	notifier      *notifications.Notifier
	wizard        *onboarding.Wizard
	codes         *onboarding.CodeGenerator
	authenticator auth.Authenticator
	rateLimiter   *ratelimiter.FixedWindowRateLimiter
}

type config struct {
	addr            string
	db              dbConfig
	env             string
	apiURL          string
	mail            mailConfig
	frontendURL     string
	auth            authConfig
	pesapal         payments.PesapalConfig
	poll            reconcile.PollConfig
	natsURL         string
	cloudinaryURL   string
	expoAccessToken string
	hashidsSalt     string
	cacheMaxBytes   int64
	rateLimiter     ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}
type tokenConfig struct {
	refreshSecret   string
	secret          string
	accessTokenExp  time.Duration
	refreshTokenExp time.Duration
	iss             string
}
type basicConfig struct {
	user string
	pass string
}

type mailConfig struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

type dbConfig struct {
	addr         string
	maxOpenConns int32
	maxIdleTime  string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{app.config.frontendURL, "https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	if app.config.rateLimiter.Enabled {
		r.Use(app.RateLimiterMiddleware)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		// Long-lived and gateway-facing routes sit outside the request timeout.
		r.Route("/payments/pesapal", func(r chi.Router) {
			r.Get("/ipn", app.pesapalIPNHandler)
			r.Get("/return", app.pesapalReturnHandler)
		})
		r.With(app.AuthTokenMiddleware).Get("/payments/{paymentID}/stream", app.paymentStreamHandler)

		r.Group(func(r chi.Router) {
			//Set a timeout value on the request context (ctx), that will signal through ctx.Done() that the request has timed out and further processing should be stopped
			r.Use(middleware.Timeout(60 * time.Second))

			// Public routes
			r.Route("/authentication", func(r chi.Router) {
				r.Post("/token", app.createTokenHandler)
				r.Post("/refresh", app.refreshTokenHandler)
			})

			r.Route("/signup", func(r chi.Router) {
				r.Post("/", app.startSignupHandler)
				r.Post("/landlord-code", app.lookupLandlordCodeHandler)
				r.Get("/plans", app.subscriptionPlansHandler)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", app.getSignupHandler)
					r.Delete("/", app.discardSignupHandler)
					r.Post("/steps/{step}", app.submitSignupStepHandler)
					r.Post("/back", app.signupBackHandler)
					r.Post("/document", app.uploadSignupDocumentHandler)
					r.Post("/complete", app.completeSignupHandler)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Get("/me", app.getCurrentUserHandler)
				r.Patch("/", app.updateUserHandler)
				r.Post("/id-document", app.uploadIDDocumentHandler)
				r.Post("/logout", app.logoutHandler)
				r.Post("/push-tokens", app.savePushTokenHandler)
				r.Delete("/push-tokens", app.removePushTokenHandler)
			})

			r.With(app.AuthTokenMiddleware).Get("/dashboard", app.dashboardHandler)

			r.Route("/properties", func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware, app.requireUserType(users.Landlord))
				r.Get("/", app.listPropertiesHandler)
				r.Post("/", app.createPropertyHandler)
				r.Route("/{propertyID}", func(r chi.Router) {
					r.Use(app.propertyContextMiddleware)
					r.Get("/", app.getPropertyHandler)
					r.Patch("/", app.updatePropertyHandler)
					r.Delete("/", app.deletePropertyHandler)
					r.Get("/units", app.listPropertyUnitsHandler)
					r.Post("/units", app.createUnitHandler)
				})
			})

			r.Route("/units", func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Get("/", app.listUnitsHandler)
				r.Route("/{unitID}", func(r chi.Router) {
					r.Use(app.unitContextMiddleware)
					r.Get("/", app.getUnitHandler)
					r.With(app.requireUserType(users.Landlord)).Patch("/", app.updateUnitHandler)
					r.With(app.requireUserType(users.Landlord)).Delete("/", app.deleteUnitHandler)
					r.With(app.requireUserType(users.Landlord)).Put("/tenant", app.assignTenantHandler)
					r.With(app.requireUserType(users.Landlord)).Delete("/tenant", app.removeTenantHandler)
				})
			})

			r.Route("/tenants", func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware, app.requireUserType(users.Landlord))
				r.Get("/", app.listTenantsHandler)
				r.Post("/notify", app.broadcastHandler)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Get("/", app.listReportsHandler)
				r.With(app.requireUserType(users.Tenant)).Post("/", app.createReportHandler)
				r.With(app.requireUserType(users.Landlord)).Get("/urgent", app.urgentReportsHandler)
				r.With(app.requireUserType(users.Landlord)).Get("/stats", app.reportStatsHandler)
				r.Route("/{reportID}", func(r chi.Router) {
					r.Use(app.reportContextMiddleware)
					r.Get("/", app.getReportHandler)
					r.With(app.requireUserType(users.Landlord)).Patch("/status", app.updateReportStatusHandler)
					r.Delete("/", app.deleteReportHandler)
				})
			})

			r.Route("/payments", func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Get("/", app.listPaymentsHandler)
				r.Get("/summary", app.paymentSummaryHandler)
				r.With(app.requireUserType(users.Landlord)).Get("/export.csv", app.exportPaymentsHandler)
				r.With(app.requireUserType(users.Landlord)).Post("/cleanup", app.cleanupPaymentsHandler)
				r.With(app.requireUserType(users.Tenant)).Post("/rent/{unitID}", app.createRentPaymentHandler)
				r.With(app.requireUserType(users.Tenant)).Post("/deposit", app.createDepositPaymentHandler)
				r.With(app.requireUserType(users.Landlord)).Post("/subscription", app.createSubscriptionPaymentHandler)
				r.Get("/subscription", app.getSubscriptionHandler)
				r.Route("/{paymentID}", func(r chi.Router) {
					r.Use(app.paymentContextMiddleware)
					r.Get("/status", app.paymentStatusHandler)
					r.Get("/logs", app.paymentLogsHandler)
				})
			})
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: 0, // status streams are long-lived
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		err := srv.Shutdown(ctx)

		if err := app.tracker.Shutdown(ctx); err != nil {
			app.logger.Warnw("payment polls did not stop in time", "error", err)
		}
		if err := app.bus.Close(); err != nil {
			app.logger.Warnw("closing event bus", "error", err)
		}

		shutdown <- err
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
