package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/internal/database"
	"github.com/goliatone/go-accounts/metrics"
	"github.com/goliatone/go-accounts/migrations"
	"github.com/goliatone/go-accounts/provider/httpclaims"
)

type App struct {
	config  *config.Config
	logger  *glog.BaseLogger
	db      *database.DB
	metrics *metrics.Recorder
	auther  *accounts.Auther
	signer  *accounts.RSASigner
	srv     router.Server[*fiber.App]
	msrv    *http.Server
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("accounts"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg, err := config.Load()
	if err != nil {
		lgr.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(cfg.Redacted()))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	ctx := context.Background()

	steps := []func(context.Context, *App) error{
		WithPersistence,
		WithMetrics,
		WithAuthenticator,
		WithHTTPServer,
	}
	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			lgr.Error("startup failed", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := app.srv.Serve(cfg.Address()); err != nil {
			lgr.Error("http server stopped", "error", err)
		}
	}()

	if app.msrv != nil {
		go func() {
			if err := app.msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lgr.Error("metrics server stopped", "error", err)
			}
		}()
	}

	sig := WaitExitSignal()
	lgr.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("http shutdown", "error", err)
	}
	if app.msrv != nil {
		_ = app.msrv.Shutdown(shutdownCtx)
	}
	if err := app.db.Close(); err != nil {
		lgr.Error("database close", "error", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := database.Open(ctx, app.config.Database())
	if err != nil {
		return err
	}

	if err := migrations.Migrate(ctx, db.SQL, db.Driver, app.GetLogger("migrations")); err != nil {
		_ = db.Close()
		return err
	}

	app.db = db
	return nil
}

func WithMetrics(_ context.Context, app *App) error {
	reg := prometheus.NewRegistry()
	app.metrics = metrics.New(reg)

	if app.config.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	app.msrv = &http.Server{
		Addr:              app.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

func WithAuthenticator(_ context.Context, app *App) error {
	cfg := app.config

	material, err := cfg.KeyMaterial()
	if err != nil {
		return err
	}

	signer, err := accounts.NewRSASigner(material, cfg.SignerOptions()...)
	if err != nil {
		return err
	}

	repo := accounts.NewRepositoryManager(app.db.Bun)

	providers := []accounts.ClaimProvider{
		accounts.NewAttributeClaimProvider(repo.Attributes()),
	}
	providers = append(providers, httpclaims.FromURLs(cfg.ClaimServiceURLs,
		httpclaims.WithClient(&http.Client{Timeout: cfg.ClaimProviderTimeout}),
	)...)

	mergerOpts := []accounts.MergerOption{
		accounts.WithProviderTimeout(cfg.ClaimProviderTimeout),
		accounts.WithMergerLogger(app.GetLogger("claims")),
	}
	if len(cfg.AllowedFragmentClaims) > 0 {
		mergerOpts = append(mergerOpts, accounts.WithAllowedClaims(cfg.AllowedFragmentClaims...))
	}
	merger := accounts.NewClaimMerger(providers, mergerOpts...)

	issuer, err := accounts.NewTokenIssuer(signer, merger, cfg.Tokens(),
		accounts.WithIssuerMetrics(app.metrics),
		accounts.WithIssuerLogger(app.GetLogger("tokens")),
	)
	if err != nil {
		return err
	}

	verifier, err := accounts.NewTokenVerifier(signer, cfg.Tokens(),
		accounts.WithVerifierMetrics(app.metrics),
	)
	if err != nil {
		return err
	}

	store := accounts.NewUserProvider(accounts.NewUserTracker(repo.Users())).
		WithLogger(app.GetLogger("users"))

	activity := app.GetLogger("activity")
	app.signer = signer
	app.auther = accounts.NewAuthenticator(store, issuer, verifier, accounts.NewAccountStateGuard(cfg.Policy())).
		WithLogger(app.GetLogger("auth")).
		WithRepositoryManager(repo).
		WithDeterministicIDs(bool(cfg.DeterministicIDs)).
		WithLoginLimiter(accounts.NewTokenBucketLimiter(cfg.LoginRate, cfg.LoginBurst)).
		WithActivitySink(activitymap.Sink(func(r activitymap.Record) {
			activity.Info("account activity", r.Fields()...)
		}))

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: bool(app.config.Debug),
			StrictRouting:     false,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	accounts.RegisterAccountRoutes(srv.Router(), func(ac *accounts.AccountsController) *accounts.AccountsController {
		ac.Auther = app.auther
		ac.Signer = app.signer
		ac.Debug = bool(app.config.Debug)
		ac.WithLogger(app.GetLogger("accounts:ctrl"))
		return ac
	})

	app.srv = srv
	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
