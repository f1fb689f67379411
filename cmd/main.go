package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vijay324/expense-tracker-sub000/internal/auth"
	"github.com/vijay324/expense-tracker-sub000/internal/config"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/server"
	"github.com/vijay324/expense-tracker-sub000/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx := context.Background()
	sctx := WithSignal(ctx)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewLogrusLogger(logger.NewDefaultConfig()).
			Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	log := logger.NewLogrusLogger(cfg.LoggerConfig())

	registry := hub.NewRegistry(log)
	publisher := hub.NewFanoutPublisher(registry, log)
	recordStore := store.NewMemoryStore()
	ident := auth.NewStaticTokens(cfg.Auth.Tokens)

	router := InitRouter(cfg, log, registry, publisher, recordStore, ident)
	httpSrv := server.NewHTTPServer(cfg.Server.Addr, router)
	app := newApplication(log, httpSrv, registry)

	log.Infof("listening on %s", cfg.Server.Addr)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

type Application struct {
	logger   logger.Logger
	httpSrv  server.Server
	registry *hub.Registry
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	registry *hub.Registry,
) *Application {
	return &Application{
		logger:   logger.WithField("app", "expense-tracker"),
		httpSrv:  httpSrv,
		registry: registry,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			time.Duration(5*time.Second),
		)
		defer cancel()

		// Drop open streams first so Shutdown does not wait on them.
		app.registry.CloseAll()

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	err := eg.Wait()
	if err != nil {
		return err
	}

	return nil
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
