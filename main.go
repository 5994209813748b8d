package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chucky-1/virtual-trader/internal/alert"
	"github.com/chucky-1/virtual-trader/internal/catalog"
	"github.com/chucky-1/virtual-trader/internal/config"
	"github.com/chucky-1/virtual-trader/internal/dividend"
	"github.com/chucky-1/virtual-trader/internal/grpc/server"
	"github.com/chucky-1/virtual-trader/internal/handler"
	"github.com/chucky-1/virtual-trader/internal/market"
	"github.com/chucky-1/virtual-trader/internal/notify"
	"github.com/chucky-1/virtual-trader/internal/repository"
	"github.com/chucky-1/virtual-trader/internal/scheduler"
	"github.com/chucky-1/virtual-trader/internal/service"
	"github.com/chucky-1/virtual-trader/internal/ws"
	"github.com/chucky-1/virtual-trader/protocol"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/cache/v8"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

func main() {
	var envFile string
	root := &cobra.Command{
		Use:           "virtual-trader",
		Short:         "Virtual equity market simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		log.SetLevel(level)
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the market, the background loops and the http and grpc servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes of the configured storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			_, closeStorage, err := openStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			closeStorage()
			log.Infof("%s storage is migrated", cfg.Storage)
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// openStorage connects the configured ledger and creates its schema
func openStorage(ctx context.Context, cfg *config.Config) (repository.Ledger, func(), error) {
	var (
		ledger      repository.Ledger
		closeLedger = func() {}
	)
	switch cfg.Storage {
	case "postgres":
		pool, err := pgxpool.Connect(ctx, cfg.PostgresURL())
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		ledger, closeLedger = repository.NewPostgres(pool), pool.Close
	case "sqlite":
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		ledger = repository.NewSQLite(db)
		closeLedger = func() {
			if err := db.Close(); err != nil {
				log.Error(err)
			}
		}
	default:
		return repository.NewMemory(), closeLedger, nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout())
	defer cancel()
	if err := ledger.(migrator).Migrate(ctx); err != nil {
		closeLedger()
		return nil, nil, fmt.Errorf("migrate %s: %w", cfg.Storage, err)
	}
	return ledger, closeLedger, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	ledger, closeLedger, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	instruments := catalog.Default()
	engine := market.New(instruments, ledger, cfg.RefreshInterval())
	srv := service.NewService(ledger, engine, cfg.StartingBalance)

	hub := ws.NewHub()
	go hub.Run(ctx)
	notifier := notify.Multi{notify.Log{}, hub}

	feed := server.NewPriceFeed(engine.Quotes)
	opts := []scheduler.Option{
		scheduler.WithSink("websocket", scheduler.SinkFunc(hub.BroadcastQuotes)),
		scheduler.WithSink("grpc", scheduler.SinkFunc(feed.Publish)),
	}
	if cfg.NotifyPricesUpdated {
		opts = append(opts, scheduler.WithPricesUpdated(ledger, notifier))
	}
	if cfg.RedisEnabled {
		ring := redis.NewRing(&redis.RingOptions{Addrs: map[string]string{cfg.ServerRedisCache: cfg.RedisAddr()}})
		defer func() {
			if err := ring.Close(); err != nil {
				log.Error(err)
			}
		}()
		quotes := repository.NewCache(cache.New(&cache.Options{Redis: ring}), cfg.QuoteTTL())
		opts = append(opts, scheduler.WithSink("redis", scheduler.SinkFunc(quotes.PublishQuotes)))
	}

	sched := scheduler.NewScheduler(engine,
		alert.NewEngine(ledger, engine, notifier),
		dividend.NewEngine(ledger, engine, notifier, cfg.RefreshInterval(), cfg.MinimumDividendPayout),
		scheduler.Intervals{
			Alert:    cfg.AlertPoll(),
			Dividend: cfg.DividendInterval(),
			Timeout:  cfg.StorageTimeout(),
		}, opts...)

	// Grpc
	lis, err := net.Listen("tcp", cfg.GrpcAddr())
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	protocol.RegisterPricesServer(grpcServer, feed)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error(err)
		}
	}()

	// Http
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHandler(srv, instruments, engine, hub).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err)
		}
	}()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	log.WithFields(log.Fields{"http": cfg.HTTPAddr, "grpc": cfg.GrpcAddr(), "storage": cfg.Storage}).Info("virtual trader started")

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StorageTimeout())
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(err)
	}
	grpcServer.Stop()
	<-done
	return nil
}
