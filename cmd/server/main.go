package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ChipaDevTeam/ChipaX/internal/adapter/cache"
	"github.com/ChipaDevTeam/ChipaX/internal/adapter/in_memory"
	"github.com/ChipaDevTeam/ChipaX/internal/adapter/kafka"
	"github.com/ChipaDevTeam/ChipaX/internal/adapter/pebble"
	"github.com/ChipaDevTeam/ChipaX/internal/adapter/pg"
	httpapi "github.com/ChipaDevTeam/ChipaX/internal/api/http"
	"github.com/ChipaDevTeam/ChipaX/internal/api/ws"
	"github.com/ChipaDevTeam/ChipaX/internal/config"
	"github.com/ChipaDevTeam/ChipaX/internal/core"
	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/logging"
	"github.com/ChipaDevTeam/ChipaX/internal/port"
	"github.com/ChipaDevTeam/ChipaX/internal/wallet"
)

func main() {
	path := flag.String("config", os.Getenv(config.EnvPrefix+"_CONFIG"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	engines, err := cfg.EngineConfigs()
	if err != nil {
		return err
	}
	registry, err := core.NewRegistry(engines, log.Named("engine"))
	if err != nil {
		return err
	}

	var store wallet.Store
	switch cfg.Wallet.Store {
	case config.WalletPebble:
		ps, err := pebble.OpenWalletStore(cfg.Wallet.Path)
		if err != nil {
			return err
		}
		defer ps.Close()
		store = ps
	default:
		store = wallet.NewMemStore()
	}
	wallets := wallet.NewService(store, log.Named("wallet"))
	if err := wallets.ValidateBalances(); err != nil {
		return fmt.Errorf("wallet store inconsistent: %w", err)
	}

	var repo port.Repository = in_memory.NewMemoryRepo()
	if cfg.Postgres.DSN != "" {
		pgRepo, err := pg.NewPgRepo(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pgRepo.Close()
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		repo = pgRepo
	}

	var snapshots port.Cache = in_memory.NewCache()
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		snapshots = rc
	}

	hub := ws.NewHub(log.Named("ws"))
	defer hub.Close()
	publishers := port.Publishers{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafka.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publishers = append(publishers, kp)
	}

	exchange := core.NewExchange(registry, wallets, log.Named("exchange"),
		core.WithRepository(repo),
		core.WithCache(snapshots),
		core.WithPublisher(publishers),
		core.WithFeeAccount(domain.UserID(cfg.Fees.Account)),
	)
	if err := exchange.Restore(ctx); err != nil {
		return fmt.Errorf("restore orderbooks: %w", err)
	}

	go expireLoop(ctx, exchange, cfg.Engine.ExpiryInterval, log)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpapi.NewHTTPServer(exchange, log.Named("http"), httpapi.WithWebsocket(hub.Handle))
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.Int("pairs", len(registry.Symbols())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := registry.ValidateAll(); err != nil {
		log.Error("orderbook validation at shutdown", zap.Error(err))
	}
	return nil
}

// expireLoop sweeps GTD orders until ctx is done.
func expireLoop(ctx context.Context, x *core.Exchange, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if _, err := x.ExpireOrders(ctx, now.UTC()); err != nil {
				log.Error("expire orders", zap.Error(err))
			}
		}
	}
}
