package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/exchangerate"
	"storefront/internal/storage"
	"storefront/internal/store"
)

type app struct {
	cfg       config.Config
	client    *mongo.Client
	db        *mongo.Database
	store     *store.Mongo
	images    *storage.Local
	redis     *redis.Client
	publisher events.Publisher
	rates     *exchangerate.Service
	carts     *cart.Service
	checkout  *checkout.Workflow
}

// bootstrap wires every service. With explicitRefresh set, loading the stored
// rate never starts a background fetch of its own.
func bootstrap(ctx context.Context, explicitRefresh bool) (*app, error) {
	cfg := config.Load()

	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(cfg.DBName)
	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureIndexes(db); err != nil {
		log.Printf("[DB] [WARN] index warning: %v", err)
	}

	a := &app{
		cfg:    cfg,
		client: client,
		db:     db,
		store:  store.New(db),
		images: storage.NewLocal(cfg.PublicDir, cfg.PublicBaseURL),
	}

	var cache cart.Cache = cart.NoCache{}
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			log.Printf("[CART] [WARN] redis unreachable at %s, cache disabled: %v", cfg.RedisAddr, err)
			_ = a.redis.Close()
			a.redis = nil
		} else {
			cache = cart.NewRedisCache(a.redis, cfg.CartCacheTTL)
		}
	}

	a.publisher = events.Noop{}
	if cfg.RabbitMQURL != "" {
		rabbit, err := events.NewRabbit(cfg.RabbitMQURL, cfg.OrderExchange)
		if err != nil {
			log.Printf("[EVENTS] [WARN] rabbitmq unavailable, events disabled: %v", err)
		} else {
			a.publisher = rabbit
		}
	}

	sources, err := exchangerate.BuildSources(cfg.Rate, &http.Client{Timeout: cfg.Rate.HTTPTimeout})
	if err != nil {
		a.Close()
		return nil, err
	}
	rateOpts := exchangerate.OptionsFromConfig(cfg.Rate)
	rateOpts.SkipLoadRefresh = explicitRefresh
	a.rates = exchangerate.New(a.store, sources, rateOpts)
	if err := a.rates.Load(ctx); err != nil {
		log.Printf("[RATE] [WARN] starting with default rate: %v", err)
	}

	a.carts = cart.NewService(a.store, a.store, cache)
	a.checkout = checkout.NewWorkflow(a.store, a.images, a.rates, a.carts, a.publisher, checkout.Options{
		Compensate: cfg.CompensateSaga,
	})
	return a, nil
}

// Serve runs the HTTP server and the scheduled rate refresh until ctx is done.
func (a *app) Serve(ctx context.Context) error {
	go a.rates.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] [INFO] listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("[HTTP] [INFO] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) Close() {
	if a.rates != nil {
		a.rates.Wait()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Printf("[EVENTS] [WARN] close: %v", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		log.Printf("[DB] [WARN] disconnect: %v", err)
	}
}
