package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promopulse/coupon-service/internal/config"
	httphandler "github.com/promopulse/coupon-service/internal/delivery/http"
	"github.com/promopulse/coupon-service/internal/delivery/kafka"
	"github.com/promopulse/coupon-service/internal/geoip"
	"github.com/promopulse/coupon-service/internal/repository"
	"github.com/promopulse/coupon-service/internal/usecase"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg)

	pool, err := initDB(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(pool, "db/migrations", logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	store := repository.New(pool)
	corrStore := repository.NewCorrelationStore(pool)
	geo := geoip.NewClient(cfg.IPAPIBaseURL, cfg.LookupTimeout())
	service := usecase.NewCouponService(store, geo, logger)

	var gateway usecase.CouponGateway
	var consumerClient, producerClient, responseClient *kgo.Client

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EventDrivenEnabled == "true" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")

		consumerClient, err = newConsumerClient(
			brokers,
			cfg.KafkaClientID,
			cfg.KafkaGroupID,
			kafka.TopicCreateRequest,
			kafka.TopicUseRequest,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka consumer client")
		}

		if err := kafka.EnsureTopics(ctx, consumerClient, cfg); err != nil {
			logger.Warn().Err(err).Msg("failed to ensure topics")
		}

		producerClient, err = kgo.NewClient(
			kgo.SeedBrokers(brokers...),
			kgo.ClientID(cfg.KafkaClientID+"-gateway"),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka producer client")
		}

		kgateway := kafka.NewGateway(cfg, producerClient, corrStore, logger)
		gateway = kgateway

		consumer := kafka.NewConsumer(cfg, consumerClient, service, logger)
		go consumer.Start(ctx)

		responseClient, err = newConsumerClient(
			brokers,
			cfg.KafkaClientID+"-resp",
			cfg.KafkaResponseGroupID,
			kafka.TopicCreateResponse,
			kafka.TopicUseResponse,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka response client")
		}

		startResponsePoller(ctx, responseClient, kgateway, logger)
	} else {
		gateway = kafka.NewDirectGateway(cfg, service, corrStore)
	}

	startReaper(ctx, cfg, corrStore, logger)

	handler := httphandler.NewHandler(gateway, logger)

	r := chi.NewRouter()
	r.Use(httphandler.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler.Routes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("port", cfg.AppPort).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}

	if consumerClient != nil {
		consumerClient.Close()
	}
	if producerClient != nil {
		producerClient.Close()
	}
	if responseClient != nil {
		responseClient.Close()
	}

	wg.Wait()
	logger.Info().Msg("shutdown complete")
}

func initDB(cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

func newConsumerClient(brokers []string, clientID, groupID string, topics ...string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
}

// startResponsePoller feeds terminal response events into the correlation
// store. Any instance may consume any response; the store is shared, so the
// submitting instance's poll loop still observes it.
func startResponsePoller(ctx context.Context, client *kgo.Client, gateway *kafka.Gateway, logger zerolog.Logger) {
	go func() {
		for {
			fetches := client.PollFetches(ctx)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				return
			}
			iter := fetches.RecordIter()
			for !iter.Done() {
				record := iter.Next()
				gateway.HandleResponse(ctx, record)
			}
			if err := client.CommitRecords(ctx, fetches.Records()...); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("failed to commit response records")
			}
		}
	}()
}

// startReaper reclaims expired correlation records on an interval. Reads
// already filter on expires_at, so this only bounds table growth.
func startReaper(ctx context.Context, cfg *config.Config, store repository.CorrelationStore, logger zerolog.Logger) {
	go func() {
		ticker := time.NewTicker(cfg.Reaper())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := store.DeleteExpired(ctx)
				if err != nil {
					logger.Error().Err(err).Msg("failed to reap expired correlation records")
					continue
				}
				if deleted > 0 {
					logger.Info().Int64("deleted", deleted).Msg("reaped expired correlation records")
				}
			}
		}
	}()
}
