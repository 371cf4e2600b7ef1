package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"leadcapture/cmd/buildCFG"
	"leadcapture/internal/api/api"
	rabbitReader "leadcapture/internal/consumerWorker"
	"leadcapture/internal/export"
	"leadcapture/internal/guard"
	"leadcapture/internal/notify"
	"leadcapture/internal/rabbit"
	"leadcapture/internal/registry"
	"leadcapture/internal/repo"
	"leadcapture/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "LEADCAPTURE"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)
	migrationCfg := buildCFG.BuildMigrationConfig(cfg)

	var repository repo.Repository
	switch serverCfg.Storage {
	case buildCFG.StorageMemory:
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		repository = repo.NewMemoryRepository()
	default:
		masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build DB config")
		}
		db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
		if err != nil {
			log.Fatal().Msgf("failed to connect to DB: %v", err)
		}
		repository, err = repo.NewRepository(db, &log)
		if err != nil {
			log.Fatal().Msgf("failed to initialize repository: %v", err)
		}
		log.Info().Msg("Database connected successfully")
	}

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	migrationPath := filepath.Join(cwd, migrationCfg.Dir)
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	var eventStore repo.EventStore = repository
	redisCfg := buildCFG.BuildRedisConfig(cfg)
	if redisCfg.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, event cache disabled")
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			eventStore = repo.NewCachedEvents(repository, rdb, redisCfg.TTL, redisCfg.Prefix, &log)
			log.Info().Str("addr", redisCfg.Addr).Msg("event cache enabled")
		}
	}

	events := registry.New(eventStore, repository, serverCfg.PublicBaseURL, &log)

	notifyCfg := buildCFG.BuildNotifyConfig(cfg, &log)
	sender := notify.NewHTTPSender(notifyCfg.URL, notifyCfg.Token, notifyCfg.Timeout)
	dispatcher := notify.NewDispatcher(sender, notifyCfg.Dispatcher, &log)

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	inline := notify.NewInline(dispatcher)
	var (
		notifier guard.Notifier = inline
		rmq      rabbit.Rabbiter
		reader   *rabbitReader.Reader
	)
	if rabbitCfg.Enabled {
		rmq, err = rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.NotificationQueue, rabbitCfg.FailureQueue)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()

		notifier = notify.NewQueue(rmq, rabbitCfg.NotificationQueue)
		reader = rabbitReader.NewReader(rmq, rabbitCfg.NotificationQueue, repository, events, dispatcher)
		reader.Start(workerCtx)
	}

	forwardFailure := func(f notify.Failure) {
		if rmq == nil {
			return
		}
		body, err := json.Marshal(f)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rmq.Publish(ctx, rabbitCfg.FailureQueue, body); err != nil {
			log.Error().Err(err).Str("event_id", f.EventID).Msg("failed to report notification failure")
		}
	}

	stopFailures := make(chan struct{})
	failuresDone := make(chan struct{})
	go func() {
		defer close(failuresDone)
		for {
			select {
			case f := <-dispatcher.Failures():
				forwardFailure(f)
			case <-stopFailures:
				for {
					select {
					case f := <-dispatcher.Failures():
						forwardFailure(f)
					default:
						return
					}
				}
			}
		}
	}()

	registrations := guard.New(events, repository, notifier, &log)
	exporter := export.NewService(events, repository, serverCfg.Location)

	serviceInstance := service.NewService(events, registrations, exporter, &log)
	app := api.NewRouters(&api.Routers{Service: serviceInstance, AdminSecret: serverCfg.AdminSecret})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}
	inline.Wait()
	close(stopFailures)
	<-failuresDone

	if migrationCfg.RollbackOnShutdown {
		log.Info().Msg("Rolling back migrations...")
		if err := repository.MigrateDown(migrationPath); err != nil {
			log.Error().Msgf("failed to rollback migrations: %v", err)
		}
	}
	log.Info().Msg("Shutdown complete")
}
