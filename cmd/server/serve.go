package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swapkv/internal/api"
	"swapkv/internal/config"
	"swapkv/internal/engine"
	"swapkv/internal/events"
	"swapkv/internal/journal"
	"swapkv/internal/logging"
	"swapkv/internal/service"
)

func serve(ctx context.Context, conf config.Config) error {
	logger, err := logging.New(conf.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []events.Sink
	if conf.Journal.Path != "" {
		j, err := journal.Open(context.Background(), conf.Journal, journal.WithLogger(logger.Named("journal")))
		if err != nil {
			return err
		}
		defer j.Close()
		sinks = append(sinks, j)
	}
	if len(conf.Kafka.Brokers) > 0 {
		b, err := events.NewBroadcaster(conf.Kafka, events.WithBroadcasterLogger(logger.Named("kafka")))
		if err != nil {
			return err
		}
		defer func() {
			if err := b.Close(); err != nil {
				logger.Warn("close kafka broadcaster", zap.Error(err))
			}
		}()
		sinks = append(sinks, b)
	}

	store := engine.New(engine.WithConfig(conf.Store), engine.WithLogger(logger.Named("engine")))
	svc := service.New(store,
		service.WithConfig(conf.Janitor),
		service.WithLogger(logger.Named("service")),
		service.WithSink(events.Combine(sinks...)),
	)
	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           api.NewServer(svc, api.WithConfig(conf.HTTP), api.WithLogger(logger.Named("http"))),
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("starting server", zap.String("listen", conf.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return svc.Run(ctx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", conf.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
