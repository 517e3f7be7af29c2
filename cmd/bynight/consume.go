package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/bynight/pkg/amqp"
	"github.com/Ramsey-B/bynight/pkg/kafka"
	"github.com/Ramsey-B/bynight/pkg/routes/health"
	"github.com/Ramsey-B/bynight/pkg/startup"
)

func newConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume source batches from the configured intake until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			return a.consume(ctx)
		},
	}
}

func (a *app) consume(ctx context.Context) error {
	s := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)

	s.AddDependency(&startup.Func{Name: "database", OnStart: a.connectDatabase})
	s.AddDependency(&startup.Func{Name: "catalog", OnStart: a.loadCatalog})

	importerDeps := []string{"database", "catalog"}
	if a.cfg.RedisEnabled {
		s.AddDependency(&startup.Func{Name: "redis", OnStart: a.connectRedis})
		importerDeps = append(importerDeps, "redis")
	}
	s.AddDependency(&startup.Func{
		Name:     "importer",
		Requires: importerDeps,
		OnStart:  func(_ context.Context) error { return a.buildImporter(true) },
	})

	var checker *health.Checker
	var server *echo.Echo
	s.AddDependency(&startup.Func{
		Name:     "server",
		Requires: []string{"database"},
		OnStart: func(_ context.Context) error {
			if a.redis != nil {
				checker = health.NewChecker(a.db, a.redis, a.cfg.Version)
			} else {
				checker = health.NewChecker(a.db, nil, a.cfg.Version)
			}
			server = a.newServer(checker)
			a.startServer(server)
			return nil
		},
		OnStop: func(ctx context.Context) error { return stopServer(ctx, server) },
	})

	intake, err := a.intake(func(name string, p interface{ Ping() error }) { checker.AddCheck(name, p) })
	if err != nil {
		return err
	}
	s.AddDependency(intake)

	if err := s.Start(ctx); err != nil {
		return err
	}
	checker.SetReady(true)
	a.logger.WithField("transport", a.cfg.IntakeTransport).Info("Importer ready")

	<-ctx.Done()
	a.logger.Info("Shutting down")
	checker.SetReady(false)

	err = s.Stop(context.Background())
	a.monitor.Report(context.Background())
	return err
}

// intake builds the startup dependency of the configured transport.
func (a *app) intake(register func(name string, p interface{ Ping() error })) (*startup.Func, error) {
	switch a.cfg.IntakeTransport {
	case "kafka":
		var consumer *kafka.Consumer
		return &startup.Func{
			Name:     "intake",
			Requires: []string{"importer", "server"},
			OnStart: func(ctx context.Context) error {
				consumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       a.cfg.KafkaBrokers,
					Topic:         a.cfg.KafkaInputTopic,
					ConsumerGroup: a.cfg.KafkaConsumerGroup,
					BatchSize:     a.cfg.IntakeBatchSize,
					BatchTimeout:  a.cfg.IntakeBatchTimeout,
				}, a.logger, a.decoder(), a.handleBatch)
				register("kafka", consumer)
				return consumer.Start(ctx)
			},
			OnStop: func(_ context.Context) error { return consumer.Stop() },
		}, nil

	case "amqp":
		var (
			consumer *amqp.Consumer
			cancel   context.CancelFunc
			done     chan struct{}
		)
		return &startup.Func{
			Name:     "intake",
			Requires: []string{"importer", "server"},
			OnStart: func(ctx context.Context) error {
				var err error
				consumer, err = amqp.NewConsumer(amqp.ConsumerConfig{
					URL:          a.cfg.AMQPURL,
					Queue:        a.cfg.AMQPQueue,
					BatchSize:    a.cfg.IntakeBatchSize,
					BatchTimeout: a.cfg.IntakeBatchTimeout,
				}, a.logger, a.decoder(), a.handleBatch)
				if err != nil {
					return err
				}
				register("amqp", consumer)

				var runCtx context.Context
				runCtx, cancel = context.WithCancel(ctx)
				done = make(chan struct{})
				go func() {
					defer close(done)
					if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
						a.logger.WithError(err).Error("RabbitMQ consumer stopped")
					}
				}()
				return nil
			},
			OnStop: func(_ context.Context) error {
				cancel()
				<-done
				return consumer.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported INTAKE_TRANSPORT %q (kafka or amqp)", a.cfg.IntakeTransport)
	}
}
