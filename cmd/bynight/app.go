package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/bynight/config"
	"github.com/Ramsey-B/bynight/internal/repositories/event"
	"github.com/Ramsey-B/bynight/internal/repositories/location"
	"github.com/Ramsey-B/bynight/internal/repositories/place"
	"github.com/Ramsey-B/bynight/pkg/database"
	"github.com/Ramsey-B/bynight/pkg/importer"
	"github.com/Ramsey-B/bynight/pkg/kafka"
	"github.com/Ramsey-B/bynight/pkg/matching"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/parser"
	bnredis "github.com/Ramsey-B/bynight/pkg/redis"
	"github.com/Ramsey-B/bynight/pkg/tracing"
	"github.com/Ramsey-B/bynight/pkg/validation"
)

// app holds the dependencies shared by the commands. Each command connects only what it needs.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	zap    *zap.Logger

	db       *database.DatabaseInstance
	redis    *bnredis.Client
	catalog  *parser.Catalog
	parser   *parser.Parser
	monitor  *importer.StepMonitor
	producer *kafka.Producer
	importer *importer.Importer

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:  cfg.AppName,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		OTLPProtocol: cfg.TracingOTLPProtocol,
		OTLPInsecure: cfg.TracingOTLPInsecure,
		SampleRatio:  cfg.TracingSampleRatio,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:             cfg,
		logger:          logger,
		zap:             zapLogger,
		parser:          parser.NewParser(logger),
		monitor:         importer.NewStepMonitor(logger),
		shutdownTracing: shutdown,
	}, nil
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, database.Config{
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *app) connectRedis(_ context.Context) error {
	client, err := bnredis.NewClient(bnredis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	return nil
}

func (a *app) loadCatalog(_ context.Context) error {
	catalog, err := parser.LoadCatalog(a.cfg.SourcesFile)
	if err != nil {
		return err
	}
	for _, name := range catalog.Names() {
		def, _ := catalog.Get(name)
		if err := a.parser.Validate(def); err != nil {
			return err
		}
	}
	a.catalog = catalog
	a.logger.WithField("sources", catalog.Names()).Infof("Loaded %d source definitions", len(catalog.Names()))
	return nil
}

// buildImporter wires the importer over the connected stores. publish adds the outcome producer.
func (a *app) buildImporter(publish bool) error {
	loc, err := a.cfg.TimeLocation()
	if err != nil {
		return fmt.Errorf("invalid IMPORT_TIMEZONE %q: %w", a.cfg.Timezone, err)
	}

	validator := validation.NewValidator(validation.Config{
		MinNameLength:        a.cfg.MinNameLength,
		MaxNameLength:        a.cfg.MaxNameLength,
		MaxDescriptionLength: a.cfg.MaxDescriptionLength,
		SpamKeywords:         a.cfg.SpamKeywords,
	})

	matcherCfg := matching.DefaultPlaceMatcherConfig()
	matcherCfg.Threshold = a.cfg.PlaceMatchThreshold

	var locker importer.Locker
	if a.redis != nil {
		locker = bnredis.NewLocker(a.redis, "")
	}

	var publisher importer.Publisher
	if publish && a.cfg.OutcomesEnabled {
		a.producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      a.cfg.KafkaBrokers,
			Topic:        a.cfg.KafkaOutputTopic,
			BatchSize:    a.cfg.KafkaBatchSize,
			BatchTimeout: a.cfg.KafkaBatchTimeoutDuration(),
			RequiredAcks: a.cfg.KafkaRequiredAcks,
			Compression:  a.cfg.KafkaCompression,
		}, a.logger)
		publisher = a.producer
	}

	a.importer = importer.NewImporter(
		a.logger,
		place.NewRepository(a.db, a.logger),
		event.NewRepository(a.db, a.logger),
		location.NewRepository(a.db, a.logger),
		validator,
		matching.NewPlaceMatcher(matcherCfg),
		locker,
		publisher,
		a.monitor,
		importer.Config{
			LockTTL:        a.cfg.LockTTL,
			LockWait:       a.cfg.LockWait,
			Location:       loc,
			DefaultCountry: a.cfg.DefaultCountry,
			EventURLBase:   a.cfg.EventURLBase,
		},
	)
	return nil
}

func (a *app) decoder() *kafka.Decoder {
	return kafka.NewDecoder(a.catalog, a.parser, a.cfg.DefaultSource)
}

// handleBatch is the transports' batch handler.
func (a *app) handleBatch(ctx context.Context, source string, records []models.RawRecord) error {
	_, err := a.importer.HandleBatch(ctx, source, records)
	return err
}

func (a *app) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close producer")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.WithError(err).Warn("Failed to flush traces")
		}
	}
	_ = a.zap.Sync()
}
