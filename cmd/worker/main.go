package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aidecameron/gifcut/internal/infra/archive"
	"github.com/aidecameron/gifcut/internal/infra/config"
	"github.com/aidecameron/gifcut/internal/infra/email"
	"github.com/aidecameron/gifcut/internal/infra/gifsicle"
	"github.com/aidecameron/gifcut/internal/infra/gifski"
	"github.com/aidecameron/gifcut/internal/infra/metrics"
	miniostorage "github.com/aidecameron/gifcut/internal/infra/minio"
	"github.com/aidecameron/gifcut/internal/infra/postgres"
	"github.com/aidecameron/gifcut/internal/infra/rabbitmq"
	"github.com/aidecameron/gifcut/internal/infra/tracing"
	"github.com/aidecameron/gifcut/internal/usecase"
	"github.com/aidecameron/gifcut/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting gifcut-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		ResultBucket: cfg.MinIOResultBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)
	progressPub := rabbitmq.NewProgressPublisher(pub, log)

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	codec := gifsicle.NewCodec(cfg.GifsicleBin, log)
	encoder := gifski.NewEncoder(cfg.GifskiBin, log)
	zipper := archive.NewZipCreator()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	extractions := usecase.NewExtractionManager(log)

	// Use case
	uc := usecase.NewProcessGifUseCase(
		repo, storage, codec, encoder, zipper,
		statusPub, dlqPub, notifier,
		progressPub, extractions,
		log,
		usecase.ProcessGifConfig{
			TempDir:       cfg.TempDir,
			BatchSize:     cfg.DefaultBatchSize,
			MaxPreviewDim: cfg.MaxPreviewDim,
			PollInterval:  time.Duration(cfg.PollIntervalMs) * time.Millisecond,
			Throttle:      time.Duration(cfg.ThrottleMs) * time.Millisecond,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumers: one connection for tasks, one for extraction control so a
	// busy task worker never delays a pause or cancel.
	consumerCfg := rabbitmq.ConsumerConfig{
		URL:           cfg.RabbitMQURL,
		Exchange:      cfg.RabbitMQExchange,
		TaskQueue:     cfg.RabbitMQTaskQueue,
		StatusQueue:   cfg.RabbitMQStatusQueue,
		ProgressQueue: cfg.RabbitMQProgressQueue,
		ControlQueue:  cfg.RabbitMQControlQueue,
		DLQ:           cfg.RabbitMQDLQ,
		Prefetch:      cfg.RabbitMQPrefetch,
	}

	taskConsumer, err := rabbitmq.NewConsumer(consumerCfg, log)
	fatalOnErr(err, "create task consumer")

	controlConsumer, err := rabbitmq.NewConsumer(consumerCfg, log)
	fatalOnErr(err, "create control consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	go func() {
		if err := controlConsumer.Consume(ctx, cfg.RabbitMQControlQueue, 1, extractions.HandleControl); err != nil {
			log.Error("control consumer error", zap.Error(err))
		}
	}()

	log.Info("gifcut-worker started, consuming messages")

	if err := taskConsumer.Consume(ctx, cfg.RabbitMQTaskQueue, cfg.WorkerCount, uc.Execute); err != nil {
		log.Error("task consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	taskConsumer.Close()
	controlConsumer.Close()
	log.Info("gifcut-worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
