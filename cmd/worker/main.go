package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-boot-animator/internal/infra/archive"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/config"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/email"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-boot-animator/internal/infra/minio"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/mpeg"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/pngenc"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/postgres"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/tracing"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/video"
	"github.com/fiapx/fiapx-boot-animator/internal/usecase"
	"github.com/fiapx/fiapx-boot-animator/pkg/logger"
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

	log.Info("starting fiapx-boot-animator worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing is optional
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	fatalOnErr(postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath), "run migrations")

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	opener, err := video.NewOpener(cfg.Decoder,
		ffmpeg.NewDecoder(cfg.FFmpegPath, cfg.FFprobePath, log),
		mpeg.NewDecoder(log),
	)
	fatalOnErr(err, "select video decoder")

	level, err := pngenc.ParseCompression(cfg.PNGCompression)
	fatalOnErr(err, "parse png compression")

	converter := usecase.NewBuildBootAnimationUseCase(opener, pngenc.NewEncoder(level), archive.NewZipCreator(), log)

	repo := postgres.NewJobRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewProcessJobUseCase(
		repo, storage, converter,
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessJobConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
		},
	)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("worker started, consuming requests",
		zap.String("queue", cfg.RabbitMQRequestQueue),
		zap.String("decoder", cfg.Decoder),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-boot-animator worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
