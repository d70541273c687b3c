package integration

import (
	"archive/zip"
	"context"
	"encoding/json"
	"image/png"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/archive"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/email"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/ffmpeg"
	miniostorage "github.com/fiapx/fiapx-boot-animator/internal/infra/minio"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/mpeg"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/pngenc"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/postgres"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/video"
	"github.com/fiapx/fiapx-boot-animator/internal/usecase"
	"github.com/fiapx/fiapx-boot-animator/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

const (
	exchange      = "fiapx.bootanim"
	requestQueue  = "bootanim.requests"
	statusQueue   = "bootanim.status"
	dlqQueue      = "bootanim.requests.dlq"
	uploadBucket  = "uploads"
	archiveBucket = "bootanimations"
)

type env struct {
	pool    *pgxpool.Pool
	rmqURL  string
	rmqConn *amqp.Connection
	minio   *miniogo.Client
	storage *miniostorage.Storage
}

func startEnv(t *testing.T, ctx context.Context) *env {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = minioContainer.Terminate(context.Background()) })

	endpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      endpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UploadBucket:  uploadBucket,
		ArchiveBucket: archiveBucket,
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	client, err := miniogo.New(endpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	conn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &env{pool: pool, rmqURL: rmqURL, rmqConn: conn, minio: client, storage: storage}
}

// startWorker wires the same graph as cmd/worker and consumes until the test ends.
func (e *env) startWorker(t *testing.T, ctx context.Context, log *zap.Logger) {
	t.Helper()

	pub, err := rabbitmq.NewPublisher(e.rmqConn, exchange)
	require.NoError(t, err)

	opener, err := video.NewOpener(video.DecoderAuto, ffmpeg.NewDecoder("ffmpeg", "ffprobe", log), mpeg.NewDecoder(log))
	require.NoError(t, err)
	converter := usecase.NewBuildBootAnimationUseCase(opener, pngenc.NewEncoder(png.DefaultCompression), archive.NewZipCreator(), log)

	uc := usecase.NewProcessJobUseCase(
		postgres.NewJobRepository(e.pool), e.storage, converter,
		rabbitmq.NewStatusPublisher(pub, statusQueue), rabbitmq.NewDLQPublisher(pub, dlqQueue),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
		log,
		usecase.ProcessJobConfig{TempDir: t.TempDir(), MaxRetries: 3},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         e.rmqURL,
		Queue:       requestQueue,
		Exchange:    exchange,
		DLQ:         dlqQueue,
		StatusQueue: statusQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)

	consumerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Start(consumerCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = consumer.Close()
	})

	time.Sleep(500 * time.Millisecond)
}

func (e *env) publish(t *testing.T, ctx context.Context, body []byte) {
	t.Helper()
	ch, err := e.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.PublishWithContext(ctx, exchange, requestQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}))
}

func TestBootAnimationEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e := startEnv(t, ctx)
	log, err := logger.New("debug")
	require.NoError(t, err)
	e.startWorker(t, ctx, log)

	videoPath := filepath.Join(t.TempDir(), "clip.mp4")
	gen := exec.Command("ffmpeg", "-v", "error", "-f", "lavfi", "-i", "testsrc=duration=2:size=64x48:rate=10",
		"-c:v", "mpeg4", "-y", videoPath)
	require.NoError(t, gen.Run())

	videoKey := "testuser/clip.mp4"
	_, err = e.minio.FPutObject(ctx, uploadBucket, videoKey, videoPath, miniogo.PutObjectOptions{ContentType: "video/mp4"})
	require.NoError(t, err)

	skip, seek := 3, 2
	req := entity.BootAnimationRequest{
		JobID:     uuid.New(),
		UserID:    "testuser",
		VideoKey:  videoKey,
		UserEmail: "test@test.local",
		Options:   entity.ConversionOptions{FrameSkip: &skip, FrameSeek: &seek},
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	statusCh, err := e.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()
	statusMsgs, err := statusCh.Consume(statusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	e.publish(t, ctx, body)

	var status entity.BootAnimationStatusMessage
	select {
	case d := <-statusMsgs:
		require.NoError(t, json.Unmarshal(d.Body, &status))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, req.JobID, status.JobID)
	require.Equal(t, entity.JobStatusCompleted, status.Status, status.ErrorMessage)
	assert.Equal(t, "testuser/bootanimation_"+req.JobID.String()+".zip", status.ArchiveKey)
	assert.Equal(t, 6, status.FrameCount, "20 frames, seek 2, keep 1 of 3")
	assert.Equal(t, 64, status.Width)
	assert.Equal(t, 48, status.Height)
	assert.Equal(t, 10, status.Framerate)

	archivePath := filepath.Join(t.TempDir(), "bootanimation.zip")
	require.NoError(t, e.minio.FGetObject(ctx, archiveBucket, status.ArchiveKey, archivePath, miniogo.GetObjectOptions{}))

	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 7)
	assert.Equal(t, "desc.txt", zr.File[0].Name)
	assert.Equal(t, "part0/boot_00000.png", zr.File[1].Name)
	for _, f := range zr.File {
		assert.Equal(t, zip.Store, f.Method, f.Name)
	}

	var dbStatus string
	var dbFrames, dbWidth int
	err = e.pool.QueryRow(ctx,
		"SELECT status, frame_count, width FROM bootanimation_jobs WHERE id=$1", req.JobID,
	).Scan(&dbStatus, &dbFrames, &dbWidth)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 6, dbFrames)
	assert.Equal(t, 64, dbWidth)
}

func TestBootAnimationMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	e := startEnv(t, ctx)
	e.startWorker(t, ctx, zap.NewNop())

	e.publish(t, ctx, []byte(`{invalid json`))
	time.Sleep(2 * time.Second)

	ch, err := e.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	msg, ok, err := ch.Get(dlqQueue, true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(msg.Body))
}

func TestBootAnimationInvalidOptionsGoToDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	e := startEnv(t, ctx)
	e.startWorker(t, ctx, zap.NewNop())

	_, err := e.minio.PutObject(ctx, uploadBucket, "u/clip.mp4", strings.NewReader("x"), 1, miniogo.PutObjectOptions{})
	require.NoError(t, err)

	zero := 0
	body, err := json.Marshal(entity.BootAnimationRequest{
		JobID:    uuid.New(),
		UserID:   "u",
		VideoKey: "u/clip.mp4",
		Options:  entity.ConversionOptions{NumFrames: &zero},
	})
	require.NoError(t, err)

	e.publish(t, ctx, body)
	time.Sleep(3 * time.Second)

	ch, err := e.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	msg, ok, err := ch.Get(dlqQueue, true)
	require.NoError(t, err)
	require.True(t, ok, "invalid options are not retried")
	assert.Contains(t, msg.Headers["x-dlq-reason"], "numframes")
}
