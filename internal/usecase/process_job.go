package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
	"github.com/fiapx/fiapx-boot-animator/internal/domain/port"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Converter runs one conversion. BuildBootAnimationUseCase satisfies it.
type Converter interface {
	Execute(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

type ProcessJobUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	converter Converter
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type ProcessJobConfig struct {
	TempDir    string
	MaxRetries int
}

func NewProcessJobUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	converter Converter,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessJobConfig,
) *ProcessJobUseCase {
	return &ProcessJobUseCase{
		repo:      repo,
		storage:   storage,
		converter: converter,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

// ArchiveKey is the object key of a finished boot animation.
func ArchiveKey(userID, jobID string) string {
	return fmt.Sprintf("%s/bootanimation_%s.zip", userID, jobID)
}

// Execute handles one request delivery. A nil error acks the delivery, a
// non-nil error asks the consumer to requeue it.
func (uc *ProcessJobUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessJobUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.BootAnimationRequest
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, port.ErrJobNotFound):
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("load job: %w", err)
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *ProcessJobUseCase) runPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.BootAnimationRequest,
	rawMsg []byte,
	log *zap.Logger,
) error {
	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "input"+inputExt(msg.VideoKey))
	err := timedStage(ctx, "download", func(ctx context.Context) error {
		return uc.storage.DownloadVideo(ctx, msg.VideoKey, videoPath)
	})
	if err != nil {
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}

	archivePath := filepath.Join(workDir, DefaultOutputPath)
	result, err := uc.converter.Execute(ctx, BuildRequest{
		InputPath:  videoPath,
		OutputPath: archivePath,
		StagingDir: filepath.Join(workDir, "stage"),
		Options:    msg.Options.ToOptions(),
	})
	switch {
	case errors.Is(err, ErrInvalidConfig):
		log.Warn("conversion rejected", zap.Error(err))
		job.MarkExhausted()
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "convert: "+err.Error(), log)
	case err != nil:
		log.Error("conversion failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "convert: "+err.Error(), log)
	case result.SeekExhausted:
		job.MarkExhausted()
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg,
			fmt.Sprintf("video has no frames after frame_seek %d", result.Params.FrameSeek), log)
	}

	archiveKey := ArchiveKey(msg.UserID, job.ID.String())
	err = timedStage(ctx, "upload", func(ctx context.Context) error {
		return uc.uploadArchive(ctx, archiveKey, archivePath)
	})
	if err != nil {
		log.Error("archive upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_archive: "+err.Error(), log)
	}

	job.MarkCompleted(archiveKey, result.FramesKept, result.Params)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)
	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()

	log.Info("job completed successfully",
		zap.Int("frame_count", result.FramesKept),
		zap.String("archive_key", archiveKey),
	)
	return nil
}

func (uc *ProcessJobUseCase) uploadArchive(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	return uc.storage.UploadArchive(ctx, key, f, st.Size())
}

func (uc *ProcessJobUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.BootAnimationRequest,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessJobUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.BootAnimationRequest,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg); err != nil {
		log.Error("failed to publish to DLQ", zap.Error(err))
	}

	uc.publishStatus(ctx, job, log)
	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}
	return nil
}

func (uc *ProcessJobUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.BootAnimationStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		ArchiveKey:   job.ArchiveKey,
		FrameCount:   job.FrameCount,
		Width:        job.Width,
		Height:       job.Height,
		Framerate:    job.Framerate,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

// inputExt keeps the upload's extension so decoder selection by name still works.
func inputExt(videoKey string) string {
	ext := strings.ToLower(filepath.Ext(videoKey))
	if ext == "" || len(ext) > 6 {
		return ".mp4"
	}
	return ext
}
