package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
	"github.com/fiapx/fiapx-boot-animator/internal/domain/port"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/metrics"
	"github.com/fiapx/fiapx-boot-animator/internal/selector"
	"github.com/fiapx/fiapx-boot-animator/internal/staging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const DefaultOutputPath = "bootanimation.zip"

type BuildBootAnimationUseCase struct {
	opener   port.VideoOpener
	encoder  port.FrameEncoder
	archiver port.Archiver
	logger   *zap.Logger
}

type BuildRequest struct {
	InputPath  string
	OutputPath string
	StagingDir string
	Options    entity.Options
}

type BuildResult struct {
	Params        entity.Params
	FramesDecoded int
	FramesKept    int
	SeekExhausted bool
	Entries       []string
	ArchivePath   string
}

func NewBuildBootAnimationUseCase(
	opener port.VideoOpener,
	encoder port.FrameEncoder,
	archiver port.Archiver,
	logger *zap.Logger,
) *BuildBootAnimationUseCase {
	return &BuildBootAnimationUseCase{
		opener:   opener,
		encoder:  encoder,
		archiver: archiver,
		logger:   logger,
	}
}

// Execute converts one video into a boot animation archive. When the stream
// ends while seeking, the staging tree is left as is, no archive is written and
// the result reports SeekExhausted with a nil error.
func (uc *BuildBootAnimationUseCase) Execute(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "BuildBootAnimationUseCase.Execute")
	defer span.End()

	if req.InputPath == "" {
		return nil, fmt.Errorf("%w: input path is required", ErrInvalidConfig)
	}
	if err := req.Options.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if req.OutputPath == "" {
		req.OutputPath = DefaultOutputPath
	}
	if req.StagingDir == "" {
		req.StagingDir = "."
	}

	log := uc.logger.With(zap.String("input", req.InputPath), zap.String("output", req.OutputPath))

	src, err := uc.opener.Open(ctx, req.InputPath)
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues("open_failed").Inc()
		return nil, fmt.Errorf("%w %s: %w", ErrOpenInput, req.InputPath, err)
	}
	defer src.Close()

	params, err := entity.Resolve(req.Options, src.Info())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	span.SetAttributes(
		attribute.Int("params.width", params.Width),
		attribute.Int("params.height", params.Height),
		attribute.Int("params.framerate", params.Framerate),
		attribute.Int("params.frameskip", params.FrameSkip),
		attribute.Int("params.frameseek", params.FrameSeek),
		attribute.Int("params.maxframes", params.MaxFrames),
	)
	log.Info("resolved parameters",
		zap.Int("width", params.Width),
		zap.Int("height", params.Height),
		zap.Int("framerate", params.Framerate),
		zap.Bool("loop", params.Loop),
		zap.Int("frameskip", params.FrameSkip),
		zap.Int("frameseek", params.FrameSeek),
		zap.Int("maxframes", params.MaxFrames),
	)

	tree := staging.New(req.StagingDir, uc.encoder)
	if err := tree.Prepare(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStagingDir, err)
	}
	if err := tree.WriteDescriptor(entity.NewDescriptor(params)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescriptorWrite, err)
	}

	result := &BuildResult{Params: params}

	stageStart := time.Now()
	sel := selector.New(src, params, log)
	err = uc.stageFrames(ctx, sel, tree, log)
	result.FramesDecoded = sel.Decoded()
	result.FramesKept = tree.Frames()
	result.SeekExhausted = sel.SeekExhausted()
	result.Entries = tree.Entries()
	metrics.FramesDecodedTotal.Add(float64(result.FramesDecoded))
	metrics.FramesKeptTotal.Add(float64(result.FramesKept))
	metrics.StageDuration.WithLabelValues("stage").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues("failed").Inc()
		return result, err
	}

	if result.SeekExhausted {
		log.Warn("ran out of frames while seeking, no archive written",
			zap.Int("frameseek", params.FrameSeek),
			zap.Int("decoded", result.FramesDecoded),
		)
		metrics.ConversionsTotal.WithLabelValues("seek_exhausted").Inc()
		return result, nil
	}

	err = timedStage(ctx, "archive", func(ctx context.Context) error {
		return uc.archiver.CreateArchive(ctx, tree.Root(), result.Entries, req.OutputPath)
	})
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues("failed").Inc()
		return result, fmt.Errorf("%w %s: %w", ErrArchive, req.OutputPath, err)
	}
	metrics.ConversionsTotal.WithLabelValues("completed").Inc()

	result.ArchivePath = req.OutputPath
	log.Info("boot animation written",
		zap.Int("frames_kept", result.FramesKept),
		zap.Int("frames_decoded", result.FramesDecoded),
	)
	return result, nil
}

// stageFrames writes each kept frame before asking the decoder for the next one.
func (uc *BuildBootAnimationUseCase) stageFrames(ctx context.Context, sel *selector.Selector, tree *staging.Tree, log *zap.Logger) error {
	_, span := otel.Tracer("usecase").Start(ctx, "stage_frames")
	defer span.End()

	for {
		frame, err := sel.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			log.Error("decode failed", zap.Error(err))
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}

		name, err := tree.WriteFrame(frame)
		if err != nil {
			log.Error("could not save frame", zap.Int("index", frame.Index), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrFrameWrite, err)
		}
		log.Debug("frame staged",
			zap.String("entry", name),
			zap.Int("source_index", frame.SourceIndex),
		)
	}
}
