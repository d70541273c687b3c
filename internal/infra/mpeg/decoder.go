package mpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
	"github.com/fiapx/fiapx-boot-animator/internal/domain/port"
	"github.com/gen2brain/mpeg"
	"go.uber.org/zap"
)

// maxEmptyDecodes bounds how often DecodeVideo may return no frame before the
// stream is considered stalled.
const maxEmptyDecodes = 1 << 16

var ErrStalled = errors.New("mpeg decoder stalled")

// Decoder decodes MPEG-1 program streams in process, without ffmpeg.
type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger}
}

func (d *Decoder) Open(_ context.Context, videoPath string) (port.VideoSource, error) {
	file, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	mpg, err := mpeg.New(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open mpeg stream: %w", err)
	}

	info := entity.VideoInfo{
		Width:     mpg.Width(),
		Height:    mpg.Height(),
		FrameRate: mpg.Framerate(),
	}
	if info.Width <= 0 || info.Height <= 0 {
		file.Close()
		return nil, fmt.Errorf("open mpeg stream: no video headers in %s", videoPath)
	}

	d.logger.Debug("mpeg decoder opened",
		zap.String("input", videoPath),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FrameRate),
	)

	return &stream{file: file, mpg: mpg, info: info}, nil
}

type stream struct {
	file io.Closer
	mpg  *mpeg.MPEG
	info entity.VideoInfo
}

func (s *stream) Info() entity.VideoInfo {
	return s.info
}

func (s *stream) NextFrame(ctx context.Context) (image.Image, error) {
	for i := 0; i < maxEmptyDecodes; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if frame := s.mpg.DecodeVideo(); frame != nil {
			return frame.YCbCr(), nil
		}
		if s.mpg.HasEnded() {
			return nil, io.EOF
		}
	}
	return nil, ErrStalled
}

func (s *stream) Close() error {
	return s.file.Close()
}
