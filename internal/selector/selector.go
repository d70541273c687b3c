package selector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
	"github.com/fiapx/fiapx-boot-animator/internal/domain/port"
	"go.uber.org/zap"
)

// Selector walks a video source and yields the frames to keep: it discards
// FrameSeek frames, then keeps every FrameSkip-th frame until the stream ends
// or MaxFrames frames were kept. A Selector cannot be restarted.
type Selector struct {
	src    port.VideoSource
	params entity.Params
	logger *zap.Logger

	seeked        bool
	seekExhausted bool
	done          bool
	countdown     int
	remaining     int
	kept          int
	decoded       int
}

func New(src port.VideoSource, params entity.Params, logger *zap.Logger) *Selector {
	return &Selector{
		src:       src,
		params:    params,
		logger:    logger,
		countdown: params.FrameSkip,
		remaining: params.MaxFrames,
	}
}

// Next returns the next kept frame, or io.EOF when the sequence is over.
// Any other error comes from the decoder.
func (s *Selector) Next(ctx context.Context) (entity.Frame, error) {
	if s.done {
		return entity.Frame{}, io.EOF
	}

	if !s.seeked {
		s.seeked = true
		if err := s.seek(ctx); err != nil {
			s.done = true
			return entity.Frame{}, err
		}
	}

	for {
		img, err := s.read(ctx)
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) && s.decoded == s.params.FrameSeek {
				s.markSeekExhausted()
			}
			return entity.Frame{}, err
		}

		s.countdown--
		if s.countdown != 0 {
			continue
		}
		s.countdown = s.params.FrameSkip

		frame := entity.Frame{
			Index:       s.kept,
			SourceIndex: s.decoded - 1,
			Image:       img,
		}
		s.kept++

		if s.params.Limited() {
			s.remaining--
			if s.remaining == 0 {
				s.done = true
			}
		}
		return frame, nil
	}
}

func (s *Selector) seek(ctx context.Context) error {
	for i := 0; i < s.params.FrameSeek; i++ {
		if _, err := s.read(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				s.markSeekExhausted()
			}
			return err
		}
		s.logger.Debug("skipping frame", zap.Int("source_index", s.decoded-1))
	}
	return nil
}

// markSeekExhausted records that no frame was left once FrameSeek frames had been
// asked for, whether the stream ended during the seek or right after it.
func (s *Selector) markSeekExhausted() {
	s.seekExhausted = true
	s.logger.Info("stream ended while seeking",
		zap.Int("frameseek", s.params.FrameSeek),
		zap.Int("decoded", s.decoded),
	)
}

func (s *Selector) read(ctx context.Context) (image.Image, error) {
	img, err := s.src.NextFrame(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode frame %d: %w", s.decoded, err)
	}
	s.decoded++
	return img, nil
}

// SeekExhausted reports whether the stream ended before any frame past FrameSeek
// was decoded.
func (s *Selector) SeekExhausted() bool {
	return s.seekExhausted
}

func (s *Selector) Kept() int {
	return s.kept
}

func (s *Selector) Decoded() int {
	return s.decoded
}
