package port

import (
	"context"
	"image"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
)

// VideoSource yields decoded frames in stream order. NextFrame returns io.EOF
// once the stream is exhausted. The returned image is only valid until the
// next call.
type VideoSource interface {
	Info() entity.VideoInfo
	NextFrame(ctx context.Context) (image.Image, error)
	Close() error
}

type VideoOpener interface {
	Open(ctx context.Context, path string) (VideoSource, error)
}
