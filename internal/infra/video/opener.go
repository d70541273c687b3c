package video

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/port"
)

const (
	DecoderAuto   = "auto"
	DecoderFFmpeg = "ffmpeg"
	DecoderMPEG   = "mpeg"
)

// Auto routes MPEG-1 program streams to the in-process decoder and everything
// else to ffmpeg.
type Auto struct {
	ffmpeg port.VideoOpener
	mpeg   port.VideoOpener
}

func (a *Auto) Open(ctx context.Context, path string) (port.VideoSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mpg", ".mpeg":
		return a.mpeg.Open(ctx, path)
	default:
		return a.ffmpeg.Open(ctx, path)
	}
}

// NewOpener picks the decoder named by kind.
func NewOpener(kind string, ffmpeg, mpeg port.VideoOpener) (port.VideoOpener, error) {
	switch strings.ToLower(kind) {
	case "", DecoderAuto:
		return &Auto{ffmpeg: ffmpeg, mpeg: mpeg}, nil
	case DecoderFFmpeg:
		return ffmpeg, nil
	case DecoderMPEG:
		return mpeg, nil
	default:
		return nil, fmt.Errorf("unknown decoder %q (want auto, ffmpeg or mpeg)", kind)
	}
}
