package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
	"github.com/fiapx/fiapx-boot-animator/internal/domain/port"
	"go.uber.org/zap"
)

const bytesPerPixel = 4

// Decoder opens video files by probing them with ffprobe and streaming raw
// RGBA frames out of ffmpeg.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewDecoder(ffmpegPath, ffprobePath string, logger *zap.Logger) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Decoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

func (d *Decoder) Open(ctx context.Context, videoPath string) (port.VideoSource, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	info, err := d.probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-i", videoPath,
		"-map", "0:v:0",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	d.logger.Debug("ffmpeg decoder started",
		zap.String("input", videoPath),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FrameRate),
	)

	return &stream{
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		info:      info,
		frameSize: info.Width * info.Height * bytesPerPixel,
	}, nil
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func (d *Decoder) probe(ctx context.Context, videoPath string) (entity.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-of", "json",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return entity.VideoInfo{}, fmt.Errorf("ffprobe: %w, output: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return entity.VideoInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (entity.VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return entity.VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return entity.VideoInfo{}, errors.New("no video stream found")
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return entity.VideoInfo{}, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}

	fps := parseRate(s.AvgFrameRate)
	if fps == 0 {
		fps = parseRate(s.RFrameRate)
	}

	return entity.VideoInfo{Width: s.Width, Height: s.Height, FrameRate: fps}, nil
}

// parseRate parses ffprobe rationals such as "30000/1001". Unknown rates give 0.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

type stream struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *bytes.Buffer
	info      entity.VideoInfo
	frameSize int
	finished  bool
	waitErr   error
}

func (s *stream) Info() entity.VideoInfo {
	return s.info
}

func (s *stream) NextFrame(ctx context.Context) (image.Image, error) {
	if s.finished {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, s.frameSize)
	_, err := io.ReadFull(s.stdout, buf)
	switch {
	case err == nil:
		return &image.RGBA{
			Pix:    buf,
			Stride: s.info.Width * bytesPerPixel,
			Rect:   image.Rect(0, 0, s.info.Width, s.info.Height),
		}, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// A trailing partial frame is dropped; the exit status decides.
		if werr := s.wait(); werr != nil {
			return nil, fmt.Errorf("ffmpeg: %w, output: %s", werr, strings.TrimSpace(s.stderr.String()))
		}
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read frame: %w", err)
	}
}

func (s *stream) wait() error {
	if !s.finished {
		s.finished = true
		s.waitErr = s.cmd.Wait()
	}
	return s.waitErr
}

func (s *stream) Close() error {
	if s.finished {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.wait()
	return nil
}
