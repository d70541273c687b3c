package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiapx/fiapx-boot-animator/internal/domain/entity"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/archive"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/config"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/mpeg"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/pngenc"
	"github.com/fiapx/fiapx-boot-animator/internal/infra/video"
	"github.com/fiapx/fiapx-boot-animator/internal/usecase"
	"github.com/fiapx/fiapx-boot-animator/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const defaultConfigFile = "bootanim.toml"

// Process exit statuses, one per failure class.
const (
	exitOK = iota
	exitInvalidConfig
	exitFrameWrite
	exitOpenInput
	exitDescriptorWrite
	exitArchive
	exitStagingDir
	exitDecode
)

var exitCodes = []struct {
	err  error
	code int
}{
	{usecase.ErrInvalidConfig, exitInvalidConfig},
	{usecase.ErrFrameWrite, exitFrameWrite},
	{usecase.ErrOpenInput, exitOpenInput},
	{usecase.ErrDescriptorWrite, exitDescriptorWrite},
	{usecase.ErrArchive, exitArchive},
	{usecase.ErrStagingDir, exitStagingDir},
	{usecase.ErrDecode, exitDecode},
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	for _, c := range exitCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return exitInvalidConfig
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootanim: %v\n", err)
	}
	return exitCode(err)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootanim -i <video> [flags]",
		Short: "Convert a video into an Android bootanimation.zip",
		Long: `bootanim decodes a video, keeps a selection of its frames as PNG images and
packages them with a desc.txt into an uncompressed bootanimation.zip.

Flag defaults can also come from a TOML file (--config) and from BOOTANIM_*
environment variables. Flags given on the command line always win.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			defaults, err := config.LoadCLIDefaults(path, cmd.Flags().Changed("config"))
			if err != nil {
				return fmt.Errorf("%w: %w", usecase.ErrInvalidConfig, err)
			}
			if err := defaults.Apply(cmd.Flags()); err != nil {
				return fmt.Errorf("%w: %w", usecase.ErrInvalidConfig, err)
			}
			return nil
		},
		RunE: runConvert,
	}

	f := cmd.Flags()
	f.StringP("config", "c", defaultConfigFile, "TOML file with flag defaults")
	f.StringP("input", "i", "", "input video file (required)")
	f.StringP("output", "o", usecase.DefaultOutputPath, "output archive path")
	f.IntP("numframes", "n", entity.Unlimited, "maximum number of frames to keep, -1 keeps all")
	f.IntP("loop", "l", 1, "loop the animation, 0 plays it once")
	f.IntP("framerate", "f", 0, "playback frame rate (default: the video's)")
	f.IntP("frameskip", "s", entity.DefaultFrameSkip, "keep one frame out of every n")
	f.IntP("frameseek", "k", entity.DefaultFrameSeek, "frames to discard before selection starts")
	f.IntP("width", "w", 0, "width written to desc.txt (default: the video's)")
	f.Int("height", 0, "height written to desc.txt (default: the video's)")
	f.String("workdir", ".", "directory the desc.txt and part0/ tree are written to")
	f.String("decoder", video.DecoderAuto, "video decoder: auto, ffmpeg or mpeg")
	f.String("png-compression", "default", "PNG compression: default, none, speed or best")
	f.String("log-level", "info", "log level: debug, info, warn or error")

	return cmd
}

func runConvert(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()

	input, _ := f.GetString("input")
	if input == "" {
		_ = cmd.Usage()
		return fmt.Errorf("%w: --input is required", usecase.ErrInvalidConfig)
	}
	output, _ := f.GetString("output")
	workDir, _ := f.GetString("workdir")
	decoder, _ := f.GetString("decoder")
	compression, _ := f.GetString("png-compression")
	logLevel, _ := f.GetString("log-level")

	log, err := logger.NewConsole(logLevel)
	if err != nil {
		return fmt.Errorf("%w: %w", usecase.ErrInvalidConfig, err)
	}
	defer log.Sync()

	opts, err := optionsFromFlags(f)
	if err != nil {
		return fmt.Errorf("%w: %w", usecase.ErrInvalidConfig, err)
	}

	level, err := pngenc.ParseCompression(compression)
	if err != nil {
		return fmt.Errorf("%w: %w", usecase.ErrInvalidConfig, err)
	}

	opener, err := video.NewOpener(decoder,
		ffmpeg.NewDecoder("ffmpeg", "ffprobe", log),
		mpeg.NewDecoder(log),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", usecase.ErrInvalidConfig, err)
	}

	uc := usecase.NewBuildBootAnimationUseCase(opener, pngenc.NewEncoder(level), archive.NewZipCreator(), log)
	res, err := uc.Execute(cmd.Context(), usecase.BuildRequest{
		InputPath:  input,
		OutputPath: output,
		StagingDir: workDir,
		Options:    opts,
	})
	if err != nil {
		return err
	}

	if res.SeekExhausted {
		fmt.Fprintf(cmd.OutOrStdout(), "video ended after %d frames while seeking %d, nothing to package\n",
			res.FramesDecoded, res.Params.FrameSeek)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %dx%d @ %d fps, %d frames\n",
		res.ArchivePath, res.Params.Width, res.Params.Height, res.Params.Framerate, res.FramesKept)
	log.Debug("conversion finished", zap.Strings("entries", res.Entries))
	return nil
}

// optionsFromFlags copies every flag that was set, on the command line or from
// defaults, into conversion options. Unset flags stay nil so the video's own
// properties fill them.
func optionsFromFlags(f *pflag.FlagSet) (entity.Options, error) {
	var opts entity.Options

	ints := []struct {
		name string
		dst  **int
	}{
		{"numframes", &opts.NumFrames},
		{"framerate", &opts.Framerate},
		{"frameskip", &opts.FrameSkip},
		{"frameseek", &opts.FrameSeek},
		{"width", &opts.Width},
		{"height", &opts.Height},
	}
	for _, it := range ints {
		if !f.Changed(it.name) {
			continue
		}
		v, err := f.GetInt(it.name)
		if err != nil {
			return entity.Options{}, err
		}
		*it.dst = &v
	}

	if f.Changed("loop") {
		v, err := f.GetInt("loop")
		if err != nil {
			return entity.Options{}, err
		}
		loop := v != 0
		opts.Loop = &loop
	}
	return opts, nil
}
