package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix namespaces the environment overrides of the bootanim command.
const EnvPrefix = "BOOTANIM_"

// CLIDefaults are flag defaults read from an optional TOML file and then from
// BOOTANIM_* environment variables. Flags given on the command line win over both.
type CLIDefaults struct {
	Output         string `toml:"output"          env:"OUTPUT"`
	WorkDir        string `toml:"workdir"         env:"WORKDIR"`
	NumFrames      *int   `toml:"numframes"       env:"NUMFRAMES"`
	Loop           *int   `toml:"loop"            env:"LOOP"`
	Framerate      *int   `toml:"framerate"       env:"FRAMERATE"`
	FrameSkip      *int   `toml:"frameskip"       env:"FRAMESKIP"`
	FrameSeek      *int   `toml:"frameseek"       env:"FRAMESEEK"`
	Width          *int   `toml:"width"           env:"WIDTH"`
	Height         *int   `toml:"height"          env:"HEIGHT"`
	Decoder        string `toml:"decoder"         env:"DECODER"`
	PNGCompression string `toml:"png_compression" env:"PNG_COMPRESSION"`
	LogLevel       string `toml:"log_level"       env:"LOG_LEVEL"`
}

// LoadCLIDefaults reads path when it exists and applies environment overrides.
// A missing file is not an error unless required is set.
func LoadCLIDefaults(path string, required bool) (*CLIDefaults, error) {
	d := &CLIDefaults{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, d); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(d, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return d, nil
}

// Apply sets every flag that has a default here and was not given explicitly.
// Applied flags count as changed afterwards.
func (d *CLIDefaults) Apply(fs *pflag.FlagSet) error {
	values := map[string]string{
		"output":          d.Output,
		"workdir":         d.WorkDir,
		"decoder":         d.Decoder,
		"png-compression": d.PNGCompression,
		"log-level":       d.LogLevel,
	}
	ints := map[string]*int{
		"numframes": d.NumFrames,
		"loop":      d.Loop,
		"framerate": d.Framerate,
		"frameskip": d.FrameSkip,
		"frameseek": d.FrameSeek,
		"width":     d.Width,
		"height":    d.Height,
	}
	for name, v := range ints {
		if v != nil {
			values[name] = strconv.Itoa(*v)
		}
	}

	for name, value := range values {
		if value == "" || fs.Lookup(name) == nil || fs.Changed(name) {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("apply default for --%s: %w", name, err)
		}
	}
	return nil
}
