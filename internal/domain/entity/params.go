package entity

import (
	"errors"
	"fmt"
)

// Unlimited marks MaxFrames as "keep frames until the stream ends".
const Unlimited = -1

const (
	DefaultFrameSkip = 1
	DefaultFrameSeek = 0
	DefaultLoop      = true
)

var ErrInvalidOptions = errors.New("invalid options")

// Options are the caller supplied overrides. A nil field means "use the default",
// which for Width, Height and Framerate is whatever the video source reports.
type Options struct {
	NumFrames *int
	Loop      *bool
	Framerate *int
	FrameSkip *int
	FrameSeek *int
	Width     *int
	Height    *int
}

// Params are the effective conversion parameters. They are resolved once and
// passed by value from then on.
type Params struct {
	Width     int
	Height    int
	Framerate int
	Loop      bool
	FrameSkip int
	FrameSeek int
	MaxFrames int
}

// VideoInfo is what a video source reports about itself.
type VideoInfo struct {
	Width     int
	Height    int
	FrameRate float64
}

// Validate checks everything that can be checked without opening the source.
func (o Options) Validate() error {
	if o.NumFrames != nil {
		if n := *o.NumFrames; n == 0 || n < Unlimited {
			return fmt.Errorf("%w: numframes must be positive or -1 for all frames, got %d", ErrInvalidOptions, n)
		}
	}
	if o.FrameSkip != nil && *o.FrameSkip < 0 {
		return fmt.Errorf("%w: frameskip must not be negative, got %d", ErrInvalidOptions, *o.FrameSkip)
	}
	if o.FrameSeek != nil && *o.FrameSeek < 0 {
		return fmt.Errorf("%w: frameseek must not be negative, got %d", ErrInvalidOptions, *o.FrameSeek)
	}
	if o.Framerate != nil && *o.Framerate < 0 {
		return fmt.Errorf("%w: framerate must not be negative, got %d", ErrInvalidOptions, *o.Framerate)
	}
	if o.Width != nil && *o.Width <= 0 {
		return fmt.Errorf("%w: width must be positive, got %d", ErrInvalidOptions, *o.Width)
	}
	if o.Height != nil && *o.Height <= 0 {
		return fmt.Errorf("%w: height must be positive, got %d", ErrInvalidOptions, *o.Height)
	}
	return nil
}

// Resolve fills every unset option from the source info and the policy defaults.
// The source frame rate is truncated, never rounded.
func Resolve(o Options, info VideoInfo) (Params, error) {
	if err := o.Validate(); err != nil {
		return Params{}, err
	}

	p := Params{
		Width:     info.Width,
		Height:    info.Height,
		Framerate: int(info.FrameRate),
		Loop:      DefaultLoop,
		FrameSkip: DefaultFrameSkip,
		FrameSeek: DefaultFrameSeek,
		MaxFrames: Unlimited,
	}

	if o.Width != nil {
		p.Width = *o.Width
	}
	if o.Height != nil {
		p.Height = *o.Height
	}
	if o.Framerate != nil {
		p.Framerate = *o.Framerate
	}
	if o.Loop != nil {
		p.Loop = *o.Loop
	}
	// frameskip 0 keeps every frame, the same as 1.
	if o.FrameSkip != nil && *o.FrameSkip > 0 {
		p.FrameSkip = *o.FrameSkip
	}
	if o.FrameSeek != nil {
		p.FrameSeek = *o.FrameSeek
	}
	if o.NumFrames != nil {
		p.MaxFrames = *o.NumFrames
	}

	if p.Width <= 0 || p.Height <= 0 {
		return Params{}, fmt.Errorf("%w: source reported %dx%d, pass width and height explicitly",
			ErrInvalidOptions, p.Width, p.Height)
	}
	if p.Framerate < 0 {
		return Params{}, fmt.Errorf("%w: source reported framerate %v", ErrInvalidOptions, info.FrameRate)
	}

	return p, nil
}

func (p Params) Limited() bool {
	return p.MaxFrames != Unlimited
}
