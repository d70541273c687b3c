package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func TestResolveDefaultsFromSource(t *testing.T) {
	p, err := Resolve(Options{}, VideoInfo{Width: 320, Height: 480, FrameRate: 29.97})
	require.NoError(t, err)

	assert.Equal(t, Params{
		Width:     320,
		Height:    480,
		Framerate: 29,
		Loop:      true,
		FrameSkip: 1,
		FrameSeek: 0,
		MaxFrames: Unlimited,
	}, p)
	assert.False(t, p.Limited())
}

func TestResolveOverrides(t *testing.T) {
	opts := Options{
		NumFrames: intPtr(10),
		Loop:      boolPtr(false),
		Framerate: intPtr(12),
		FrameSkip: intPtr(3),
		FrameSeek: intPtr(2),
		Width:     intPtr(720),
		Height:    intPtr(1280),
	}
	p, err := Resolve(opts, VideoInfo{Width: 320, Height: 240, FrameRate: 30})
	require.NoError(t, err)

	assert.Equal(t, Params{
		Width:     720,
		Height:    1280,
		Framerate: 12,
		Loop:      false,
		FrameSkip: 3,
		FrameSeek: 2,
		MaxFrames: 10,
	}, p)
	assert.True(t, p.Limited())
}

func TestResolveFrameSkipZeroKeepsEveryFrame(t *testing.T) {
	p, err := Resolve(Options{FrameSkip: intPtr(0)}, VideoInfo{Width: 1, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, p.FrameSkip)
}

func TestResolveExplicitUnlimited(t *testing.T) {
	p, err := Resolve(Options{NumFrames: intPtr(-1)}, VideoInfo{Width: 1, Height: 1})
	require.NoError(t, err)
	assert.False(t, p.Limited())
}

func TestResolveRejectsMissingDimensions(t *testing.T) {
	_, err := Resolve(Options{}, VideoInfo{Width: 0, Height: 480, FrameRate: 30})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	p, err := Resolve(Options{Width: intPtr(64)}, VideoInfo{Width: 0, Height: 480})
	require.NoError(t, err)
	assert.Equal(t, 64, p.Width)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"empty", Options{}, false},
		{"numframes one", Options{NumFrames: intPtr(1)}, false},
		{"numframes all", Options{NumFrames: intPtr(-1)}, false},
		{"numframes zero", Options{NumFrames: intPtr(0)}, true},
		{"numframes minus two", Options{NumFrames: intPtr(-2)}, true},
		{"frameskip zero", Options{FrameSkip: intPtr(0)}, false},
		{"frameskip negative", Options{FrameSkip: intPtr(-1)}, true},
		{"frameseek zero", Options{FrameSeek: intPtr(0)}, false},
		{"frameseek negative", Options{FrameSeek: intPtr(-3)}, true},
		{"framerate zero", Options{Framerate: intPtr(0)}, false},
		{"framerate negative", Options{Framerate: intPtr(-5)}, true},
		{"width zero", Options{Width: intPtr(0)}, true},
		{"height negative", Options{Height: intPtr(-1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOptions)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
