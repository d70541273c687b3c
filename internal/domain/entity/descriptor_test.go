package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptorString(t *testing.T) {
	d := NewDescriptor(Params{Width: 320, Height: 480, Framerate: 30, Loop: true})
	assert.Equal(t, "320 480 30\r\np 1 0 part0\r\n", d.String())

	d.Loop = false
	assert.Equal(t, "320 480 30\r\np 0 0 part0\r\n", d.String())
}

func TestDescriptorMarshalText(t *testing.T) {
	d := NewDescriptor(Params{Width: 1080, Height: 1920, Framerate: 0, Loop: true})
	b, err := d.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, []byte("1080 1920 0\r\np 1 0 part0\r\n"), b)
}
