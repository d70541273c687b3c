package pngenc

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"sync"
)

// ParseCompression maps a flag value to a png.CompressionLevel.
func ParseCompression(s string) (png.CompressionLevel, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return png.DefaultCompression, fmt.Errorf("unknown png compression %q", s)
	}
}

type Encoder struct {
	enc *png.Encoder
}

func NewEncoder(level png.CompressionLevel) *Encoder {
	return &Encoder{enc: &png.Encoder{
		CompressionLevel: level,
		BufferPool:       &bufferPool{},
	}}
}

func (e *Encoder) EncodeFrame(img image.Image, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}

	if err := e.enc.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

// bufferPool keeps a single encoder buffer. Concurrent encodes that miss it
// allocate their own.
type bufferPool struct {
	mu  sync.Mutex
	buf *png.EncoderBuffer
}

func (p *bufferPool) Get() *png.EncoderBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.buf
	p.buf = nil
	return b
}

func (p *bufferPool) Put(b *png.EncoderBuffer) {
	p.mu.Lock()
	p.buf = b
	p.mu.Unlock()
}
