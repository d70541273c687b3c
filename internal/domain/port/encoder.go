package port

import "image"

type FrameEncoder interface {
	EncodeFrame(img image.Image, path string) error
}
