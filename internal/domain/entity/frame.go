package entity

import "image"

// Frame is a decoded raster selected for output. Index counts kept frames only;
// SourceIndex is the position of the frame in the decoded stream.
type Frame struct {
	Index       int
	SourceIndex int
	Image       image.Image
}
