package entity

import "github.com/google/uuid"

// BootAnimationRequest is the inbound message from the bootanim.requests queue.
type BootAnimationRequest struct {
	JobID     uuid.UUID         `json:"job_id"`
	UserID    string            `json:"user_id"`
	VideoKey  string            `json:"video_key"`
	FileSize  int64             `json:"file_size"`
	UserEmail string            `json:"user_email"`
	Options   ConversionOptions `json:"options"`
}

// ConversionOptions mirrors the CLI flags. Omitted fields take their defaults.
type ConversionOptions struct {
	NumFrames *int  `json:"num_frames,omitempty"`
	Loop      *bool `json:"loop,omitempty"`
	Framerate *int  `json:"framerate,omitempty"`
	FrameSkip *int  `json:"frame_skip,omitempty"`
	FrameSeek *int  `json:"frame_seek,omitempty"`
	Width     *int  `json:"width,omitempty"`
	Height    *int  `json:"height,omitempty"`
}

func (c ConversionOptions) ToOptions() Options {
	return Options{
		NumFrames: c.NumFrames,
		Loop:      c.Loop,
		Framerate: c.Framerate,
		FrameSkip: c.FrameSkip,
		FrameSeek: c.FrameSeek,
		Width:     c.Width,
		Height:    c.Height,
	}
}

// BootAnimationStatusMessage is the outbound message published to the bootanim.status queue.
type BootAnimationStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key"`
	ArchiveKey   string    `json:"archive_key,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Framerate    int       `json:"framerate,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
