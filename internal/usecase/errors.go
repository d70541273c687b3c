package usecase

import "errors"

// Failure classes of a conversion. Each run stops at the first one.
var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrOpenInput       = errors.New("cannot open input")
	ErrStagingDir      = errors.New("cannot create staging directory")
	ErrDescriptorWrite = errors.New("cannot write descriptor")
	ErrFrameWrite      = errors.New("cannot write frame")
	ErrDecode          = errors.New("decode failed")
	ErrArchive         = errors.New("cannot create archive")
)
