package analysis

import "errors"

var (
	ErrRecordNotFound     = errors.New("analysis record not found")
	ErrUnsupportedFormat  = errors.New("unsupported image format: only jpeg and png are accepted")
	ErrImageTooLarge      = errors.New("image exceeds the maximum allowed size")
	ErrEmptyImage         = errors.New("image payload is empty")
)
