package usecase

import (
	"io"
	"time"
)

// RateLimiter is satisfied by ratelimit.RateLimiter.
type RateLimiter interface {
	Allow(userID, action string) (bool, time.Duration)
}

// FileUpload is an incoming file before it reaches storage.
type FileUpload struct {
	Reader   io.Reader
	Filename string
}
