package service

import (
	"context"
	"io"
)

// FileStorage turns an uploaded blob into a stable URL.
type FileStorage interface {
	UploadFile(ctx context.Context, file io.Reader, contentType, folder string) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
	Close() error
}
