package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/service"
	"campaignhub/pkg/errors"
)

// MaxUploadSize bounds a single deliverable.
const MaxUploadSize int64 = 200 << 20

const sniffLen = 3072

func objectName(folder, contentType string) string {
	ext := ".bin"
	if mt := mimetype.Lookup(contentType); mt != nil && mt.Extension() != "" {
		ext = mt.Extension()
	}
	return fmt.Sprintf("%s/%s-%s%s", folder, uuid.New().String(), time.Now().Format("20060102150405"), ext)
}

// Upload sniffs the content type of r, enforces MaxUploadSize and hands the
// stream to fs. The declared filename is kept only as metadata.
func Upload(ctx context.Context, fs service.FileStorage, r io.Reader, filename, folder string) (*entity.FileMetadata, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Internal("failed to read upload", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, errors.Validation("file is empty", nil)
	}

	contentType := mimetype.Detect(head).String()
	counter := &limitedReader{r: io.MultiReader(bytes.NewReader(head), r), remaining: MaxUploadSize}

	url, err := fs.UploadFile(ctx, counter, contentType, folder)
	if counter.exceeded {
		if url != "" {
			if err := fs.DeleteFile(ctx, url); err != nil {
				log.Printf("Upload Error: failed to remove oversized file %s: %v", url, err)
			}
		}
		return nil, errors.Validation(fmt.Sprintf("file exceeds %d MB", MaxUploadSize>>20), nil)
	}
	if err != nil {
		return nil, errors.Internal("failed to upload file", err)
	}

	return &entity.FileMetadata{
		URL:         url,
		Filename:    path.Base(filename),
		ContentType: contentType,
		Size:        counter.read,
	}, nil
}

type limitedReader struct {
	r         io.Reader
	remaining int64
	read      int64
	exceeded  bool
}

var errTooLarge = fmt.Errorf("upload too large")

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		l.exceeded = true
		return 0, errTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return n, errTooLarge
	}
	return n, err
}
