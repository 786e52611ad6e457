package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignhub/pkg/errors"
)

type memoryStorage struct {
	objects map[string][]byte
	deleted []string
}

func (m *memoryStorage) UploadFile(ctx context.Context, file io.Reader, contentType, folder string) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	name := objectName(folder, contentType)
	m.objects[name] = data
	return "mem://" + name, nil
}

func (m *memoryStorage) DeleteFile(ctx context.Context, fileURL string) error {
	m.deleted = append(m.deleted, fileURL)
	return nil
}

func (m *memoryStorage) Close() error { return nil }

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUploadSniffsContentType(t *testing.T) {
	fs := &memoryStorage{objects: map[string][]byte{}}
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 5000)...)

	meta, err := Upload(context.Background(), fs, bytes.NewReader(body), "../frame.jpg", "rooms/r1")
	require.NoError(t, err)

	assert.Equal(t, "image/png", meta.ContentType)
	assert.Equal(t, "frame.jpg", meta.Filename)
	assert.Equal(t, int64(len(body)), meta.Size)
	assert.True(t, strings.HasPrefix(meta.URL, "mem://rooms/r1/"))
	assert.True(t, strings.HasSuffix(meta.URL, ".png"))

	for _, data := range fs.objects {
		assert.Equal(t, body, data)
	}
}

// partialStorage keeps whatever it was sent, even when the stream fails.
type partialStorage struct {
	deleteErr error
	deleted   []string
}

func (p *partialStorage) UploadFile(ctx context.Context, file io.Reader, contentType, folder string) (string, error) {
	_, err := io.Copy(io.Discard, file)
	return "mem://" + folder + "/partial", err
}

func (p *partialStorage) DeleteFile(ctx context.Context, fileURL string) error {
	p.deleted = append(p.deleted, fileURL)
	return p.deleteErr
}

func (p *partialStorage) Close() error { return nil }

type zeros struct{}

func (zeros) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = 0
	}
	return len(b), nil
}

func TestUploadOversizedRemovesPartialObject(t *testing.T) {
	var out bytes.Buffer
	log.SetOutput(&out)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	fs := &partialStorage{deleteErr: fmt.Errorf("bucket unavailable")}
	body := io.LimitReader(zeros{}, MaxUploadSize+1)

	_, err := Upload(context.Background(), fs, body, "huge.bin", "rooms/r1")
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Equal(t, []string{"mem://rooms/r1/partial"}, fs.deleted)
	assert.Contains(t, out.String(), "failed to remove oversized file mem://rooms/r1/partial")
}

func TestUploadRejectsEmpty(t *testing.T) {
	fs := &memoryStorage{objects: map[string][]byte{}}
	_, err := Upload(context.Background(), fs, strings.NewReader(""), "a.txt", "rooms/r1")
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Empty(t, fs.objects)
}

func TestLimitedReader(t *testing.T) {
	l := &limitedReader{r: strings.NewReader("0123456789"), remaining: 4}
	_, err := io.ReadAll(l)
	assert.ErrorIs(t, err, errTooLarge)
	assert.True(t, l.exceeded)

	l = &limitedReader{r: strings.NewReader("0123"), remaining: 4}
	data, err := io.ReadAll(l)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(data))
	assert.False(t, l.exceeded)
}

func TestObjectNameExtension(t *testing.T) {
	assert.True(t, strings.HasSuffix(objectName("f", "application/pdf"), ".pdf"))
	assert.True(t, strings.HasSuffix(objectName("f", "application/x-unknown-thing"), ".bin"))
}
