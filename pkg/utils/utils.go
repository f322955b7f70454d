package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrEmptyPayload = errors.New("empty image payload")
	ErrFileTooLarge = errors.New("file size exceeds limit")
	ErrNotAnImage   = errors.New("uploaded file is not an image")
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	ValidateImageFile(file *multipart.FileHeader) error
	ReadImageFile(file *multipart.FileHeader) ([]byte, error)
	DecodeBase64Image(payload string) ([]byte, error)
}

type utils struct {
	maxFileSize int64
	mu          sync.Mutex
	entropy     io.Reader
}

func New() IUtils {
	return NewWithLimit(10 * 1024 * 1024)
}

func NewWithLimit(maxFileSize int64) IUtils {
	return &utils{
		maxFileSize: maxFileSize,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
}

// NewULIDFromTimestamp is safe for concurrent use; the monotonic entropy source is not.
func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), u.entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (u *utils) ValidateImageFile(file *multipart.FileHeader) error {
	if file == nil {
		return errors.New("no file uploaded")
	}

	if file.Size > u.maxFileSize {
		return ErrFileTooLarge
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && contentType != "application/octet-stream" {
		return ErrNotAnImage
	}

	return nil
}

func (u *utils) ReadImageFile(file *multipart.FileHeader) ([]byte, error) {
	if err := u.ValidateImageFile(file); err != nil {
		return nil, err
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return io.ReadAll(io.LimitReader(src, u.maxFileSize))
}

// DecodeBase64Image accepts raw base64 or a data URL ("data:image/jpeg;base64,...").
func (u *utils) DecodeBase64Image(payload string) ([]byte, error) {
	if idx := strings.Index(payload, ","); idx >= 0 {
		payload = payload[idx+1:]
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	if int64(base64.StdEncoding.DecodedLen(len(payload))) > u.maxFileSize {
		return nil, ErrFileTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some capture clients strip the padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, err
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	return data, nil
}
