package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"
)

const scheme = "s3://"

var ErrInvalidLocation = errors.New("invalid s3 location")

// ItfS3 resolves model artifact locations to files on local disk.
type ItfS3 interface {
	Fetch(ctx context.Context, location string) (string, error)
}

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	CacheDir        string
}

type s3Client struct {
	cfg Config
	log *logrus.Logger

	once    sync.Once
	session *session.Session
	sessErr error
}

func New(cfg Config, log *logrus.Logger) ItfS3 {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "palmspeak-models")
	}
	return &s3Client{cfg: cfg, log: log}
}

// IsRemote reports whether location names an S3 object.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, scheme)
}

// ParseLocation splits s3://bucket/key.
func ParseLocation(location string) (bucket, key string, err error) {
	if !IsRemote(location) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}

	rest := strings.TrimPrefix(location, scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}
	return bucket, key, nil
}

// Fetch returns local paths untouched. S3 objects are downloaded into the
// cache directory once; a non-empty cached copy is reused.
func (s *s3Client) Fetch(ctx context.Context, location string) (string, error) {
	if !IsRemote(location) {
		return location, nil
	}

	bucket, key, err := ParseLocation(location)
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.cfg.CacheDir, bucket, filepath.FromSlash(key))
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		s.log.WithField("path", target).Debug("Using cached model artifact")
		return target, nil
	}

	sess, err := s.getSession()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	downloader := s3manager.NewDownloader(sess)
	n, err := downloader.DownloadWithContext(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", location, err)
	}

	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to move downloaded artifact: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"location": location,
		"path":     target,
		"bytes":    n,
	}).Info("Downloaded model artifact")

	return target, nil
}

func (s *s3Client) getSession() (*session.Session, error) {
	s.once.Do(func() {
		s.session, s.sessErr = newSession(s.cfg)
	})
	return s.session, s.sessErr
}

func newSession(cfg Config) (*session.Session, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}

	return sess, nil
}
