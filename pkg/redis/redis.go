package redis

import (
	"context"
	"fmt"
	"time"

	"PalmSpeak/internal/entity"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// IRedis publishes recognized letters and keeps the latest transcript.
type IRedis interface {
	PublishLetter(ctx context.Context, event entity.LetterEvent) error
	SaveTranscript(ctx context.Context, text string) error
	ClearTranscript(ctx context.Context) error
	Enabled() bool
	Close() error
}

type Config struct {
	Address       string
	Password      string
	DB            int
	Channel       string
	TranscriptKey string
	TranscriptTTL time.Duration
}

type redisClient struct {
	client *redis.Client
	cfg    Config
}

// New connects to Redis. An empty address yields a client that does nothing.
func New(cfg Config) IRedis {
	if cfg.Address == "" {
		logrus.Info("Redis address not set, letter events are disabled")
		return disabled{}
	}

	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", cfg.Address))

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client, cfg: cfg}
}

func EncodeEvent(event entity.LetterEvent) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
}

func (r *redisClient) PublishLetter(ctx context.Context, event entity.LetterEvent) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("encode letter event: %w", err)
	}

	receivers, err := r.client.Publish(ctx, r.cfg.Channel, payload).Result()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error publishing letter to %s: %v", r.cfg.Channel, err))
		return err
	}
	logrus.Debug(fmt.Sprintf("Published letter %s to %d subscribers", event.Letter, receivers))
	return nil
}

func (r *redisClient) SaveTranscript(ctx context.Context, text string) error {
	if err := r.client.Set(ctx, r.cfg.TranscriptKey, text, r.cfg.TranscriptTTL).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error saving transcript under %s: %v", r.cfg.TranscriptKey, err))
		return err
	}
	return nil
}

func (r *redisClient) ClearTranscript(ctx context.Context) error {
	if err := r.client.Del(ctx, r.cfg.TranscriptKey).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error deleting transcript %s: %v", r.cfg.TranscriptKey, err))
		return err
	}
	return nil
}

func (r *redisClient) Enabled() bool { return true }

func (r *redisClient) Close() error {
	return r.client.Close()
}

type disabled struct{}

func (disabled) PublishLetter(context.Context, entity.LetterEvent) error { return nil }
func (disabled) SaveTranscript(context.Context, string) error            { return nil }
func (disabled) ClearTranscript(context.Context) error                   { return nil }
func (disabled) Enabled() bool                                           { return false }
func (disabled) Close() error                                            { return nil }
