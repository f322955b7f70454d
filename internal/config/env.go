package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"PalmSpeak/internal/entity"
	"PalmSpeak/pkg/imaging"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

type Env struct {
	AppEnv string `validate:"required"`

	AppHost   string
	AppPort   int    `validate:"min=1,max=65535"`
	AdminHost string `validate:"required"`
	AdminPort int    `validate:"min=1,max=65535,nefield=AppPort"`

	Labels              []entity.Label `validate:"min=1,dive,required"`
	HistoryCapacity     int            `validate:"min=1"`
	ConfidenceThreshold float64        `validate:"gte=0,lt=1"`
	MaxFrameDimension   uint           `validate:"min=32"`
	MaxFramePixels      int            `validate:"min=1024"`

	ModelPath         string `validate:"required"`
	ModelMetadataPath string `validate:"required"`
	ModelCacheDir     string
	OnnxRuntimeLib    string
	ModelLoadOnStart  bool
	AutoStart         bool
	LoadTimeout       time.Duration `validate:"gt=0"`

	LandmarkServiceURL string `validate:"omitempty,url"`

	RedisAddress       string
	RedisPassword      string
	RedisDB            int `validate:"min=0"`
	RedisChannel       string
	RedisTranscriptKey string
	RedisTranscriptTTL time.Duration

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	RateLimit      float64 `validate:"gt=0"`
	RateBurst      int     `validate:"min=1"`
	AllowedOrigins string
}

func (e Env) ListenAddress() string {
	return fmt.Sprintf("%s:%d", e.AppHost, e.AppPort)
}

func (e Env) AdminAddress() string {
	return fmt.Sprintf("%s:%d", e.AdminHost, e.AdminPort)
}

// LoadEnv reads the process environment, filling unset keys with defaults.
// Malformed numbers are reported rather than silently defaulted.
func LoadEnv(validate *validator.Validate) (Env, error) {
	r := envReader{}

	env := Env{
		AppEnv:    r.str("APP_ENV", "development"),
		AppHost:   r.str("APP_HOST", ""),
		AppPort:   r.int("APP_PORT", 5000),
		AdminHost: r.str("ADMIN_HOST", "127.0.0.1"),
		AdminPort: r.int("ADMIN_PORT", 5050),

		Labels:              r.labels("LABELS", entity.DefaultLabels),
		HistoryCapacity:     r.int("HISTORY_CAPACITY", 10),
		ConfidenceThreshold: r.float("CONFIDENCE_THRESHOLD", 0.3),
		MaxFrameDimension:   uint(r.int("MAX_FRAME_DIMENSION", 640)),
		MaxFramePixels:      r.int("MAX_FRAME_PIXELS", imaging.DefaultMaxPixels),

		ModelPath:         r.str("MODEL_PATH", "models/asl_classifier.onnx"),
		ModelMetadataPath: r.str("MODEL_METADATA_PATH", "models/asl_classifier.json"),
		ModelCacheDir:     r.str("MODEL_CACHE_DIR", ""),
		OnnxRuntimeLib:    r.str("ONNXRUNTIME_LIB", ""),
		ModelLoadOnStart:  r.bool("MODEL_LOAD_ON_START", true),
		AutoStart:         r.bool("AUTO_START", true),
		LoadTimeout:       r.duration("MODEL_LOAD_TIMEOUT", 2*time.Minute),

		LandmarkServiceURL: r.str("LANDMARK_SERVICE_URL", ""),

		RedisAddress:       r.str("REDIS_ADDRESS", ""),
		RedisPassword:      r.str("REDIS_PASSWORD", ""),
		RedisDB:            r.int("REDIS_DB", 0),
		RedisChannel:       r.str("REDIS_CHANNEL", "palmspeak:letters"),
		RedisTranscriptKey: r.str("REDIS_TRANSCRIPT_KEY", "palmspeak:transcript"),
		RedisTranscriptTTL: r.duration("REDIS_TRANSCRIPT_TTL", time.Hour),

		AWSRegion:          r.str("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:     r.str("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: r.str("AWS_SECRET_ACCESS_KEY", ""),

		RateLimit:      r.float("RATE_LIMIT", 50),
		RateBurst:      r.int("RATE_BURST", 100),
		AllowedOrigins: r.str("CORS_ALLOWED_ORIGINS", "*"),
	}

	if len(r.errs) > 0 {
		return Env{}, fmt.Errorf("invalid environment: %s", strings.Join(r.errs, "; "))
	}

	if err := validate.Struct(env); err != nil {
		return Env{}, fmt.Errorf("invalid environment: %w", err)
	}

	return env, nil
}

type envReader struct {
	errs []string
}

func (r *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s=%q is not a number", key, v))
		return def
	}
	return f
}

func (r *envReader) bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s=%q is not a duration", key, v))
		return def
	}
	return d
}

// labels reads a comma-separated list in model output order. Entries are NFC
// normalized to match how model class names are compared.
func (r *envReader) labels(key string, def []entity.Label) []entity.Label {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	var out []entity.Label
	for _, part := range strings.Split(v, ",") {
		out = append(out, entity.Label(norm.NFC.String(strings.TrimSpace(part))))
	}
	return out
}
