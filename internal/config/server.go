package config

import (
	recognitionHandler "PalmSpeak/internal/api/recognition/handler"
	recognitionService "PalmSpeak/internal/api/recognition/service"
	"PalmSpeak/internal/entity"
	"PalmSpeak/internal/middleware"
	"PalmSpeak/pkg/classifier"
	"PalmSpeak/pkg/redis"
	"PalmSpeak/pkg/s3"
	"PalmSpeak/pkg/utils"
	websocketPkg "PalmSpeak/pkg/websocket"
	"context"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
	"strings"
)

type ServerOption func(*Server) error

// Server owns the always-on admin listener and the recognition service, which
// in turn starts and stops the inference listener.
type Server struct {
	env            Env
	admin          *fiber.App
	log            *logrus.Logger
	middleware     middleware.Middleware
	validator      *validator.Validate
	utils          utils.IUtils
	redisServer    redis.IRedis
	s3Client       s3.ItfS3
	landmarkClient websocketPkg.IWebsocket
	loader         classifier.Loader

	recognition recognitionService.IRecognitionService
	handler     *recognitionHandler.RecognitionHandler
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.admin == nil {
		return nil, fmt.Errorf("admin fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.landmarkClient == nil {
		return nil, fmt.Errorf("landmark client is required")
	}
	if server.middleware == nil {
		return nil, fmt.Errorf("middleware is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New()
	}
	if server.redisServer == nil {
		server.redisServer = redis.New(redis.Config{})
	}

	return server, nil
}

func WithEnv(env Env) ServerOption {
	return func(s *Server) error {
		s.env = env
		return nil
	}
}

func WithAdminFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.admin = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log, middleware.Config{
			RateLimit:      s.env.RateLimit,
			RateBurst:      s.env.RateBurst,
			AllowedOrigins: s.env.AllowedOrigins,
		})
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithLandmarkClient(client websocketPkg.IWebsocket) ServerOption {
	return func(s *Server) error {
		s.landmarkClient = client
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before S3 client")
		}
		s.s3Client = s3.New(s3.Config{
			Region:          s.env.AWSRegion,
			AccessKeyID:     s.env.AWSAccessKeyID,
			SecretAccessKey: s.env.AWSSecretAccessKey,
			CacheDir:        s.env.ModelCacheDir,
		}, s.log)
		return nil
	}
}

// WithModelLoader replaces the ONNX loader, mainly for running without a model file.
func WithModelLoader(loader classifier.Loader) ServerOption {
	return func(s *Server) error {
		s.loader = loader
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() error {
	loader := s.loader
	if loader == nil {
		if s.s3Client == nil {
			return errors.New("S3 client is required to resolve model locations")
		}
		loader = s.onnxLoader()
	}

	cfg := recognitionService.DefaultConfig()
	cfg.Labels = s.env.Labels
	cfg.HistoryCapacity = s.env.HistoryCapacity
	cfg.ConfidenceThreshold = s.env.ConfidenceThreshold
	cfg.MaxFrameDimension = s.env.MaxFrameDimension
	cfg.MaxFramePixels = s.env.MaxFramePixels
	cfg.ListenAddress = s.env.ListenAddress()
	cfg.AutoStart = s.env.AutoStart
	cfg.LoadTimeout = s.env.LoadTimeout

	svc, err := recognitionService.NewRecognitionService(s.log, cfg, s.landmarkClient, loader, s.redisServer, s.utils)
	if err != nil {
		return fmt.Errorf("failed to create recognition service: %w", err)
	}

	s.recognition = svc
	s.handler = recognitionHandler.New(s.log, s.validator, s.middleware, svc, s.utils)
	svc.SetEngineFactory(s.newInferenceEngine)

	s.admin.Use(s.middleware.NewRequestIDMiddleware())
	s.admin.Use(middleware.LoggerConfig())
	s.handler.StartAdmin(s.admin)

	return nil
}

// newInferenceEngine builds a fresh app for every start; a shut down fiber app
// cannot serve again.
func (s *Server) newInferenceEngine() recognitionService.Engine {
	app := NewFiber("PalmSpeak Inference")

	app.Use(s.middleware.NewCORS())
	app.Use(s.middleware.NewRequestIDMiddleware())
	app.Use(middleware.LoggerConfig())
	app.Use(s.middleware.NewRateLimiter)

	s.handler.Start(app)

	return app
}

func (s *Server) onnxLoader() classifier.Loader {
	return func(ctx context.Context) (classifier.Classifier, error) {
		modelPath, err := s.s3Client.Fetch(ctx, s.env.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch model: %w", err)
		}

		metadataPath, err := s.s3Client.Fetch(ctx, s.env.ModelMetadataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch model metadata: %w", err)
		}

		model, err := classifier.NewOnnx(classifier.OnnxOptions{
			ModelPath:         modelPath,
			MetadataPath:      metadataPath,
			SharedLibraryPath: s.env.OnnxRuntimeLib,
		})
		if err != nil {
			return nil, err
		}

		if got, want := model.Metadata().OutputSize(), len(s.env.Labels); got != want {
			model.Close()
			return nil, fmt.Errorf("model has %d outputs but %d labels are configured", got, want)
		}

		if err := matchClasses(model.Metadata().Classes, s.env.Labels); err != nil {
			model.Close()
			return nil, err
		}

		s.log.WithFields(logrus.Fields{
			"model":   modelPath,
			"outputs": model.Metadata().OutputSize(),
		}).Info("Classifier model loaded")

		return model, nil
	}
}

// matchClasses checks the class order recorded at export time against the
// configured labels. Older exports carry no class list.
func matchClasses(classes []string, labels []entity.Label) error {
	if len(classes) == 0 {
		return nil
	}
	if len(classes) != len(labels) {
		return fmt.Errorf("model lists %d classes but %d labels are configured", len(classes), len(labels))
	}
	for i, class := range classes {
		if !strings.EqualFold(norm.NFC.String(strings.TrimSpace(class)), labels[i].String()) {
			return fmt.Errorf("model class %d is %q but label %q is configured", i, class, labels[i])
		}
	}
	return nil
}

// Run blocks serving the admin listener. The inference listener follows the
// model: it starts once the model loads when AutoStart is set.
func (s *Server) Run() error {
	if s.recognition == nil {
		return errors.New("handlers are not registered")
	}

	if s.env.ModelLoadOnStart {
		s.recognition.LoadModel()
	}

	s.log.Infof("Admin listener on %s", s.env.AdminAddress())
	return s.admin.Listen(s.env.AdminAddress())
}

func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	// admin first, so no control request lands on a closing service
	if err := s.admin.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("admin listener: %w", err))
	}
	if s.recognition != nil {
		if err := s.recognition.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("recognition service: %w", err))
		}
	}
	if err := s.landmarkClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("landmark client: %w", err))
	}
	if err := s.redisServer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}

	return errors.Join(errs...)
}
