package recognitionService

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"PalmSpeak/internal/entity"
	"PalmSpeak/pkg/classifier"
	"PalmSpeak/pkg/imaging"
	"PalmSpeak/pkg/landmark"
	"PalmSpeak/pkg/redis"
	"PalmSpeak/pkg/utils"
	"github.com/sirupsen/logrus"
)

type IRecognitionService interface {
	SubmitFrame(ctx context.Context, image []byte) (*entity.InferenceResult, error)
	ResetHistory()
	Health() entity.Health
	State() entity.ServiceState
	StartService() (entity.ServiceState, error)
	StopService(ctx context.Context) (entity.ServiceState, error)
	LoadModel() entity.ServiceState
	Transcript() (string, entity.Label)
	ClearTranscript(ctx context.Context) error
	SetEngineFactory(factory EngineFactory)
	Close(ctx context.Context) error
}

// Engine serves the inference routes on a listener until shut down.
// *fiber.App satisfies it.
type Engine interface {
	Listener(ln net.Listener) error
	ShutdownWithContext(ctx context.Context) error
}

type EngineFactory func() Engine

type Config struct {
	Labels              []entity.Label
	HistoryCapacity     int
	ConfidenceThreshold float64
	MaxFrameDimension   uint
	MaxFramePixels      int
	ListenAddress       string
	AutoStart           bool
	LoadTimeout         time.Duration
	PublishTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Labels:              entity.DefaultLabels,
		HistoryCapacity:     10,
		ConfidenceThreshold: 0.3,
		MaxFrameDimension:   imaging.DefaultMaxDimension,
		MaxFramePixels:      imaging.DefaultMaxPixels,
		ListenAddress:       ":5000",
		LoadTimeout:         2 * time.Minute,
		PublishTimeout:      3 * time.Second,
	}
}

type recognitionService struct {
	log       *logrus.Logger
	cfg       Config
	utils     utils.IUtils
	publisher redis.IRedis

	normalizer *imaging.Normalizer
	extractor  landmark.Extractor
	smoother   *Smoother
	transcript *transcriptBuilder

	stateMu sync.RWMutex
	state   entity.ServiceState
	model   classifier.Classifier
	loadErr error

	loader classifier.Loader

	// serializes start and stop
	opMu          sync.Mutex
	engine        Engine
	listener      net.Listener
	engineFactory EngineFactory
	// written under both opMu and stateMu; either is enough to read it
	closed bool

	bg sync.WaitGroup
}

func NewRecognitionService(
	log *logrus.Logger,
	cfg Config,
	extractor landmark.Extractor,
	loader classifier.Loader,
	publisher redis.IRedis,
	utils utils.IUtils,
) (IRecognitionService, error) {
	if len(cfg.Labels) == 0 {
		return nil, errors.New("label set is empty")
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold >= 1 {
		return nil, fmt.Errorf("confidence threshold %v out of range [0,1)", cfg.ConfidenceThreshold)
	}

	smoother, err := NewSmoother(cfg.HistoryCapacity)
	if err != nil {
		return nil, err
	}

	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultConfig().LoadTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}

	return &recognitionService{
		log:        log,
		cfg:        cfg,
		utils:      utils,
		publisher:  publisher,
		normalizer: imaging.NewNormalizerWithLimit(cfg.MaxFrameDimension, cfg.MaxFramePixels),
		extractor:  extractor,
		smoother:   smoother,
		transcript: newTranscriptBuilder(),
		loader:     loader,
	}, nil
}

func (s *recognitionService) SetEngineFactory(factory EngineFactory) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.engineFactory = factory
}

func (s *recognitionService) ResetHistory() {
	s.smoother.Clear()
	s.log.Info("Prediction history cleared")
}

// Close stops the inference listener, waits for background work and
// releases the model.
func (s *recognitionService) Close(ctx context.Context) error {
	s.opMu.Lock()
	s.stateMu.Lock()
	s.closed = true
	s.stateMu.Unlock()
	s.opMu.Unlock()

	_, stopErr := s.StopService(ctx)

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(stopErr, ctx.Err())
	}

	s.stateMu.Lock()
	model := s.model
	s.model = nil
	if s.state.ModelStatus == entity.ModelLoaded {
		s.state.ModelStatus = entity.ModelUnloaded
	}
	s.stateMu.Unlock()

	var closeErr error
	if model != nil {
		closeErr = model.Close()
	}
	return errors.Join(stopErr, closeErr)
}
