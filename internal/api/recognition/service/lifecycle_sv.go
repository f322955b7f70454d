package recognitionService

import (
	"context"
	"errors"
	"fmt"
	"net"

	"PalmSpeak/internal/api/recognition"
	"PalmSpeak/internal/entity"
	"PalmSpeak/pkg/classifier"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoEngine = errors.New("inference engine factory not configured")
	ErrClosed   = errors.New("recognition service is closed")
)

func (s *recognitionService) State() entity.ServiceState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Health never fails. An unloaded model triggers a load attempt unless the
// service is closed.
func (s *recognitionService) Health() entity.Health {
	if s.State().ModelStatus == entity.ModelUnloaded {
		s.LoadModel()
	}

	s.stateMu.RLock()
	health := entity.Health{
		ServiceState:  s.state,
		HistoryLength: s.smoother.Len(),
	}
	if s.loadErr != nil {
		health.LastLoadError = s.loadErr.Error()
	}
	s.stateMu.RUnlock()

	return health
}

// LoadModel starts an asynchronous load unless one is running, the model is
// already loaded or the service is closed. The returned state reflects the
// request, not the result.
func (s *recognitionService) LoadModel() entity.ServiceState {
	s.stateMu.Lock()
	if s.closed {
		state := s.state
		s.stateMu.Unlock()
		return state
	}
	switch s.state.ModelStatus {
	case entity.ModelLoading, entity.ModelLoaded:
		state := s.state
		s.stateMu.Unlock()
		return state
	}
	s.state.ModelStatus = entity.ModelLoading
	// added before the lock is released so Close always waits for this load
	s.bg.Add(1)
	state := s.state
	s.stateMu.Unlock()

	s.log.Info("Loading classification model")

	go s.loadModel()

	return state
}

func (s *recognitionService) loadModel() {
	defer s.bg.Done()

	model, err := s.runLoader()

	s.stateMu.Lock()
	if err != nil {
		s.state.ModelStatus = entity.ModelLoadFailed
		s.loadErr = err
		s.stateMu.Unlock()

		s.log.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("Model load failed")
		return
	}
	s.model = model
	s.loadErr = nil
	s.state.ModelStatus = entity.ModelLoaded
	s.stateMu.Unlock()

	s.log.Info("Model loaded successfully")

	if s.cfg.AutoStart {
		if _, err := s.StartService(); err != nil {
			s.log.WithField("error", err.Error()).Error("Auto start failed")
		}
	}
}

// runLoader converts a panicking loader into an error so the status never
// stays Loading.
func (s *recognitionService) runLoader() (model classifier.Classifier, err error) {
	defer func() {
		if r := recover(); r != nil {
			model, err = nil, fmt.Errorf("model loader panicked: %v", r)
		}
	}()

	if s.loader == nil {
		return nil, errors.New("no model loader configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LoadTimeout)
	defer cancel()

	model, err = s.loader(ctx)
	if err == nil && model == nil {
		err = errors.New("model loader returned no model")
	}
	return model, err
}

// StartService binds the inference listener. It is a no-op while the server
// is starting or running and requires a loaded model.
func (s *recognitionService) StartService() (entity.ServiceState, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.closed {
		return s.State(), ErrClosed
	}

	s.stateMu.Lock()
	switch {
	case s.state.ServerStatus == entity.ServerRunning || s.state.ServerStatus == entity.ServerStarting:
		state := s.state
		s.stateMu.Unlock()
		return state, nil
	case s.state.ModelStatus != entity.ModelLoaded:
		state := s.state
		s.stateMu.Unlock()
		return state, recognition.ErrPreconditionNotMet
	case s.engineFactory == nil:
		state := s.state
		s.stateMu.Unlock()
		return state, ErrNoEngine
	}
	s.state.ServerStatus = entity.ServerStarting
	s.stateMu.Unlock()

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.setServerStatus(entity.ServerStopped)
		s.log.WithFields(logrus.Fields{
			"address": s.cfg.ListenAddress,
			"error":   err.Error(),
		}).Error("Failed to bind inference listener")
		return s.State(), fmt.Errorf("bind %s: %w", s.cfg.ListenAddress, err)
	}

	engine := s.engineFactory()
	s.engine = engine
	s.listener = ln

	s.bg.Add(1)
	go s.serve(engine, ln)

	s.setServerStatus(entity.ServerRunning)
	s.log.WithField("address", ln.Addr().String()).Info("Inference server started")

	return s.State(), nil
}

func (s *recognitionService) serve(engine Engine, ln net.Listener) {
	defer s.bg.Done()

	err := engine.Listener(ln)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	// an exit we did not ask for
	if s.state.ServerStatus == entity.ServerRunning {
		s.state.ServerStatus = entity.ServerStopped
		fields := logrus.Fields{}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.log.WithFields(fields).Error("Inference server exited unexpectedly")
	}
}

// StopService is idempotent. In-flight requests finish before it returns.
func (s *recognitionService) StopService(ctx context.Context) (entity.ServiceState, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stateMu.Lock()
	if s.state.ServerStatus == entity.ServerStopped {
		state := s.state
		s.stateMu.Unlock()
		s.engine = nil
		return state, nil
	}
	s.state.ServerStatus = entity.ServerStopRequested
	s.stateMu.Unlock()

	s.log.Info("Stopping inference server")

	var err error
	if s.engine != nil {
		err = s.engine.ShutdownWithContext(ctx)
		s.engine = nil
	}
	if s.listener != nil {
		// unblocks Serve if shutdown raced with it
		s.listener.Close()
		s.listener = nil
	}

	s.setServerStatus(entity.ServerStopped)

	if err != nil {
		s.log.WithField("error", err.Error()).Warn("Inference server shutdown did not complete cleanly")
		return s.State(), err
	}

	s.log.Info("Inference server stopped")
	return s.State(), nil
}

func (s *recognitionService) setServerStatus(status entity.ServerStatus) {
	s.stateMu.Lock()
	s.state.ServerStatus = status
	s.stateMu.Unlock()
}
