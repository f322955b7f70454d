package recognitionService

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"PalmSpeak/internal/api/recognition"
	"PalmSpeak/internal/entity"
	"PalmSpeak/pkg/classifier"
	"PalmSpeak/pkg/landmark"
	"PalmSpeak/pkg/requestid"
	"github.com/sirupsen/logrus"
)

// SubmitFrame runs one image through extraction, classification and
// smoothing. Only accepted samples change the history.
func (s *recognitionService) SubmitFrame(ctx context.Context, image []byte) (*entity.InferenceResult, error) {
	s.stateMu.RLock()
	model := s.model
	status := s.state.ModelStatus
	s.stateMu.RUnlock()

	if status != entity.ModelLoaded || model == nil {
		return nil, recognition.ErrModelUnavailable
	}

	frameID, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate frame id: %w", err)
	}

	frame, err := s.normalizer.Decode(image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recognition.ErrInvalidImage, err)
	}

	hand, found, err := s.extractor.Extract(ctx, frame)
	if err != nil {
		s.log.WithFields(frameFields(ctx, frameID)).WithField("error", err.Error()).Warn("Landmark extraction failed, treating frame as no hand")
		found = false
	}

	if !found {
		return s.noHand(frameID), nil
	}

	features, err := landmark.NormalizeFeatures(hand.Features())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recognition.ErrInvalidImage, err)
	}

	dist, err := model.Classify(features)
	if err != nil {
		return nil, fmt.Errorf("classify frame: %w", err)
	}
	if len(dist) != len(s.cfg.Labels) {
		return nil, fmt.Errorf("%w: %d probabilities for %d labels", recognition.ErrLabelMismatch, len(dist), len(s.cfg.Labels))
	}

	idx, p, err := classifier.ArgMax(dist)
	if err != nil {
		return nil, fmt.Errorf("classify frame: %w", err)
	}
	rawLabel := s.cfg.Labels[idx]
	rawConfidence := widen(p)

	var sample *entity.Sample
	if rawConfidence > s.cfg.ConfidenceThreshold {
		sample = &entity.Sample{Label: rawLabel, Confidence: rawConfidence}
	}
	label, confidence, size := s.smoother.Observe(sample, s.commitLetter)

	s.log.WithFields(frameFields(ctx, frameID)).WithFields(logrus.Fields{
		"raw_letter":     rawLabel,
		"raw_confidence": rawConfidence,
		"letter":         label,
		"confidence":     confidence,
	}).Debug("Frame classified")

	return &entity.InferenceResult{
		FrameID:            frameID,
		SmoothedLabel:      label,
		SmoothedConfidence: confidence,
		RawLabel:           rawLabel,
		RawConfidence:      rawConfidence,
		HistorySize:        size,
		HandDetected:       true,
	}, nil
}

func (s *recognitionService) noHand(frameID string) *entity.InferenceResult {
	label, confidence, size := s.smoother.Observe(&entity.Sample{Label: entity.LabelNothing, Confidence: 1.0}, s.commitLetter)

	return &entity.InferenceResult{
		FrameID:            frameID,
		SmoothedLabel:      label,
		SmoothedConfidence: confidence,
		RawLabel:           entity.LabelNothing,
		RawConfidence:      1.0,
		HistorySize:        size,
		HandDetected:       false,
		Message:            recognition.MessageNoHand,
	}
}

func frameFields(ctx context.Context, frameID string) logrus.Fields {
	fields := logrus.Fields{"frame_id": frameID}
	if id, ok := requestid.FromContext(ctx); ok {
		fields["request_id"] = id
	}
	return fields
}

// widen converts a float32 probability to the float64 with the same shortest
// decimal form, so 0.3f compares equal to a 0.3 threshold.
func widen(v float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	if err != nil {
		return float64(v)
	}
	return f
}
