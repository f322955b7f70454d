package recognitionService

import (
	"context"
	"sync"
	"time"

	"PalmSpeak/internal/entity"
	"github.com/sirupsen/logrus"
)

// transcriptBuilder types a letter each time the smoothed label changes.
type transcriptBuilder struct {
	mu   sync.Mutex
	text []rune
	last entity.Label
}

func newTranscriptBuilder() *transcriptBuilder {
	return &transcriptBuilder{last: entity.LabelNothing}
}

// observe reports whether label changed the transcript, and the text after it.
// nothing commits no text but lets the next letter repeat.
func (t *transcriptBuilder) observe(label entity.Label) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if label == t.last {
		return false, string(t.text)
	}
	t.last = label

	switch label {
	case entity.LabelNothing:
		return false, string(t.text)
	case entity.LabelSpace:
		t.text = append(t.text, ' ')
	case entity.LabelDelete:
		if len(t.text) > 0 {
			t.text = t.text[:len(t.text)-1]
		}
	default:
		t.text = append(t.text, []rune(label.String())...)
	}
	return true, string(t.text)
}

func (t *transcriptBuilder) snapshot() (string, entity.Label) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.text), t.last
}

func (t *transcriptBuilder) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = t.text[:0]
	t.last = entity.LabelNothing
}

func (s *recognitionService) Transcript() (string, entity.Label) {
	return s.transcript.snapshot()
}

func (s *recognitionService) ClearTranscript(ctx context.Context) error {
	s.transcript.reset()
	s.log.Info("Transcript cleared")
	return s.publisher.ClearTranscript(ctx)
}

// commitLetter feeds the smoothed label to the transcript and publishes the
// change in the background. It runs under the history lock and must not block.
func (s *recognitionService) commitLetter(label entity.Label, confidence float64) {
	changed, text := s.transcript.observe(label)
	if !changed || !s.publisher.Enabled() {
		return
	}

	event := entity.LetterEvent{
		Letter:     label,
		Confidence: confidence,
		Transcript: text,
		At:         time.Now().UTC(),
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
		defer cancel()

		if err := s.publisher.PublishLetter(ctx, event); err != nil {
			s.log.WithFields(logrus.Fields{
				"letter": event.Letter,
				"error":  err.Error(),
			}).Warn("Failed to publish letter event")
			return
		}
		if err := s.publisher.SaveTranscript(ctx, event.Transcript); err != nil {
			s.log.WithField("error", err.Error()).Warn("Failed to store transcript")
		}
	}()
}
