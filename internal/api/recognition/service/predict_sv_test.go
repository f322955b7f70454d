package recognitionService

import (
	"context"
	"errors"
	"testing"

	"PalmSpeak/internal/api/recognition"
	"PalmSpeak/internal/entity"
	"PalmSpeak/pkg/landmark"
	"PalmSpeak/pkg/requestid"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func TestSubmitFrame_ModelUnavailable(t *testing.T) {
	f := newFixture(t, nil).withHand()

	_, err := f.svc.SubmitFrame(context.Background(), pngFrame(t))
	if !errors.Is(err, recognition.ErrModelUnavailable) {
		t.Fatalf("SubmitFrame() error = %v, want ErrModelUnavailable", err)
	}
	if f.extractor.Calls() != 0 {
		t.Errorf("extractor called %d times before the model loaded", f.extractor.Calls())
	}
}

func TestSubmitFrame_InvalidImageLeavesHistoryAlone(t *testing.T) {
	f := newFixture(t, nil).withHand().loaded(t)

	if _, err := f.svc.SubmitFrame(context.Background(), pngFrame(t)); err != nil {
		t.Fatalf("SubmitFrame() error = %v", err)
	}
	before := f.svc.smoother.Len()

	for _, payload := range [][]byte{nil, []byte("not an image")} {
		_, err := f.svc.SubmitFrame(context.Background(), payload)
		if !errors.Is(err, recognition.ErrInvalidImage) {
			t.Fatalf("SubmitFrame(%q) error = %v, want ErrInvalidImage", payload, err)
		}
	}

	if got := f.svc.smoother.Len(); got != before {
		t.Errorf("history length = %d, want %d", got, before)
	}
}

func TestSubmitFrame_NoHandAlwaysAcceptsNothing(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ConfidenceThreshold = 0.99 }).loaded(t)

	result, err := f.svc.SubmitFrame(context.Background(), pngFrame(t))
	if err != nil {
		t.Fatalf("SubmitFrame() error = %v", err)
	}

	if result.HandDetected {
		t.Error("HandDetected = true, want false")
	}
	if result.RawLabel != entity.LabelNothing || result.RawConfidence != 1.0 {
		t.Errorf("raw = (%s, %v), want (nothing, 1)", result.RawLabel, result.RawConfidence)
	}
	if result.Message != recognition.MessageNoHand {
		t.Errorf("Message = %q, want %q", result.Message, recognition.MessageNoHand)
	}
	if result.HistorySize != 1 {
		t.Errorf("HistorySize = %d, want 1", result.HistorySize)
	}
	if calls := f.classifier.callCount(); calls != 0 {
		t.Errorf("classifier called %d times on no-hand frame", calls)
	}
}

func TestSubmitFrame_ExtractorFailureIsNoHand(t *testing.T) {
	f := newFixture(t, nil).loaded(t)
	f.extractor.SetError(errors.New("landmark service unreachable"))

	result, err := f.svc.SubmitFrame(context.Background(), pngFrame(t))
	if err != nil {
		t.Fatalf("SubmitFrame() error = %v", err)
	}
	if result.HandDetected || result.RawLabel != entity.LabelNothing {
		t.Errorf("result = %+v, want no-hand result", result)
	}
	if f.svc.smoother.Len() != 1 {
		t.Errorf("history length = %d, want 1", f.svc.smoother.Len())
	}
}

func TestSubmitFrame_ThresholdIsStrict(t *testing.T) {
	idxB := labelIndex(t, "B")

	tests := []struct {
		name       string
		confidence float32
		wantLen    int
	}{
		{name: "exactly threshold is rejected", confidence: 0.3, wantLen: 0},
		{name: "just above threshold is accepted", confidence: 0.30001, wantLen: 1},
		{name: "below threshold is rejected", confidence: 0.1, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil).withHand().loaded(t)
			f.classifier.set(peaked(idxB, tt.confidence))

			result, err := f.svc.SubmitFrame(context.Background(), pngFrame(t))
			if err != nil {
				t.Fatalf("SubmitFrame() error = %v", err)
			}
			if result.RawLabel != "B" {
				t.Errorf("RawLabel = %s, want B", result.RawLabel)
			}
			if result.HistorySize != tt.wantLen || f.svc.smoother.Len() != tt.wantLen {
				t.Errorf("history length = %d, want %d", f.svc.smoother.Len(), tt.wantLen)
			}
			if tt.wantLen == 0 && result.SmoothedLabel != entity.LabelNothing {
				t.Errorf("SmoothedLabel = %s, want nothing from empty history", result.SmoothedLabel)
			}
		})
	}
}

func TestSubmitFrame_SmoothsAcrossFrames(t *testing.T) {
	f := newFixture(t, nil).withHand().loaded(t)
	idxA, idxB := labelIndex(t, "A"), labelIndex(t, "B")

	sequence := []struct {
		idx  int
		conf float32
	}{
		{idxA, 0.9}, {idxA, 0.5}, {idxB, 0.8},
	}

	var result *entity.InferenceResult
	for _, step := range sequence {
		f.classifier.set(peaked(step.idx, step.conf))
		var err error
		result, err = f.svc.SubmitFrame(context.Background(), pngFrame(t))
		if err != nil {
			t.Fatalf("SubmitFrame() error = %v", err)
		}
	}

	if result.RawLabel != "B" {
		t.Errorf("RawLabel = %s, want B", result.RawLabel)
	}
	if result.SmoothedLabel != "A" || !almostEqual(result.SmoothedConfidence, 0.7) {
		t.Errorf("smoothed = (%s, %v), want (A, 0.7)", result.SmoothedLabel, result.SmoothedConfidence)
	}
	if result.FrameID == "" {
		t.Error("FrameID is empty")
	}
}

func TestSubmitFrame_DegenerateFeaturesAreInvalid(t *testing.T) {
	f := newFixture(t, nil).loaded(t)

	zero := landmark.Hand{Points: make([]landmark.Point3D, landmark.NumLandmarks)}
	f.extractor.SetHand(&zero)

	_, err := f.svc.SubmitFrame(context.Background(), pngFrame(t))
	if !errors.Is(err, recognition.ErrInvalidImage) {
		t.Fatalf("SubmitFrame() error = %v, want ErrInvalidImage", err)
	}

	short := landmark.Hand{Points: make([]landmark.Point3D, 5)}
	f.extractor.SetHand(&short)
	if _, err := f.svc.SubmitFrame(context.Background(), pngFrame(t)); !errors.Is(err, recognition.ErrInvalidImage) {
		t.Fatalf("SubmitFrame() error = %v, want ErrInvalidImage for short vector", err)
	}
	if f.svc.smoother.Len() != 0 {
		t.Errorf("history length = %d, want 0", f.svc.smoother.Len())
	}
}

func TestSubmitFrame_LabelMismatch(t *testing.T) {
	f := newFixture(t, nil).withHand().loaded(t)
	f.classifier.set([]float32{0.5, 0.5})

	_, err := f.svc.SubmitFrame(context.Background(), pngFrame(t))
	if !errors.Is(err, recognition.ErrLabelMismatch) {
		t.Fatalf("SubmitFrame() error = %v, want ErrLabelMismatch", err)
	}
}

func TestSubmitFrame_ConcurrentSubmitters(t *testing.T) {
	f := newFixture(t, nil).withHand().loaded(t)

	const n = 50
	frame := pngFrame(t)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := f.svc.SubmitFrame(context.Background(), frame)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("SubmitFrame() error = %v", err)
		}
	}

	if got := f.svc.smoother.Len(); got != f.svc.smoother.Capacity() {
		t.Errorf("history length = %d, want %d", got, f.svc.smoother.Capacity())
	}
}

func TestWiden(t *testing.T) {
	if widen(0.3) != 0.3 {
		t.Errorf("widen(0.3) = %v, want 0.3", widen(0.3))
	}
	if !(widen(0.30001) > 0.3) {
		t.Errorf("widen(0.30001) = %v, want > 0.3", widen(0.30001))
	}
}

func TestSubmitFrame_LogsRequestID(t *testing.T) {
	f := newFixture(t, nil).withHand()

	logger, hook := logrustest.NewNullLogger()
	f.svc.log = logger

	f.loaded(t)
	f.extractor.SetError(errors.New("landmark service unreachable"))

	ctx := requestid.NewContext(context.Background(), "req-1")
	if _, err := f.svc.SubmitFrame(ctx, pngFrame(t)); err != nil {
		t.Fatalf("SubmitFrame() error = %v", err)
	}

	for _, entry := range hook.AllEntries() {
		if entry.Message != "Landmark extraction failed, treating frame as no hand" {
			continue
		}
		if got := entry.Data["request_id"]; got != "req-1" {
			t.Errorf("request_id = %v, want req-1", got)
		}
		if _, ok := entry.Data["frame_id"]; !ok {
			t.Error("frame_id missing from log entry")
		}
		return
	}
	t.Fatal("no log entry for the failed extraction")
}
