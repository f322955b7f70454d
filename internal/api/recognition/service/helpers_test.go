package recognitionService

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"PalmSpeak/internal/entity"
	"PalmSpeak/pkg/classifier"
	"PalmSpeak/pkg/landmark"
	"PalmSpeak/pkg/utils"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func pngFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	img.Set(5, 5, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// peaked returns a distribution over the default labels with p at idx.
func peaked(idx int, p float32) []float32 {
	n := len(entity.DefaultLabels)
	dist := make([]float32, n)
	rest := (1 - p) / float32(n-1)
	for i := range dist {
		dist[i] = rest
	}
	dist[idx] = p
	return dist
}

func labelIndex(t *testing.T, label entity.Label) int {
	t.Helper()
	for i, l := range entity.DefaultLabels {
		if l == label {
			return i
		}
	}
	t.Fatalf("label %s not in default set", label)
	return -1
}

// scriptedClassifier returns whatever distribution is set next.
type scriptedClassifier struct {
	mu     sync.Mutex
	dist   []float32
	err    error
	calls  int
	closed bool
}

func (c *scriptedClassifier) set(dist []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dist = dist
}

func (c *scriptedClassifier) Classify(features []float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([]float32, len(c.dist))
	copy(out, c.dist)
	return out, nil
}

func (c *scriptedClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *scriptedClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type recordingPublisher struct {
	mu          sync.Mutex
	events      []entity.LetterEvent
	transcripts []string
	cleared     int
}

func (p *recordingPublisher) PublishLetter(ctx context.Context, event entity.LetterEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) SaveTranscript(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcripts = append(p.transcripts, text)
	return nil
}

func (p *recordingPublisher) ClearTranscript(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
	return nil
}

func (p *recordingPublisher) Enabled() bool { return true }
func (p *recordingPublisher) Close() error  { return nil }

func (p *recordingPublisher) letters() []entity.Label {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.Label, len(p.events))
	for i, e := range p.events {
		out[i] = e.Letter
	}
	return out
}

type fixture struct {
	svc        *recognitionService
	extractor  *landmark.MockExtractor
	classifier *scriptedClassifier
	publisher  *recordingPublisher
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		extractor:  landmark.NewMockExtractor(),
		classifier: &scriptedClassifier{dist: peaked(0, 0.9)},
		publisher:  &recordingPublisher{},
	}

	loader := func(ctx context.Context) (classifier.Classifier, error) {
		return f.classifier, nil
	}

	svc, err := NewRecognitionService(quietLogger(), cfg, f.extractor, loader, f.publisher, utils.New())
	if err != nil {
		t.Fatalf("NewRecognitionService() error = %v", err)
	}
	f.svc = svc.(*recognitionService)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.svc.Close(ctx)
	})
	return f
}

func (f *fixture) withHand() *fixture {
	palm := landmark.OpenPalm()
	f.extractor.SetHand(&palm)
	return f
}

func waitForModel(t *testing.T, svc IRecognitionService) entity.ModelStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := svc.State().ModelStatus; st != entity.ModelLoading && st != entity.ModelUnloaded {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("model still %s after 5s", svc.State().ModelStatus)
	return entity.ModelUnloaded
}

func (f *fixture) loaded(t *testing.T) *fixture {
	t.Helper()
	f.svc.LoadModel()
	if st := waitForModel(t, f.svc); st != entity.ModelLoaded {
		t.Fatalf("model status = %s, want loaded", st)
	}
	return f
}

// fakeEngine blocks in Listener until shut down.
type fakeEngine struct {
	mu       sync.Mutex
	served   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	shutdown int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{served: make(chan struct{}), stop: make(chan struct{})}
}

func (e *fakeEngine) Listener(ln net.Listener) error {
	close(e.served)
	<-e.stop
	return ln.Close()
}

func (e *fakeEngine) ShutdownWithContext(ctx context.Context) error {
	e.mu.Lock()
	e.shutdown++
	e.mu.Unlock()
	e.stopOnce.Do(func() { close(e.stop) })
	return nil
}

func (e *fakeEngine) shutdowns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}
