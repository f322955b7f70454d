package recognitionService

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PalmSpeak/internal/entity"
	"PalmSpeak/pkg/classifier"
	"PalmSpeak/pkg/landmark"
	"PalmSpeak/pkg/utils"
)

func TestTranscriptBuilder_Observe(t *testing.T) {
	tests := []struct {
		name   string
		labels []entity.Label
		want   string
	}{
		{name: "letters append on change", labels: []entity.Label{"H", "H", "H", "I"}, want: "HI"},
		{name: "space appends a blank", labels: []entity.Label{"A", "space", "B"}, want: "A B"},
		{name: "del removes the last rune", labels: []entity.Label{"A", "B", "del"}, want: "A"},
		{name: "del on empty text", labels: []entity.Label{"del", "A"}, want: "A"},
		{name: "nothing allows a repeated letter", labels: []entity.Label{"L", "nothing", "L"}, want: "LL"},
		{name: "repeated letter without pause is typed once", labels: []entity.Label{"L", "L", "L"}, want: "L"},
		{name: "only nothing", labels: []entity.Label{"nothing", "nothing"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTranscriptBuilder()
			for _, l := range tt.labels {
				b.observe(l)
			}
			if got, _ := b.snapshot(); got != tt.want {
				t.Errorf("transcript = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranscriptBuilder_ObserveReportsCommits(t *testing.T) {
	b := newTranscriptBuilder()

	steps := []struct {
		label       entity.Label
		wantChanged bool
	}{
		{"A", true},
		{"A", false},
		{"nothing", false},
		{"A", true},
		{"del", true},
	}
	for i, step := range steps {
		if changed, _ := b.observe(step.label); changed != step.wantChanged {
			t.Errorf("step %d observe(%s) changed = %v, want %v", i, step.label, changed, step.wantChanged)
		}
	}
}

func TestSubmitFrame_PublishesLetterChanges(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.HistoryCapacity = 1 }).withHand().loaded(t)
	idx := func(l entity.Label) int { return labelIndex(t, l) }

	for _, l := range []entity.Label{"H", "H", "I", "nothing", "I"} {
		f.classifier.set(peaked(idx(l), 0.9))
		if _, err := f.svc.SubmitFrame(context.Background(), pngFrame(t)); err != nil {
			t.Fatalf("SubmitFrame() error = %v", err)
		}
	}

	text, last := f.svc.Transcript()
	if text != "HII" || last != "I" {
		t.Errorf("Transcript() = (%q, %s), want (\"HII\", I)", text, last)
	}

	// publishing is asynchronous, so compare without order
	sorted := func() []entity.Label {
		got := f.publisher.letters()
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		return got
	}
	want := []entity.Label{"H", "I", "I"}
	deadline := time.Now().Add(2 * time.Second)
	for !reflect.DeepEqual(sorted(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("published letters = %v, want %v", sorted(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := f.svc.ClearTranscript(context.Background()); err != nil {
		t.Fatalf("ClearTranscript() error = %v", err)
	}
	if text, _ := f.svc.Transcript(); text != "" {
		t.Errorf("Transcript() after clear = %q", text)
	}
}

func TestSubmitFrame_TranscriptFollowsHistoryUnderConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCapacity = 1

	// alternate A and B so concurrent frames keep changing the majority
	var calls atomic.Int64
	loader := func(ctx context.Context) (classifier.Classifier, error) {
		return classifier.Func(func(features []float32) ([]float32, error) {
			return peaked(int(calls.Add(1)%2), 0.9), nil
		}), nil
	}

	extractor := landmark.NewMockExtractor()
	palm := landmark.OpenPalm()
	extractor.SetHand(&palm)

	svc, err := NewRecognitionService(quietLogger(), cfg, extractor, loader, &recordingPublisher{}, utils.New())
	if err != nil {
		t.Fatalf("NewRecognitionService() error = %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })

	svc.LoadModel()
	if st := waitForModel(t, svc); st != entity.ModelLoaded {
		t.Fatalf("model status = %s, want loaded", st)
	}

	frame := pngFrame(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := svc.SubmitFrame(context.Background(), frame); err != nil {
					t.Errorf("SubmitFrame() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	current, _ := svc.(*recognitionService).smoother.Current()
	if _, last := svc.Transcript(); last != current {
		t.Errorf("transcript last letter = %s, history majority = %s", last, current)
	}
}
