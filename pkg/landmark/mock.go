package landmark

import (
	"context"
	"sync"

	"PalmSpeak/pkg/imaging"
)

// MockExtractor returns pre-configured results. Tests use it in place of the
// landmark service.
type MockExtractor struct {
	mu    sync.Mutex
	hand  *Hand
	err   error
	calls int
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// SetHand makes Extract report hand. A nil hand means "no hand detected".
func (m *MockExtractor) SetHand(hand *Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hand = hand
}

func (m *MockExtractor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockExtractor) Extract(ctx context.Context, frame *imaging.Frame) (Hand, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return Hand{}, false, m.err
	}
	if m.hand == nil {
		return Hand{}, false, nil
	}
	return *m.hand, true, nil
}

func (m *MockExtractor) Close() error {
	return nil
}

// OpenPalm returns a plausible right-hand open palm in image coordinates.
func OpenPalm() Hand {
	pts := []Point3D{
		{0.50, 0.80, 0.00},
		{0.55, 0.75, 0.02}, {0.62, 0.70, 0.03}, {0.68, 0.65, 0.03}, {0.73, 0.60, 0.03},
		{0.55, 0.68, 0.00}, {0.57, 0.55, 0.00}, {0.58, 0.45, 0.00}, {0.58, 0.35, 0.00},
		{0.50, 0.66, 0.00}, {0.50, 0.52, 0.00}, {0.50, 0.40, 0.00}, {0.50, 0.28, 0.00},
		{0.45, 0.68, 0.00}, {0.43, 0.55, 0.00}, {0.42, 0.45, 0.00}, {0.42, 0.35, 0.00},
		{0.40, 0.70, 0.00}, {0.37, 0.60, 0.00}, {0.35, 0.50, 0.00}, {0.34, 0.42, 0.00},
	}
	return Hand{Points: pts, Handedness: "Right", Score: 0.95}
}
