package recognitionService

import (
	"errors"
	"sync"

	"PalmSpeak/internal/entity"
)

var ErrInvalidCapacity = errors.New("history capacity must be at least 1")

// Smoother keeps the most recent samples and reports their majority label.
type Smoother struct {
	mu       sync.Mutex
	capacity int
	// ring buffer; start is the oldest sample
	samples []entity.Sample
	start   int
	size    int
}

func NewSmoother(capacity int) (*Smoother, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Smoother{
		capacity: capacity,
		samples:  make([]entity.Sample, capacity),
	}, nil
}

// Accept appends a sample, evicting the oldest when full.
func (s *Smoother) Accept(sample entity.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.acceptLocked(sample)
}

func (s *Smoother) acceptLocked(sample entity.Sample) {
	if s.size < s.capacity {
		s.samples[(s.start+s.size)%s.capacity] = sample
		s.size++
		return
	}
	s.samples[s.start] = sample
	s.start = (s.start + 1) % s.capacity
}

// Current returns the majority label over the history. Ties go to the label
// that reached the winning count first when scanning oldest to newest. The
// confidence is the mean over the winning label's samples.
func (s *Smoother) Current() (entity.Label, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentLocked()
}

func (s *Smoother) currentLocked() (entity.Label, float64) {
	if s.size == 0 {
		return entity.LabelNothing, 1.0
	}

	counts := make(map[entity.Label]int, s.size)
	sums := make(map[entity.Label]float64, s.size)

	var winner entity.Label
	best := 0
	for i := 0; i < s.size; i++ {
		sample := s.samples[(s.start+i)%s.capacity]
		counts[sample.Label]++
		sums[sample.Label] += sample.Confidence
		if counts[sample.Label] > best {
			best = counts[sample.Label]
			winner = sample.Label
		}
	}

	return winner, sums[winner] / float64(counts[winner])
}

// Observe accepts sample when it is non-nil and returns the resulting majority
// and history length. fn, if set, receives the majority before the lock is
// released, so its calls follow the order of history updates.
func (s *Smoother) Observe(sample *entity.Sample, fn func(entity.Label, float64)) (entity.Label, float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sample != nil {
		s.acceptLocked(*sample)
	}
	label, conf := s.currentLocked()
	if fn != nil {
		fn(label, conf)
	}
	return label, conf, s.size
}

func (s *Smoother) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.start = 0
	s.size = 0
}

func (s *Smoother) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

func (s *Smoother) Capacity() int {
	return s.capacity
}

// Samples returns the history oldest first.
func (s *Smoother) Samples() []entity.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.Sample, s.size)
	for i := range out {
		out[i] = s.samples[(s.start+i)%s.capacity]
	}
	return out
}
