// Package classifier maps a normalized hand feature vector to a probability
// distribution over the sign label set.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

var (
	ErrInputSize     = errors.New("feature vector does not match model input size")
	ErrEmptyOutput   = errors.New("model produced an empty distribution")
	ErrClosed        = errors.New("classifier is closed")
	ErrInvalidLayout = errors.New("model metadata shape is invalid")
)

// Classifier returns one probability per label, in label order.
type Classifier interface {
	Classify(features []float32) ([]float32, error)
	Close() error
}

// Loader produces a ready classifier. It runs on the model-load goroutine.
type Loader func(ctx context.Context) (Classifier, error)

// Func adapts a plain function to the Classifier interface.
type Func func(features []float32) ([]float32, error)

func (f Func) Classify(features []float32) ([]float32, error) {
	return f(features)
}

func (f Func) Close() error {
	return nil
}

// Metadata describes the exported model. It is written next to the .onnx file.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	// Logits marks models exported without their final softmax layer.
	Logits bool `json:"logits,omitempty"`
}

func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m Metadata) Validate() error {
	if elements(m.InputShape) <= 0 || elements(m.OutputShape) <= 0 {
		return ErrInvalidLayout
	}
	if len(m.Classes) > 0 && int64(len(m.Classes)) != elements(m.OutputShape) {
		return fmt.Errorf("%w: %d classes for %d outputs", ErrInvalidLayout, len(m.Classes), elements(m.OutputShape))
	}
	return nil
}

func (m Metadata) InputSize() int {
	return int(elements(m.InputShape))
}

func (m Metadata) OutputSize() int {
	return int(elements(m.OutputShape))
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}

// ArgMax returns the index and value of the largest probability. The first
// index wins on ties.
func ArgMax(dist []float32) (int, float32, error) {
	if len(dist) == 0 {
		return 0, 0, ErrEmptyOutput
	}

	idx, best := 0, dist[0]
	for i, v := range dist[1:] {
		if v > best {
			idx, best = i+1, v
		}
	}
	return idx, best, nil
}

// Softmax converts logits into probabilities.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxVal := logits[0]
	for _, v := range logits {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
