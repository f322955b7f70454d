// Package landmark extracts hand landmark feature vectors from decoded frames.
package landmark

import (
	"context"
	"errors"
	"math"

	"PalmSpeak/pkg/imaging"
)

// Hand landmark layout follows the MediaPipe hand model.
const (
	Wrist         = 0
	MiddleMCP     = 9
	NumLandmarks  = 21
	FeatureLength = NumLandmarks * 3
)

var (
	ErrFeatureLength      = errors.New("feature vector has unexpected length")
	ErrDegenerateFeatures = errors.New("feature vector cannot be normalized")
)

type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Hand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

// Features flattens the landmarks as x0,y0,z0,x1,... in landmark order.
func (h Hand) Features() []float32 {
	out := make([]float32, 0, len(h.Points)*3)
	for _, p := range h.Points {
		out = append(out, float32(p.X), float32(p.Y), float32(p.Z))
	}
	return out
}

// Extractor reports the first detected hand in a frame. found is false when
// the frame contains no hand; that is an expected outcome, not an error.
type Extractor interface {
	Extract(ctx context.Context, frame *imaging.Frame) (hand Hand, found bool, err error)
	Close() error
}

// NormalizeFeatures scales the vector by its largest component, which is the
// normalization the classifier was trained with.
func NormalizeFeatures(features []float32) ([]float32, error) {
	if len(features) != FeatureLength {
		return nil, ErrFeatureLength
	}

	maxVal := features[0]
	for _, v := range features {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrDegenerateFeatures
		}
		if v > maxVal {
			maxVal = v
		}
	}

	divisor := float64(maxVal)
	if divisor == 0 || math.IsNaN(divisor) || math.IsInf(divisor, 0) {
		return nil, ErrDegenerateFeatures
	}

	out := make([]float32, len(features))
	for i, v := range features {
		out[i] = v / maxVal
	}
	return out, nil
}
