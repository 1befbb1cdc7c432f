package prediction

import (
	"errors"
	"fmt"
)

// Label is the canonical classification outcome.
type Label string

const (
	Benign    Label = "Benign"
	Malignant Label = "Malignant"
)

// ErrUnsupportedOutputShape indicates the classifier emitted an output the
// interpreter has no convention for.
var ErrUnsupportedOutputShape = errors.New("unsupported classifier output shape")

// Result is the canonical {label, confidence} pair derived from raw model
// output. Confidence is always the probability mass of the chosen label.
type Result struct {
	Label      Label     `json:"label"`
	Confidence float32   `json:"confidence"`
	Raw        []float32 `json:"raw_output"`
}

// Interpret converts raw classifier output into a Result. Two conventions are
// supported: a two-element softmax [P(benign), P(malignant)], or a single
// sigmoid value read as P(malignant). The model behind the classifier is
// swappable, so this is the only place that changes if its output convention
// does.
func Interpret(raw []float32) (Result, error) {
	switch len(raw) {
	case 2:
		result := Result{Label: Benign, Confidence: raw[0], Raw: raw}
		if raw[1] > raw[0] {
			result.Label = Malignant
			result.Confidence = raw[1]
		}
		return result, nil
	case 1:
		v := raw[0]
		if v > 0.5 {
			return Result{Label: Malignant, Confidence: v, Raw: raw}, nil
		}
		return Result{Label: Benign, Confidence: 1 - v, Raw: raw}, nil
	default:
		return Result{}, fmt.Errorf("%w: got %d values", ErrUnsupportedOutputShape, len(raw))
	}
}
