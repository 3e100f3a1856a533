// Package moderation submits sanitized images to an external vision
// classifier and turns its output into an APPROVE, REJECT or NEEDS_REVIEW
// verdict. Classifier failures are resolved by a FailurePolicy chosen once at
// startup.
package moderation

import (
	"context"
	"errors"

	"mediaingest/internal/models"
)

var (
	// ErrUnavailable covers transport failures, timeouts and non-2xx responses.
	ErrUnavailable = errors.New("moderation service unavailable")
	// ErrMalformed means the service answered but the answer could not be read.
	ErrMalformed = errors.New("moderation response malformed")
	// ErrAmbiguous means the answer was readable but not usable.
	ErrAmbiguous = errors.New("moderation result ambiguous")
	ErrDisabled  = errors.New("moderation disabled")
)

type Input struct {
	Data    []byte
	MIME    string
	UserID  string
	Purpose models.MediaPurpose
}

// Assessment is the raw classifier answer before thresholds are applied.
// Confidence is nil when the answer omitted it.
type Assessment struct {
	Category    string   `json:"category"`
	Confidence  *float64 `json:"confidence"`
	Explanation string   `json:"reason"`
}

type Classifier interface {
	Classify(ctx context.Context, in Input) (Assessment, error)
}

// DisabledClassifier always fails with ErrDisabled, leaving the decision to the
// failure policy. Configuration refuses it in production-grade environments.
type DisabledClassifier struct{}

func (DisabledClassifier) Classify(context.Context, Input) (Assessment, error) {
	return Assessment{}, ErrDisabled
}
