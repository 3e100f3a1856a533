package moderation

import (
	"errors"
	"fmt"

	"mediaingest/internal/config"
	"mediaingest/internal/models"
)

const (
	PolicyClosed = "closed"
	PolicyOpen   = "open"

	// CategoryUnavailable labels verdicts produced by a failure policy.
	CategoryUnavailable = "moderation_unavailable"
)

// FailurePolicy decides the verdict when the classifier fails or its answer
// cannot be interpreted.
type FailurePolicy interface {
	Name() string
	Resolve(cause error) models.ModerationVerdict
}

// FailClosed rejects content it could not moderate.
type FailClosed struct{}

func (FailClosed) Name() string { return PolicyClosed }

func (FailClosed) Resolve(cause error) models.ModerationVerdict {
	return models.ModerationVerdict{
		Decision:      models.DecisionReject,
		Category:      CategoryUnavailable,
		Reason:        failureReason(cause),
		PolicyApplied: true,
	}
}

// FailOpen approves content it could not moderate and flags the verdict.
type FailOpen struct{}

func (FailOpen) Name() string { return PolicyOpen }

func (FailOpen) Resolve(cause error) models.ModerationVerdict {
	return models.ModerationVerdict{
		Decision:      models.DecisionApprove,
		Category:      CategoryUnavailable,
		Reason:        failureReason(cause),
		PolicyApplied: true,
		Warning:       "approved without moderation: " + failureReason(cause),
	}
}

func failureReason(cause error) string {
	switch {
	case errors.Is(cause, ErrDisabled):
		return "moderation disabled"
	case errors.Is(cause, ErrMalformed):
		return "moderation response unreadable"
	case errors.Is(cause, ErrAmbiguous):
		return "moderation result ambiguous"
	}
	return "moderation service unavailable"
}

// PolicyFor selects the failure policy for a deployment. Production-grade
// environments are always fail-closed; an explicit override may only tighten
// the policy there.
func PolicyFor(cfg *config.AppConfig) (FailurePolicy, error) {
	override := cfg.Moderation.FailurePolicy
	if cfg.ProductionGrade() {
		if override == PolicyOpen {
			return nil, &config.ConfigurationError{
				Field: "moderation.failurepolicy",
				Err:   fmt.Errorf("fail-open is not allowed in %s", cfg.Environment),
			}
		}
		return FailClosed{}, nil
	}

	switch override {
	case PolicyClosed:
		return FailClosed{}, nil
	case PolicyOpen, "":
		return FailOpen{}, nil
	}
	return nil, &config.ConfigurationError{
		Field: "moderation.failurepolicy",
		Err:   fmt.Errorf("unknown policy %q", override),
	}
}
