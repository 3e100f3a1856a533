package models

type ModerationDecision string

const (
	DecisionApprove     ModerationDecision = "APPROVE"
	DecisionReject      ModerationDecision = "REJECT"
	DecisionNeedsReview ModerationDecision = "NEEDS_REVIEW"
)

// ModerationVerdict is the interpreted outcome of a moderation call.
// PolicyApplied is set when the verdict was substituted by the failure policy
// instead of coming from the moderation service.
type ModerationVerdict struct {
	Decision      ModerationDecision
	Category      string
	Confidence    float64
	Reason        string
	PolicyApplied bool
	Warning       string
}

func (v ModerationVerdict) Rejected() bool {
	return v.Decision == DecisionReject
}
