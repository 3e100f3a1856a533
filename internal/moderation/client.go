package moderation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaingest/internal/config"
	"mediaingest/internal/models"
)

type Client struct {
	classifier    Classifier
	policy        FailurePolicy
	timeout       time.Duration
	blockAt       float64
	reviewAt      float64
	zeroTolerance map[string]struct{}
	log           zerolog.Logger
}

func NewClient(classifier Classifier, policy FailurePolicy, cfg config.ModerationConfig, log zerolog.Logger) *Client {
	zt := make(map[string]struct{}, len(cfg.ZeroTolerance))
	for _, c := range cfg.ZeroTolerance {
		zt[normalizeCategory(c)] = struct{}{}
	}
	return &Client{
		classifier:    classifier,
		policy:        policy,
		timeout:       cfg.Timeout,
		blockAt:       cfg.ThresholdBlock,
		reviewAt:      cfg.ThresholdReview,
		zeroTolerance: zt,
		log:           log.With().Str("component", "moderation").Logger(),
	}
}

func (c *Client) Policy() FailurePolicy {
	return c.policy
}

// Moderate classifies one image. It never returns an error: classifier
// failures, timeouts and ambiguous answers are resolved by the failure policy.
func (c *Client) Moderate(ctx context.Context, data []byte, mimeType, userID string, purpose models.MediaPurpose) models.ModerationVerdict {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	assessment, err := c.classifier.Classify(ctx, Input{
		Data:    data,
		MIME:    mimeType,
		UserID:  userID,
		Purpose: purpose,
	})
	if err == nil {
		var verdict models.ModerationVerdict
		verdict, err = c.interpret(assessment)
		if err == nil {
			return verdict
		}
	}

	verdict := c.policy.Resolve(err)
	evt := c.log.Warn()
	if verdict.Rejected() {
		evt = c.log.Error()
	}
	evt.Err(err).
		Str("policy", c.policy.Name()).
		Str("decision", string(verdict.Decision)).
		Str("user_id", userID).
		Str("purpose", string(purpose)).
		Msg("moderation failed, applying failure policy")
	return verdict
}

func (c *Client) interpret(a Assessment) (models.ModerationVerdict, error) {
	category := normalizeCategory(a.Category)
	if category == "" {
		return models.ModerationVerdict{}, fmt.Errorf("%w: empty category", ErrAmbiguous)
	}
	var confidence float64
	if a.Confidence != nil {
		confidence = *a.Confidence
		if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
			return models.ModerationVerdict{}, fmt.Errorf("%w: confidence %v out of range", ErrAmbiguous, confidence)
		}
	}

	verdict := models.ModerationVerdict{
		Category:   category,
		Confidence: confidence,
		Reason:     a.Explanation,
	}
	switch {
	case category == "safe" || category == "none":
		verdict.Decision = models.DecisionApprove
	case c.isZeroTolerance(category):
		verdict.Decision = models.DecisionReject
	case a.Confidence == nil:
		// An unsafe label without a score cannot be placed against the thresholds.
		return models.ModerationVerdict{}, fmt.Errorf("%w: no confidence for %q", ErrAmbiguous, category)
	case confidence >= c.blockAt:
		verdict.Decision = models.DecisionReject
	case confidence >= c.reviewAt:
		verdict.Decision = models.DecisionNeedsReview
	default:
		verdict.Decision = models.DecisionApprove
	}
	return verdict, nil
}

func (c *Client) isZeroTolerance(category string) bool {
	_, ok := c.zeroTolerance[category]
	return ok
}

func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
