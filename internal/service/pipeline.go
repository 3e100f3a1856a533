package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mediaingest/internal/media/normalizer"
	"mediaingest/internal/media/validator"
	"mediaingest/internal/metrics"
	"mediaingest/internal/models"
	"mediaingest/internal/storage"
)

// Stage is a state of the ingestion state machine.
type Stage string

const (
	StageValidate  Stage = "VALIDATE"
	StageNormalize Stage = "NORMALIZE"
	StageModerate  Stage = "MODERATE"
	StageUpload    Stage = "UPLOAD"
	StagePersist   Stage = "PERSIST"
	StageDone      Stage = "DONE"
	StageFailed    Stage = "FAILED"
)

type Validator interface {
	Validate(req models.UploadRequest) (models.ValidationOutcome, error)
}

type Normalizer interface {
	Normalize(data []byte, mimeType string) (models.ProcessedImage, error)
}

type Moderator interface {
	Moderate(ctx context.Context, data []byte, mimeType, userID string, purpose models.MediaPurpose) models.ModerationVerdict
}

type BlobStore interface {
	Bucket() string
	Store(ctx context.Context, data []byte, objectName, mimeType string) (string, error)
}

type Recorder interface {
	Persist(ctx context.Context, p models.NewPhoto) (models.Photo, error)
}

type EventPublisher interface {
	PublishIngested(ctx context.Context, photo models.Photo) error
}

type Dependencies struct {
	Validator  Validator
	Normalizer Normalizer
	Moderator  Moderator
	Store      BlobStore
	Recorder   Recorder
	// Events is optional.
	Events EventPublisher
}

// ModerationSummary is the client-facing part of a verdict.
type ModerationSummary struct {
	Decision      models.ModerationDecision `json:"decision"`
	Category      string                    `json:"category"`
	Confidence    float64                   `json:"confidence"`
	PendingReview bool                      `json:"pendingReview"`
	Warning       string                    `json:"warning,omitempty"`
}

type Result struct {
	PhotoID              string            `json:"photoId"`
	URL                  string            `json:"url"`
	OriginalSize         int64             `json:"originalSize"`
	ProcessedSize        int64             `json:"processedSize"`
	SizeReductionPercent float64           `json:"sizeReductionPercent"`
	Width                int               `json:"width"`
	Height               int               `json:"height"`
	FinalMIMEType        string            `json:"finalMimeType"`
	OriginalMIMEType     string            `json:"originalMimeType"`
	Moderation           ModerationSummary `json:"moderationSummary"`
	TraceID              string            `json:"traceId"`
}

const (
	eventTimeout = 2 * time.Second

	rejectedByPolicyDetail = "content_policy"
)

// Pipeline runs VALIDATE, NORMALIZE, MODERATE, UPLOAD and PERSIST strictly in
// order. It holds no per-request state and is shared by every upload route.
type Pipeline struct {
	deps   Dependencies
	log    zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewPipeline(deps Dependencies, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		deps:   deps,
		log:    log.With().Str("component", "pipeline").Logger(),
		tracer: otel.Tracer("mediaingest/service"),
		now:    time.Now,
	}
}

// run carries the state of one Process call.
type run struct {
	p       *Pipeline
	req     models.UploadRequest
	caller  context.Context
	work    context.Context
	log     zerolog.Logger
	current Stage
}

// Process ingests one upload. Any failure is returned as *Error.
//
// External calls run on a context detached from the caller's cancellation so
// that a client disconnect never aborts a half-finished upload or insert;
// each call has its own timeout instead. A disconnect is only honoured
// between stages.
func (p *Pipeline) Process(ctx context.Context, req models.UploadRequest) (Result, error) {
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("trace_id", req.TraceID),
		attribute.String("purpose", string(req.Purpose)),
	))
	defer span.End()

	r := &run{
		p:      p,
		req:    req,
		caller: ctx,
		work:   context.WithoutCancel(ctx),
		log: p.log.With().
			Str("trace_id", req.TraceID).
			Str("purpose", string(req.Purpose)).
			Str("user_id", req.UserID).
			Logger(),
	}

	result, err := r.execute()
	if err != nil {
		var serr *Error
		if errors.As(err, &serr) {
			span.SetStatus(codes.Error, string(serr.Category))
			metrics.RecordResult(string(req.Purpose), string(serr.Category))
			r.log.Warn().
				Str("stage", string(StageFailed)).
				Str("failed_stage", string(serr.Stage)).
				Str("category", string(serr.Category)).
				Bool("retryable", serr.Retryable).
				Msg("pipeline failed")
		}
		return Result{}, err
	}

	metrics.RecordResult(string(req.Purpose), "ok")
	r.log.Info().
		Str("stage", string(StageDone)).
		Str("photo_id", result.PhotoID).
		Int64("original_size", result.OriginalSize).
		Int64("processed_size", result.ProcessedSize).
		Msg("pipeline completed")
	return result, nil
}

func (r *run) execute() (Result, error) {
	req := r.req
	if !req.Purpose.Valid() {
		return Result{}, r.fail(CategoryValidation, "unknown media purpose", "purpose", nil)
	}

	var outcome models.ValidationOutcome
	err := r.stage(StageValidate, func(context.Context) error {
		var err error
		outcome, err = r.p.deps.Validator.Validate(req)
		if err != nil {
			var verr *validator.Error
			if errors.As(err, &verr) {
				return r.fail(CategoryValidation, verr.Reason, verr.Check, err)
			}
			return r.fail(CategoryValidation, "invalid upload", "", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	var processed models.ProcessedImage
	err = r.stage(StageNormalize, func(context.Context) error {
		var err error
		processed, err = r.p.deps.Normalizer.Normalize(req.Data, outcome.MediaType)
		var decErr *normalizer.DecodeError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &decErr):
			return r.fail(CategoryValidation, "image data could not be decoded", validator.CheckDecode, err)
		case errors.Is(err, normalizer.ErrTooManyFrames):
			return r.fail(CategoryValidation, "animation has too many frames", "frames", err)
		}
		return r.fail(CategoryInternal, "image processing failed", "", err)
	})
	if err != nil {
		return Result{}, err
	}

	var verdict models.ModerationVerdict
	err = r.stage(StageModerate, func(ctx context.Context) error {
		verdict = r.p.deps.Moderator.Moderate(ctx, processed.Data, processed.MIME, req.UserID, req.Purpose)
		metrics.RecordModeration(string(verdict.Decision), verdict.PolicyApplied)
		r.log.Info().
			Str("stage", string(StageModerate)).
			Str("decision", string(verdict.Decision)).
			Str("category", verdict.Category).
			Float64("confidence", verdict.Confidence).
			Bool("policy_applied", verdict.PolicyApplied).
			Str("warning", verdict.Warning).
			Msg("moderation verdict")
		if verdict.Rejected() {
			detail := verdict.Category
			if verdict.PolicyApplied {
				// Substituted verdicts must not reveal which dependency failed.
				detail = rejectedByPolicyDetail
			}
			return r.fail(CategoryModerationRejected, "content rejected by moderation", detail, nil)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	objectName := storage.NewObjectName(req.Purpose, processed.Extension, r.p.now())
	var url string
	err = r.stage(StageUpload, func(ctx context.Context) error {
		var err error
		url, err = r.p.deps.Store.Store(ctx, processed.Data, objectName, processed.MIME)
		if err != nil {
			var terr *storage.TransientError
			e := r.fail(CategoryInternal, "upload failed, try again later", "", err)
			e.Retryable = errors.As(err, &terr)
			return e
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	var photo models.Photo
	err = r.stage(StagePersist, func(ctx context.Context) error {
		var err error
		photo, err = r.p.deps.Recorder.Persist(ctx, models.NewPhoto{
			UserID:           req.UserID,
			Purpose:          req.Purpose,
			Bucket:           r.p.deps.Store.Bucket(),
			ObjectName:       objectName,
			URL:              url,
			OriginalSize:     int64(len(req.Data)),
			ProcessedSize:    int64(len(processed.Data)),
			Width:            processed.Width,
			Height:           processed.Height,
			MIMEType:         processed.MIME,
			OriginalMIMEType: outcome.MediaType,
			Moderation:       verdict,
			TraceID:          req.TraceID,
		})
		if err != nil {
			return r.fail(CategoryInternal, "internal error", "", err)
		}
		return nil
	})
	if err != nil {
		// The blob is stored but has no record.
		r.log.Warn().Str("orphan_object", objectName).Str("bucket", r.p.deps.Store.Bucket()).Msg("orphaned blob")
		return Result{}, err
	}

	r.publish(photo)
	metrics.AddBytesSaved(photo.OriginalSize - photo.ProcessedSize)

	return Result{
		PhotoID:              photo.ID,
		URL:                  photo.URL,
		OriginalSize:         photo.OriginalSize,
		ProcessedSize:        photo.ProcessedSize,
		SizeReductionPercent: reductionPercent(photo.OriginalSize, photo.ProcessedSize),
		Width:                photo.Width,
		Height:               photo.Height,
		FinalMIMEType:        photo.MIMEType,
		OriginalMIMEType:     photo.OriginalMIMEType,
		Moderation: ModerationSummary{
			Decision:      verdict.Decision,
			Category:      verdict.Category,
			Confidence:    verdict.Confidence,
			PendingReview: verdict.Decision == models.DecisionNeedsReview,
			Warning:       verdict.Warning,
		},
		TraceID: req.TraceID,
	}, nil
}

// stage runs fn as one step of the state machine, logging its start and end.
// No stage starts once the caller has gone away.
func (r *run) stage(name Stage, fn func(ctx context.Context) error) error {
	r.current = name
	if err := r.caller.Err(); err != nil {
		return r.fail(CategoryCanceled, "request canceled", "", err)
	}

	ctx, span := r.p.tracer.Start(r.work, "pipeline."+string(name))
	defer span.End()

	start := time.Now()
	r.log.Info().Str("stage", string(name)).Msg("stage started")

	err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveStage(string(name), "error", elapsed)
		evt := r.log.Warn()
		var serr *Error
		if errors.As(err, &serr) && serr.Category == CategoryInternal {
			evt = r.log.Error()
		}
		evt.Err(errors.Unwrap(err)).
			Str("stage", string(name)).
			Dur("duration", elapsed).
			Msg("stage failed")
		return err
	}

	metrics.ObserveStage(string(name), "ok", elapsed)
	r.log.Info().Str("stage", string(name)).Dur("duration", elapsed).Msg("stage completed")
	return nil
}

func (r *run) fail(category Category, message, detail string, cause error) *Error {
	return &Error{
		TraceID:  r.req.TraceID,
		Category: category,
		Stage:    r.current,
		Message:  message,
		Detail:   detail,
		cause:    cause,
	}
}

func (r *run) publish(photo models.Photo) {
	if r.p.deps.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.work, eventTimeout)
	defer cancel()
	if err := r.p.deps.Events.PublishIngested(ctx, photo); err != nil {
		r.log.Warn().Err(err).Str("photo_id", photo.ID).Msg("publish ingest event failed")
	}
}

func reductionPercent(original, processed int64) float64 {
	if original <= 0 {
		return 0
	}
	pct := float64(original-processed) / float64(original) * 100
	return math.Round(pct*100) / 100
}
