package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mediaingest/internal/middleware"
	"mediaingest/internal/models"
	"mediaingest/internal/repository"
	"mediaingest/internal/service"
)

// statusClientClosedRequest is nginx's code for a client that went away.
const statusClientClosedRequest = 499

type errorBody struct {
	Category  service.Category `json:"category"`
	Message   string           `json:"message"`
	Detail    string           `json:"detail,omitempty"`
	TraceID   string           `json:"traceId"`
	Retryable bool             `json:"retryable"`
}

type photoResponse struct {
	ID                   string                    `json:"id"`
	Purpose              models.MediaPurpose       `json:"purpose"`
	URL                  string                    `json:"url"`
	OriginalSize         int64                     `json:"originalSize"`
	ProcessedSize        int64                     `json:"processedSize"`
	Width                int                       `json:"width"`
	Height               int                       `json:"height"`
	MIMEType             string                    `json:"mimeType"`
	OriginalMIMEType     string                    `json:"originalMimeType"`
	ModerationDecision   models.ModerationDecision `json:"moderationDecision"`
	ModerationCategory   string                    `json:"moderationCategory"`
	ModerationConfidence float64                   `json:"moderationConfidence"`
	CreatedAt            time.Time                 `json:"createdAt"`
}

func toPhotoResponse(p models.Photo) photoResponse {
	return photoResponse{
		ID:                   p.ID,
		Purpose:              p.Purpose,
		URL:                  p.URL,
		OriginalSize:         p.OriginalSize,
		ProcessedSize:        p.ProcessedSize,
		Width:                p.Width,
		Height:               p.Height,
		MIMEType:             p.MIMEType,
		OriginalMIMEType:     p.OriginalMIMEType,
		ModerationDecision:   p.ModerationDecision,
		ModerationCategory:   p.ModerationCategory,
		ModerationConfidence: p.ModerationConfidence,
		CreatedAt:            p.CreatedAt,
	}
}

func (h HandlerSet) Upload(purpose models.MediaPurpose) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := middleware.RequestIDFrom(c)

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeError(c, http.StatusRequestEntityTooLarge, errorBody{
					Category: service.CategoryValidation,
					Message:  "request body too large",
					Detail:   "size",
					TraceID:  traceID,
				})
				return
			}
			h.writeError(c, http.StatusBadRequest, errorBody{
				Category: service.CategoryValidation,
				Message:  "multipart field \"file\" is required",
				Detail:   "file",
				TraceID:  traceID,
			})
			return
		}
		defer file.Close()

		// Reading one byte past the limit is enough for the size check to fail.
		maxBytes := h.cfg.Upload.MaxBytes
		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			h.log.Error().Err(err).Str("trace_id", traceID).Msg("read upload failed")
			h.writeError(c, http.StatusBadRequest, errorBody{
				Category: service.CategoryValidation,
				Message:  "could not read upload",
				TraceID:  traceID,
			})
			return
		}

		declaredSize := header.Size
		if declaredSize > maxBytes {
			declaredSize = 0
		}

		result, err := h.pipeline.Process(c.Request.Context(), models.UploadRequest{
			Data:         data,
			DeclaredMIME: header.Header.Get("Content-Type"),
			DeclaredSize: declaredSize,
			Filename:     header.Filename,
			UserID:       middleware.UserIDFrom(c),
			TraceID:      traceID,
			Purpose:      purpose,
		})
		if err != nil {
			h.writePipelineError(c, traceID, err)
			return
		}

		c.JSON(http.StatusCreated, result)
	}
}

func (h HandlerSet) GetPhoto(c *gin.Context) {
	photo, err := h.photos.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil && !errors.Is(err, repository.ErrPhotoNotFound) {
		h.log.Error().Err(err).Str("photo_id", c.Param("id")).Msg("get photo failed")
		h.writeError(c, http.StatusInternalServerError, errorBody{
			Category: service.CategoryInternal,
			Message:  "internal error",
			TraceID:  middleware.RequestIDFrom(c),
		})
		return
	}
	// Photos of other users are indistinguishable from missing ones.
	if err != nil || photo.UserID != middleware.UserIDFrom(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo_not_found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"photo": toPhotoResponse(photo)})
}

func (h HandlerSet) ListPhotos(c *gin.Context) {
	limit := queryInt(c, "limit", 20, 1, 100)
	offset := queryInt(c, "offset", 0, 0, 1<<20)

	photos, err := h.photos.ListByUser(c.Request.Context(), middleware.UserIDFrom(c), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list photos failed")
		h.writeError(c, http.StatusInternalServerError, errorBody{
			Category: service.CategoryInternal,
			Message:  "internal error",
			TraceID:  middleware.RequestIDFrom(c),
		})
		return
	}

	items := make([]photoResponse, 0, len(photos))
	for _, p := range photos {
		items = append(items, toPhotoResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(c *gin.Context, key string, def, min, max int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func (h HandlerSet) writePipelineError(c *gin.Context, traceID string, err error) {
	var serr *service.Error
	if !errors.As(err, &serr) {
		h.log.Error().Err(err).Str("trace_id", traceID).Msg("unexpected pipeline error")
		h.writeError(c, http.StatusInternalServerError, errorBody{
			Category: service.CategoryInternal,
			Message:  "internal error",
			TraceID:  traceID,
		})
		return
	}

	h.writeError(c, statusFor(serr), errorBody{
		Category:  serr.Category,
		Message:   serr.Message,
		Detail:    serr.Detail,
		TraceID:   serr.TraceID,
		Retryable: serr.Retryable,
	})
}

func statusFor(err *service.Error) int {
	switch err.Category {
	case service.CategoryValidation:
		return http.StatusBadRequest
	case service.CategoryModerationRejected:
		return http.StatusUnprocessableEntity
	case service.CategoryCanceled:
		return statusClientClosedRequest
	}
	if err.Retryable {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h HandlerSet) writeError(c *gin.Context, status int, body errorBody) {
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
