package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mediaingest/internal/config"
	"mediaingest/internal/middleware"
	"mediaingest/internal/models"
	"mediaingest/internal/service"
)

type Ingester interface {
	Process(ctx context.Context, req models.UploadRequest) (service.Result, error)
}

type PhotoReader interface {
	GetByID(ctx context.Context, id string) (models.Photo, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Photo, error)
}

// Probe checks one dependency for the health endpoint.
type Probe func(ctx context.Context) error

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	pipeline Ingester
	photos   PhotoReader
	probes   map[string]Probe
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, pipeline Ingester, photos PhotoReader, probes map[string]Probe) HandlerSet {
	return HandlerSet{
		log:      log.With().Str("component", "http").Logger(),
		cfg:      cfg,
		pipeline: pipeline,
		photos:   photos,
		probes:   probes,
	}
}

// uploadRoutes maps a route segment to the purpose it ingests.
var uploadRoutes = map[string]models.MediaPurpose{
	"avatar":  models.PurposeAvatar,
	"post":    models.PurposePostMedia,
	"gallery": models.PurposeGallery,
	"banner":  models.PurposeProfileBanner,
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(h.cfg.Security.JWTAccessSecret))

	media := v1.Group("/media")
	media.Use(middleware.BodyLimit(h.cfg.HTTP.MaxBodyBytes))
	for segment, purpose := range uploadRoutes {
		media.POST("/"+segment, h.Upload(purpose))
	}

	v1.GET("/photos", h.ListPhotos)
	v1.GET("/photos/:id", h.GetPhoto)
}
