// Package api exposes the media procedures over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/mediavault/internal/auth"
	"github.com/dharsanguruparan/mediavault/internal/model"
)

// MediaProcedures is the surface served under /v1/media.
// *service.MediaService implements it.
type MediaProcedures interface {
	PresignUpload(ctx context.Context, req model.PresignRequest) (*model.PresignedUpload, error)
	PresignCustomKey(ctx context.Context, req model.CustomKeyRequest) (*model.PresignedUpload, error)
	GetMediaURL(ctx context.Context, key string) (*model.MediaURL, error)
	Save(ctx context.Context, in model.SaveMediaInput) (*model.MediaRecord, error)
	List(ctx context.Context, f model.ListFilter) ([]model.MediaView, error)
	Get(ctx context.Context, id string) (*model.MediaView, error)
	ToggleFavorite(ctx context.Context, id string) (*model.MediaRecord, error)
	Delete(ctx context.Context, id string) (*model.MediaRecord, error)
	Download(ctx context.Context, id string) (*model.DownloadLink, error)
}

// Objects is an optional signed object endpoint mounted next to the API,
// used when objects are kept on local disk. *storage.DiskObjects
// implements it.
type Objects interface {
	http.Handler
	Prefix() string
}

// Options configures a Server.
type Options struct {
	Address string
	AppMode string
	Objects Objects
	Logger  *zap.Logger
}

// Server exposes HTTP endpoints for the media vault.
type Server struct {
	media  MediaProcedures
	tokens *auth.Tokens
	opts   Options
	log    *zap.Logger
	engine *gin.Engine
	server *http.Server
	once   sync.Once
}

// New constructs a Server and registers its routes.
func New(media MediaProcedures, tokens *auth.Tokens, opts Options) *Server {
	switch opts.AppMode {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{media: media, tokens: tokens, opts: opts, log: log}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestIDMiddleware(), corsMiddleware(), loggingMiddleware(log))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"status": "ok"}))
	})

	if s.opts.Objects != nil {
		prefix := strings.TrimRight(s.opts.Objects.Prefix(), "/")
		s.engine.Any(prefix+"/*key", gin.WrapH(s.opts.Objects))
	}

	v1 := s.engine.Group("/v1/media", authMiddleware(s.tokens))
	v1.POST("/presign", s.presign)
	v1.POST("/presign/custom", s.presignCustom)
	v1.GET("/url", s.mediaURL)
	v1.POST("", s.save)
	v1.GET("", s.list)
	v1.GET("/:id", s.get)
	v1.POST("/:id/favorite", s.toggleFavorite)
	v1.DELETE("/:id", s.delete)
	v1.POST("/:id/download", s.download)
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler { return s.engine }

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.opts.Address,
			Handler:           s.engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", zap.String("address", s.opts.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
