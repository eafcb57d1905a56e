// Package api contains all endpoints available
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bitwise74/photo-api/config"
	"bitwise74/photo-api/internal"
	"bitwise74/photo-api/middleware"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type API struct {
	Router *gin.Engine
	Deps   *internal.Deps

	cache         *persist.MemoryStore
	maxUploadSize int64
}

// NewRouter connects every dependency from the loaded configuration and
// builds the router on top of them.
func NewRouter(ctx context.Context) (*API, error) {
	d, err := internal.NewDeps(ctx)
	if err != nil {
		return nil, err
	}

	if err := d.SubscribeEvents(); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to subscribe to storage events, %w", err)
	}

	return New(d), nil
}

// New builds the router around already assembled dependencies.
func New(d *internal.Deps) *API {
	a := &API{
		Deps:          d,
		cache:         persist.NewMemoryStore(time.Minute),
		maxUploadSize: config.UploadMaxBytes(),
	}

	if a.maxUploadSize <= 0 {
		a.maxUploadSize = 50 << 20
	}

	router := gin.New()
	a.Router = router

	origins := viper.GetStringSlice("host.cors_origins")
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == http.MethodHead
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
		middleware.NewMetricsMiddleware(),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	router.MaxMultipartMemory = 8 << 20

	// GET /metrics			-> Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// POST /hooks/s3		-> Bucket notifications from S3 or MinIO
	router.POST("/hooks/s3",
		middleware.NewSecretMiddleware(viper.GetString("events.webhook_secret")),
		middleware.BodySizeLimiter(5<<20),
		a.HookS3,
	)

	// GET|HEAD /api/health		-> Used to check if the server is alive
	router.GET("/api/health", a.Health)
	router.HEAD("/api/health", a.Health)

	auth := middleware.NewAuthMiddleware(d.Verifier)
	limiter := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		Window:      viper.GetDuration("rate_limit.window"),
		MaxRequests: viper.GetInt("rate_limit.max_requests"),
		Store:       d.RateStore,
	})

	main := router.Group("/api", limiter)
	{
		// GET /api/share/:token	-> Resolves a public share link
		main.GET("/share/:token", a.ShareResolve)
	}

	images := main.Group("/images", auth)
	{
		// GET /api/images		-> Lists a folder straight from the bucket
		images.GET("", a.ImageList)

		// GET /api/images/query	-> Lists a folder from the index in a chosen order
		images.GET("/query", a.ImageQuery)

		// GET /api/images/url		-> Presigned download URL
		images.GET("/url", a.ImageURL)

		// POST /api/images/upload-url	-> Presigned upload URL
		images.POST("/upload-url", middleware.BodySizeLimiter(1<<20), a.ImageUploadURL)

		// POST /api/images		-> Uploads an image through the API
		images.POST("", middleware.BodySizeLimiter(a.maxUploadSize+(1<<20)), a.ImageUpload)

		// DELETE /api/images		-> Deletes an image together with its derivatives
		images.DELETE("", a.ImageDelete)

		// POST /api/images/derivatives	-> Generates missing derivatives of an image
		images.POST("/derivatives", middleware.BodySizeLimiter(1<<20), a.ImageDerivatives)
	}

	folders := main.Group("/folders", auth)
	{
		// GET /api/folders		-> Lists sub-folders
		folders.GET("", a.FolderList)

		// POST /api/folders		-> Creates an empty folder
		folders.POST("", middleware.BodySizeLimiter(1<<20), a.FolderCreate)
	}

	tags := main.Group("/tags", auth)
	{
		// GET /api/tags		-> Tags of one image
		tags.GET("", a.TagFetch)

		// PUT /api/tags		-> Replaces the tags of one image
		tags.PUT("", middleware.BodySizeLimiter(1<<20), a.TagUpdate)

		// GET /api/tags/counts	-> Usage count of every tag
		tags.GET("/counts", a.cacheFor(30), a.TagCounts)
	}

	shares := main.Group("/shares", auth)
	{
		// POST /api/shares		-> Creates a share link
		shares.POST("", middleware.BodySizeLimiter(1<<20), a.ShareCreate)

		// GET /api/shares		-> Lists the caller's active share links
		shares.GET("", a.ShareList)

		// DELETE /api/shares/:token	-> Revokes a share link
		shares.DELETE("/:token", a.ShareDelete)
	}

	return a
}

func (a *API) cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(a.cache, time.Second*time.Duration(sec))
}
