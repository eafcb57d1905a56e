// Package internal assembles the long lived dependencies shared by the
// HTTP server and the migrate command.
package internal

import (
	"context"
	"fmt"

	"bitwise74/photo-api/aws"
	"bitwise74/photo-api/cloudflare"
	"bitwise74/photo-api/db"
	"bitwise74/photo-api/index"
	"bitwise74/photo-api/middleware"
	"bitwise74/photo-api/minio"
	"bitwise74/photo-api/security"
	"bitwise74/photo-api/service"
	"bitwise74/photo-api/storage"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Deps struct {
	DB         *gorm.DB
	Store      storage.Store
	Index      *index.Index
	Verifier   security.Verifier
	RateStore  middleware.RateLimitStore
	Generator  *service.Generator
	Images     *service.ImageService
	Tags       *service.TagRegistry
	Shares     *service.ShareService
	Events     *service.EventRouter
	Reconciler *service.Reconciler

	closers []func()
}

// NewStore connects to the backend selected by storage.type.
func NewStore(ctx context.Context) (storage.Store, error) {
	switch t := viper.GetString("storage.type"); t {
	case "s3":
		return aws.NewS3(ctx)
	case "r2":
		return cloudflare.NewR2(ctx)
	case "minio":
		return minio.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", t)
	}
}

// NewDeps connects everything the server needs. ctx bounds the lifetime of
// background work such as JWKS refreshes, not just construction.
func NewDeps(ctx context.Context) (*Deps, error) {
	database, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index database, %w", err)
	}

	store, err := NewStore(ctx)
	if err != nil {
		db.Close(database)
		return nil, fmt.Errorf("failed to initialize object store, %w", err)
	}

	d := Assemble(database, store, newVerifier(ctx))

	if url := viper.GetString("rate_limit.redis_url"); url != "" {
		rs, err := middleware.NewRedisRateStore(ctx, url)
		if err != nil {
			d.Close()
			return nil, err
		}

		d.RateStore = rs
		d.closers = append(d.closers, func() { rs.Close() })
	} else {
		ms := middleware.NewMemoryRateStore()
		d.RateStore = ms
		d.closers = append(d.closers, ms.Close)
	}

	return d, nil
}

// Assemble builds the services on top of already connected backends.
func Assemble(database *gorm.DB, store storage.Store, verifier security.Verifier) *Deps {
	idx := index.New(database)
	gen := service.NewGenerator(store, viper.GetInt64("derivatives.max_source_bytes"))
	width := viper.GetInt("tags.probe_width")

	return &Deps{
		DB:         database,
		Store:      store,
		Index:      idx,
		Verifier:   verifier,
		Generator:  gen,
		Images:     service.NewImageService(store, idx, gen, width, viper.GetDuration("presign.default_expiry")),
		Tags:       service.NewTagRegistry(store, idx, width),
		Shares:     service.NewShareService(database, store, viper.GetInt("share.max_days")),
		Events:     service.NewEventRouter(store, gen, idx, viper.GetInt("events.concurrency")),
		Reconciler: service.NewReconciler(store, gen, idx, width),
	}
}

func newVerifier(ctx context.Context) security.Verifier {
	cfg := security.VerifierConfig{
		Region:     viper.GetString("auth.region"),
		UserPoolID: viper.GetString("auth.user_pool_id"),
		ClientID:   viper.GetString("auth.client_id"),
		Issuer:     viper.GetString("auth.issuer"),
		JWKSURL:    viper.GetString("auth.jwks_url"),
	}

	return security.NewLazyVerifier(func() (security.Verifier, error) {
		return security.NewCognitoVerifier(ctx, cfg)
	})
}

// SubscribeEvents starts the NATS feed when events.nats_url is set.
func (d *Deps) SubscribeEvents() error {
	url := viper.GetString("events.nats_url")
	if url == "" {
		return nil
	}

	sub, err := service.SubscribeEvents(url, viper.GetString("events.nats_subject"), d.Events)
	if err != nil {
		return err
	}

	d.closers = append(d.closers, func() {
		if err := sub.Close(); err != nil {
			zap.L().Warn("Failed to drain NATS subscription", zap.Error(err))
		}
	})

	return nil
}

// Close releases everything opened by NewDeps, newest first.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}

	db.Close(d.DB)
}
