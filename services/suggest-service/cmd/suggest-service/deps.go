package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotsuggest/libs/auth"
	"github.com/md-rashed-zaman/slotsuggest/libs/config"
	"github.com/md-rashed-zaman/slotsuggest/libs/db"
	"github.com/md-rashed-zaman/slotsuggest/libs/httpx"
	"github.com/md-rashed-zaman/slotsuggest/libs/runtime"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

const patientCorpus = "patient"

// openPatientStore builds the DOCUMENT_STORE backend for uploaded patient
// documents along with its readiness checks and cleanup.
func openPatientStore(ctx context.Context, logger *slog.Logger) (storage.Store, []runtime.ReadyCheck, func(), error) {
	noop := func() {}
	switch kind := strings.ToLower(config.String("DOCUMENT_STORE", "fs")); kind {
	case "fs":
		dir := config.String("PATIENT_DOCS_DIR", "data/patient_docs")
		logger.Info("patient documents on filesystem", "dir", dir)
		return storage.NewFSStore(dir), nil, noop, nil

	case "postgres":
		url, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, nil, noop, err
		}
		pool, err := db.Open(ctx, url, db.Options{})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("open postgres: %w", err)
		}
		store := storage.NewPostgresStore(pool, patientCorpus)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, noop, fmt.Errorf("ensure documents schema: %w", err)
		}
		logger.Info("patient documents in postgres")
		return store, []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}, pool.Close, nil

	case "minio":
		cfg := storage.MinIOConfig{
			Endpoint:  config.String("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: config.String("MINIO_ACCESS_KEY", ""),
			SecretKey: config.String("MINIO_SECRET_KEY", ""),
			Bucket:    config.String("MINIO_BUCKET", "patient-docs"),
			UseSSL:    config.Bool("MINIO_USE_SSL", false),
		}
		client, err := storage.NewMinIOClient(cfg)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("minio client: %w", err)
		}
		store := storage.NewMinIOStore(client, cfg.Bucket, config.String("MINIO_PREFIX", patientCorpus))
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, nil, noop, err
		}
		logger.Info("patient documents in minio", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
		return store, []runtime.ReadyCheck{{Name: "minio", Check: store.ReadyCheck}}, noop, nil

	default:
		return nil, nil, noop, fmt.Errorf("DOCUMENT_STORE must be fs, postgres or minio (got %q)", kind)
	}
}

// patientAuth returns bearer-token middleware when a secret or JWKS URL is
// configured, nil otherwise.
func patientAuth(logger *slog.Logger) httpx.Middleware {
	secret := config.String("PATIENT_DOCS_JWT_SECRET", "")
	jwksURL := config.String("JWKS_URL", "")
	if secret == "" && jwksURL == "" {
		logger.Warn("patient document endpoints are unauthenticated")
		return nil
	}
	v := auth.Verifier{Secret: secret}
	if jwksURL != "" {
		v.JWKS = auth.NewJWKSClient(jwksURL, config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute))
	}
	return v.Require
}

func rateLimit(logger *slog.Logger, rdb *redis.Client) httpx.Middleware {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		logger.Info("rate limiting enabled (redis)", "per_minute", perMinute)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute)
	return httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
}
