package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotsuggest/libs/config"
	"github.com/md-rashed-zaman/slotsuggest/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotsuggest/libs/otel"
	"github.com/md-rashed-zaman/slotsuggest/libs/runtime"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/cache"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/events"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/handlers"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/llm"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/rag"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "suggest-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("suggest-service stopped", "err", err)
		os.Exit(1)
	}
}

// run owns every deferred cleanup so that failures unwind them before main
// exits.
func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8000")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var checks []runtime.ReadyCheck

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	patientStore, storeChecks, closeStore, err := openPatientStore(ctx, logger)
	if err != nil {
		return fmt.Errorf("patient document store: %w", err)
	}
	defer closeStore()
	checks = append(checks, storeChecks...)

	var publisher events.Publisher = events.NoopPublisher{}
	if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, config.String("KAFKA_SUGGEST_TOPIC", events.DefaultSuggestTopic))
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		logger.Info("suggestion events enabled", "brokers", brokers)
	} else {
		logger.Warn("suggestion events disabled (no kafka brokers configured)")
	}
	defer func() { _ = publisher.Close() }()

	maxSpanDays := config.Int("MAX_DATE_SPAN_DAYS", model.DefaultMaxDateSpanDays)
	maxSlots := config.Int("MAX_SLOTS", 5)

	chat := llm.NewClient(llm.ConfigFromEnv())
	normOpts := llm.NormalizerOptions{MaxSpanDays: maxSpanDays, Logger: logger}
	if rdb != nil {
		normOpts.Cache = cache.NewSpecCache(rdb, config.Seconds("NORMALIZE_CACHE_TTL_SECONDS", time.Hour), "normalize")
	}

	h := handlers.New(handlers.Options{
		Logger:     logger,
		Normalizer: llm.NewNormalizer(chat, normOpts),
		Explainer:  llm.NewExplainer(chat),
		Answerer:   rag.NewAnswerer(chat, rag.DefaultTopK),
		SchedulerDocs: rag.Corpus{
			Label:  "scheduler documentation",
			Source: storage.NewFSStore(config.String("DOCS_DIR", "data/documents")),
		},
		PatientDocs:    rag.Corpus{Label: "patient documents", Source: patientStore},
		PatientStore:   patientStore,
		Publisher:      publisher,
		MaxSlots:       maxSlots,
		MaxSpanDays:    maxSpanDays,
		MaxBodyBytes:   int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		MaxUploadBytes: int64(config.Int("UPLOAD_LIMIT_BYTES", 10<<20)),
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	h.Register(mux, patientAuth(logger))

	if err := startGrpcServer(ctx, logger, maxSlots, maxSpanDays); err != nil {
		return fmt.Errorf("grpc server: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler(logger, mux, rdb), service),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
	h.WaitPublishes()
	return nil
}
