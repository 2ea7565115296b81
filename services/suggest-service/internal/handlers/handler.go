package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotsuggest/libs/auth"
	"github.com/md-rashed-zaman/slotsuggest/libs/httpx"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/events"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/llm"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/rag"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/storage"
)

type Normalizer interface {
	Normalize(ctx context.Context, text string) (llm.NormalizeResult, error)
}

type Explainer interface {
	Explain(ctx context.Context, candidates []slots.CandidateSlot, spec model.AvailabilitySpec) ([]string, error)
}

type Answerer interface {
	Ask(ctx context.Context, corpus rag.Corpus, question string) (rag.Answer, error)
}

type Options struct {
	Logger         *slog.Logger
	Normalizer     Normalizer
	Explainer      Explainer
	Answerer       Answerer
	SchedulerDocs  rag.Corpus
	PatientDocs    rag.Corpus
	PatientStore   storage.Store
	Publisher      events.Publisher
	MaxSlots       int
	MaxSpanDays    int
	MaxBodyBytes   int64
	MaxUploadBytes int64
	PublishTimeout time.Duration
}

type Handler struct {
	logger         *slog.Logger
	normalizer     Normalizer
	explainer      Explainer
	answerer       Answerer
	schedulerDocs  rag.Corpus
	patientDocs    rag.Corpus
	patientStore   storage.Store
	publisher      events.Publisher
	maxSlots       int
	maxSpanDays    int
	maxBodyBytes   int64
	maxUploadBytes int64
	publishTimeout time.Duration
	now            func() time.Time
	inflight       sync.WaitGroup
}

func New(opts Options) *Handler {
	h := &Handler{
		logger:         opts.Logger,
		normalizer:     opts.Normalizer,
		explainer:      opts.Explainer,
		answerer:       opts.Answerer,
		schedulerDocs:  opts.SchedulerDocs,
		patientDocs:    opts.PatientDocs,
		patientStore:   opts.PatientStore,
		publisher:      opts.Publisher,
		maxSlots:       opts.MaxSlots,
		maxSpanDays:    opts.MaxSpanDays,
		maxBodyBytes:   opts.MaxBodyBytes,
		maxUploadBytes: opts.MaxUploadBytes,
		publishTimeout: opts.PublishTimeout,
		now:            time.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.publisher == nil {
		h.publisher = events.NoopPublisher{}
	}
	if h.maxSlots <= 0 {
		h.maxSlots = 5
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = 1 << 20
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 10 << 20
	}
	if h.publishTimeout <= 0 {
		h.publishTimeout = 5 * time.Second
	}
	return h
}

// Register mounts every route on mux. patientAuth guards the patient document
// routes and may be nil. JSON routes are capped at MaxBodyBytes; /upload
// applies its own MaxUploadBytes limit.
func (h *Handler) Register(mux *http.ServeMux, patientAuth httpx.Middleware) {
	jsonBody := httpx.WithBodyLimit(h.maxBodyBytes)
	mux.HandleFunc("/health", httpx.AllowMethods(h.Health, http.MethodGet))
	mux.Handle("/suggest", httpx.Chain(httpx.AllowMethods(h.Suggest, http.MethodPost), jsonBody))
	mux.Handle("/ask", httpx.Chain(httpx.AllowMethods(h.Ask, http.MethodPost), jsonBody))
	mux.Handle("/ask_patient", httpx.Chain(httpx.AllowMethods(h.AskPatient, http.MethodPost), patientAuth, jsonBody))
	mux.Handle("/upload", httpx.Chain(httpx.AllowMethods(h.Upload, http.MethodPost), patientAuth))
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const apiKeyHint = "Invalid or missing API key. Set OPENAI_API_KEY in your environment."

// writeLLMError maps model client failures onto response codes: a missing
// key is 503, upstream and transport failures are 502.
func (h *Handler) writeLLMError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *llm.StatusError
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		httpx.WriteDetail(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &statusErr):
		msg := fmt.Sprintf("LLM API error (%d): ", statusErr.Code)
		if statusErr.Code == http.StatusUnauthorized {
			msg += apiKeyHint
		} else {
			msg += statusErr.Error()
		}
		httpx.WriteDetail(w, http.StatusBadGateway, msg)
	default:
		h.logger.Error("llm request failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteDetail(w, http.StatusBadGateway, "LLM request failed: "+err.Error())
	}
}

// writeDecodeError answers 413 for bodies over the route limit and 422 for
// anything else that fails to decode.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	httpx.WriteDetail(w, http.StatusUnprocessableEntity, "invalid json body: "+err.Error())
}

// subject is the bearer token subject on guarded routes, "" when the routes
// run without auth.
func subject(r *http.Request) string {
	if c, ok := auth.ClaimsFromContext(r.Context()); ok {
		return c.Sub
	}
	return ""
}
