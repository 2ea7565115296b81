package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/slotsuggest/libs/httpx"
	otelx "github.com/md-rashed-zaman/slotsuggest/libs/otel"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/events"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type suggestRequest struct {
	AvailabilityText       string                  `json:"availability_text"`
	StructuredAvailability *model.AvailabilitySpec `json:"structured_availability"`
}

type suggestedSlot struct {
	StartISO    string `json:"start_iso"`
	EndISO      string `json:"end_iso"`
	ProviderID  string `json:"provider_id"`
	Explanation string `json:"explanation"`
}

type suggestResponse struct {
	Slots               []suggestedSlot         `json:"slots"`
	RawAvailabilityUsed *model.AvailabilitySpec `json:"raw_availability_used"`
}

const missingExplanation = "Slot fits availability."

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := r.Context()
	var (
		spec   model.AvailabilitySpec
		source string
	)
	switch {
	case req.StructuredAvailability != nil:
		spec, source = *req.StructuredAvailability, "structured"
		if err := model.Validate(spec, h.maxSpanDays); err != nil {
			writeValidationError(w, err)
			return
		}
	case strings.TrimSpace(req.AvailabilityText) != "":
		source = "text"
		res, err := h.normalizer.Normalize(ctx, req.AvailabilityText)
		if err != nil {
			h.writeLLMError(w, r, err)
			return
		}
		if !res.OK() {
			h.logger.Warn("availability normalization failed",
				"attempts", res.Attempts,
				"reason", res.Failure,
				"trace_id", otelx.TraceID(ctx),
			)
			httpx.WriteDetail(w, http.StatusBadGateway, "Could not normalize availability text: "+res.Failure)
			return
		}
		spec = res.Spec
	default:
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "Either availability_text or structured_availability is required")
		return
	}

	candidates, err := h.computeSlots(ctx, spec)
	if err != nil {
		var tzErr *slots.TimezoneError
		if errors.As(err, &tzErr) {
			httpx.WriteDetail(w, http.StatusUnprocessableEntity, tzErr.Error())
			return
		}
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := suggestResponse{Slots: []suggestedSlot{}, RawAvailabilityUsed: &spec}
	if len(candidates) == 0 {
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}

	explanations, err := h.explainer.Explain(ctx, candidates, spec)
	if err != nil {
		h.writeLLMError(w, r, err)
		return
	}
	for i, c := range candidates {
		wire := c.Wire()
		explanation := missingExplanation
		if i < len(explanations) {
			explanation = explanations[i]
		}
		resp.Slots = append(resp.Slots, suggestedSlot{
			StartISO:    wire.StartISO,
			EndISO:      wire.EndISO,
			ProviderID:  wire.ProviderID,
			Explanation: explanation,
		})
	}

	h.publishSuggested(ctx, events.NewSlotsSuggested(spec.ProviderID, spec.Timezone, source, candidates, h.now()))
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) computeSlots(ctx context.Context, spec model.AvailabilitySpec) ([]slots.CandidateSlot, error) {
	_, span := otelx.Tracer("suggest-service").Start(ctx, "slots.compute")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider_id", spec.ProviderID),
		attribute.String("timezone", spec.Timezone),
		attribute.Int("max_slots", h.maxSlots),
	)

	candidates, err := slots.ComputeSlots(spec, h.maxSlots)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("slots", len(candidates)))
	return candidates, nil
}

// publishSuggested sends the event in the background; failures are logged
// and never affect the response.
func (h *Handler) publishSuggested(ctx context.Context, evt events.SlotsSuggested) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.publishTimeout)
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer cancel()
		if err := h.publisher.PublishSlotsSuggested(pubCtx, evt); err != nil {
			h.logger.Warn("publish slots suggested failed", "err", err, "event_id", evt.EventID)
		}
	}()
}

// WaitPublishes blocks until every background publish has returned. Call it
// after the HTTP server has stopped and before closing the publisher.
func (h *Handler) WaitPublishes() {
	h.inflight.Wait()
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": verr.Fields})
		return
	}
	httpx.WriteDetail(w, http.StatusUnprocessableEntity, err.Error())
}
