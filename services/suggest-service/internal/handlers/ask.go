package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/slotsuggest/libs/httpx"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/rag"
)

type askRequest struct {
	Question string `json:"question"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, h.schedulerDocs)
}

func (h *Handler) AskPatient(w http.ResponseWriter, r *http.Request) {
	if sub := subject(r); sub != "" {
		h.logger.Info("patient documents queried", "subject", sub, "request_id", httpx.RequestIDFromContext(r.Context()))
	}
	h.ask(w, r, h.patientDocs)
}

func (h *Handler) ask(w http.ResponseWriter, r *http.Request, corpus rag.Corpus) {
	var req askRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		httpx.WriteDetail(w, http.StatusUnprocessableEntity, "question is required")
		return
	}

	answer, err := h.answerer.Ask(r.Context(), corpus, question)
	if err != nil {
		if errors.Is(err, rag.ErrDocuments) {
			h.logger.Error("load documents failed", "corpus", corpus.Label, "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "failed to load documents")
			return
		}
		h.writeLLMError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, answer)
}
