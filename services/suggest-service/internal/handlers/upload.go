package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/md-rashed-zaman/slotsuggest/libs/httpx"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/storage"
)

type uploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteDetail(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		httpx.WriteDetail(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	name, err := storage.CleanName(header.Filename)
	switch {
	case errors.Is(err, storage.ErrNoFilename):
		httpx.WriteDetail(w, http.StatusBadRequest, "No file provided")
		return
	case errors.Is(err, storage.ErrUnsupportedType):
		httpx.WriteDetail(w, http.StatusBadRequest, "File type not supported. Allowed: .txt, .md")
		return
	case err != nil:
		httpx.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		httpx.WriteDetail(w, http.StatusInternalServerError, "Failed to save file: "+err.Error())
		return
	}
	if err := h.patientStore.Save(r.Context(), name, content); err != nil {
		h.logger.Error("save patient document failed", "file", name, "subject", subject(r), "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Failed to save file: "+err.Error())
		return
	}

	h.logger.Info("patient document uploaded", "file", name, "bytes", len(content), "subject", subject(r))
	httpx.WriteJSON(w, http.StatusOK, uploadResponse{
		Message:  fmt.Sprintf("File '%s' uploaded successfully", name),
		Filename: name,
	})
}
