package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"damagedetect/internal/config"
	"damagedetect/internal/logger"
	"damagedetect/internal/models"
	"damagedetect/internal/services"
)

// DetectResponse is the JSON result of an API inference.
type DetectResponse struct {
	ID         string             `json:"id"`
	Filename   string             `json:"filename"`
	Count      int                `json:"count"`
	Detections []models.Detection `json:"detections"`
	ElapsedMS  int64              `json:"elapsed_ms"`
	Annotated  string             `json:"annotated"` // base64 JPEG
}

// ErrorResponse carries the error kind so clients can react without parsing text.
type ErrorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// DetectAPIHandler is the JSON variant of the upload flow.
func DetectAPIHandler(manager *services.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Ready(); err != nil {
			writeError(w, err, logger)
			return
		}

		data, filename, err := readUpload(w, r, cfg.MaxUploadSize)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		outcome, err := manager.Detect(data, filename)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, DetectResponse{
			ID:         outcome.ID,
			Filename:   outcome.Filename,
			Count:      len(outcome.Result.Detections),
			Detections: outcome.Result.Detections,
			ElapsedMS:  outcome.Elapsed.Milliseconds(),
			Annotated:  base64.StdEncoding.EncodeToString(outcome.Annotated),
		}, logger)
	}
}

// StatusHandler reports which model is serving, or why none is.
func StatusHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.Status(), logger)
	}
}

func writeError(w http.ResponseWriter, err error, logger *logger.Logger) {
	writeJSON(w, statusFor(err), ErrorResponse{
		Kind:  models.KindOf(err).String(),
		Error: models.Cause(err),
	}, logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
