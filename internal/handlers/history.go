package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"damagedetect/internal/logger"
	"damagedetect/internal/models"
	"damagedetect/internal/services"
	"damagedetect/internal/services/storage"
)

// HistoryData is a paginated page of recorded inferences.
type HistoryData struct {
	Inferences  []models.Inference `json:"inferences"`
	Classes     []string           `json:"classes"`
	Size        int64              `json:"size"`
	Length      int                `json:"length"`
	TotalPages  int                `json:"totalPages"`
	CurrentPage int                `json:"currentPage"`
	Limit       int                `json:"pageSize"`
}

// HistoryHandler lists recorded inferences, newest first, optionally filtered by class.
func HistoryHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo := manager.History()
		if repo == nil {
			http.Error(w, "History is disabled", http.StatusNotFound)
			return
		}

		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := min(atoiDefault(q.Get("limit"), 24), 200)

		filter := &models.InferenceFilter{
			ClassName: q.Get("class"),
			Limit:     limit,
			Offset:    (page - 1) * limit,
		}

		inferences, err := repo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying inferences: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if inferences == nil {
			inferences = []models.Inference{}
		}

		total, err := repo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting inferences: %v", err)
			total = len(inferences)
		}

		classes, err := repo.GetAllClassNames()
		if err != nil {
			logger.Error("Failed to get class names: %v", err)
			classes = []string{}
		}

		var size int64
		if store := manager.Store(); store != nil {
			if size, err = store.Size(); err != nil {
				logger.Warning("Failed to measure image directory: %v", err)
			}
		}

		writeJSON(w, http.StatusOK, HistoryData{
			Inferences:  inferences,
			Classes:     classes,
			Size:        size,
			Length:      total,
			TotalPages:  (total + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}, logger)
	}
}

// HistoryImageHandler serves the annotated image named by the "name" query parameter.
func HistoryImageHandler(manager *services.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := manager.Store()
		if store == nil {
			http.Error(w, "History is disabled", http.StatusNotFound)
			return
		}

		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "Name parameter is required", http.StatusBadRequest)
			return
		}

		path, err := store.Path(name)
		if errors.Is(err, storage.ErrInvalidName) {
			http.Error(w, "Invalid image name", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, path)
	}
}

// DeleteInferenceHandler removes one recorded inference and its image.
func DeleteInferenceHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if manager.History() == nil {
			http.Error(w, "History is disabled", http.StatusNotFound)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Id parameter is required", http.StatusBadRequest)
			return
		}

		if err := manager.DeleteInference(id); err != nil {
			logger.Error("Failed to delete inference %s: %v", id, err)
			http.Error(w, "Failed to delete inference", http.StatusInternalServerError)
			return
		}
		logger.Info("Deleted inference %s", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ClearHistoryHandler deletes every recorded inference and stored image.
func ClearHistoryHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo := manager.History()
		if repo == nil {
			http.Error(w, "History is disabled", http.StatusNotFound)
			return
		}

		if err := repo.DeleteAll(); err != nil {
			logger.Error("Failed to clear history: %v", err)
			http.Error(w, "Failed to clear history", http.StatusInternalServerError)
			return
		}

		removed := 0
		if store := manager.Store(); store != nil {
			var err error
			if removed, err = store.Clear(); err != nil {
				logger.Error("Error clearing images: %v", err)
			}
		}
		logger.Info("History cleared, %d images removed", removed)
		w.WriteHeader(http.StatusNoContent)
	}
}

// atoiDefault converts s to a positive int or returns def.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
