package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/payvat/vat-extraction-service/internal/db"
	"github.com/payvat/vat-extraction-service/internal/errtrack"
	"github.com/payvat/vat-extraction-service/internal/models"
	"github.com/payvat/vat-extraction-service/internal/services"
	"github.com/payvat/vat-extraction-service/internal/storage"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// Handler handles HTTP requests for document processing
type Handler struct {
	config    *models.Config
	log       *zap.Logger
	validator *services.MultiMethodValidator
	tracker   *errtrack.Tracker
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, log *zap.Logger, validator *services.MultiMethodValidator, tracker *errtrack.Tracker) *Handler {
	return &Handler{
		config:    config,
		log:       log,
		validator: validator,
		tracker:   tracker,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Main endpoints
	router.HandleFunc("/api/process-document", h.ProcessDocument).Methods("POST")
	router.HandleFunc("/api/extractions", h.GetExtractions).Methods("GET")

	// Extraction CRUD
	router.HandleFunc("/api/extractions/{id}", h.GetExtraction).Methods("GET")
	router.HandleFunc("/api/extractions/{id}", h.DeleteExtraction).Methods("DELETE")

	// Statistics
	router.HandleFunc("/api/stats", h.GetStats).Methods("GET")

	// Error tracking
	router.HandleFunc("/api/errors/analytics", h.GetErrorAnalytics).Methods("GET")
	router.HandleFunc("/api/errors/patterns", h.GetErrorPatterns).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Memory    MemoryStats       `json:"memory"`
	Database  ServiceStatus     `json:"database"`
	Storage   ServiceStatus     `json:"storage"`
	AI        map[string]string `json:"ai"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database: h.checkDatabase(),
		Storage:  h.checkStorage(),
		AI: map[string]string{
			"defaultProvider": h.config.AI.DefaultProvider,
		},
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase() ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL via PgBouncer",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// ProcessDocument accepts a document upload, runs every applicable
// extraction method and returns the reconciled result.
func (h *Handler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
		return
	}

	// Accept both "file" and "document" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("document")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' or 'document' field)")
			return
		}
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	category := r.FormValue("category")

	doc := &models.Document{
		Data:     buf.Bytes(),
		MimeType: contentType,
		FileName: header.Filename,
		Category: category,
	}

	// Upload original to MinIO (if configured). Storage is optional:
	// a failed upload never blocks extraction.
	var documentURL string
	if storage.Client != nil {
		filename := fmt.Sprintf("%s_%s%s",
			time.Now().Format("20060102_150405"),
			uuid.New().String()[:8],
			storage.GetFileExtension(contentType),
		)
		documentURL, err = storage.UploadDocument(
			ctx,
			category,
			filename,
			bytes.NewReader(doc.Data),
			int64(len(doc.Data)),
			contentType,
		)
		if err != nil {
			h.log.Warn("failed to upload document to MinIO", zap.Error(err))
			documentURL = ""
		}
	}

	result, err := h.validator.Validate(ctx, doc)
	totalDuration := time.Since(start).Seconds()

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrNoExtraction) {
			status = http.StatusUnprocessableEntity
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":       false,
			"error":         err.Error(),
			"totalDuration": totalDuration,
		})
		return
	}

	// Persist the flattened result. Same warn-only policy as storage:
	// the caller still gets the extraction even if the insert fails.
	var saved *db.Extraction
	if db.Pool != nil {
		ext := db.NewExtraction(header.Filename, category, documentURL, result)
		if err := db.SaveExtraction(ctx, ext); err != nil {
			h.log.Warn("failed to save extraction to DB", zap.Error(err))
		} else {
			saved = ext
		}
	}

	responseData := map[string]interface{}{
		"success":       true,
		"result":        result,
		"documentUrl":   documentURL,
		"totalDuration": totalDuration,
	}
	if saved != nil {
		responseData["id"] = saved.ID
		responseData["saved_to_db"] = true
	} else {
		responseData["saved_to_db"] = false
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(responseData)
}

// GetExtractions returns recent extraction records
func (h *Handler) GetExtractions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	extractions, err := db.GetExtractions(ctx, 100)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get extractions: %v", err))
		return
	}

	// Generate presigned URLs for the stored documents
	for i := range extractions {
		if extractions[i].DocumentURL != "" && storage.Client != nil {
			if presignedURL, err := storage.GetPresignedURL(ctx, extractions[i].DocumentURL); err == nil {
				extractions[i].DocumentURL = presignedURL
			}
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"extractions": extractions,
		"count":       len(extractions),
	})
}

// GetExtraction returns a single extraction including the full result JSON
func (h *Handler) GetExtraction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	extractionID := vars["id"]

	extraction, err := db.GetExtractionByID(ctx, extractionID)
	if err != nil {
		h.log.Warn("extraction lookup failed", zap.String("id", extractionID), zap.Error(err))
		h.sendError(w, http.StatusNotFound, fmt.Sprintf("extraction not found: %v", err))
		return
	}

	if extraction.DocumentURL != "" && storage.Client != nil {
		if presignedURL, err := storage.GetPresignedURL(ctx, extraction.DocumentURL); err == nil {
			extraction.DocumentURL = presignedURL
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":    true,
		"extraction": extraction,
	})
}

// DeleteExtraction removes an extraction record and its stored document
func (h *Handler) DeleteExtraction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	extractionID := vars["id"]

	// Optionally: delete document from MinIO
	if storage.Client != nil {
		extraction, err := db.GetExtractionByID(ctx, extractionID)
		if err == nil && extraction.DocumentURL != "" {
			// Delete document (ignore errors)
			_ = storage.DeleteDocument(ctx, extraction.DocumentURL)
		}
	}

	if err := db.DeleteExtraction(ctx, extractionID); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to delete extraction")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "extraction deleted",
	})
}

// GetStats returns monthly statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	stats, err := db.GetMonthlyStats(ctx)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// GetErrorAnalytics returns aggregated error counts for a trailing window
func (h *Handler) GetErrorAnalytics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	timeRange := errtrack.TimeRange(r.URL.Query().Get("range"))
	switch timeRange {
	case errtrack.RangeDay, errtrack.RangeWeek, errtrack.RangeMonth:
	case "":
		timeRange = errtrack.RangeDay
	default:
		h.sendError(w, http.StatusBadRequest, "range must be day, week or month")
		return
	}

	analytics := h.tracker.GetErrorAnalytics(r.Context(), timeRange)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"analytics": analytics,
	})
}

// GetErrorPatterns returns remediation suggestions per error category
func (h *Handler) GetErrorPatterns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"patterns": h.tracker.GetErrorPatterns(),
	})
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
