package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Eric-Kumenda/Breast-Cancer/internal/auth"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/repository"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/usecase"
)

// MaxUploadSize bounds accepted mammogram uploads.
const MaxUploadSize = 10 << 20

// ScanService is the slice of the scan use case the HTTP layer depends on.
type ScanService interface {
	ModelLoaded() bool
	Submit(ctx context.Context, userID, filename, contentType string, data []byte) (*usecase.SubmitResult, error)
	GetScan(ctx context.Context, userID, scanID string) (*repository.Scan, error)
	ListScans(ctx context.Context, userID string) ([]*repository.Scan, error)
	Delete(ctx context.Context, userID, scanID string) error
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc ScanService, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "healthy",
			"model_loaded": svc.ModelLoaded(),
		})
	})

	router.POST("/predict", authMiddleware, func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
			return
		}

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if file.Filename == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no selected file"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open file"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}

		result, err := svc.Submit(c.Request.Context(), userID, file.Filename, file.Header.Get("Content-Type"), data)
		if err != nil {
			status, message := statusForError(err)
			c.JSON(status, gin.H{"error": message})
			return
		}

		response := gin.H{
			"prediction": result.Prediction.Label,
			"confidence": result.Prediction.Confidence,
			"image_url":  result.ImageURL,
			"raw_output": result.Prediction.Raw,
		}
		if result.ScanID != "" {
			response["scan_id"] = result.ScanID
		}
		c.JSON(http.StatusOK, response)
	})

	router.GET("/scans", authMiddleware, func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
			return
		}

		scans, err := svc.ListScans(c.Request.Context(), userID)
		if err != nil {
			status, message := statusForError(err)
			c.JSON(status, gin.H{"error": message})
			return
		}

		payload := make([]gin.H, 0, len(scans))
		for _, scan := range scans {
			payload = append(payload, scanResponse(scan))
		}
		c.JSON(http.StatusOK, gin.H{"scans": payload})
	})

	router.GET("/scans/:id", authMiddleware, func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
			return
		}

		scan, err := svc.GetScan(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			status, message := statusForError(err)
			c.JSON(status, gin.H{"error": message})
			return
		}
		c.JSON(http.StatusOK, scanResponse(scan))
	})

	router.DELETE("/scans/:id", authMiddleware, func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
			return
		}

		if err := svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
			status, message := statusForError(err)
			c.JSON(status, gin.H{"error": message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Scan deleted successfully"})
	})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrForbidden):
		return http.StatusForbidden, "not the owner of this scan"
	case errors.Is(err, usecase.ErrNotFound):
		return http.StatusNotFound, "scan not found"
	case errors.Is(err, usecase.ErrModelUnavailable):
		return http.StatusInternalServerError, "model not loaded"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func scanResponse(scan *repository.Scan) gin.H {
	return gin.H{
		"id":                  scan.ID,
		"user_id":             scan.UserID,
		"original_image_url":  scan.OriginalImageURL,
		"annotated_image_url": scan.AnnotatedImageURL,
		"prediction_label":    scan.PredictionLabel,
		"confidence_score":    scan.ConfidenceScore,
		"created_at":          scan.CreatedAt,
	}
}
