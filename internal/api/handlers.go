// handlers.go - HTTP handlers for the scan endpoints and upload validation.

package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/freshtrack/expiry_ocr_gemini/internal/ai"
	"github.com/freshtrack/expiry_ocr_gemini/internal/common"
	"github.com/freshtrack/expiry_ocr_gemini/internal/ingest"
	"github.com/freshtrack/expiry_ocr_gemini/internal/storage"
	"github.com/gin-gonic/gin"
)

// Upload limits for label photos
const (
	MAX_IMAGES_PER_SCAN = 4
	MAX_IMAGE_BYTES     = 10 << 20 // 10 MB per photo
)

// Handler carries the scan service into the HTTP layer.
type Handler struct {
	service *ingest.Service
}

// NewHandler creates the handler set around a scan service.
func NewHandler(service *ingest.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches the scan endpoints to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1/scan")
	v1.POST("/preview", h.PreviewHandler)
	v1.POST("/preview-text", h.PreviewTextHandler)
	v1.POST("/correct-date", h.CorrectDateHandler)
	v1.GET("/corrections", h.CorrectionsHandler)
}

// PreviewTextRequest is the JSON body of POST /api/v1/scan/preview-text.
type PreviewTextRequest struct {
	RawText string `json:"rawText" binding:"required"`
}

// PreviewTextHandler extracts fields from already-recognized label text.
func (h *Handler) PreviewTextHandler(c *gin.Context) {
	var req PreviewTextRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid request format",
			"details":  err.Error(),
			"expected": "JSON with rawText",
		})
		return
	}

	reqCtx := common.NewRequestContext("preview-text")

	resp, err := h.service.PreviewText(c.Request.Context(), req.RawText, reqCtx)
	if err != nil {
		respondExtractionError(c, reqCtx, err)
		return
	}

	reqCtx.GetSummary()
	c.JSON(http.StatusOK, resp)
}

// PreviewHandler extracts fields from one or more uploaded label photos.
// Accepts either a single "image" file or an "images" list (front/back or
// multi-item scans).
func (h *Handler) PreviewHandler(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid multipart form",
			"details":  err.Error(),
			"expected": "multipart form with image or images[] files",
		})
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		files = form.File["image"]
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if len(files) > MAX_IMAGES_PER_SCAN {
		files = files[:MAX_IMAGES_PER_SCAN]
	}

	reqCtx := common.NewRequestContext("preview")

	images := make([]ai.LabelImage, 0, len(files))
	for i, file := range files {
		img, err := readImageFile(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":       err.Error(),
				"image_index": i,
				"request_id":  reqCtx.RequestID,
			})
			return
		}
		images = append(images, img)
	}

	resp, err := h.service.PreviewImages(c.Request.Context(), images, reqCtx)
	if err != nil {
		respondExtractionError(c, reqCtx, err)
		return
	}

	reqCtx.GetSummary()
	c.JSON(http.StatusOK, resp)
}

// CorrectDateHandler records a manual fix of an extracted expiry date.
func (h *Handler) CorrectDateHandler(c *gin.Context) {
	var req ingest.CorrectDateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid request format",
			"details":  err.Error(),
			"expected": "JSON with correctedExpiry (and optionally userKey, productName, originalExpiry, rawText)",
		})
		return
	}

	reqCtx := common.NewRequestContext("correct-date")

	ack, err := h.service.CorrectDate(req, reqCtx)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not a recognizable date") {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":      err.Error(),
			"request_id": reqCtx.RequestID,
		})
		return
	}

	c.JSON(http.StatusOK, ack)
}

// CorrectionsHandler lists a user's recent expiry corrections.
func (h *Handler) CorrectionsHandler(c *gin.Context) {
	userKey := c.Query("userKey")
	if userKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userKey query parameter is required"})
		return
	}

	limit := int64(20)
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := storage.GetRecentCorrections(userKey, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load corrections",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"corrections": entries,
		"count":       len(entries),
	})
}

// readImageFile validates and loads one uploaded photo.
func readImageFile(file *multipart.FileHeader) (ai.LabelImage, error) {
	if file.Size == 0 {
		return ai.LabelImage{}, errors.New("image file is empty")
	}
	if file.Size > MAX_IMAGE_BYTES {
		return ai.LabelImage{}, errors.New("image file too large (max 10 MB)")
	}

	mime := file.Header.Get("Content-Type")
	if mime != "" && !strings.HasPrefix(strings.ToLower(mime), "image/") {
		return ai.LabelImage{}, errors.New("only image uploads are allowed")
	}

	f, err := file.Open()
	if err != nil {
		return ai.LabelImage{}, errors.New("failed to read image file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ai.LabelImage{}, errors.New("failed to read image file")
	}

	return ai.LabelImage{Data: data, MIME: mime}, nil
}

// respondExtractionError maps pipeline failures to HTTP responses. Provider
// misconfiguration gets the categorized error body so callers can tell a bad
// key from a transient failure.
func respondExtractionError(c *gin.Context, reqCtx *common.RequestContext, err error) {
	reqCtx.LogError("Scan failed: %v", err)

	var gerr *ai.GeminiError
	if errors.As(err, &gerr) {
		body := ai.BuildUserFriendlyError(gerr)
		body["request_id"] = reqCtx.RequestID

		status := http.StatusBadGateway
		switch gerr.Category {
		case "unauthorized", "forbidden", "bad_request", "not_found":
			status = http.StatusInternalServerError
		case "rate_limit", "quota_exceeded":
			status = http.StatusTooManyRequests
		case "timeout":
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, body)
		return
	}

	if strings.Contains(err.Error(), "required") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      err.Error(),
			"request_id": reqCtx.RequestID,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "Scan processing failed",
		"details":    err.Error(),
		"request_id": reqCtx.RequestID,
	})
}
