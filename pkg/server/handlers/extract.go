package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/go-kgextract"
	"github.com/soundprediction/go-kgextract/pkg/classifier"
	"github.com/soundprediction/go-kgextract/pkg/features"
	"github.com/soundprediction/go-kgextract/pkg/server/dto"
)

// ExtractHandler serves extraction over text fragments.
type ExtractHandler struct {
	assembler kgextract.Assembler
	mode      string
	logger    *slog.Logger
}

// NewExtractHandler creates a handler; mode is reported in responses.
func NewExtractHandler(a kgextract.Assembler, mode string, logger *slog.Logger) *ExtractHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractHandler{assembler: a, mode: mode, logger: logger}
}

// Extract handles POST /v1/extract
func (h *ExtractHandler) Extract(c *gin.Context) {
	var req dto.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(c, "text is empty")
		return
	}

	a, err := h.assembler.Analyze(c.Request.Context(), strings.NewReader(req.Text))
	if err != nil {
		h.logger.Error("extraction request failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   dto.ErrExtraction,
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, dto.ExtractResponse{
		RunID:     a.Graph.RunID,
		Mode:      h.mode,
		Sentences: a.Sentences,
		Entities:  a.Graph.Entities,
		Relations: a.Graph.Relations,
		Stats:     a.Stats,
	})
}

// FeatureSource computes the feature record of an entity pair.
type FeatureSource interface {
	Extract(ctx context.Context, e1, e2, sentence string) (features.Record, error)
}

// FeaturesHandler exposes the feature extractor, and the classifier when
// one is loaded.
type FeaturesHandler struct {
	features FeatureSource
	bundle   *classifier.Bundle
	logger   *slog.Logger
}

// NewFeaturesHandler creates a handler. bundle may be nil.
func NewFeaturesHandler(f FeatureSource, bundle *classifier.Bundle, logger *slog.Logger) *FeaturesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeaturesHandler{features: f, bundle: bundle, logger: logger}
}

// Features handles POST /v1/features
func (h *FeaturesHandler) Features(c *gin.Context) {
	var req dto.FeaturesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	rec, err := h.features.Extract(c.Request.Context(), req.Entity1, req.Entity2, req.Sentence)
	if err != nil {
		h.logger.Error("feature request failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   dto.ErrExtraction,
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	resp := dto.FeaturesResponse{Features: map[string]interface{}(rec)}
	if resp.Features == nil {
		resp.Features = map[string]interface{}{}
	}
	if h.bundle != nil && len(rec) > 0 {
		resp.Label = h.bundle.Predict(rec)
	}
	c.JSON(http.StatusOK, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   dto.ErrInvalidRequest,
		Message: msg,
		Code:    http.StatusBadRequest,
	})
}
