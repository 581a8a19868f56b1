package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrack/expiry_ocr_gemini/internal/common"
	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
)

func TestExtractText_DisabledIsConfigError(t *testing.T) {
	g := &GeminiVision{}
	reqCtx := common.NewRequestContext("test")

	_, err := g.ExtractText(context.Background(), LabelImage{Data: []byte{0x01}}, reqCtx)

	require.Error(t, err)
	var gerr *GeminiError
	require.True(t, errors.As(err, &gerr))
	assert.True(t, gerr.IsConfigError())
}

func TestRefine_DisabledProviderIsAbsent(t *testing.T) {
	g := &GeminiVision{}
	reqCtx := common.NewRequestContext("test")

	outcome := g.Refine(context.Background(), processor.ScanResult{}, nil, "MILK EXP 15/07/2026", reqCtx)

	assert.Equal(t, RefineAbsent, outcome.Status)
}

func TestRefine_NoImagesAndNoTextIsAbsent(t *testing.T) {
	g := &GeminiVision{enabled: true, apiKey: "k"}
	reqCtx := common.NewRequestContext("test")

	outcome := g.Refine(context.Background(), processor.ScanResult{}, nil, "   ", reqCtx)

	assert.Equal(t, RefineAbsent, outcome.Status)
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("credentials missing")

	assert.True(t, err.IsConfigError())
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Error(), "credentials missing")
}
