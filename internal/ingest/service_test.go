package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrack/expiry_ocr_gemini/internal/ai"
	"github.com/freshtrack/expiry_ocr_gemini/internal/common"
	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
)

type stubTextSource struct {
	text  string
	err   error
	calls int
}

func (s *stubTextSource) ExtractText(ctx context.Context, image ai.LabelImage, reqCtx *common.RequestContext) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubVision struct {
	enabled       bool
	outcome       ai.RefineOutcome
	extractResult *processor.ScanResult
	extractErr    error
	refineCalls   int
}

func (s *stubVision) ExtractFields(ctx context.Context, images []ai.LabelImage, ocrText string, reqCtx *common.RequestContext) (*processor.ScanResult, error) {
	return s.extractResult, s.extractErr
}

func (s *stubVision) Refine(ctx context.Context, baseline processor.ScanResult, images []ai.LabelImage, ocrText string, reqCtx *common.RequestContext) ai.RefineOutcome {
	s.refineCalls++
	return s.outcome
}

func (s *stubVision) Enabled() bool { return s.enabled }

func (s *stubVision) ProviderName() string { return "stub" }

func TestPreviewImages_NoTextSourceIsConfigError(t *testing.T) {
	s := NewService(nil, nil, nil, nil, clockAt(2026, time.June, 1))
	reqCtx := common.NewRequestContext("test")

	resp, err := s.PreviewImages(context.Background(), []ai.LabelImage{{Data: []byte{0xFF, 0xD8}}}, reqCtx)

	require.Error(t, err)
	assert.Nil(t, resp)

	var gerr *ai.GeminiError
	require.True(t, errors.As(err, &gerr))
	assert.True(t, gerr.IsConfigError())
}

func TestPreviewImages_RemoteTextSource(t *testing.T) {
	primary := &stubTextSource{text: "AMUL MILK\nEXP 15/07/2026"}
	s := NewService(nil, nil, primary, nil, clockAt(2026, time.June, 1))
	reqCtx := common.NewRequestContext("test")

	resp, err := s.PreviewImages(context.Background(), []ai.LabelImage{{Data: []byte{0xFF, 0xD8}}}, reqCtx)

	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, "AMUL MILK\nEXP 15/07/2026", resp.RawText)
	assert.Equal(t, "Milk", resp.Extracted.ProductName)
	assert.Equal(t, processor.CategoryDairy, resp.Extracted.CategoryName)
	assert.Equal(t, processor.Date(2026, time.July, 15), resp.Extracted.ExpiryDate)
	assert.Equal(t, reqCtx.RequestID, resp.RequestID)
}

func TestPreviewImages_FallbackTextSource(t *testing.T) {
	fallback := &stubTextSource{text: "Cheese\nEXP 15/09/2026"}
	s := NewService(nil, nil, nil, fallback, clockAt(2026, time.June, 1))
	reqCtx := common.NewRequestContext("test")

	resp, err := s.PreviewImages(context.Background(), []ai.LabelImage{{Data: []byte{0xFF, 0xD8}}}, reqCtx)

	require.NoError(t, err)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "Cheese", resp.Extracted.ProductName)
	assert.Equal(t, processor.Date(2026, time.September, 15), resp.Extracted.ExpiryDate)
}

func TestPreviewImages_FallbackConfigErrorPropagates(t *testing.T) {
	fallback := &stubTextSource{err: ai.NewConfigError("text extraction requires credentials")}
	s := NewService(nil, nil, nil, fallback, clockAt(2026, time.June, 1))
	reqCtx := common.NewRequestContext("test")

	_, err := s.PreviewImages(context.Background(), []ai.LabelImage{{Data: []byte{0xFF, 0xD8}}}, reqCtx)

	require.Error(t, err)
	var gerr *ai.GeminiError
	require.True(t, errors.As(err, &gerr))
	assert.True(t, gerr.IsConfigError())
}

func TestPreviewText_RefinementApplied(t *testing.T) {
	refined := &processor.ScanResult{
		ProductName:  "Amul Gold Milk",
		CategoryName: processor.CategoryDairy,
		ExpiryDate:   processor.Date(2026, time.September, 1),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceHigh, Category: processor.ConfidenceHigh,
		},
		ConfidenceScore: 85,
	}
	vision := &stubVision{enabled: true, outcome: ai.Ok(refined)}
	s := NewService(vision, nil, nil, nil, clockAt(2026, time.June, 1))
	reqCtx := common.NewRequestContext("test")

	resp, err := s.PreviewText(context.Background(), "MILK\nEXP 15/07/2026", reqCtx)

	require.NoError(t, err)
	assert.Equal(t, 1, vision.refineCalls)
	assert.Equal(t, "Amul Gold Milk", resp.Extracted.ProductName)
	// The refined September date beats the label's July one.
	assert.Equal(t, processor.Date(2026, time.September, 1), resp.Extracted.ExpiryDate)
	assert.Equal(t, 85, resp.Extracted.ConfidenceScore)
}

func TestPreviewText_RefinementAbsentKeepsLocal(t *testing.T) {
	vision := &stubVision{enabled: true, outcome: ai.Absent()}
	s := NewService(vision, nil, nil, nil, clockAt(2026, time.June, 1))
	reqCtx := common.NewRequestContext("test")

	resp, err := s.PreviewText(context.Background(), "MILK\nEXP 15/07/2026", reqCtx)

	require.NoError(t, err)
	assert.Equal(t, 1, vision.refineCalls)
	assert.Equal(t, "Milk", resp.Extracted.ProductName)
	assert.Equal(t, processor.Date(2026, time.July, 15), resp.Extracted.ExpiryDate)
}

func TestPreviewText_RefinementConfigErrorFails(t *testing.T) {
	confErr := ai.NewConfigError("bad api key")
	vision := &stubVision{enabled: true, outcome: ai.Fatal(confErr)}
	s := NewService(vision, nil, nil, nil, clockAt(2026, time.June, 1))
	reqCtx := common.NewRequestContext("test")

	resp, err := s.PreviewText(context.Background(), "MILK\nEXP 15/07/2026", reqCtx)

	require.Error(t, err)
	assert.Nil(t, resp)
	var gerr *ai.GeminiError
	require.True(t, errors.As(err, &gerr))
	assert.True(t, gerr.IsConfigError())
}

func TestPreviewText_EmptyTextRejected(t *testing.T) {
	s := NewService(nil, nil, nil, nil, clockAt(2026, time.June, 1))
	reqCtx := common.NewRequestContext("test")

	_, err := s.PreviewText(context.Background(), "   ", reqCtx)
	assert.Error(t, err)
}
