// interface.go - Provider interfaces for the extraction pipeline

package ai

import (
	"context"

	"github.com/freshtrack/expiry_ocr_gemini/internal/common"
	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
)

// LabelImage is one uploaded photo plus its mime type, ready to send to a
// provider.
type LabelImage struct {
	Data []byte
	MIME string
}

// TextSource extracts raw text from a label image. Implemented by the
// remote OCR client and by the Gemini pure-OCR fallback.
type TextSource interface {
	// ExtractText returns the raw recognized text. An empty string with a
	// nil error means the source ran but found nothing usable.
	ExtractText(ctx context.Context, image LabelImage, reqCtx *common.RequestContext) (string, error)
}

// VisionProvider extracts structured label fields straight from photos.
type VisionProvider interface {
	// ExtractFields runs a full structured extraction over the images.
	// ocrText, when non-empty, is passed along as a recognition hint.
	ExtractFields(ctx context.Context, images []LabelImage, ocrText string, reqCtx *common.RequestContext) (*processor.ScanResult, error)

	// Refine re-examines the label, from images, recognized text, or both,
	// with a baseline result from the local pipeline and returns the
	// provider's verdict. Transient failures come
	// back as Absent so the caller can continue with the baseline alone;
	// only provider misconfiguration is Fatal.
	Refine(ctx context.Context, baseline processor.ScanResult, images []LabelImage, ocrText string, reqCtx *common.RequestContext) RefineOutcome

	// Enabled reports whether the provider is configured and usable.
	Enabled() bool

	// ProviderName returns the name of the provider (e.g., "gemini")
	ProviderName() string
}

// RefineStatus classifies the outcome of a refinement attempt.
type RefineStatus int

const (
	// RefineOk means the provider returned a usable result.
	RefineOk RefineStatus = iota
	// RefineAbsent means the provider had nothing to offer (disabled,
	// transient failure, or unparseable output). Not an error condition.
	RefineAbsent
	// RefineFatal means the provider is misconfigured and the whole request
	// should fail loudly rather than silently degrade.
	RefineFatal
)

// RefineOutcome is the three-way result of VisionProvider.Refine.
type RefineOutcome struct {
	Status RefineStatus
	Result *processor.ScanResult
	Err    error
}

// Ok builds a successful outcome.
func Ok(result *processor.ScanResult) RefineOutcome {
	return RefineOutcome{Status: RefineOk, Result: result}
}

// Absent builds a no-result outcome.
func Absent() RefineOutcome {
	return RefineOutcome{Status: RefineAbsent}
}

// Fatal builds a misconfiguration outcome.
func Fatal(err error) RefineOutcome {
	return RefineOutcome{Status: RefineFatal, Err: err}
}
