// service.go - Scan orchestration: preprocessing, OCR, local and vision
// extraction, reconciliation, and audit persistence.

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/freshtrack/expiry_ocr_gemini/configs"
	"github.com/freshtrack/expiry_ocr_gemini/internal/ai"
	"github.com/freshtrack/expiry_ocr_gemini/internal/common"
	"github.com/freshtrack/expiry_ocr_gemini/internal/ocr"
	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
	"github.com/freshtrack/expiry_ocr_gemini/internal/storage"
	"golang.org/x/sync/errgroup"
)

// VisionClassifier lets the regex pipeline ask the vision provider to name a
// product when the label text alone gives no answer.
type VisionClassifier interface {
	ClassifyProductImage(ctx context.Context, image ai.LabelImage, reqCtx *common.RequestContext) (processor.ClassifierPrediction, bool)
}

// Service runs a scan end to end and reconciles the extraction paths.
type Service struct {
	vision      ai.VisionProvider
	classifier  VisionClassifier
	ocrPrimary  ai.TextSource // remote OCR microservice, nil when not configured
	ocrFallback ai.TextSource // vision-model pure OCR
	reconciler  *Reconciler
	dates       *processor.DateParser
	now         func() time.Time
}

// NewService wires the pipeline from explicit dependencies. Any of the
// providers may be nil; the pipeline degrades to the local regex path.
func NewService(vision ai.VisionProvider, classifier VisionClassifier, ocrPrimary, ocrFallback ai.TextSource, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		vision:      vision,
		classifier:  classifier,
		ocrPrimary:  ocrPrimary,
		ocrFallback: ocrFallback,
		reconciler:  NewReconciler(now),
		dates:       processor.NewDateParser(now),
		now:         now,
	}
}

// NewServiceFromConfig assembles the pipeline from the loaded configuration
func NewServiceFromConfig() *Service {
	gemini := ai.NewGeminiVision(nil)

	var primary ai.TextSource
	if remote := ocr.NewRemoteClient(); remote != nil {
		log.Printf("🔵 Remote OCR text source configured: %s", configs.OCR_SERVICE_URL)
		primary = remote
	}

	var fallback ai.TextSource
	var classifier VisionClassifier
	if gemini.Enabled() {
		log.Printf("✅ Gemini configured: vision extraction + OCR fallback")
		fallback = gemini
		classifier = gemini
	} else {
		log.Printf("⚠️  Gemini disabled, running local extraction only")
	}

	return NewService(gemini, classifier, primary, fallback, nil)
}

// PreviewResponse is the result of a preview scan. The extracted result
// carries per-item details when several products were detected.
type PreviewResponse struct {
	Extracted processor.ScanResult `json:"extracted"`
	RawText   string               `json:"rawText"`
	RequestID string               `json:"requestId"`
}

// PreviewText extracts fields from raw label text: local regex parse first,
// then an optional vision refinement over the same text.
func (s *Service) PreviewText(ctx context.Context, rawText string, reqCtx *common.RequestContext) (*PreviewResponse, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("rawText is required")
	}

	reqCtx.StartStep("local_extraction")
	local := processor.NewLocalTextExtractor(nil, s.now).Extract(rawText, nil)
	reqCtx.EndStep("success", nil)

	var aiResult *processor.ScanResult
	if s.vision != nil && s.vision.Enabled() {
		reqCtx.StartStep("vision_extraction")
		outcome := s.vision.Refine(ctx, local, nil, rawText, reqCtx)
		switch outcome.Status {
		case ai.RefineFatal:
			reqCtx.EndStep("failed", outcome.Err)
			return nil, outcome.Err
		case ai.RefineOk:
			aiResult = outcome.Result
			reqCtx.EndStep("success", nil)
		default:
			reqCtx.EndStep("skipped", nil)
		}
	}

	reqCtx.StartStep("merge_results")
	merged := s.reconciler.Merge(aiResult, local)
	reqCtx.EndStep("success", nil)

	s.persistAudit(reqCtx, merged, rawText)
	return &PreviewResponse{Extracted: merged, RawText: rawText, RequestID: reqCtx.RequestID}, nil
}

// PreviewImages extracts fields from one or more label photos. Text
// recognition and the two extraction paths run, then their results are
// reconciled into a single answer.
func (s *Service) PreviewImages(ctx context.Context, images []ai.LabelImage, reqCtx *common.RequestContext) (*PreviewResponse, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("at least one image is required")
	}

	visionImages := images
	ocrVariants := images[:1]
	if configs.ENABLE_IMAGE_PREPROCESSING {
		reqCtx.StartStep("preprocess_image")
		visionImages = s.preprocessForVision(images, reqCtx)
		ocrVariants = s.preprocessVariants(images[0], reqCtx)
		reqCtx.EndStep("success", nil)
	}

	rawText, err := s.extractText(ctx, ocrVariants, images[0], reqCtx)
	if err != nil {
		return nil, err
	}

	// Local regex parse and vision extraction are independent; run them in
	// parallel and let the reconciler sort out disagreements.
	reqCtx.StartStep("vision_extraction")
	var (
		local    processor.ScanResult
		aiResult *processor.ScanResult
	)
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		extractor := processor.NewLocalTextExtractor(s.requestClassifier(gctx, reqCtx), s.now)
		local = extractor.Extract(rawText, images[0].Data)
		return nil
	})
	grp.Go(func() error {
		if s.vision == nil || !s.vision.Enabled() {
			return nil
		}
		result, visionErr := s.vision.ExtractFields(gctx, visionImages, rawText, reqCtx)
		if visionErr != nil {
			var gerr *ai.GeminiError
			if errors.As(visionErr, &gerr) && gerr.IsConfigError() {
				return visionErr
			}
			reqCtx.LogWarning("Vision extraction failed, continuing with local parse: %v", visionErr)
			return nil
		}
		aiResult = result
		return nil
	})
	if err := grp.Wait(); err != nil {
		reqCtx.EndStep("failed", err)
		return nil, err
	}
	reqCtx.EndStep("success", nil)

	reqCtx.StartStep("merge_results")
	merged := s.reconciler.Merge(aiResult, local)
	reqCtx.EndStep("success", nil)

	s.persistAudit(reqCtx, merged, rawText)
	return &PreviewResponse{Extracted: merged, RawText: rawText, RequestID: reqCtx.RequestID}, nil
}

// CorrectDateRequest is a user's manual fix of an extracted expiry date.
type CorrectDateRequest struct {
	UserKey         string `json:"userKey"`
	ProductName     string `json:"productName"`
	OriginalExpiry  string `json:"originalExpiry"`
	CorrectedExpiry string `json:"correctedExpiry" binding:"required"`
	RawText         string `json:"rawText"`
}

// CorrectionAck confirms a recorded correction.
type CorrectionAck struct {
	CorrectedExpiry  time.Time `json:"correctedExpiry"`
	DaysLeftToExpire int       `json:"daysLeftToExpire"`
}

// CorrectDate validates and records a manual expiry correction. Corrections
// are kept as ground truth for tuning the date heuristics.
func (s *Service) CorrectDate(req CorrectDateRequest, reqCtx *common.RequestContext) (*CorrectionAck, error) {
	corrected := s.dates.Parse(req.CorrectedExpiry)
	if corrected == nil {
		return nil, fmt.Errorf("correctedExpiry %q is not a recognizable date", req.CorrectedExpiry)
	}

	entry := storage.CorrectionLog{
		UserKey:         req.UserKey,
		ProductName:     req.ProductName,
		CorrectedExpiry: *corrected,
		RawOcrText:      req.RawText,
	}
	if original := s.dates.Parse(req.OriginalExpiry); original != nil {
		entry.OriginalExpiry = *original
	}

	if err := storage.SaveCorrectionLog(entry); err != nil {
		reqCtx.LogError("Failed to save correction: %v", err)
		return nil, err
	}

	return &CorrectionAck{
		CorrectedExpiry:  *corrected,
		DaysLeftToExpire: processor.DaysBetween(processor.ToDate(s.now()), *corrected),
	}, nil
}

// extractText recognizes text from the label. The remote OCR service gets
// every preprocessed variant and its outputs are concatenated; when it
// yields nothing the vision model's pure-OCR path reads the original photo.
// With no source configured at all the scan fails with a config error.
func (s *Service) extractText(ctx context.Context, variants []ai.LabelImage, original ai.LabelImage, reqCtx *common.RequestContext) (string, error) {
	reqCtx.StartStep("remote_ocr")

	var pieces []string
	seen := make(map[string]struct{})
	if s.ocrPrimary != nil {
		for _, variant := range variants {
			text, err := s.ocrPrimary.ExtractText(ctx, variant, reqCtx)
			if err != nil {
				reqCtx.LogWarning("Remote OCR failed on a variant: %v", err)
				continue
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if _, dup := seen[text]; dup {
				continue
			}
			seen[text] = struct{}{}
			pieces = append(pieces, text)
		}
	}

	if len(pieces) > 0 {
		rawText := strings.Join(pieces, "\n")
		reqCtx.EndStep("success", nil)
		return rawText, nil
	}

	if s.ocrFallback != nil {
		text, err := s.ocrFallback.ExtractText(ctx, original, reqCtx)
		if err != nil {
			reqCtx.EndStep("failed", err)
			return "", err
		}
		reqCtx.EndStep("success", nil)
		return strings.TrimSpace(text), nil
	}

	// Image scans need at least one configured text source; guessing from a
	// photo nobody read is not an acceptable answer.
	err := ai.NewConfigError("no text source is configured for image scans (set OCR_SERVICE_URL or enable Gemini)")
	reqCtx.EndStep("failed", err)
	return "", err
}

// preprocessForVision sharpens each photo for the vision model. A photo that
// fails to decode is passed through untouched.
func (s *Service) preprocessForVision(images []ai.LabelImage, reqCtx *common.RequestContext) []ai.LabelImage {
	out := make([]ai.LabelImage, 0, len(images))
	for _, img := range images {
		data, mime, err := processor.PreprocessForVision(img.Data, configs.MAX_IMAGE_DIMENSION)
		if err != nil {
			reqCtx.LogWarning("Vision preprocessing failed, using original image: %v", err)
			out = append(out, img)
			continue
		}
		out = append(out, ai.LabelImage{Data: data, MIME: mime})
	}
	return out
}

// preprocessVariants builds the high-contrast variants the OCR service reads
// best. Falls back to the original photo when decoding fails.
func (s *Service) preprocessVariants(img ai.LabelImage, reqCtx *common.RequestContext) []ai.LabelImage {
	variants, err := processor.PreprocessForOCR(img.Data, configs.MAX_IMAGE_DIMENSION)
	if err != nil {
		reqCtx.LogWarning("OCR preprocessing failed, using original image: %v", err)
		return []ai.LabelImage{img}
	}

	out := make([]ai.LabelImage, 0, len(variants))
	for _, v := range variants {
		out = append(out, ai.LabelImage{Data: v.Data, MIME: v.MIME})
	}
	return out
}

// requestClassifier adapts the vision classifier to the regex pipeline's
// image hook for the duration of one request.
func (s *Service) requestClassifier(ctx context.Context, reqCtx *common.RequestContext) processor.ImageClassifier {
	if s.classifier == nil {
		return nil
	}
	return classifierAdapter{ctx: ctx, reqCtx: reqCtx, vision: s.classifier}
}

type classifierAdapter struct {
	ctx    context.Context
	reqCtx *common.RequestContext
	vision VisionClassifier
}

func (c classifierAdapter) Predict(image []byte) (processor.ClassifierPrediction, bool) {
	if len(image) == 0 {
		return processor.ClassifierPrediction{}, false
	}
	return c.vision.ClassifyProductImage(c.ctx, ai.LabelImage{Data: image}, c.reqCtx)
}

// persistAudit saves the scan outcome best-effort; a storage failure never
// fails the request.
func (s *Service) persistAudit(reqCtx *common.RequestContext, result processor.ScanResult, rawText string) {
	reqCtx.StartStep("persist_audit")

	doc := make(map[string]interface{})
	if data, err := json.Marshal(result); err == nil {
		_ = json.Unmarshal(data, &doc)
	}

	audit := storage.ScanAudit{
		RequestID:  reqCtx.RequestID,
		Source:     reqCtx.Source,
		Result:     doc,
		RawText:    rawText,
		Steps:      reqCtx.StepsSnapshot(),
		DurationMs: time.Since(reqCtx.StartTime).Milliseconds(),
	}
	if err := storage.SaveScanAudit(audit); err != nil {
		reqCtx.LogWarning("Audit not saved: %v", err)
		reqCtx.EndStep("skipped", nil)
		return
	}
	reqCtx.EndStep("success", nil)
}
