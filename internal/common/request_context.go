// request_context.go - Request tracking and logging system

package common

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestContext tracks one scan request through the pipeline with per-step
// timing. Every log line carries the request ID so concurrent scans stay
// readable in the output. Step bookkeeping is mutex-guarded because the
// local and vision stages run in parallel within one request.
type RequestContext struct {
	RequestID           string
	Source              string
	StartTime           time.Time
	Steps               []StepLog
	CurrentStep         string
	CurrentStepStart    time.Time
	CurrentSubSteps     []SubStepLog
	CurrentSubStep      string
	CurrentSubStepStart time.Time

	mu sync.Mutex
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string       `json:"name"`
	StartTime time.Time    `json:"start_time"`
	Duration  int64        `json:"duration_ms"`
	Status    string       `json:"status"` // "success", "failed", "skipped"
	Error     string       `json:"error,omitempty"`
	SubSteps  []SubStepLog `json:"sub_steps,omitempty"`
}

// SubStepLog represents a detailed sub-operation within a step
type SubStepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Details   string    `json:"details,omitempty"`
}

// NewRequestContext creates a new request tracking context. Source is the
// request entry point ("preview", "preview-text", "correct-date").
func NewRequestContext(source string) *RequestContext {
	reqID := uuid.New().String()
	now := time.Now()

	log.Printf("[%s] 🚀 New scan request | Source: %s | Time: %s", reqID, source, now.Format("15:04:05"))

	return &RequestContext{
		RequestID: reqID,
		Source:    source,
		StartTime: now,
		Steps:     []StepLog{},
	}
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.mu.Lock()
	rc.CurrentStep = stepName
	rc.CurrentStepStart = time.Now()
	rc.mu.Unlock()

	stepDescriptions := map[string]string{
		"preprocess_image":  "🔧 Preprocess image",
		"remote_ocr":        "🔍 Extract label text (OCR)",
		"local_extraction":  "📋 Parse label text (regex)",
		"vision_extraction": "🤖 Vision model extraction",
		"merge_results":     "⚖️ Reconcile extraction results",
		"persist_audit":     "💾 Persist scan audit",
	}

	desc := stepDescriptions[stepName]
	if desc == "" {
		desc = stepName
	}

	log.Printf("[%s] \n┌── %s", rc.RequestID, desc)
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	duration := time.Since(rc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      rc.CurrentStep,
		StartTime: rc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
		SubSteps:  rc.CurrentSubSteps,
	}

	if err != nil {
		stepLog.Error = err.Error()
		log.Printf("[%s] └── ❌ FAILED - %s (%.2fs) - Error: %v",
			rc.RequestID, rc.CurrentStep, float64(duration)/1000, err)
	} else {
		logMsg := fmt.Sprintf("[%s] └── ✅ Done: %.2fs", rc.RequestID, float64(duration)/1000)
		if len(rc.CurrentSubSteps) > 0 {
			logMsg += fmt.Sprintf(" | sub-steps: %d", len(rc.CurrentSubSteps))
		}
		log.Print(logMsg)
	}

	rc.Steps = append(rc.Steps, stepLog)
	rc.CurrentStep = ""
	rc.CurrentSubSteps = []SubStepLog{}
}

// StartSubStep begins tracking a detailed sub-operation
func (rc *RequestContext) StartSubStep(subStepName string) {
	rc.mu.Lock()
	rc.CurrentSubStep = subStepName
	rc.CurrentSubStepStart = time.Now()
	rc.mu.Unlock()

	subStepDesc := map[string]string{
		"init_gemini_client":  "🤖 Connect to Gemini",
		"configure_model":     "⚙️ Configure model",
		"build_prompt":        "📢 Build prompt",
		"call_gemini_api":     "🚀 Call Gemini API",
		"parse_json_response": "🔄 Parse response",
		"discover_models":     "📡 Discover available models",
	}

	desc := subStepDesc[subStepName]
	if desc == "" {
		desc = subStepName
	}

	log.Printf("[%s]    ├─ %s...", rc.RequestID, desc)
}

// EndSubStep completes the current sub-step and records timing
func (rc *RequestContext) EndSubStep(details string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.CurrentSubStep == "" {
		return
	}

	duration := time.Since(rc.CurrentSubStepStart).Milliseconds()

	rc.CurrentSubSteps = append(rc.CurrentSubSteps, SubStepLog{
		Name:      rc.CurrentSubStep,
		StartTime: rc.CurrentSubStepStart,
		Duration:  duration,
		Details:   details,
	})

	detailsMsg := ""
	if details != "" {
		detailsMsg = " | " + details
	}
	log.Printf("[%s]    └─ ✅ %.2fs%s",
		rc.RequestID, float64(duration)/1000, detailsMsg)

	rc.CurrentSubStep = ""
}

// LogInfo logs info-level message with request ID prefix
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] ℹ️  %s", rc.RequestID, msg)
}

// LogWarning logs warning-level message with request ID prefix
func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] ⚠️  %s", rc.RequestID, msg)
}

// LogError logs error-level message with request ID prefix
func (rc *RequestContext) LogError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] ❌ %s", rc.RequestID, msg)
}

// StepsSnapshot returns the recorded steps as generic maps, ready to embed
// in an audit document.
func (rc *RequestContext) StepsSnapshot() []map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	steps := make([]map[string]interface{}, 0, len(rc.Steps))
	for _, step := range rc.Steps {
		entry := map[string]interface{}{
			"name":        step.Name,
			"duration_ms": step.Duration,
			"status":      step.Status,
		}
		if step.Error != "" {
			entry["error"] = step.Error
		}
		steps = append(steps, entry)
	}
	return steps
}

// GetSummary returns a final summary of the entire request
func (rc *RequestContext) GetSummary() map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	totalDuration := time.Since(rc.StartTime).Milliseconds()

	stepBreakdown := make(map[string]int64)
	for _, step := range rc.Steps {
		stepBreakdown[step.Name] = step.Duration
	}

	summary := map[string]interface{}{
		"request_id":         rc.RequestID,
		"source":             rc.Source,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        len(rc.Steps),
	}

	log.Printf("[%s] ═══ 🎯 Summary ═══", rc.RequestID)
	log.Printf("[%s] ⏱️  Total: %.2fs | 📝 Steps: %d",
		rc.RequestID, float64(totalDuration)/1000, len(rc.Steps))

	return summary
}
