// Package apperr defines structured pipeline errors with stage and
// transience metadata used for poison-queue provenance and retry decisions.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Input errors (permanent)
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeDegenerateThread = "DEGENERATE_THREAD"

	// Model invocation errors (transient unless marked permanent)
	CodeEmbeddingFailed  = "EMBEDDING_FAILED"
	CodeClassifierFailed = "CLASSIFIER_FAILED"

	// Configuration errors (permanent, affects all items)
	CodeTaxonomyUnavailable = "TAXONOMY_UNAVAILABLE"
	CodeConfigError         = "CONFIG_ERROR"

	// Audit fallback errors
	CodeAuditFallbackFailed  = "AUDIT_FALLBACK_FAILED"
	CodeAuditFallbackRefused = "AUDIT_FALLBACK_REFUSED"

	// Routing outcome (permanent, not an invocation failure)
	CodeLowConfidence = "LOW_CONFIDENCE"

	// Infrastructure errors
	CodeSinkError     = "SINK_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// Pipeline stage names carried in poison provenance.
const (
	StageNormalize = "normalize"
	StageMerge     = "merge"
	StageEmbed     = "embed"
	StageMatch     = "match"
	StageIntent    = "intent"
	StageRoute     = "route"
	StageAudit     = "audit"
	StageSink      = "sink"
)

// AppError represents a structured pipeline error.
type AppError struct {
	Code      string         `json:"code"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Transient bool           `json:"transient"`
	Details   map[string]any `json:"details,omitempty"`
	Err       error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Stage, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Reason renders the compact "Code:detail" form used in poison entries,
// e.g. "VALIDATION_FAILED:language".
func (e *AppError) Reason() string {
	if detail, ok := e.Details["reason"].(string); ok && detail != "" {
		return e.Code + ":" + detail
	}
	return e.Code
}

// Constructor functions
func New(code, stage, message string, transient bool) *AppError {
	return &AppError{
		Code:      code,
		Stage:     stage,
		Message:   message,
		Transient: transient,
	}
}

// Validation errors (permanent, never retried)
func ValidationFailed(reason, message string) *AppError {
	return &AppError{
		Code:      CodeValidationFailed,
		Stage:     StageNormalize,
		Message:   message,
		Transient: false,
		Details:   map[string]any{"reason": reason},
	}
}

func MissingField(field string) *AppError {
	return ValidationFailed(field, fmt.Sprintf("missing required field: %s", field))
}

// DegenerateThread marks a thread with no classifiable content (permanent).
func DegenerateThread(conversationID string) *AppError {
	return &AppError{
		Code:      CodeDegenerateThread,
		Stage:     StageMerge,
		Message:   "thread has no surviving content after dedup",
		Transient: false,
		Details:   map[string]any{"conversation_id": conversationID},
	}
}

// EmbeddingFailed marks a transient embedder failure (timeout, unavailable).
func EmbeddingFailed(reason string, err error) *AppError {
	return &AppError{
		Code:      CodeEmbeddingFailed,
		Stage:     StageEmbed,
		Message:   "embedding request failed",
		Transient: true,
		Details:   map[string]any{"reason": reason},
		Err:       err,
	}
}

// EmbeddingRejected marks a permanent embedder failure (e.g. input too long).
func EmbeddingRejected(reason string, err error) *AppError {
	e := EmbeddingFailed(reason, err)
	e.Transient = false
	return e
}

func ClassifierFailed(reason string, err error) *AppError {
	return &AppError{
		Code:      CodeClassifierFailed,
		Stage:     StageIntent,
		Message:   "intent classification failed",
		Transient: true,
		Details:   map[string]any{"reason": reason},
		Err:       err,
	}
}

// TaxonomyUnavailable is a configuration problem affecting every item.
func TaxonomyUnavailable(version string) *AppError {
	return &AppError{
		Code:      CodeTaxonomyUnavailable,
		Stage:     StageMatch,
		Message:   "no approved taxonomy categories for active version",
		Transient: false,
		Details:   map[string]any{"taxonomy_version": version},
	}
}

func AuditFallbackFailed(reason string, err error) *AppError {
	return &AppError{
		Code:      CodeAuditFallbackFailed,
		Stage:     StageAudit,
		Message:   "audit fallback call failed",
		Transient: true,
		Details:   map[string]any{"reason": reason},
		Err:       err,
	}
}

// AuditFallbackRefused marks a deliberate refusal by the audit service
// (permanent; the item is too uncertain to accept).
func AuditFallbackRefused(reason string) *AppError {
	return &AppError{
		Code:      CodeAuditFallbackRefused,
		Stage:     StageAudit,
		Message:   "audit fallback declined to classify",
		Transient: false,
		Details:   map[string]any{"reason": reason},
	}
}

// LowConfidence marks an item routed to poison because its combined
// confidence fell below the low threshold (permanent).
func LowConfidence(combined float64) *AppError {
	return &AppError{
		Code:      CodeLowConfidence,
		Stage:     StageRoute,
		Message:   "combined confidence below low threshold",
		Transient: false,
		Details:   map[string]any{"reason": "below_low_threshold", "combined_confidence": combined},
	}
}

func SinkError(sink string, err error) *AppError {
	return &AppError{
		Code:      CodeSinkError,
		Stage:     StageSink,
		Message:   fmt.Sprintf("sink write failed: %s", sink),
		Transient: true,
		Details:   map[string]any{"sink": sink},
		Err:       err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:      CodeConfigError,
		Stage:     StageRoute,
		Message:   message,
		Transient: false,
	}
}

func Internal(stage string, err error) *AppError {
	return &AppError{
		Code:      CodeInternalError,
		Stage:     stage,
		Message:   "internal error",
		Transient: false,
		Err:       err,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("unknown", err)
}

// IsTransient reports whether the error is worth retrying. Unknown errors
// are treated as permanent so they reach the poison sink with full context
// instead of looping.
func IsTransient(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Transient
	}
	return false
}

func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

func StageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Stage
	}
	return "unknown"
}
