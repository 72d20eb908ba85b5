package domain

import "time"

// Embedding is a fixed-dimension vector pinned to the model version that
// produced it. Embeddings from different versions are never compared.
type Embedding struct {
	Vector       []float32
	ModelVersion string
}

// CategoryScore is one (category, similarity) pair from the matcher.
type CategoryScore struct {
	CategoryID string  `json:"category_id"`
	Label      string  `json:"label"`
	Similarity float64 `json:"similarity"` // rescaled cosine in [0,1]
}

// CategoryMatch is the matcher output: the winning category plus the top-K
// runner-ups kept for provenance and drift diagnosis.
type CategoryMatch struct {
	CategoryID      string
	Label           string
	Similarity      float64
	TaxonomyVersion string
	TopK            []CategoryScore
	Unclassified    bool // similarity fell below the configured floor
}

// IntentPrediction is the fine-grained label within a matched category.
type IntentPrediction struct {
	Label        string
	Confidence   float64 // [0,1]
	ModelVersion string
}

// Decision is the terminal routing state of one thread.
type Decision string

const (
	DecisionAccepted     Decision = "accepted"
	DecisionPendingAudit Decision = "pending_audit"
	DecisionPoisoned     Decision = "poisoned"
)

// ClassificationResult combines the matcher and classifier outputs with the
// routing decision. Combined confidence is min(similarity, confidence).
type ClassificationResult struct {
	CategoryID         string          `json:"category_id"`
	CategoryLabel      string          `json:"category_label"`
	Similarity         float64         `json:"similarity"`
	Intent             string          `json:"intent"`
	IntentConfidence   float64         `json:"intent_confidence"`
	CombinedConfidence float64         `json:"combined_confidence"`
	Decision           Decision        `json:"decision"`
	TopK               []CategoryScore `json:"top_k,omitempty"`
}

// AuditOutcome is the audit fallback service's verdict on a borderline item.
type AuditOutcome struct {
	Label      string
	Intent     string
	Confidence float64
	Refused    bool
	Reason     string // populated on refusal
}

// Provenance records which model/taxonomy versions produced a result and
// whether the audit fallback was involved.
type Provenance struct {
	ModelVersion    string    `json:"model_version"`
	TaxonomyVersion string    `json:"taxonomy_version"`
	IntentVersion   string    `json:"intent_version"`
	ProcessedAt     time.Time `json:"processed_at"`
	Audited         bool      `json:"audited"`
	AuditReason     string    `json:"audit_reason,omitempty"`
	Attempts        int       `json:"attempts"`
	Consistency     float64   `json:"thread_consistency"`
}

// EnrichedEmail is the terminal artifact for an accepted thread. Written
// once, immutable; rewrites with the same identity are idempotent.
type EnrichedEmail struct {
	ConversationID string               `json:"conversation_id"`
	TenantID       string               `json:"tenant_id,omitempty"`
	Subject        string               `json:"subject"`
	MergedBody     string               `json:"merged_body"`
	Language       string               `json:"language"`
	SpamFlag       bool                 `json:"spam_flag"`
	Result         ClassificationResult `json:"result"`
	Provenance     Provenance           `json:"provenance"`
}

// PoisonEntry preserves a failed item with enough detail to re-drive or
// debug it. RawPayload is the original envelope, untouched.
type PoisonEntry struct {
	ItemID         string    `json:"item_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Stage          string    `json:"stage"`
	Code           string    `json:"code"`
	Reason         string    `json:"reason"`
	Message        string    `json:"message"`
	Attempts       int       `json:"attempts"`
	RawPayload     []byte    `json:"raw_payload"`
	FailedAt       time.Time `json:"failed_at"`
}
