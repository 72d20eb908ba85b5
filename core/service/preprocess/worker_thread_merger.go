package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"triage_worker/core/domain"
)

// MergerConfig bounds the merged thread body.
type MergerConfig struct {
	// MaxMergedChars caps the combined clean body length. When exceeded,
	// whole oldest messages are dropped first; the most recent message is
	// the most decision-relevant and is never the first to go.
	MaxMergedChars int
}

// DefaultMergerConfig returns the documented default budget.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{MaxMergedChars: 16384}
}

// ThreadMerger collapses the normalized messages of one conversation into a
// single EmailThread. Deterministic and idempotent: reprocessing the same
// input yields the same thread (dedup by content hash is stable).
type ThreadMerger struct {
	cfg MergerConfig
}

// NewThreadMerger creates a merger.
func NewThreadMerger(cfg MergerConfig) *ThreadMerger {
	if cfg.MaxMergedChars <= 0 {
		cfg.MaxMergedChars = DefaultMergerConfig().MaxMergedChars
	}
	return &ThreadMerger{cfg: cfg}
}

// Merge builds the thread: sort ascending by timestamp, drop messages whose
// content hash was already seen (quoted-reply duplicates), concatenate the
// survivors chronologically within the length budget.
func (m *ThreadMerger) Merge(conversationID, tenantID string, messages []domain.NormalizedEmail) *domain.EmailThread {
	thread := &domain.EmailThread{
		ConversationID: conversationID,
		TenantID:       tenantID,
	}
	if len(messages) == 0 {
		thread.Degenerate = true
		return thread
	}

	ordered := make([]domain.NormalizedEmail, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	seen := make(map[string]bool)
	distinct := make(map[string]bool)
	survivors := make([]domain.NormalizedEmail, 0, len(ordered))
	nonEmpty := 0

	for _, msg := range ordered {
		if msg.EmptyBody {
			thread.DroppedCount++
			continue
		}
		nonEmpty++
		hash := ContentHash(msg.Subject, msg.CleanBody)
		distinct[hash] = true
		if seen[hash] {
			thread.DroppedCount++
			continue
		}
		seen[hash] = true
		survivors = append(survivors, msg)
	}

	// Degenerate: nothing survived, or a multi-message thread collapsed to a
	// single content hash (pure duplicate chain, no conversation signal).
	if len(survivors) == 0 || (nonEmpty > 1 && len(distinct) <= 1) {
		thread.Degenerate = true
		thread.Messages = survivors
		return thread
	}

	// Subject and language come from the earliest surviving message, even
	// when the length budget later drops it from the merged body.
	thread.Subject = survivors[0].Subject
	thread.Language = survivors[0].Language

	// Length budget: drop whole oldest messages first.
	kept := survivors
	for len(kept) > 1 && mergedLength(kept) > m.cfg.MaxMergedChars {
		kept = kept[1:]
		thread.Truncated = true
	}

	parts := make([]string, 0, len(kept))
	for _, msg := range kept {
		parts = append(parts, msg.CleanBody)
		if msg.SpamFlag {
			thread.SpamFlag = true
		}
	}
	merged := strings.Join(parts, "\n\n")
	if len(merged) > m.cfg.MaxMergedChars {
		// A single message over budget keeps its tail.
		merged = merged[len(merged)-m.cfg.MaxMergedChars:]
		thread.Truncated = true
	}

	thread.Messages = kept
	thread.MergedBody = merged
	thread.Consistency = estimateConsistency(kept)
	return thread
}

// ContentHash fingerprints a message for duplicate suppression. Matching is
// case-insensitive, mirroring the cleaning rules.
func ContentHash(subject, cleanBody string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(subject))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(cleanBody))))
	return hex.EncodeToString(h.Sum(nil))
}

func mergedLength(msgs []domain.NormalizedEmail) int {
	total := 0
	for i, msg := range msgs {
		if i > 0 {
			total += 2 // separator
		}
		total += len(msg.CleanBody)
	}
	return total
}

// estimateConsistency scores thread coherence in [0,1] from message length
// variance: similar-length non-empty segments read as a coherent exchange.
func estimateConsistency(msgs []domain.NormalizedEmail) float64 {
	if len(msgs) == 0 {
		return 0
	}
	var sum float64
	for _, msg := range msgs {
		sum += float64(len(msg.CleanBody))
	}
	avg := sum / float64(len(msgs))

	var variance float64
	for _, msg := range msgs {
		d := float64(len(msg.CleanBody)) - avg
		variance += d * d
	}
	variance /= float64(len(msgs))

	score := 1.0 / (1.0 + variance/(avg+1.0))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
