package preprocess

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"triage_worker/core/domain"
)

func normalized(id, subject, body string, at time.Time) domain.NormalizedEmail {
	return domain.NormalizedEmail{
		MessageID: id,
		Subject:   subject,
		CleanBody: body,
		Sender:    "a@example.com",
		Timestamp: at,
		Language:  "en",
		EmptyBody: body == "",
	}
}

func TestMergeOrdersAndDeduplicates(t *testing.T) {
	m := NewThreadMerger(DefaultMergerConfig())
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	msgs := []domain.NormalizedEmail{
		normalized("m3", "Re: status", "third reply", base.Add(2*time.Hour)),
		normalized("m1", "status", "first message", base),
		normalized("m2", "Re: status", "first message", base.Add(time.Hour)), // dup body, different subject
		normalized("m1-dup", "status", "first message", base.Add(30*time.Minute)),
	}

	thread := m.Merge("conv-1", "", msgs)

	if thread.Degenerate {
		t.Fatal("Degenerate = true for a thread with distinct content")
	}
	if len(thread.Messages) != 3 {
		t.Fatalf("survivors = %d, want 3 (one exact duplicate dropped)", len(thread.Messages))
	}
	if thread.DroppedCount != 1 {
		t.Errorf("DroppedCount = %d, want 1", thread.DroppedCount)
	}
	wantOrder := []string{"m1", "m2", "m3"}
	var gotOrder []string
	for _, msg := range thread.Messages {
		gotOrder = append(gotOrder, msg.MessageID)
	}
	if !reflect.DeepEqual(gotOrder, wantOrder) {
		t.Errorf("order = %v, want %v", gotOrder, wantOrder)
	}
	if thread.Subject != "status" {
		t.Errorf("Subject = %q, want earliest survivor's subject", thread.Subject)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	m := NewThreadMerger(DefaultMergerConfig())
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	msgs := []domain.NormalizedEmail{
		normalized("m1", "s", "hello there", base),
		normalized("m2", "s", "hello there", base.Add(time.Minute)),
		normalized("m3", "s", "different reply", base.Add(2*time.Minute)),
	}

	first := m.Merge("conv-1", "t-1", msgs)
	second := m.Merge("conv-1", "t-1", msgs)

	if !reflect.DeepEqual(first, second) {
		t.Error("Merge() is not stable across reprocessing of the same input")
	}
}

func TestMergeDegenerateAllDuplicates(t *testing.T) {
	m := NewThreadMerger(DefaultMergerConfig())
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	msgs := []domain.NormalizedEmail{
		normalized("m1", "same", "identical content", base),
		normalized("m2", "same", "identical content", base.Add(time.Hour)),
		normalized("m3", "same", "identical content", base.Add(2*time.Hour)),
	}

	thread := m.Merge("conv-dup", "", msgs)
	if !thread.Degenerate {
		t.Error("Degenerate = false for a pure duplicate chain")
	}
}

func TestMergeDegenerateAllEmpty(t *testing.T) {
	m := NewThreadMerger(DefaultMergerConfig())
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	msgs := []domain.NormalizedEmail{
		normalized("m1", "s", "", base),
		normalized("m2", "s", "", base.Add(time.Hour)),
	}

	thread := m.Merge("conv-empty", "", msgs)
	if !thread.Degenerate {
		t.Error("Degenerate = false for a thread with no surviving content")
	}
}

func TestMergeSingleMessageNotDegenerate(t *testing.T) {
	m := NewThreadMerger(DefaultMergerConfig())

	thread := m.Merge("conv-single", "", []domain.NormalizedEmail{
		normalized("m1", "hi", "just one message", time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	})
	if thread.Degenerate {
		t.Error("Degenerate = true for a single-message thread")
	}
	if thread.MergedBody != "just one message" {
		t.Errorf("MergedBody = %q", thread.MergedBody)
	}
}

func TestMergeTruncatesOldestFirst(t *testing.T) {
	m := NewThreadMerger(MergerConfig{MaxMergedChars: 40})
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	msgs := []domain.NormalizedEmail{
		normalized("old", "s", strings.Repeat("old ", 10), base),
		normalized("new", "s", "the most recent message wins", base.Add(time.Hour)),
	}

	thread := m.Merge("conv-trunc", "", msgs)
	if !thread.Truncated {
		t.Error("Truncated = false after exceeding the budget")
	}
	if !strings.Contains(thread.MergedBody, "most recent message") {
		t.Errorf("MergedBody dropped the newest content: %q", thread.MergedBody)
	}
	if strings.Contains(thread.MergedBody, "old old") {
		t.Errorf("MergedBody kept the oldest content: %q", thread.MergedBody)
	}
}

func TestMergeSubjectSurvivesTruncation(t *testing.T) {
	m := NewThreadMerger(MergerConfig{MaxMergedChars: 40})
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	msgs := []domain.NormalizedEmail{
		normalized("old", "Original request", strings.Repeat("old ", 20), base),
		normalized("new", "Re: Original request", "short follow-up", base.Add(time.Hour)),
	}

	thread := m.Merge("conv-subj", "", msgs)
	if !thread.Truncated {
		t.Fatal("Truncated = false after exceeding the budget")
	}
	// The budget dropped the oldest message from the body, but the thread
	// subject is still the earliest surviving message's.
	if thread.Subject != "Original request" {
		t.Errorf("Subject = %q, want the earliest surviving subject", thread.Subject)
	}
	if strings.Contains(thread.MergedBody, "old old") {
		t.Errorf("MergedBody kept the oldest content: %q", thread.MergedBody)
	}
}

func TestMergeSingleOversizedMessageKeepsTail(t *testing.T) {
	m := NewThreadMerger(MergerConfig{MaxMergedChars: 16})

	body := "beginning-part ending-part"
	thread := m.Merge("conv-big", "", []domain.NormalizedEmail{
		normalized("m1", "s", body, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	})

	if !thread.Truncated {
		t.Error("Truncated = false for an oversized single message")
	}
	if len(thread.MergedBody) != 16 {
		t.Errorf("len(MergedBody) = %d, want 16", len(thread.MergedBody))
	}
	if !strings.HasSuffix(body, thread.MergedBody) {
		t.Errorf("MergedBody %q is not the tail of the original", thread.MergedBody)
	}
}

func TestContentHashStability(t *testing.T) {
	h1 := ContentHash("Subject", "body text")
	h2 := ContentHash("subject", "Body Text") // case-insensitive
	h3 := ContentHash("subject", "other text")

	if h1 != h2 {
		t.Error("ContentHash is case-sensitive, dedup would be unstable")
	}
	if h1 == h3 {
		t.Error("ContentHash collided for different content")
	}
}

func TestEstimateConsistency(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	even := []domain.NormalizedEmail{
		normalized("m1", "s", strings.Repeat("a", 100), base),
		normalized("m2", "s", strings.Repeat("b", 100), base),
	}
	uneven := []domain.NormalizedEmail{
		normalized("m1", "s", strings.Repeat("a", 5), base),
		normalized("m2", "s", strings.Repeat("b", 2000), base),
	}

	evenScore := estimateConsistency(even)
	unevenScore := estimateConsistency(uneven)

	if evenScore <= unevenScore {
		t.Errorf("consistency(even)=%v should exceed consistency(uneven)=%v", evenScore, unevenScore)
	}
	for i, score := range []float64{evenScore, unevenScore} {
		if score < 0 || score > 1 {
			t.Errorf("score %d = %v outside [0,1]", i, score)
		}
	}
}

func BenchmarkMerge(b *testing.B) {
	m := NewThreadMerger(DefaultMergerConfig())
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	msgs := make([]domain.NormalizedEmail, 20)
	for i := range msgs {
		msgs[i] = normalized(
			fmt.Sprintf("m%d", i), "subject",
			strings.Repeat("message content ", i+1),
			base.Add(time.Duration(i)*time.Minute),
		)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Merge("conv-bench", "", msgs)
	}
}
