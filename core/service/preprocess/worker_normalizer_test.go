package preprocess

import (
	"strings"
	"testing"
	"time"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(NormalizerConfig{
		AllowedLanguages: []string{"en", "es"},
		SpamKeywords:     []string{"unsubscribe", "free trial", "buy now"},
	})
}

func rawMessage(overrides func(*domain.RawMessage)) *domain.RawMessage {
	msg := &domain.RawMessage{
		MessageID:  "msg-1",
		Subject:    "Quarterly invoice",
		Body:       "Please find the invoice attached.\nThanks,\nDana",
		Sender:     "dana@example.com",
		Recipients: []string{"billing@acme.com"},
		Timestamp:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Language:   "en",
	}
	if overrides != nil {
		overrides(msg)
	}
	return msg
}

func TestNormalizeValid(t *testing.T) {
	n := testNormalizer()

	got, err := n.Normalize(rawMessage(nil))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.EmptyBody {
		t.Error("EmptyBody = true for non-empty body")
	}
	if got.SpamFlag {
		t.Error("SpamFlag = true without spam keywords")
	}
	if got.Language != "en" {
		t.Errorf("Language = %q, want en", got.Language)
	}
}

func TestNormalizeValidationFailures(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name       string
		mutate     func(*domain.RawMessage)
		wantReason string
	}{
		{"missing message id", func(m *domain.RawMessage) { m.MessageID = "" }, "VALIDATION_FAILED:message_id"},
		{"missing sender", func(m *domain.RawMessage) { m.Sender = " " }, "VALIDATION_FAILED:sender"},
		{"no recipients", func(m *domain.RawMessage) { m.Recipients = nil }, "VALIDATION_FAILED:recipients"},
		{"zero timestamp", func(m *domain.RawMessage) { m.Timestamp = time.Time{} }, "VALIDATION_FAILED:timestamp"},
		{"disallowed language", func(m *domain.RawMessage) { m.Language = "de" }, "VALIDATION_FAILED:language"},
		{"empty language", func(m *domain.RawMessage) { m.Language = "" }, "VALIDATION_FAILED:language"},
		{"empty subject and body", func(m *domain.RawMessage) { m.Subject = ""; m.Body = "  " }, "VALIDATION_FAILED:body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(rawMessage(tt.mutate))
			if err == nil {
				t.Fatal("Normalize() error = nil, want validation error")
			}
			appErr := apperr.AsAppError(err)
			if appErr.Reason() != tt.wantReason {
				t.Errorf("Reason() = %q, want %q", appErr.Reason(), tt.wantReason)
			}
			if appErr.Transient {
				t.Error("validation errors must be permanent")
			}
		})
	}
}

func TestCleanBodyStripsQuotedReplies(t *testing.T) {
	body := "Sounds good, see you then.\n\nOn Mon, Jun 2, 2025 at 9:00 AM Dana wrote:\n> Are we still on for Tuesday?\n> Dana"
	got := CleanBody(body)
	if got != "Sounds good, see you then." {
		t.Errorf("CleanBody() = %q", got)
	}
}

func TestCleanBodyStripsSignatureAndFooter(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"signature delimiter",
			"Done, deployed to staging.\n-- \nJordan Lee\nPlatform Team",
			"Done, deployed to staging.",
		},
		{
			"mobile footer",
			"Running late, start without me.\n\nSent from my iPhone",
			"Running late, start without me.",
		},
		{
			"quoted lines removed",
			"Agreed.\n> previous message\n> more quoting\nLet's ship it.",
			"Agreed.\nLet's ship it.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanBody(tt.body); got != tt.want {
				t.Errorf("CleanBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanBodyStripsHTML(t *testing.T) {
	body := "<div><p>Your order has <b>shipped</b>.</p><br><p>Track it online.</p></div>"
	got := CleanBody(body)
	if strings.Contains(got, "<") {
		t.Errorf("CleanBody() left markup: %q", got)
	}
	if !strings.Contains(got, "Your order has shipped.") {
		t.Errorf("CleanBody() lost text: %q", got)
	}
}

func TestSpamFlagIsAdvisory(t *testing.T) {
	n := testNormalizer()

	got, err := n.Normalize(rawMessage(func(m *domain.RawMessage) {
		m.Body = "Start your FREE TRIAL today, buy now!"
	}))
	if err != nil {
		t.Fatalf("Normalize() error = %v, spam must not reject", err)
	}
	if !got.SpamFlag {
		t.Error("SpamFlag = false, want true")
	}
	// Stored text keeps its original case.
	if !strings.Contains(got.CleanBody, "FREE TRIAL") {
		t.Errorf("CleanBody mutated original case: %q", got.CleanBody)
	}
}

func TestNormalizeEmptyBodyAfterCleaning(t *testing.T) {
	n := testNormalizer()

	got, err := n.Normalize(rawMessage(func(m *domain.RawMessage) {
		m.Body = "> quoted only\n> nothing else"
	}))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !got.EmptyBody {
		t.Error("EmptyBody = false for fully-quoted body")
	}
}
