// Package preprocess implements record normalization and thread merging,
// the two stages that run before any model is invoked.
package preprocess

import (
	"regexp"
	"strings"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
)

var (
	htmlTagRegex   = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	htmlBreakRegex = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li)[^>]*>`)

	// "On Mon, Jan 2 ... wrote:" and localized variants open a quoted block.
	replyMarkerRegex = regexp.MustCompile(`(?im)^\s*(on .{0,120} wrote:|am .{0,120} schrieb|le .{0,120} a écrit\s?:|-{3,}\s*original message\s*-{3,}|from:\s.+)$`)

	// Mobile footers: the footer and everything after it is noise.
	footerRegex = regexp.MustCompile(`(?i)(sent from my (iphone|ipad|android)|envoyé de mon|enviado desde mi)`)

	blankRunRegex  = regexp.MustCompile(`\n{3,}`)
	spaceRunRegex  = regexp.MustCompile(`[ \t]{2,}`)
	entityReplacer = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")
)

// signatureDelimiter is the RFC 3676 signature separator line.
const signatureDelimiter = "-- "

// NormalizerConfig holds the configurable normalization inputs. All values
// come from config/secrets at activation, not from the per-item hot path.
type NormalizerConfig struct {
	AllowedLanguages []string
	SpamKeywords     []string
}

// Normalizer validates and canonicalizes raw messages. Pure transform, no
// side effects; safe to share across workers.
type Normalizer struct {
	allowed map[string]bool
	spam    []string // lower-cased keywords
}

// NewNormalizer creates a normalizer from config.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	allowed := make(map[string]bool, len(cfg.AllowedLanguages))
	for _, lang := range cfg.AllowedLanguages {
		allowed[strings.ToLower(strings.TrimSpace(lang))] = true
	}
	spam := make([]string, 0, len(cfg.SpamKeywords))
	for _, kw := range cfg.SpamKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			spam = append(spam, kw)
		}
	}
	return &Normalizer{allowed: allowed, spam: spam}
}

// Normalize validates one raw message and returns its normalized form.
// Validation failures are permanent and carry the failing field as reason.
func (n *Normalizer) Normalize(msg *domain.RawMessage) (*domain.NormalizedEmail, error) {
	if strings.TrimSpace(msg.MessageID) == "" {
		return nil, apperr.MissingField("message_id")
	}
	if strings.TrimSpace(msg.Sender) == "" {
		return nil, apperr.MissingField("sender")
	}
	if len(msg.Recipients) == 0 {
		return nil, apperr.MissingField("recipients")
	}
	if msg.Timestamp.IsZero() {
		return nil, apperr.ValidationFailed("timestamp", "timestamp is missing or malformed")
	}
	if strings.TrimSpace(msg.Subject) == "" && strings.TrimSpace(msg.Body) == "" {
		return nil, apperr.ValidationFailed("body", "both subject and body are empty")
	}

	lang := strings.ToLower(strings.TrimSpace(msg.Language))
	if lang == "" || !n.allowed[lang] {
		return nil, apperr.ValidationFailed("language", "language not in allowed set").
			WithDetail("language", msg.Language)
	}

	clean := CleanBody(msg.Body)

	normalized := &domain.NormalizedEmail{
		MessageID:   msg.MessageID,
		Subject:     strings.TrimSpace(msg.Subject),
		CleanBody:   clean,
		Sender:      strings.TrimSpace(msg.Sender),
		Recipients:  msg.Recipients,
		Timestamp:   msg.Timestamp,
		Language:    lang,
		Attachments: msg.Attachments,
		EmptyBody:   clean == "",
	}
	normalized.SpamFlag = n.isSpam(normalized.Subject, clean)
	return normalized, nil
}

// CleanBody strips HTML, quoted replies, signatures and mobile footers, and
// collapses whitespace. Only the cleaned copy is produced; callers keep the
// original text untouched.
func CleanBody(body string) string {
	text := stripHTML(body)

	// Everything from a reply marker on is quoted history.
	if loc := replyMarkerRegex.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	if loc := footerRegex.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		// Signature separator: "-- " (or bare "--"), everything after is cut.
		if strings.TrimRight(line, " \t") == strings.TrimSpace(signatureDelimiter) {
			break
		}
		// Quoted-reply lines.
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}

	text = strings.Join(kept, "\n")
	text = spaceRunRegex.ReplaceAllString(text, " ")
	text = blankRunRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func stripHTML(text string) string {
	if !strings.ContainsRune(text, '<') {
		return text
	}
	text = htmlBreakRegex.ReplaceAllString(text, "\n")
	text = htmlTagRegex.ReplaceAllString(text, "")
	return entityReplacer.Replace(text)
}

// isSpam scans the cleaned text against the keyword set. Matching is
// case-insensitive substring; the flag is advisory only.
func (n *Normalizer) isSpam(subject, body string) bool {
	if len(n.spam) == 0 {
		return false
	}
	lowered := strings.ToLower(subject + "\n" + body)
	for _, kw := range n.spam {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
