// Package mongodb implements the enriched email sink on MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"triage_worker/core/domain"
)

const collectionEnrichedEmails = "enriched_emails"

// EnrichedAdapter implements out.EnrichedRepository using MongoDB. Writes are
// ReplaceOne upserts keyed by (conversation_id, model_version), so redelivery
// after a crash rewrites the same document instead of duplicating it.
type EnrichedAdapter struct {
	collection *mongo.Collection
}

// NewEnrichedAdapter creates the adapter.
func NewEnrichedAdapter(db *mongo.Database) *EnrichedAdapter {
	return &EnrichedAdapter{collection: db.Collection(collectionEnrichedEmails)}
}

// EnsureIndexes creates the identity and query indexes.
func (a *EnrichedAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "conversation_id", Value: 1},
				{Key: "provenance.model_version", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "result.category_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "provenance.processed_at", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// enrichedDocument is the MongoDB document structure.
type enrichedDocument struct {
	ConversationID string             `bson:"conversation_id"`
	TenantID       string             `bson:"tenant_id,omitempty"`
	Subject        string             `bson:"subject"`
	MergedBody     string             `bson:"merged_body"`
	Language       string             `bson:"language"`
	SpamFlag       bool               `bson:"spam_flag"`
	Result         resultDocument     `bson:"result"`
	Provenance     provenanceDocument `bson:"provenance"`
}

type resultDocument struct {
	CategoryID         string          `bson:"category_id"`
	CategoryLabel      string          `bson:"category_label"`
	Similarity         float64         `bson:"similarity"`
	Intent             string          `bson:"intent"`
	IntentConfidence   float64         `bson:"intent_confidence"`
	CombinedConfidence float64         `bson:"combined_confidence"`
	Decision           string          `bson:"decision"`
	TopK               []scoreDocument `bson:"top_k,omitempty"`
}

type scoreDocument struct {
	CategoryID string  `bson:"category_id"`
	Label      string  `bson:"label"`
	Similarity float64 `bson:"similarity"`
}

type provenanceDocument struct {
	ModelVersion    string    `bson:"model_version"`
	TaxonomyVersion string    `bson:"taxonomy_version"`
	IntentVersion   string    `bson:"intent_version"`
	ProcessedAt     time.Time `bson:"processed_at"`
	Audited         bool      `bson:"audited"`
	AuditReason     string    `bson:"audit_reason,omitempty"`
	Attempts        int       `bson:"attempts"`
	Consistency     float64   `bson:"thread_consistency"`
}

// Upsert writes one enriched email, idempotent by identity.
func (a *EnrichedAdapter) Upsert(ctx context.Context, email *domain.EnrichedEmail) error {
	doc := toDocument(email)

	filter := bson.M{
		"conversation_id":          doc.ConversationID,
		"provenance.model_version": doc.Provenance.ModelVersion,
	}
	opts := options.Replace().SetUpsert(true)

	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert enriched email %s: %w", doc.ConversationID, err)
	}
	return nil
}

func toDocument(email *domain.EnrichedEmail) *enrichedDocument {
	topK := make([]scoreDocument, 0, len(email.Result.TopK))
	for _, score := range email.Result.TopK {
		topK = append(topK, scoreDocument{
			CategoryID: score.CategoryID,
			Label:      score.Label,
			Similarity: score.Similarity,
		})
	}
	return &enrichedDocument{
		ConversationID: email.ConversationID,
		TenantID:       email.TenantID,
		Subject:        email.Subject,
		MergedBody:     email.MergedBody,
		Language:       email.Language,
		SpamFlag:       email.SpamFlag,
		Result: resultDocument{
			CategoryID:         email.Result.CategoryID,
			CategoryLabel:      email.Result.CategoryLabel,
			Similarity:         email.Result.Similarity,
			Intent:             email.Result.Intent,
			IntentConfidence:   email.Result.IntentConfidence,
			CombinedConfidence: email.Result.CombinedConfidence,
			Decision:           string(email.Result.Decision),
			TopK:               topK,
		},
		Provenance: provenanceDocument{
			ModelVersion:    email.Provenance.ModelVersion,
			TaxonomyVersion: email.Provenance.TaxonomyVersion,
			IntentVersion:   email.Provenance.IntentVersion,
			ProcessedAt:     email.Provenance.ProcessedAt,
			Audited:         email.Provenance.Audited,
			AuditReason:     email.Provenance.AuditReason,
			Attempts:        email.Provenance.Attempts,
			Consistency:     email.Provenance.Consistency,
		},
	}
}
