package ai

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rag-knowledge-backend/internal/security"
	"rag-knowledge-backend/models"
)

// MongoCredentialStore keeps per-tenant provider settings in the settings
// collection. API keys are encrypted at rest and only decrypted on Lookup;
// reads for display go through Settings, which never exposes the key.
type MongoCredentialStore struct {
	col *mongo.Collection
	box *security.Box
}

func NewMongoCredentialStore(db *mongo.Database, box *security.Box) *MongoCredentialStore {
	return &MongoCredentialStore{col: db.Collection("settings"), box: box}
}

func (s *MongoCredentialStore) Lookup(ctx context.Context, ownerID string) (*Credentials, error) {
	var stored models.TenantSettings
	err := s.col.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	creds := &Credentials{
		Provider: Provider(stored.Provider),
		BaseURL:  stored.BaseURL,
		Model:    stored.Model,
	}
	if stored.APIKeyEncrypted != "" {
		key, err := s.box.Decrypt(stored.APIKeyEncrypted)
		if err != nil {
			return nil, err
		}
		creds.APIKey = key
	}
	return creds, nil
}

// Save upserts a tenant's provider settings. An empty apiKey keeps the
// previously stored key.
func (s *MongoCredentialStore) Save(ctx context.Context, ownerID string, provider Provider, apiKey, baseURL, model string) error {
	set := bson.M{
		"provider":   string(provider),
		"base_url":   baseURL,
		"model":      model,
		"updated_at": time.Now().UTC(),
	}
	if apiKey != "" {
		encrypted, err := s.box.Encrypt(apiKey)
		if err != nil {
			return err
		}
		set["api_key_encrypted"] = encrypted
	}
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": ownerID},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	return err
}

// Settings returns the stored preference for display. The API key never
// leaves the store decrypted; only its presence is reported.
func (s *MongoCredentialStore) Settings(ctx context.Context, ownerID string) (provider Provider, model string, hasKey bool, err error) {
	var stored models.TenantSettings
	ferr := s.col.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&stored)
	if errors.Is(ferr, mongo.ErrNoDocuments) {
		return DefaultProvider, "", false, nil
	}
	if ferr != nil {
		return "", "", false, ferr
	}
	return Provider(stored.Provider), stored.Model, stored.APIKeyEncrypted != "", nil
}
