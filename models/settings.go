package models

import "time"

// TenantSettings stores per-tenant model provider preferences. The API key is
// kept encrypted at rest and is only decrypted inside the credential store
// when resolving a completer for a request.
type TenantSettings struct {
	OwnerID         string    `bson:"_id" json:"owner_id"`
	Provider        string    `bson:"provider,omitempty" json:"provider,omitempty"`
	APIKeyEncrypted string    `bson:"api_key_encrypted,omitempty" json:"-"`
	BaseURL         string    `bson:"base_url,omitempty" json:"base_url,omitempty"`
	Model           string    `bson:"model,omitempty" json:"model,omitempty"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}
