package domain

import "time"

// Credential purposes. Each purpose has its own expiry window; the composite
// primary key {user_id, purpose} guarantees at most one live record per
// account per purpose.
const (
	PurposeVerify = "verify" // registration verification code
	PurposeLogin  = "login"  // sign-in second-factor code
	PurposeReset  = "reset"  // password-reset token
)

// UserCredential is an ephemeral secret owned by the credential lifecycle
// manager. The secret itself is stored only as a bcrypt hash. CreatedAt is an
// explicit field set at issuance; ExpiresAt is a Unix timestamp used as the
// DynamoDB TTL attribute.
// PK: user_id, SK: purpose.
type UserCredential struct {
	UserID     string    `json:"user_id" dynamodbav:"user_id"`
	Purpose    string    `json:"purpose" dynamodbav:"purpose"`
	SecretHash string    `json:"-" dynamodbav:"secret_hash"`
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
	ExpiresAt  int64     `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// Expired reports whether the credential's window has elapsed at now.
func (c *UserCredential) Expired(now time.Time) bool {
	return c.ExpiresAt < now.Unix()
}
