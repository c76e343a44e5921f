package domain

import "time"

// User is an account record. Exactly one of Email/PhoneNumber is set — the
// handle the account was registered with. Verified starts false and is
// flipped exactly once by a successful verification-code check.
type User struct {
	UserID       string     `json:"id" dynamodbav:"user_id"`
	Username     string     `json:"username,omitempty" dynamodbav:"username"`
	Email        *string    `json:"email,omitempty" dynamodbav:"email,omitempty"`
	PhoneNumber  *string    `json:"phone_number,omitempty" dynamodbav:"phone_number,omitempty"`
	PasswordHash string     `json:"-" dynamodbav:"password_hash"`
	Verified     bool       `json:"verified" dynamodbav:"verified"`
	ProfileID    *string    `json:"profile_id,omitempty" dynamodbav:"profile_id,omitempty"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated" dynamodbav:"updated_at"`
	// omitempty keeps unset attributes out of the item entirely: NULL-typed
	// attributes would defeat attribute_not_exists filters and the sparse
	// email/phone GSIs.
	DeletedAt    *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at,omitempty"`
}

// Handle returns the account's registered handle (email or phone number).
func (u *User) Handle() string {
	if u.Email != nil {
		return *u.Email
	}
	if u.PhoneNumber != nil {
		return *u.PhoneNumber
	}
	return ""
}

type RegisterRequest struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,e164"`
	Password    string  `json:"password" validate:"required"`
	Username    string  `json:"username"`
}

// HandleRequest identifies an account by exactly one of email/phone number.
// Used by verify, resend and login flows.
type HandleRequest struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number"`
}
