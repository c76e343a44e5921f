package domain

import "time"

// Profile is created by the credential lifecycle manager when a registration
// is verified, never directly by the client.
type Profile struct {
	ProfileID   string    `json:"id" dynamodbav:"profile_id"`
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	DisplayName string    `json:"display_name" dynamodbav:"display_name"`
	Bio         string    `json:"bio" dynamodbav:"bio"`
	AvatarKey   string    `json:"-" dynamodbav:"avatar_key"` // S3 object key
	AvatarURL   string    `json:"avatar_url,omitempty" dynamodbav:"-"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=80"`
	Bio         *string `json:"bio" validate:"omitempty,max=1000"`
}
