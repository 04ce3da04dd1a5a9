package model

import (
	"encoding/json"
	"time"
)

type AccountKind string

const (
	AccountKindFB        AccountKind = "fb"
	AccountKindPurchased AccountKind = "purchased"
)

type Account struct {
	ID                 string          `json:"id"`
	Kind               AccountKind     `json:"kind"`
	Login              string          `json:"login"`
	PlainPassword      string          `json:"plainPassword"`
	Email              string          `json:"email,omitempty"`
	EmailPlainPassword string          `json:"emailPlainPassword,omitempty"`
	FacebookID         string          `json:"facebookId,omitempty"`
	UserAgent          string          `json:"useragent,omitempty"`
	TwoFaToken         string          `json:"twoFaToken,omitempty"`
	Gender             string          `json:"gender,omitempty"`
	Geo                Geo             `json:"geo,omitzero"`
	AccountStatus      AccountStatus   `json:"accountStatus,omitzero"`
	UploadedAt         *time.Time      `json:"uploadedAt,omitempty"`
	LastActivityAt     *time.Time      `json:"lastActivityAt,omitempty"`
	Cookie             json.RawMessage `json:"cookie,omitempty"`

	VisionFingerprint Fingerprint  `json:"visionFingerprint,omitempty"`
	VisionProfileID   string       `json:"visionProfileId,omitempty"`
	ProfileState      ProfileState `json:"profileState"`
	ProfileSyncedAt   *time.Time   `json:"profileSyncedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasProfile reports whether a remote Vision profile is attached.
func (a Account) HasProfile() bool {
	return a.VisionProfileID != ""
}
