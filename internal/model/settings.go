package model

type EmailSettings struct {
	Enabled  bool   `json:"enabled"`
	Email    string `json:"email"`
	AuthCode string `json:"authCode,omitempty"`
}

// APIKeys is the secrets row holding third-party tokens.
type APIKeys struct {
	VisionKey string `json:"visionKey"`
}
