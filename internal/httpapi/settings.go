package httpapi

import (
	"net/http"
	"strings"

	"account_sync/internal/model"
)

const maskedAuthCode = "******"

type emailSettingsPayload struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Email    *string `json:"email,omitempty"`
	AuthCode *string `json:"authCode,omitempty"`
}

func maskEmailSettings(v model.EmailSettings) model.EmailSettings {
	if v.AuthCode != "" {
		v.AuthCode = maskedAuthCode
	}
	return v
}

func (s *Server) handleGetEmailSettings(w http.ResponseWriter, r *http.Request) {
	val, _, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": maskEmailSettings(val)})
}

func (s *Server) handleUpdateEmailSettings(w http.ResponseWriter, r *http.Request) {
	var body emailSettingsPayload
	if err := readJSON(r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}

	current, _, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	next := current
	if body.Enabled != nil {
		next.Enabled = *body.Enabled
	}
	if body.Email != nil {
		next.Email = strings.TrimSpace(*body.Email)
	}
	if body.AuthCode != nil {
		if ac := strings.TrimSpace(*body.AuthCode); ac != maskedAuthCode {
			next.AuthCode = ac
		}
	}

	saved, err := s.store.UpsertEmailSettings(r.Context(), next)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": maskEmailSettings(saved)})
}

type apiKeysPayload struct {
	VisionKey *string `json:"visionKey,omitempty"`
}

func maskAPIKeys(v model.APIKeys) model.APIKeys {
	if v.VisionKey != "" {
		v.VisionKey = maskedAuthCode
	}
	return v
}

func (s *Server) handleGetAPIKeys(w http.ResponseWriter, r *http.Request) {
	val, _, err := s.store.GetAPIKeys(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": maskAPIKeys(val)})
}

// handleUpdateAPIKeys stores the Vision token used when vision.token and
// VISION_TOKEN are unset. The server reads it at startup.
func (s *Server) handleUpdateAPIKeys(w http.ResponseWriter, r *http.Request) {
	var body apiKeysPayload
	if err := readJSON(r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}

	next, _, err := s.store.GetAPIKeys(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.VisionKey != nil {
		if k := strings.TrimSpace(*body.VisionKey); k != maskedAuthCode {
			next.VisionKey = k
		}
	}
	if err := s.store.UpsertAPIKeys(r.Context(), next); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.bus != nil {
		s.bus.Log("info", "api keys updated; restart to apply", nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": maskAPIKeys(next), "restartRequired": true})
}
