package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"account_sync/internal/model"
)

const (
	emailSettingsKey = "email_settings"
	apiKeysKey       = "api_keys"
)

func (s *Store) getSetting(ctx context.Context, key string, out any) (bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, key).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(valueJSON), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) putSetting(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, key, string(b), s.now().UnixMilli())
	return err
}

func (s *Store) GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error) {
	var out model.EmailSettings
	ok, err := s.getSetting(ctx, emailSettingsKey, &out)
	if err != nil || !ok {
		return model.EmailSettings{}, false, err
	}
	return out, true, nil
}

func (s *Store) UpsertEmailSettings(ctx context.Context, v model.EmailSettings) (model.EmailSettings, error) {
	v.Email = strings.TrimSpace(v.Email)
	v.AuthCode = strings.TrimSpace(v.AuthCode)
	if err := s.putSetting(ctx, emailSettingsKey, v); err != nil {
		return model.EmailSettings{}, err
	}
	return v, nil
}

// GetAPIKeys is the secrets lookup for third-party tokens.
func (s *Store) GetAPIKeys(ctx context.Context) (model.APIKeys, bool, error) {
	var out model.APIKeys
	ok, err := s.getSetting(ctx, apiKeysKey, &out)
	if err != nil || !ok {
		return model.APIKeys{}, false, err
	}
	return out, true, nil
}

func (s *Store) UpsertAPIKeys(ctx context.Context, v model.APIKeys) error {
	v.VisionKey = strings.TrimSpace(v.VisionKey)
	return s.putSetting(ctx, apiKeysKey, v)
}
