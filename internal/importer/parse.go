// Package importer turns delimited account dumps into stored accounts.
package importer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"account_sync/internal/apperr"
	"account_sync/internal/model"
)

// Importable field names accepted in a FieldMapping.
const (
	FieldLogin              = "login"
	FieldEmail              = "email"
	FieldPlainPassword      = "plainPassword"
	FieldEmailPlainPassword = "emailPlainPassword"
	FieldFacebookID         = "facebookId"
	FieldUserAgent          = "useragent"
	FieldCookie             = "cookie"
	FieldTwoFaToken         = "twoFaToken"
)

var AvailableFields = []string{
	FieldLogin,
	FieldEmail,
	FieldPlainPassword,
	FieldEmailPlainPassword,
	FieldFacebookID,
	FieldUserAgent,
	FieldCookie,
	FieldTwoFaToken,
}

func isAvailableField(name string) bool {
	for _, f := range AvailableFields {
		if f == name {
			return true
		}
	}
	return false
}

type FieldMapping struct {
	FieldName string `json:"fieldName"`
	Position  int    `json:"position"`
}

// ValidateMappings rejects unknown field names and negative positions.
func ValidateMappings(mappings []FieldMapping) error {
	if len(mappings) == 0 {
		return apperr.Errorf(apperr.Validation, "import", "fieldsMapping is empty")
	}
	for i, m := range mappings {
		if !isAvailableField(m.FieldName) {
			return apperr.Errorf(apperr.Validation, "import", "fieldsMapping[%d]: unknown field %q", i, m.FieldName)
		}
		if m.Position < 0 {
			return apperr.Errorf(apperr.Validation, "import", "fieldsMapping[%d]: negative position %d", i, m.Position)
		}
	}
	return nil
}

// ParseMappings decodes the JSON fieldsMapping form value and validates it.
// Entries with a null or missing position are unmapped and skipped.
func ParseMappings(raw string) ([]FieldMapping, error) {
	var in []struct {
		FieldName string `json:"fieldName"`
		Position  *int   `json:"position"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, apperr.E(apperr.Validation, "import", fmt.Errorf("invalid fieldsMapping JSON: %w", err))
	}
	out := make([]FieldMapping, 0, len(in))
	for _, m := range in {
		if m.Position == nil {
			continue
		}
		out = append(out, FieldMapping{FieldName: m.FieldName, Position: *m.Position})
	}
	if err := ValidateMappings(out); err != nil {
		return nil, err
	}
	return out, nil
}

type Role int

const (
	RoleFBAccount Role = iota
	RolePurchased
)

func (r Role) Kind() model.AccountKind {
	if r == RolePurchased {
		return model.AccountKindPurchased
	}
	return model.AccountKindFB
}

func (r Role) String() string {
	return string(r.Kind())
}

// Defaults holds values applied to fields the mappings left empty.
type Defaults struct {
	Geo           model.Geo
	Gender        string
	AccountStatus model.AccountStatus
	UploadedAt    *time.Time
}

// Defaults returns the role's default values for a batch started at now.
func (r Role) Defaults(now time.Time) Defaults {
	switch r {
	case RolePurchased:
		at := now
		return Defaults{Geo: model.GeoUA, UploadedAt: &at}
	default:
		return Defaults{Geo: model.GeoUA, Gender: "unknown", AccountStatus: model.StatusPurchased}
	}
}

// Record is one parsed account line.
type Record struct {
	Login              string
	Email              string
	PlainPassword      string
	EmailPlainPassword string
	FacebookID         string
	UserAgent          string
	Cookie             json.RawMessage
	TwoFaToken         string

	Geo           model.Geo
	Gender        string
	AccountStatus model.AccountStatus
	UploadedAt    *time.Time
}

// Account converts the record into an account of the given kind.
func (r Record) Account(kind model.AccountKind) model.Account {
	return model.Account{
		Kind:               kind,
		Login:              r.Login,
		PlainPassword:      r.PlainPassword,
		Email:              r.Email,
		EmailPlainPassword: r.EmailPlainPassword,
		FacebookID:         r.FacebookID,
		UserAgent:          r.UserAgent,
		TwoFaToken:         r.TwoFaToken,
		Cookie:             r.Cookie,
		Gender:             r.Gender,
		Geo:                r.Geo,
		AccountStatus:      r.AccountStatus,
		UploadedAt:         r.UploadedAt,
	}
}

// Builder accumulates mapped values for a single record. Later sets of the
// same field win.
type Builder struct {
	rec Record
}

func (b *Builder) Set(field, token string) {
	if field == FieldCookie {
		// Invalid cookie JSON clears the field but keeps the record.
		cookie, ok := model.ParseCookieJSON(token)
		if !ok {
			cookie = nil
		}
		b.rec.Cookie = cookie
		return
	}
	v := strings.TrimSpace(token)
	switch field {
	case FieldLogin:
		b.rec.Login = v
	case FieldEmail:
		b.rec.Email = v
	case FieldPlainPassword:
		b.rec.PlainPassword = v
	case FieldEmailPlainPassword:
		b.rec.EmailPlainPassword = v
	case FieldFacebookID:
		b.rec.FacebookID = v
	case FieldUserAgent:
		b.rec.UserAgent = v
	case FieldTwoFaToken:
		b.rec.TwoFaToken = v
	}
}

// Build fills still-empty defaulted fields and returns the record.
func (b *Builder) Build(d Defaults) Record {
	rec := b.rec
	if rec.Geo.IsZero() {
		rec.Geo = d.Geo
	}
	if rec.Gender == "" {
		rec.Gender = d.Gender
	}
	if rec.AccountStatus.IsZero() {
		rec.AccountStatus = d.AccountStatus
	}
	if rec.UploadedAt == nil && d.UploadedAt != nil {
		at := *d.UploadedAt
		rec.UploadedAt = &at
	}
	return rec
}

// ParseLine splits line on separator and applies mappings then defaults.
// It reports false for blank lines and for lines missing login or password.
func ParseLine(line, separator string, mappings []FieldMapping, defaults Defaults) (Record, bool) {
	if strings.TrimSpace(line) == "" || separator == "" {
		return Record{}, false
	}
	tokens := strings.Split(line, separator)

	var b Builder
	for _, m := range mappings {
		if m.Position < 0 || m.Position >= len(tokens) {
			continue
		}
		token := tokens[m.Position]
		if strings.TrimSpace(token) == "" {
			continue
		}
		b.Set(m.FieldName, token)
	}

	rec := b.Build(defaults)
	if rec.Login == "" || rec.PlainPassword == "" {
		return Record{}, false
	}
	return rec, true
}
