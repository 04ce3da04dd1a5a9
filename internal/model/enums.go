package model

import (
	"encoding/json"
	"strings"
)

// AccountStatus is a closed set of known statuses. Values that are not
// recognised decode to AccountStatusUnknown but keep their raw text, so a
// round trip through the store never loses data.
type AccountStatus struct {
	known AccountStatusKind
	raw   string
}

type AccountStatusKind int

const (
	AccountStatusUnknown AccountStatusKind = iota
	AccountStatusActive
	AccountStatusPurchased
	AccountStatusSuspended
	AccountStatusBanned
)

var accountStatusNames = map[AccountStatusKind]string{
	AccountStatusActive:    "active",
	AccountStatusPurchased: "purchased",
	AccountStatusSuspended: "suspended",
	AccountStatusBanned:    "banned",
}

var (
	StatusActive    = AccountStatus{known: AccountStatusActive, raw: "active"}
	StatusPurchased = AccountStatus{known: AccountStatusPurchased, raw: "purchased"}
	StatusSuspended = AccountStatus{known: AccountStatusSuspended, raw: "suspended"}
	StatusBanned    = AccountStatus{known: AccountStatusBanned, raw: "banned"}
)

func ParseAccountStatus(s string) AccountStatus {
	v := strings.TrimSpace(s)
	if v == "" {
		return AccountStatus{}
	}
	for kind, name := range accountStatusNames {
		if strings.EqualFold(name, v) {
			return AccountStatus{known: kind, raw: name}
		}
	}
	return AccountStatus{known: AccountStatusUnknown, raw: v}
}

func (s AccountStatus) Kind() AccountStatusKind { return s.known }
func (s AccountStatus) String() string          { return s.raw }
func (s AccountStatus) IsZero() bool            { return s.raw == "" }

func (s AccountStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.raw)
}

func (s *AccountStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseAccountStatus(raw)
	return nil
}

// Geo is the account's target geography. Only UA is used today.
type Geo struct {
	code string
}

var GeoUA = Geo{code: "UA"}

func ParseGeo(s string) Geo {
	return Geo{code: strings.ToUpper(strings.TrimSpace(s))}
}

func (g Geo) String() string { return g.code }
func (g Geo) IsZero() bool   { return g.code == "" }

func (g Geo) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.code)
}

func (g *Geo) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*g = ParseGeo(raw)
	return nil
}

// ProfileState tracks the remote profile lifecycle of an account.
type ProfileState string

const (
	ProfileStateNone    ProfileState = "no_profile"
	ProfileStateCreated ProfileState = "profile_created"
	ProfileStateSynced  ProfileState = "synced"
)
