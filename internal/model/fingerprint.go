package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Fingerprint is the browser fingerprint object returned by Vision. It is
// kept as a generic JSON object; only a handful of keys are ever rewritten.
type Fingerprint map[string]any

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  int     `json:"accuracy"`
}

// Navigator returns the nested navigator object, creating it when absent.
func (f Fingerprint) Navigator() map[string]any {
	nav, ok := f["navigator"].(map[string]any)
	if !ok {
		nav = map[string]any{}
		f["navigator"] = nav
	}
	return nav
}

func (f Fingerprint) Clone() Fingerprint {
	if f == nil {
		return nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil
	}
	var out Fingerprint
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func (f Fingerprint) Value() (driver.Value, error) {
	if f == nil {
		return "", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *Fingerprint) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return errors.New("fingerprint: unsupported column type")
	}
	if len(b) == 0 {
		*f = nil
		return nil
	}
	var out Fingerprint
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*f = out
	return nil
}
