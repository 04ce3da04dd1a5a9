package model

import (
	"bytes"
	"encoding/json"
)

var emptyCookieSet = json.RawMessage("[]")

// CookiesOrEmpty returns the cookie payload to push to Vision. A missing or
// null cookie set is sent as an empty array.
func CookiesOrEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyCookieSet
	}
	return raw
}

// CookieCount reports the number of entries in a cookie array, or 0 when the
// payload is not an array.
func CookieCount(raw json.RawMessage) int {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0
	}
	return len(items)
}

// ParseCookieJSON validates a cookie token. Invalid JSON yields nil.
func ParseCookieJSON(token string) (json.RawMessage, bool) {
	b := []byte(token)
	if !json.Valid(b) {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}
