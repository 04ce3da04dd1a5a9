package model

import (
	"encoding/json"
	"testing"
)

func TestParseAccountStatus(t *testing.T) {
	cases := []struct {
		in   string
		kind AccountStatusKind
		raw  string
	}{
		{"active", AccountStatusActive, "active"},
		{" Banned ", AccountStatusBanned, "banned"},
		{"on_hold", AccountStatusUnknown, "on_hold"},
		{"", AccountStatusUnknown, ""},
	}
	for _, tc := range cases {
		got := ParseAccountStatus(tc.in)
		if got.Kind() != tc.kind || got.String() != tc.raw {
			t.Errorf("ParseAccountStatus(%q) = %v/%q", tc.in, got.Kind(), got.String())
		}
	}
}

func TestUnknownStatusSurvivesJSON(t *testing.T) {
	in := Account{Login: "a", AccountStatus: ParseAccountStatus("checkpoint"), Geo: ParseGeo("pl")}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Account
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.AccountStatus.String() != "checkpoint" || out.AccountStatus.Kind() != AccountStatusUnknown {
		t.Fatalf("status = %q", out.AccountStatus)
	}
	if out.Geo.String() != "PL" || out.Geo == GeoUA {
		t.Fatalf("geo = %q", out.Geo)
	}
}

func TestCookiesOrEmpty(t *testing.T) {
	for _, in := range []string{"", "null", "  "} {
		if got := string(CookiesOrEmpty(json.RawMessage(in))); got != "[]" {
			t.Errorf("CookiesOrEmpty(%q) = %q", in, got)
		}
	}
	if got := string(CookiesOrEmpty(json.RawMessage(`[{"a":1}]`))); got != `[{"a":1}]` {
		t.Errorf("cookies rewritten: %s", got)
	}
}

func TestCookieCount(t *testing.T) {
	if n := CookieCount(json.RawMessage(`[{},{},{}]`)); n != 3 {
		t.Fatalf("count = %d", n)
	}
	if n := CookieCount(json.RawMessage(`{"a":1}`)); n != 0 {
		t.Fatalf("object counted as %d", n)
	}
}

func TestParseCookieJSON(t *testing.T) {
	got, ok := ParseCookieJSON(` [ {"name": "c"} ] `)
	if !ok || string(got) != `[{"name":"c"}]` {
		t.Fatalf("got %s ok=%v", got, ok)
	}
	if _, ok := ParseCookieJSON(`[{"name":`); ok {
		t.Fatal("truncated JSON accepted")
	}
}

func TestFingerprintValueScan(t *testing.T) {
	var nilFP Fingerprint
	v, err := nilFP.Value()
	if err != nil || v != "" {
		t.Fatalf("nil value = %v, %v", v, err)
	}

	fp := Fingerprint{"navigator": map[string]any{"timezone": "UTC"}}
	v, err = fp.Value()
	if err != nil {
		t.Fatal(err)
	}
	var back Fingerprint
	if err := back.Scan(v); err != nil {
		t.Fatal(err)
	}
	if back.Navigator()["timezone"] != "UTC" {
		t.Fatalf("scanned = %v", back)
	}
	if err := back.Scan(""); err != nil || back != nil {
		t.Fatalf("empty scan = %v, %v", back, err)
	}
	if err := back.Scan(42); err == nil {
		t.Fatal("int column accepted")
	}
}

func TestFingerprintCloneIsDeep(t *testing.T) {
	fp := Fingerprint{"navigator": map[string]any{"timezone": "UTC"}}
	cp := fp.Clone()
	cp.Navigator()["timezone"] = "Europe/Kyiv"
	if fp.Navigator()["timezone"] != "UTC" {
		t.Fatal("clone shares nested maps")
	}
}
