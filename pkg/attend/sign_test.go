package attend

import (
	"testing"
	"time"
)

func signProfile() *Profile {
	return &Profile{
		ID:        "main",
		Platform:  "3",
		VName:     "1.0.0",
		DeviceID:  "device-123",
		SignToken: "token-abc",
	}
}

func TestSignKeyPriority(t *testing.T) {
	p := signProfile()
	if got := signKey(p); got != "token-abc" {
		t.Errorf("signKey = %q, want token", got)
	}
	p.SignSecret = "secret-xyz"
	if got := signKey(p); got != "secret-xyz" {
		t.Errorf("signKey = %q, want secret to win", got)
	}
	if got := signKey(&Profile{}); got != "" {
		t.Errorf("signKey on empty profile = %q", got)
	}
}

func TestBuildSignSource(t *testing.T) {
	p := signProfile()

	got, err := buildSignSource("https://example.com/web/v1/attendance?a=1&b=2", "GET", "", "1700000000", p)
	if err != nil {
		t.Fatal(err)
	}
	want := `/web/v1/attendancea=1&b=21700000000` +
		`{"platform":"3","timestamp":"1700000000","dId":"device-123","vName":"1.0.0"}`
	if got != want {
		t.Errorf("GET source = %q, want %q", got, want)
	}

	// Non-GET methods sign the body instead of the query.
	got, err = buildSignSource("https://example.com/web/v1/attendance?a=1", "POST", "{}", "1700000000", p)
	if err != nil {
		t.Fatal(err)
	}
	want = `/web/v1/attendance{}1700000000` +
		`{"platform":"3","timestamp":"1700000000","dId":"device-123","vName":"1.0.0"}`
	if got != want {
		t.Errorf("POST source = %q, want %q", got, want)
	}
}

func TestComputeSignShape(t *testing.T) {
	one := computeSign("key", "source")
	if len(one) != 32 {
		t.Fatalf("sign length = %d, want 32 hex chars", len(one))
	}
	if again := computeSign("key", "source"); again != one {
		t.Error("sign not deterministic")
	}
	if other := computeSign("other-key", "source"); other == one {
		t.Error("different keys produced the same sign")
	}
}

func TestBuildSignHeaders(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := signProfile()

	headers, err := buildSignHeaders(p, "https://example.com/web/v1/attendance", "POST", "{}", now)
	if err != nil {
		t.Fatal(err)
	}
	if headers["platform"] != "3" || headers["vName"] != "1.0.0" {
		t.Errorf("identity headers = %v", headers)
	}
	if headers["timestamp"] != "1700000000" {
		t.Errorf("timestamp = %q", headers["timestamp"])
	}
	if headers["dId"] != "device-123" {
		t.Errorf("dId = %q", headers["dId"])
	}
	if len(headers["sign"]) != 32 {
		t.Errorf("sign = %q, want 32 hex chars", headers["sign"])
	}
}

func TestBuildSignHeadersNoKeyNoDevice(t *testing.T) {
	p := &Profile{Platform: "3", VName: "1.0.0"}
	headers, err := buildSignHeaders(p, "https://example.com/x", "GET", "", time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := headers["sign"]; ok {
		t.Error("sign header present without a signing key")
	}
	if _, ok := headers["dId"]; ok {
		t.Error("dId header present without a device id")
	}
}
