package attend

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// signKey picks the signing key for a profile. signSecret takes priority over
// the refreshable signToken; empty means the profile signs with a static
// precomputed header instead.
func signKey(profile *Profile) string {
	if profile.SignSecret != "" {
		return profile.SignSecret
	}
	return profile.SignToken
}

// buildSignSource assembles the string the server expects under the HMAC:
// path, then query (GET) or body (other methods), then the unix timestamp,
// then a JSON claims object whose key order is fixed by the server.
func buildSignSource(rawURL, method, body, timestamp string, profile *Profile) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse sign url: %w", err)
	}

	var b strings.Builder
	b.WriteString(parsed.Path)
	if strings.ToUpper(method) == "GET" {
		b.WriteString(parsed.RawQuery)
	} else {
		b.WriteString(body)
	}
	b.WriteString(timestamp)

	// Key order matters to the server. Marshal by hand so the map order
	// never changes underneath us.
	b.WriteString(fmt.Sprintf(`{"platform":%q,"timestamp":%q,"dId":%q,"vName":%q}`,
		profile.Platform, timestamp, profile.DeviceID, profile.VName))

	return b.String(), nil
}

// computeSign is HMAC-SHA256 over the sign source, hex-encoded, then MD5 of
// that hex string, hex-encoded again.
func computeSign(key, source string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(source))
	hmacHex := hex.EncodeToString(mac.Sum(nil))
	sum := md5.Sum([]byte(hmacHex))
	return hex.EncodeToString(sum[:])
}

// buildSignHeaders produces the platform/vName/timestamp/dId/sign header set
// for one request. now is injectable for deterministic tests.
func buildSignHeaders(profile *Profile, rawURL, method, body string, now time.Time) (map[string]string, error) {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	headers := map[string]string{
		"platform":  profile.Platform,
		"vName":     profile.VName,
		"timestamp": timestamp,
	}
	if profile.DeviceID != "" {
		headers["dId"] = profile.DeviceID
	}

	key := signKey(profile)
	if key == "" {
		return headers, nil
	}

	source, err := buildSignSource(rawURL, method, body, timestamp, profile)
	if err != nil {
		return nil, err
	}
	headers["sign"] = computeSign(key, source)
	return headers, nil
}
