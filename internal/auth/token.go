package auth

import (
	"net/http"
	"strings"
)

const (
	AccessTokenCookie = "access_token"
	ServiceKeyHeader  = "X-Service-Auth"
	DeviceIDHeader    = "X-Device-ID"
)

// ExtractAccessToken reads the access token from the cookie first and the
// bearer Authorization header second. The scheme match is case-insensitive.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ExtractServiceKey returns the shared key internal callers (such as the
// coupon rule CLI or other backends) send instead of a user token.
func ExtractServiceKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ServiceKeyHeader))
}

func ExtractDeviceID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(DeviceIDHeader))
}
