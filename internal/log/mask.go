package log

import (
	"net/url"
	"regexp"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys, lowercased, whose value is always masked.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"api_key":             true,
	"apikey":              true,
	"api-key":             true,
	"session":             true,
	"session_id":          true,
	"sessionid":           true,
	"sid":                 true,
	"jsessionid":          true,
}

// sensitiveKeywords mask any key containing them. The bare word "key" is
// left out; it matches too much (primary_key, keyboard).
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "private",
}

// sensitivePatterns mask a string value whatever its key.
var sensitivePatterns = []*regexp.Regexp{
	// JWT
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	// Long opaque API keys.
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),
	// AWS access key id
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// sensitiveParams are URL query parameter names, lowercased, whose value is
// masked inside logged URLs.
var sensitiveParams = map[string]bool{
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"id_token":      true,
	"key":           true,
	"api_key":       true,
	"apikey":        true,
	"sig":           true,
	"signature":     true,
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"client_secret": true,
	"code":          true,
	"session":       true,
	"sessionid":     true,
	"sid":           true,
	"jsessionid":    true,
	"phpsessid":     true,
	"auth":          true,

	// Presigned S3 URLs.
	"x-amz-signature":  true,
	"x-amz-credential": true,
}

// urlPattern finds absolute http(s) URLs embedded in free text such as error
// messages.
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// isSensitiveKey reports whether an attribute key names a secret.
func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if sensitiveKeys[key] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// isSensitiveValue reports whether a string value looks like a secret.
func isSensitiveValue(value string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// MaskURL masks the userinfo password and sensitive query parameters of an
// absolute URL. Anything that is not an absolute URL is returned unchanged,
// as is a URL with nothing to mask.
func MaskURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	changed := false
	var user string
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			// url.UserPassword would percent-encode the mask.
			user = url.User(u.User.Username()).String() + ":" + MaskValue + "@"
			u.User = nil
			changed = true
		}
	}

	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, part := range parts {
			rawName, _, _ := strings.Cut(part, "=")
			name := rawName
			if n, err := url.QueryUnescape(rawName); err == nil {
				name = n
			}
			if sensitiveParams[strings.ToLower(name)] {
				parts[i] = rawName + "=" + MaskValue
				changed = true
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}

	if !changed {
		return raw
	}
	if user == "" {
		return u.String()
	}
	prefix := u.Scheme + "://"
	return prefix + user + strings.TrimPrefix(u.String(), prefix)
}

// maskURLsIn applies MaskURL to every URL found in text.
func maskURLsIn(text string) string {
	return urlPattern.ReplaceAllStringFunc(text, MaskURL)
}
