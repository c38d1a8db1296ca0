// Package matcher decides whether an outbound link points at the configured
// WhatsApp destination.
package matcher

import (
	"net/url"
	"regexp"
	"strings"

	"clicktrack/pkg/utils"
)

const (
	hostAPI      = "api.whatsapp.com"
	hostShort    = "wa.me"
	schemeNative = "whatsapp"
	messagePath  = "/message/"
)

// fallbackPattern mirrors the structured rules for links that net/url refuses
// to parse. RE2 has no lookahead, so the phone checks run on the captured
// groups: 1 = api.whatsapp.com query, 2 = wa.me path number, 3 = native query.
var fallbackPattern = regexp.MustCompile(`(?i)^(?:` +
	`https?://api\.whatsapp\.com/(?:send|message)(?:\?([^#]*))?` +
	`|https?://wa\.me/((?:\+|%2B)?\d+)(?:\?[^#]*)?` +
	`|https?://api\.whatsapp\.com/message/[^#\s]+` +
	`|https?://wa\.me/message/[^#\s]+` +
	`|whatsapp://send(?:\?([^#]*))?` +
	`)$`)

// Matches reports whether rawURL is a click toward destination. The
// destination is reduced to digits first and must have 10 to 15 of them.
func Matches(rawURL, destination string) bool {
	digits := utils.DigitsOnly(destination)
	if !utils.ValidPhoneLength(digits) {
		return false
	}

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return matchesFallback(rawURL, digits)
	}
	return matchesStructured(u, digits)
}

func matchesStructured(u *url.URL, digits string) bool {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())

	if scheme == schemeNative {
		return host == "send" && phoneParamEquals(u.Query(), digits)
	}
	if scheme != "http" && scheme != "https" {
		return false
	}

	switch host {
	case hostAPI:
		if strings.HasPrefix(u.Path, messagePath) {
			return true
		}
		switch strings.TrimSuffix(u.Path, "/") {
		case "/send", "/message":
			return phoneParamEquals(u.Query(), digits)
		}
		return false

	case hostShort:
		if strings.HasPrefix(u.Path, messagePath) {
			return true
		}
		segment := strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), "/")
		return pathNumberEquals(segment, digits)
	}

	return false
}

func matchesFallback(rawURL, digits string) bool {
	m := fallbackPattern.FindStringSubmatchIndex(rawURL)
	if m == nil {
		return false
	}

	group := func(i int) (string, bool) {
		start, end := m[2*i], m[2*i+1]
		if start < 0 {
			return "", false
		}
		return rawURL[start:end], true
	}

	scheme, rest, _ := strings.Cut(strings.ToLower(rawURL), "://")
	switch {
	case scheme == schemeNative:
		query, _ := group(3)
		return rawQueryHasPhone(query, digits)
	case strings.HasPrefix(rest, hostShort+messagePath), strings.HasPrefix(rest, hostAPI+messagePath):
		return true
	case strings.HasPrefix(rest, hostShort+"/"):
		number, ok := group(2)
		return ok && pathNumberEquals(number, digits)
	default:
		query, _ := group(1)
		return rawQueryHasPhone(query, digits)
	}
}

// phoneParamEquals compares the phone query parameter by digits. A literal +
// decodes to a space and %2B to +, both of which are dropped.
func phoneParamEquals(q url.Values, digits string) bool {
	phone := q.Get("phone")
	if phone == "" {
		return false
	}
	return utils.DigitsOnly(phone) == digits
}

// pathNumberEquals accepts the number with an optional leading + or %2B.
func pathNumberEquals(segment, digits string) bool {
	segment = trimPlus(segment)
	return segment != "" && segment == digits
}

// rawQueryHasPhone scans an undecoded query string for phone=<digits>,
// independent of parameter order.
func rawQueryHasPhone(rawQuery, digits string) bool {
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found || !strings.EqualFold(key, "phone") {
			continue
		}
		if trimPlus(value) == digits {
			return true
		}
	}
	return false
}

func trimPlus(s string) string {
	if strings.HasPrefix(s, "+") {
		return s[1:]
	}
	if len(s) >= 3 && strings.EqualFold(s[:3], "%2B") {
		return s[3:]
	}
	return s
}
