package identity

import (
	"net/url"
	"strings"
)

// Client is the coarse device/browser/OS classification kept for a visit.
type Client struct {
	Device  string
	Browser string
	OS      string
}

// Classify derives a coarse classification from a user-agent string.
// Only the category names are kept; the user agent itself is never stored.
func Classify(userAgent string) Client {
	ua := strings.ToLower(userAgent)
	return Client{
		Device:  classifyDevice(ua),
		Browser: classifyBrowser(ua),
		OS:      classifyOS(ua),
	}
}

func classifyDevice(ua string) string {
	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return "tablet"
	case strings.Contains(ua, "mobi"), strings.Contains(ua, "iphone"):
		return "mobile"
	case ua == "":
		return "unknown"
	default:
		return "desktop"
	}
}

// Order matters: Edge and Opera advertise Chrome, Chrome advertises Safari.
func classifyBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge/"):
		return "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "firefox/"), strings.Contains(ua, "fxios/"):
		return "Firefox"
	case strings.Contains(ua, "chrome/"), strings.Contains(ua, "crios/"):
		return "Chrome"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	default:
		return "Other"
	}
}

func classifyOS(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		return "iOS"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "Other"
	}
}

// ReferrerDomain reduces a referrer URL to its host, without "www.".
// Query strings and paths are dropped.
func ReferrerDomain(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}
	if !strings.Contains(referrer, "://") {
		referrer = "https://" + referrer
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// NormalizePath strips scheme, host, query and fragment from a URL or path.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/"
	}
	if u, err := url.Parse(raw); err == nil && (u.Scheme != "" || u.Host != "") {
		raw = u.Path
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw[0] != '/' {
		raw = "/" + raw
	}
	return raw
}
