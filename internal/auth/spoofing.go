package auth

import "strings"

// Incident severities, ordered.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
)

// Security event types raised by the spoofing guard.
const (
	EventBrowserWithServiceToken  = "BROWSER_WITH_SERVICE_TOKEN"
	EventInvalidServiceToken      = "INVALID_SERVICE_TOKEN"
	EventServiceWithBrowserHeader = "SERVICE_WITH_BROWSER_HEADERS"
)

// browserUASubstrings mark user agents no registered service would present.
var browserUASubstrings = []string{
	"Mozilla/", "Chrome/", "Safari/", "Firefox/", "Edg/", "Opera/",
}

// RequestFingerprint is the subset of headers the spoofing guard inspects.
type RequestFingerprint struct {
	UserAgent    string
	SecFetchSite string
	SecFetchMode string
	SecChUA      string
	Cookie       string
}

// IsBrowserLike classifies the request by presence of browser-only
// fetch-metadata headers or a recognized browser user agent.
func (f RequestFingerprint) IsBrowserLike() bool {
	if f.SecFetchSite != "" || f.SecFetchMode != "" {
		return true
	}
	for _, s := range browserUASubstrings {
		if strings.Contains(f.UserAgent, s) {
			return true
		}
	}
	return false
}

// HasBrowserOnlyHeaders reports headers a verified service should never
// send: session cookies and client-hint UA headers.
func (f RequestFingerprint) HasBrowserOnlyHeaders() bool {
	return f.Cookie != "" || f.SecChUA != ""
}
