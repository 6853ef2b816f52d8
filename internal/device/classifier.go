// Package device classifies raw user-agent strings into a coarse device
// descriptor for session listings. Classification is best-effort substring
// matching: unknown agents degrade to "Other"/"Unknown" and never fail. The
// result is display metadata and a soft anomaly signal only; it must never
// be the sole gate for an authorization decision.
package device

import "strings"

// Device type buckets.
const (
	TypeDesktop = "Desktop"
	TypeMobile  = "Mobile"
	TypeTablet  = "Tablet"
	TypeOther   = "Other"
)

// Info describes the client that created a session.
type Info struct {
	Browser    string
	OS         string
	DeviceType string
}

// browser tokens in match order; Edge and Opera embed "Chrome", and Chrome
// embeds "Safari", so the more specific tokens come first.
var browserTokens = []struct {
	token string
	name  string
}{
	{"edg/", "Edge"},
	{"edge", "Edge"},
	{"opr/", "Opera"},
	{"opera", "Opera"},
	{"firefox", "Firefox"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
	{"msie", "Internet Explorer"},
	{"trident", "Internet Explorer"},
}

var osTokens = []struct {
	token string
	name  string
}{
	{"windows", "Windows"},
	{"android", "Android"},
	{"iphone", "iOS"},
	{"ipad", "iOS"},
	{"ios", "iOS"},
	{"mac os x", "macOS"},
	{"macintosh", "macOS"},
	{"cros", "ChromeOS"},
	{"linux", "Linux"},
}

// Classify derives browser, OS and device type from a user-agent header.
func Classify(userAgent string) Info {
	ua := strings.ToLower(strings.TrimSpace(userAgent))

	info := Info{
		Browser:    "Unknown",
		OS:         "Unknown",
		DeviceType: TypeOther,
	}

	if ua == "" {
		return info
	}

	for _, b := range browserTokens {
		if strings.Contains(ua, b.token) {
			info.Browser = b.name
			break
		}
	}

	for _, o := range osTokens {
		if strings.Contains(ua, o.token) {
			info.OS = o.name
			break
		}
	}

	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		info.DeviceType = TypeTablet
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		info.DeviceType = TypeMobile
	case info.OS == "Windows" || info.OS == "macOS" || info.OS == "Linux" || info.OS == "ChromeOS":
		info.DeviceType = TypeDesktop
	}

	return info
}
