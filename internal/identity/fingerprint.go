// Package identity derives stable throttle bucket keys from caller identity
// and a lightweight device fingerprint parsed from the User-Agent header.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

const (
	OSWindows = "windows"
	OSMacOS   = "macos"
	OSLinux   = "linux"
	OSAndroid = "android"
	OSiOS     = "ios"
	OSUnknown = "unknown"
)

// Fingerprint is the device signature extracted from a User-Agent string.
type Fingerprint struct {
	Browser    string
	OS         string
	DeviceType string
}

// ClientInfo is the raw request identity material supplied by the transport.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type keywordSet []string

func (k keywordSet) contains(s string) bool {
	for _, keyword := range k {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

var (
	botKeywords     = keywordSet{"bot", "spider", "crawler", "slurp", "archiver", "fetcher", "scraper", "monitor", "validator", "lighthouse"}
	tabletKeywords  = keywordSet{"ipad", "tablet", "kindle", "silk"}
	mobileKeywords  = keywordSet{"mobile", "iphone", "windows phone", "iemobile", "blackberry"}
	desktopOSNames  = keywordSet{OSWindows, OSMacOS, OSLinux}
	linuxKeywords   = keywordSet{"linux", "ubuntu", "debian", "fedora", "x11", "cros"}
	macKeywords     = keywordSet{"macintosh", "mac os x"}
	iosKeywords     = keywordSet{"iphone", "ipad", "ipod"}
)

// ParseFingerprint heuristically classifies a User-Agent string. The goal is
// a coarse, stable device signature, not precise client detection.
func ParseFingerprint(userAgent string) Fingerprint {
	ua := strings.ToLower(userAgent)

	fp := Fingerprint{
		Browser:    parseBrowser(ua),
		OS:         parseOS(ua),
		DeviceType: parseDeviceType(ua),
	}

	// Unknown device on a desktop-class OS is a desktop
	if fp.DeviceType == DeviceUnknown && desktopOSNames.contains(fp.OS) {
		fp.DeviceType = DeviceDesktop
	}

	return fp
}

func parseOS(ua string) string {
	switch {
	case ua == "":
		return OSUnknown
	case strings.Contains(ua, "windows"):
		return OSWindows
	case iosKeywords.contains(ua):
		return OSiOS
	case macKeywords.contains(ua):
		return OSMacOS
	case strings.Contains(ua, "android"):
		return OSAndroid
	case linuxKeywords.contains(ua):
		return OSLinux
	default:
		return OSUnknown
	}
}

func parseBrowser(ua string) string {
	// Order matters: Chrome-derived browsers embed "chrome", Safari is
	// claimed by nearly everything.
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "safari"):
		return "safari"
	case strings.Contains(ua, "curl"):
		return "curl"
	default:
		return "unknown"
	}
}

func parseDeviceType(ua string) string {
	switch {
	case ua == "":
		return DeviceUnknown
	case botKeywords.contains(ua):
		return DeviceBot
	case tabletKeywords.contains(ua):
		return DeviceTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		// Android tablets omit the "Mobile" token
		return DeviceTablet
	case mobileKeywords.contains(ua) || strings.Contains(ua, "android"):
		return DeviceMobile
	default:
		return DeviceUnknown
	}
}

// Subject builds the caller half of the bucket identity. Authenticated
// callers are keyed by user ID, anonymous callers collapse onto the scope.
func Subject(userID, scope string) string {
	if userID != "" {
		return fmt.Sprintf("user:%s:%s", userID, scope)
	}
	return fmt.Sprintf("anon:%s", scope)
}

// BucketKey hashes the subject together with the device signature. Identical
// inputs always yield the same key; two devices behind one IP land in
// different buckets, which ties quota identity to the device rather than the
// address.
func BucketKey(subject string, info ClientInfo) string {
	fp := ParseFingerprint(info.UserAgent)
	raw := fmt.Sprintf("%s:%s:%s:%s", subject, fp.OS, fp.Browser, fp.DeviceType)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
