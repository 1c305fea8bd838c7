package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tamamhuda/envlink-api-sub000/internal/identity"
)

const (
	chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	firefoxLinuxUA  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	googlebotUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestParseFingerprint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ua   string
		want identity.Fingerprint
	}{
		{
			name: "chrome on windows desktop",
			ua:   chromeWindowsUA,
			want: identity.Fingerprint{Browser: "chrome", OS: identity.OSWindows, DeviceType: identity.DeviceDesktop},
		},
		{
			name: "safari on iphone",
			ua:   safariIphoneUA,
			want: identity.Fingerprint{Browser: "safari", OS: identity.OSiOS, DeviceType: identity.DeviceMobile},
		},
		{
			name: "firefox on linux desktop",
			ua:   firefoxLinuxUA,
			want: identity.Fingerprint{Browser: "firefox", OS: identity.OSLinux, DeviceType: identity.DeviceDesktop},
		},
		{
			name: "googlebot",
			ua:   googlebotUA,
			want: identity.Fingerprint{Browser: "unknown", OS: identity.OSUnknown, DeviceType: identity.DeviceBot},
		},
		{
			name: "empty user agent",
			ua:   "",
			want: identity.Fingerprint{Browser: "unknown", OS: identity.OSUnknown, DeviceType: identity.DeviceUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identity.ParseFingerprint(tt.ua))
		})
	}
}

func TestParseFingerprint_DesktopInference(t *testing.T) {
	t.Parallel()

	// No device keywords at all, but a desktop-class OS name
	fp := identity.ParseFingerprint("something windows something")
	assert.Equal(t, identity.DeviceDesktop, fp.DeviceType)

	// Unknown OS stays unknown
	fp = identity.ParseFingerprint("mystery client/1.0")
	assert.Equal(t, identity.DeviceUnknown, fp.DeviceType)
}

func TestSubject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "user:u1:login", identity.Subject("u1", "login"))
	assert.Equal(t, "anon:login", identity.Subject("", "login"))
}

func TestBucketKey(t *testing.T) {
	t.Parallel()

	info := identity.ClientInfo{IP: "203.0.113.7", UserAgent: chromeWindowsUA}

	t.Run("deterministic", func(t *testing.T) {
		k1 := identity.BucketKey("user:u1:login", info)
		k2 := identity.BucketKey("user:u1:login", info)
		assert.Equal(t, k1, k2)
		assert.Len(t, k1, 64)
	})

	t.Run("different devices behind one IP get different buckets", func(t *testing.T) {
		phone := identity.ClientInfo{IP: "203.0.113.7", UserAgent: safariIphoneUA}
		k1 := identity.BucketKey("anon:login", info)
		k2 := identity.BucketKey("anon:login", phone)
		assert.NotEqual(t, k1, k2)
	})

	t.Run("different subjects get different buckets", func(t *testing.T) {
		k1 := identity.BucketKey("user:u1:login", info)
		k2 := identity.BucketKey("user:u2:login", info)
		assert.NotEqual(t, k1, k2)
	})
}
