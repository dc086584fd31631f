package user_agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tally/internal/pkg/user_agent"
)

func TestParseUserAgent(t *testing.T) {
	testCases := []struct {
		name            string
		userAgent       string
		expectedBrowser string
		expectedOS      string
		expectedDevice  string
		browserSummary  string
		osSummary       string
	}{
		{
			name:            "Chrome on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			expectedBrowser: "Chrome",
			expectedOS:      "Windows",
			expectedDevice:  "desktop",
			browserSummary:  "Chrome 91.0",
			osSummary:       "Windows 10.0",
		},
		{
			name:            "Safari on iPhone",
			userAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedOS:      "iOS",
			expectedDevice:  "mobile",
			browserSummary:  "Mobile Safari 14.0",
			osSummary:       "iOS 14.6",
		},
		{
			name:            "Chrome on Android",
			userAgent:       "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			expectedBrowser: "Chrome Mobile",
			expectedOS:      "Android",
			expectedDevice:  "mobile",
			browserSummary:  "Chrome Mobile 91.0",
			osSummary:       "Android 11",
		},
		{
			name:            "Safari on iPad",
			userAgent:       "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedOS:      "iPadOS",
			expectedDevice:  "tablet",
			browserSummary:  "Mobile Safari 14.0",
			osSummary:       "iPadOS 14.6",
		},
		{
			name:            "Edge on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			expectedBrowser: "Microsoft Edge",
			expectedOS:      "Windows",
			expectedDevice:  "desktop",
			browserSummary:  "Microsoft Edge 120.0",
			osSummary:       "Windows 10.0",
		},
		{
			name:            "Firefox on Linux",
			userAgent:       "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			expectedBrowser: "Firefox",
			expectedOS:      "Ubuntu",
			expectedDevice:  "desktop",
			browserSummary:  "Firefox 121.0",
			osSummary:       "Ubuntu",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := user_agent.ParseUserAgent(tc.userAgent)

			assert.Equal(t, tc.expectedBrowser, result.Browser)
			assert.Equal(t, tc.expectedOS, result.OS)
			assert.Equal(t, tc.expectedDevice, result.DeviceType())
			assert.Equal(t, tc.browserSummary, result.BrowserSummary())
			assert.Equal(t, tc.osSummary, result.OSSummary())
			assert.False(t, result.Bot)
		})
	}
}

func TestParseUserAgentBots(t *testing.T) {
	for _, ua := range []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"curl/8.4.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36",
	} {
		t.Run(ua, func(t *testing.T) {
			result := user_agent.ParseUserAgent(ua)
			assert.True(t, result.Bot)
			assert.Equal(t, "bot", result.DeviceType())
		})
	}
}

func TestParseUserAgentToleratesGarbage(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		result := user_agent.ParseUserAgent("")
		assert.Equal(t, "Unknown", result.BrowserSummary())
		assert.Equal(t, "Unknown", result.OSSummary())
		assert.Equal(t, "unknown", result.DeviceType())
	})

	t.Run("random text", func(t *testing.T) {
		result := user_agent.ParseUserAgent("%%% not a browser ((")
		assert.Equal(t, "Unknown", result.Browser)
		assert.Equal(t, "Unknown", result.OS)
	})
}
