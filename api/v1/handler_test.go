package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/events"
	"tally/internal/settings"
	"tally/internal/testsupport"
)

func postJSON(t *testing.T, app *fiber.App, path string, payload any, headers map[string]string) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	return resp.StatusCode, decoded
}

func TestCollectHandler(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	owner := testsupport.CreateTestUserForAuth(t, db, "collector@example.com", "password123")
	site := testsupport.CreateTestSite(t, db, owner.ID, "example.com")
	app := testsupport.CreateMinimalTestApp(t, db)

	countVisits := func() int64 {
		var count int64
		require.NoError(t, db.Model(&events.Visit{}).Where("site_id = ?", site.ID).Count(&count).Error)
		return count
	}

	t.Run("accepts a pageview", func(t *testing.T) {
		before := countVisits()

		status, body := postJSON(t, app, "/collect", map[string]any{
			"site_public_key": site.PublicKey,
			"visitor_id":      "visitor-1",
			"session_id":      "session-1",
			"url":             "https://example.com/pricing",
			"referrer":        "https://news.ycombinator.com/",
			"device_type":     "desktop",
		}, map[string]string{"X-Forwarded-For": "203.0.113.50"})

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, before+1, countVisits())

		var visit events.Visit
		require.NoError(t, db.Where("session_id = ?", "session-1").First(&visit).Error)
		assert.Equal(t, "https://example.com/pricing", visit.URL)
		assert.Equal(t, "https://news.ycombinator.com/", visit.Referrer)
		assert.Contains(t, visit.UserAgent, "Chrome/120", "falls back to the request User-Agent")
		assert.Equal(t, "Chrome 120.0", visit.Browser)
	})

	t.Run("missing fields", func(t *testing.T) {
		status, body := postJSON(t, app, "/collect", map[string]any{
			"site_public_key": site.PublicKey,
		}, nil)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Missing required fields", body["error"])
	})

	t.Run("unknown site key", func(t *testing.T) {
		status, body := postJSON(t, app, "/collect", map[string]any{
			"site_public_key": "NOPE-00000000",
			"url":             "https://example.com/",
		}, nil)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid site public key", body["error"])
	})

	t.Run("excluded IP is acknowledged but not stored", func(t *testing.T) {
		require.NoError(t, settings.UpdateSetting(db, logger, settings.KeyExcludedIPs, "198.51.100.0/24"))
		t.Cleanup(func() { _ = settings.UpdateSetting(db, logger, settings.KeyExcludedIPs, "") })
		before := countVisits()

		status, body := postJSON(t, app, "/collect", map[string]any{
			"site_public_key": site.PublicKey,
			"url":             "https://example.com/",
		}, map[string]string{"X-Forwarded-For": "198.51.100.77"})

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, before, countVisits())
	})

	t.Run("rejects requests without Sec-Fetch-Site", func(t *testing.T) {
		payload, err := json.Marshal(map[string]any{"site_public_key": site.PublicKey, "url": "https://example.com/"})
		require.NoError(t, err)

		req := httptest.NewRequest("POST", "/collect", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "curl/8.4.0")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestEventHandler(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	owner := testsupport.CreateTestUserForAuth(t, db, "eventer@example.com", "password123")
	site := testsupport.CreateTestSite(t, db, owner.ID, "example.com")
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("records a custom event", func(t *testing.T) {
		status, body := postJSON(t, app, "/event", map[string]any{
			"site_public_key": site.PublicKey,
			"session_id":      "session-9",
			"name":            "signup",
			"event_data":      map[string]any{"plan": "pro"},
		}, nil)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])

		var event events.Event
		require.NoError(t, db.Where("site_id = ? AND name = ?", site.ID, "signup").First(&event).Error)
		assert.Equal(t, "session-9", event.SessionID)
		require.NotNil(t, event.EventData)
		assert.JSONEq(t, `{"plan":"pro"}`, *event.EventData)
	})

	t.Run("requires a name", func(t *testing.T) {
		status, body := postJSON(t, app, "/event", map[string]any{
			"site_public_key": site.PublicKey,
		}, nil)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Missing required fields", body["error"])
	})

	t.Run("unknown site key", func(t *testing.T) {
		status, body := postJSON(t, app, "/event", map[string]any{
			"site_public_key": "NOPE-00000000",
			"name":            "signup",
		}, nil)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid site public key", body["error"])
	})
}

func TestGetSnippetAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

	for _, path := range []string{"/analytics.js", "/sdk.js"} {
		t.Run(path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", path, nil), 30000)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))
			assert.Equal(t, "cross-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))
			etag := resp.Header.Get("ETag")
			require.NotEmpty(t, etag)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), "site-key")
			assert.Contains(t, string(body), "/collect")
			assert.NotContains(t, string(body), "{{")

			req := httptest.NewRequest("GET", path, nil)
			req.Header.Set("If-None-Match", etag)
			cached, err := app.Test(req, 30000)
			require.NoError(t, err)
			assert.Equal(t, http.StatusNotModified, cached.StatusCode)
		})
	}
}
