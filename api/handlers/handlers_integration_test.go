// api/handlers/handlers_integration_test.go
package handlers_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ian-Chin/iunami-ai-extension/api"
	"github.com/Ian-Chin/iunami-ai-extension/api/models"
	"github.com/Ian-Chin/iunami-ai-extension/config"
	"github.com/Ian-Chin/iunami-ai-extension/internal/auth"
	"github.com/Ian-Chin/iunami-ai-extension/internal/storage"
)

const (
	testSecret   = "test_secret_key_for_integration_tests_1234567890"
	goodToken    = "secret_good"
	pageID       = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	pageURL      = "https://www.notion.so/acme/Home-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tasksDB      = "11111111-2222-3333-4444-555555555555"
	createdPage  = "99999999-8888-7777-6666-555555555555"
	modelContent = `{"Name":"Buy milk","Status":"Todo","Nonsense":"dropped"}`
)

// fakeNotion records page creations and serves a one-database workspace.
type fakeNotion struct {
	mu      sync.Mutex
	created []map[string]any
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+goodToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"status":401,"code":"unauthorized","message":"API token is invalid."}`)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/users/me":
		_, _ = io.WriteString(w, `{"id":"bot-1","type":"bot","bot":{"workspace_name":"Acme"}}`)
	case r.Method == http.MethodGet && r.URL.Path == "/users":
		_, _ = io.WriteString(w, `{"results":[{"id":"bot-1"}]}`)
	case r.Method == http.MethodGet && r.URL.Path == "/pages/"+pageID:
		_, _ = io.WriteString(w, `{"id":"`+pageID+`","icon":{"type":"emoji","emoji":"🏠"},
			"properties":{"title":{"type":"title","title":[{"plain_text":"Home"}]}}}`)
	case r.Method == http.MethodGet && r.URL.Path == "/blocks/"+pageID+"/children":
		_, _ = io.WriteString(w, `{"results":[{"id":"`+tasksDB+`","type":"child_database","child_database":{"title":"Tasks"}}],
			"has_more":false,"next_cursor":null}`)
	case r.Method == http.MethodGet && r.URL.Path == "/databases/"+tasksDB:
		_, _ = io.WriteString(w, `{"id":"`+tasksDB+`","title":[{"plain_text":"Tasks"}],"properties":{
			"Name":{"type":"title","title":{}},
			"Status":{"type":"select","select":{"options":[{"name":"Todo"},{"name":"Done"}]}},
			"Created":{"type":"created_time","created_time":{}}}}`)
	case r.Method == http.MethodPost && r.URL.Path == "/pages":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.created = append(f.created, body)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"`+createdPage+`","url":"https://notion.so/`+strings.ReplaceAll(createdPage, "-", "")+`"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"status":404,"code":"object_not_found","message":"Could not find object"}`)
	}
}

func (f *fakeNotion) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeNotion) lastCreated() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// fakeModel answers every completion with modelContent and keeps the last
// system prompt it was sent.
type fakeModel struct {
	mu           sync.Mutex
	systemPrompt string
}

func (f *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	for _, m := range req.Messages {
		if m.Role == "system" {
			f.systemPrompt = m.Content
		}
	}
	f.mu.Unlock()

	reply, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": modelContent}}},
	})
	_, _ = w.Write(reply)
}

// testDBSetup creates a temporary SQLite DB and a config pointing at the fakes.
func testDBSetup(t *testing.T, notionURL, modelURL string) (*sql.DB, *config.Config) {
	t.Helper()

	testCfg := &config.Config{
		ServerPort:       ":0",
		JWTSecret:        testSecret, // Known secret
		JWTExpiration:    time.Minute * 5,
		MetadataDbDir:    t.TempDir(),
		MetadataDbFile:   "test_metadata.db",
		TokenSealingKey:  "sealing-key-for-tests",
		NotionAPIURL:     notionURL,
		NotionVersion:    config.DefaultNotionVersion,
		AIAPIURL:         modelURL,
		AIAPIKey:         "test-key",
		AIModel:          "test-model",
		ParseTimeout:     5 * time.Second,
		SchemaCacheSize:  16,
		InteractionLimit: 16,
		ScanMaxDepth:     3,
		ScanConcurrency:  2,
		ParseRateLimit:   50,
	}

	db, err := storage.ConnectMetadataDB(testCfg) // Creates tables
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})
	return db, testCfg
}

func (f *fakeModel) lastSystemPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.systemPrompt
}

// setupTestServer starts the API against fake Notion and model servers.
func setupTestServer(t *testing.T) (*httptest.Server, *sql.DB, *fakeNotion) {
	server, db, notion, _ := setupTestServerWithModel(t)
	return server, db, notion
}

func setupTestServerWithModel(t *testing.T) (*httptest.Server, *sql.DB, *fakeNotion, *fakeModel) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	notion := &fakeNotion{}
	notionServer := httptest.NewServer(notion)
	t.Cleanup(notionServer.Close)
	model := &fakeModel{}
	modelServer := httptest.NewServer(model)
	t.Cleanup(modelServer.Close)

	db, cfg := testDBSetup(t, notionServer.URL, modelServer.URL)
	router, err := api.SetupRouter(db, cfg)
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, db, notion, model
}

// call sends a JSON request and decodes the JSON response into a map.
func call(t *testing.T, method, url, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "response body: %s", raw)
	}
	return res.StatusCode, out
}

func connect(t *testing.T, server *httptest.Server) string {
	t.Helper()
	status, body := call(t, http.MethodPost, server.URL+"/auth/connect", "", models.ConnectRequest{NotionToken: goodToken})
	require.Equal(t, http.StatusCreated, status, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func addDashboard(t *testing.T, server *httptest.Server, token string) {
	t.Helper()
	status, body := call(t, http.MethodPost, server.URL+"/api/v1/dashboards", token, models.CreateDashboardRequest{Page: pageURL})
	require.Equal(t, http.StatusCreated, status, body)
}

func databaseURL(server *httptest.Server, suffix string) string {
	return server.URL + "/api/v1/dashboards/" + pageID + "/databases/" + tasksDB + suffix
}

func TestConnectEndpoint(t *testing.T) {
	server, db, _ := setupTestServer(t)

	t.Run("Connect Success", func(t *testing.T) {
		status, body := call(t, http.MethodPost, server.URL+"/auth/connect", "", models.ConnectRequest{NotionToken: goodToken})
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "Connected successfully", body["message"])

		sessionID, err := auth.ValidateJWT(body["token"].(string), testSecret)
		require.NoError(t, err, "Returned token should be valid")

		session, sealed, err := storage.FindSession(context.Background(), db, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "Acme", session.WorkspaceName)
		assert.Equal(t, "white", session.Theme)
		assert.NotContains(t, sealed, goodToken, "token must be stored sealed")
	})

	t.Run("Connect Rejected Token", func(t *testing.T) {
		status, body := call(t, http.MethodPost, server.URL+"/auth/connect", "", models.ConnectRequest{NotionToken: "secret_bad"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Notion rejected the integration token.", body["error"])
	})

	t.Run("Connect Missing Token", func(t *testing.T) {
		status, body := call(t, http.MethodPost, server.URL+"/auth/connect", "", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, `"notion_token" is required.`, body["error"])
	})
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	server, _, _ := setupTestServer(t)

	status, _ := call(t, http.MethodGet, server.URL+"/api/v1/dashboards", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, http.MethodGet, server.URL+"/api/v1/dashboards", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// A valid token for a session that was never created
	orphan, err := auth.GenerateJWT("no-such-session", testSecret, time.Minute)
	require.NoError(t, err)
	status, _ = call(t, http.MethodGet, server.URL+"/api/v1/session", orphan, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSessionAndSettings(t *testing.T) {
	server, _, _ := setupTestServer(t)
	token := connect(t, server)

	status, body := call(t, http.MethodGet, server.URL+"/api/v1/session", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Acme", body["workspace_name"])
	assert.NotContains(t, body, "notion_token")

	status, body = call(t, http.MethodPatch, server.URL+"/api/v1/settings", token, map[string]any{"theme": "dark", "has_seen_splash": true})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "dark", body["theme"])
	assert.Equal(t, true, body["has_seen_splash"])

	status, _ = call(t, http.MethodPatch, server.URL+"/api/v1/settings", token, map[string]any{"theme": "not a theme!"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, http.MethodGet, server.URL+"/api/v1/settings", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dark", body["theme"])

	status, _ = call(t, http.MethodDelete, server.URL+"/api/v1/session", token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = call(t, http.MethodGet, server.URL+"/api/v1/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "a disconnected session is gone")
}

func TestDashboardEndpoints(t *testing.T) {
	server, _, _ := setupTestServer(t)
	token := connect(t, server)

	status, body := call(t, http.MethodPost, server.URL+"/api/v1/dashboards", token, models.CreateDashboardRequest{Page: pageURL})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, pageID, body["id"])
	assert.Equal(t, "Home", body["name"])
	assert.EqualValues(t, 1, body["revision"])
	databases, _ := body["databases"].([]any)
	require.Len(t, databases, 1)
	assert.Equal(t, tasksDB, databases[0].(map[string]any)["id"])

	t.Run("Duplicate Dashboard", func(t *testing.T) {
		status, _ := call(t, http.MethodPost, server.URL+"/api/v1/dashboards", token, models.CreateDashboardRequest{Page: pageID})
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("Not A Notion Link", func(t *testing.T) {
		status, _ := call(t, http.MethodPost, server.URL+"/api/v1/dashboards", token, models.CreateDashboardRequest{Page: "https://example.com/nothing"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Page Not Shared", func(t *testing.T) {
		status, _ := call(t, http.MethodPost, server.URL+"/api/v1/dashboards", token, models.CreateDashboardRequest{Page: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("List", func(t *testing.T) {
		status, body := call(t, http.MethodGet, server.URL+"/api/v1/dashboards?limit=10", token, nil)
		require.Equal(t, http.StatusOK, status)
		list, _ := body["dashboards"].([]any)
		assert.Len(t, list, 1)
		assert.EqualValues(t, 10, body["limit"])

		status, _ = call(t, http.MethodGet, server.URL+"/api/v1/dashboards?limit=abc", token, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Refresh Bumps Revision", func(t *testing.T) {
		status, body := call(t, http.MethodPost, server.URL+"/api/v1/dashboards/"+pageID+"/refresh", token, nil)
		require.Equal(t, http.StatusOK, status, body)
		assert.EqualValues(t, 2, body["revision"])
	})

	t.Run("Delete", func(t *testing.T) {
		status, _ := call(t, http.MethodDelete, server.URL+"/api/v1/dashboards/"+pageID, token, nil)
		assert.Equal(t, http.StatusOK, status)

		status, _ = call(t, http.MethodDelete, server.URL+"/api/v1/dashboards/"+pageID, token, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestManualEntryFlow(t *testing.T) {
	server, _, notion := setupTestServer(t)
	token := connect(t, server)
	addDashboard(t, server, token)

	status, body := call(t, http.MethodGet, databaseURL(server, "/schema"), token, nil)
	require.Equal(t, http.StatusOK, status, body)
	schemas, _ := body["schemas"].([]any)
	assert.Len(t, schemas, 2)
	assert.Equal(t, []any{"Created"}, body["unsupported"])

	status, body = call(t, http.MethodPost, databaseURL(server, "/entries"), token, models.BeginEntryRequest{Mode: "manual"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "form", body["state"])
	interactionURL := server.URL + "/api/v1/entries/" + body["id"].(string)

	t.Run("Missing Title Is Rejected Before Writing", func(t *testing.T) {
		status, body := call(t, http.MethodPost, interactionURL+"/submit", token, models.SubmitEntryRequest{Values: map[string]any{"Status": "Done"}})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, `"Name" is required.`, body["error"])
		assert.Zero(t, notion.createdCount())

		_, body = call(t, http.MethodGet, interactionURL, token, nil)
		assert.Equal(t, "form", body["state"])
	})

	t.Run("Submit Writes Page", func(t *testing.T) {
		status, body := call(t, http.MethodPost, interactionURL+"/submit", token, models.SubmitEntryRequest{Values: map[string]any{"Name": "Write report", "Status": "Done"}})
		require.Equal(t, http.StatusCreated, status, body)
		assert.Equal(t, "Saved to Notion", body["message"])
		page, _ := body["page"].(map[string]any)
		assert.Equal(t, createdPage, page["id"])

		sent := notion.lastCreated()
		require.NotNil(t, sent)
		assert.Equal(t, map[string]any{"database_id": tasksDB}, sent["parent"])
		props, _ := sent["properties"].(map[string]any)
		assert.Contains(t, props, "Name")
		assert.NotContains(t, props, "Created", "read-only fields are never written")
	})

	t.Run("Unknown Mode", func(t *testing.T) {
		status, _ := call(t, http.MethodPost, databaseURL(server, "/entries"), token, map[string]string{"mode": "voice"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Database Not On Dashboard", func(t *testing.T) {
		url := server.URL + "/api/v1/dashboards/" + pageID + "/databases/00000000-0000-0000-0000-000000000000/entries"
		status, _ := call(t, http.MethodPost, url, token, models.BeginEntryRequest{Mode: "manual"})
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestAIEntryFlow(t *testing.T) {
	server, _, notion := setupTestServer(t)
	token := connect(t, server)
	addDashboard(t, server, token)

	status, body := call(t, http.MethodPost, databaseURL(server, "/entries"), token, nil)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, "ai", body["mode"])
	interactionURL := server.URL + "/api/v1/entries/" + body["id"].(string)

	status, body = call(t, http.MethodPost, interactionURL+"/parse", token, models.ParseEntryRequest{Text: "buy milk"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "preview", body["state"])
	values, _ := body["values"].(map[string]any)
	assert.Equal(t, "Buy milk", values["Name"])
	assert.Equal(t, "Todo", values["Status"])
	assert.NotContains(t, values, "Nonsense")

	status, _ = call(t, http.MethodPost, interactionURL+"/parse", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status, "text is required")

	status, body = call(t, http.MethodPost, interactionURL+"/submit", token, nil)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, 1, notion.createdCount())

	status, body = call(t, http.MethodGet, interactionURL, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idle", body["state"])

	status, _ = call(t, http.MethodDelete, interactionURL, token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = call(t, http.MethodGet, interactionURL, token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	t.Run("Quick", func(t *testing.T) {
		status, body := call(t, http.MethodPost, databaseURL(server, "/quick"), token, models.ParseEntryRequest{Text: "buy milk"})
		require.Equal(t, http.StatusCreated, status, body)
		page, _ := body["page"].(map[string]any)
		assert.Equal(t, createdPage, page["id"])
		assert.Equal(t, 2, notion.createdCount())
	})

	t.Run("Interactions Are Scoped To Their Session", func(t *testing.T) {
		other := connect(t, server)
		_, body := call(t, http.MethodPost, databaseURL(server, "/entries"), token, nil)
		status, _ := call(t, http.MethodGet, server.URL+"/api/v1/entries/"+body["id"].(string), other, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestParseUsesCallerTimezone(t *testing.T) {
	server, _, _, model := setupTestServerWithModel(t)
	token := connect(t, server)
	addDashboard(t, server, token)

	tests := []struct {
		name       string
		req        map[string]any
		wantStatus int
		wantOffset string
	}{
		{"IANA Zone", map[string]any{"text": "buy milk", "timezone": "Asia/Kolkata"}, http.StatusOK, "(UTC+05:30)."},
		{"Offset Minutes", map[string]any{"text": "buy milk", "utc_offset_minutes": -480}, http.StatusOK, "(UTC-08:00)."},
		{"Unknown Zone", map[string]any{"text": "buy milk", "timezone": "Nowhere/Special"}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := call(t, http.MethodPost, databaseURL(server, "/entries"), token, nil)
			interactionURL := server.URL + "/api/v1/entries/" + body["id"].(string)

			status, body := call(t, http.MethodPost, interactionURL+"/parse", token, tt.req)
			require.Equal(t, tt.wantStatus, status, body)
			if tt.wantOffset != "" {
				assert.Contains(t, model.lastSystemPrompt(), tt.wantOffset)
			}
		})
	}

	status, body := call(t, http.MethodPost, databaseURL(server, "/quick"), token, map[string]any{"text": "buy milk", "timezone": "Pacific/Chatham"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Regexp(t, `\(UTC\+1[23]:45\)\.`, model.lastSystemPrompt())
}

func TestRelayEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)
	token := connect(t, server)

	tests := []struct {
		name        string
		req         models.RelayRequest
		wantStatus  int
		wantSuccess bool
	}{
		{"Passes Through", models.RelayRequest{Endpoint: "/users"}, http.StatusOK, true},
		{"Notion Error In Body", models.RelayRequest{Endpoint: "/databases/missing"}, http.StatusOK, false},
		{"Absolute URL Refused", models.RelayRequest{Endpoint: "https://evil.example/x"}, http.StatusBadRequest, false},
		{"Method Refused", models.RelayRequest{Endpoint: "/users", Method: "PUT"}, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, http.MethodPost, server.URL+"/api/v1/notion/relay", token, tt.req)
			require.Equal(t, tt.wantStatus, status, body)
			if status == http.StatusOK {
				assert.Equal(t, tt.wantSuccess, body["success"])
			}
		})
	}
}
