package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gongzi-quiz-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, method, target, body string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestAPICatalogRoutes(t *testing.T) {
	h := NewRouter(newTestService(), NewIdentityResolver("", "", true))

	rec, body := do(t, h, http.MethodGet, "/api/topics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"單位", "算術"}, body["topics"])

	rec, body = do(t, h, http.MethodGet, "/api/flashcards", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sets"], 1)

	rec, body = do(t, h, http.MethodGet, "/api/leaderboard?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["entries"])

	rec, _ = do(t, h, http.MethodGet, "/api/leaderboard?limit=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	hr := httptest.NewRecorder()
	h.ServeHTTP(hr, req)
	assert.Equal(t, "ok", hr.Body.String())
}

func TestAPIHistoryLifecycle(t *testing.T) {
	h := NewRouter(newTestService(), NewIdentityResolver("", "", true))
	q := "?deviceId=dev-1&userId=u1&name=Alice"

	rec, body := do(t, h, http.MethodPost, "/api/history/problems"+q,
		`{"problemStatement":"2+2","solution":"正確答案：4。解析：…","userAttempt":"5","isIncorrectAttempt":true,"timestamp":1700000000000}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, strings.HasPrefix(body["id"].(string), "temp-"))

	// The remote save settles in the background.
	require.Eventually(t, func() bool {
		_, body := do(t, h, http.MethodGet, "/api/history/problems"+q, "", nil)
		items, _ := body["items"].([]any)
		return body["source"] == "remote" && len(items) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, body = do(t, h, http.MethodGet, "/api/history/problems"+q, "", nil)
	item := body["items"].([]any)[0].(map[string]any)
	id := item["id"].(string)
	assert.False(t, strings.HasPrefix(id, "temp-"))
	assert.Equal(t, "u1", item["userId"])

	_, body = do(t, h, http.MethodGet, "/api/mistakes"+q, "", nil)
	assert.Len(t, body["items"], 1)

	rec, _ = do(t, h, http.MethodDelete, "/api/history/problems/"+id+q, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Eventually(t, func() bool {
		_, body := do(t, h, http.MethodGet, "/api/history/problems"+q, "", nil)
		items, _ := body["items"].([]any)
		return len(items) == 0
	}, 2*time.Second, 10*time.Millisecond)

	rec, _ = do(t, h, http.MethodGet, "/api/history/photos"+q, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/history/knowledge"+q, "{", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/api/history/problems", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "device is required")
}

func TestAPISettingsAndProgress(t *testing.T) {
	h := NewRouter(newTestService(), NewIdentityResolver("", "", true))
	header := http.Header{"X-Device-Id": {"dev-9"}}

	rec, body := do(t, h, http.MethodGet, "/api/settings/question-seconds", "", header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 30, body["seconds"])

	rec, _ = do(t, h, http.MethodPut, "/api/settings/question-seconds", `{"seconds":15}`, header)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = do(t, h, http.MethodGet, "/api/settings/question-seconds", "", header)
	assert.EqualValues(t, 15, body["seconds"])

	rec, _ = do(t, h, http.MethodPut, "/api/settings/question-seconds", `{"seconds":0}`, header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/progress", "", header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["topics"])
}

func TestAPIBearerIdentity(t *testing.T) {
	resolver := NewIdentityResolver("secret", "gongzi", false)
	h := NewRouter(newTestService(), resolver)

	token, err := resolver.Sign(domain.Identity{ID: "u7", DisplayName: "小華"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	header := http.Header{"Authorization": {"Bearer " + token}}
	rec, _ := do(t, h, http.MethodPost, "/api/history/knowledge?deviceId=d", `{"knowledgePoints":"分數加法"}`, header)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		_, body := do(t, h, http.MethodGet, "/api/history/knowledge?deviceId=d", "", header)
		return body["source"] == "remote"
	}, 2*time.Second, 10*time.Millisecond)

	header = http.Header{"Authorization": {"Bearer not-a-token"}}
	rec, _ = do(t, h, http.MethodGet, "/api/history/knowledge?deviceId=d", "", header)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIFocusSettings(t *testing.T) {
	h := NewRouter(newTestService(), NewIdentityResolver("", "", true))
	header := http.Header{"X-Device-Id": {"dev-f"}}

	rec, body := do(t, h, http.MethodGet, "/api/focus", "", header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "focus", body["mode"])
	assert.EqualValues(t, 1500, body["timeLeft"])
	assert.EqualValues(t, 300, body["breakSeconds"])

	rec, _ = do(t, h, http.MethodPut, "/api/settings/focus", `{"focusMinutes":50,"breakMinutes":10}`, header)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = do(t, h, http.MethodGet, "/api/focus", "", header)
	assert.EqualValues(t, 3000, body["focusSeconds"])
	assert.EqualValues(t, 600, body["breakSeconds"])

	rec, _ = do(t, h, http.MethodPut, "/api/settings/focus", `{"breakMinutes":-1}`, header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
