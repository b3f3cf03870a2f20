package triage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"symptom-triage/internal/prediction"
	"symptom-triage/internal/result"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, svc *Service) http.Handler {
	t.Helper()
	pages, err := NewPages(svc, zap.NewNop())
	require.NoError(t, err)

	r := chi.NewRouter()
	RegisterPages(r, pages)
	r.Route("/api", func(r chi.Router) {
		RegisterRoutes(r, NewHandler(svc, zap.NewNop()))
	})
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) Snapshot {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func TestAPIPredictFlow(t *testing.T) {
	svc := newTestService(t, feverCough(t), stubPredictor{resp: &prediction.Response{
		Prediction: "Common Cold",
		Confidence: prediction.NewConfidence("75%"),
	}})
	h := newTestRouter(t, svc)
	snap := createSession(t, h)
	base := "/api/sessions/" + snap.ID

	require.Len(t, snap.Controls, 2)
	assert.Equal(t, "fever", string(snap.Controls[0].ID))

	rec := do(t, h, http.MethodPut, base+"/symptoms/fever", `{"checked":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/predict", `{"age":"25","gender":"F"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var failed errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	require.NotNil(t, failed.Result)
	assert.Equal(t, result.KindWarning, failed.Result.Kind)

	rec = do(t, h, http.MethodPost, base+"/symptoms/cough/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/predict", `{"age":"25","gender":"F"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var view result.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Common Cold", view.Disease)
	require.NotNil(t, view.Tips)
	assert.Equal(t, "/tips/Common%20Cold", view.Tips.URL)

	rec = do(t, h, http.MethodPost, base+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reset Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reset))
	assert.Nil(t, reset.Result)
	assert.Equal(t, 0, reset.Checked)
}

func TestAPIErrors(t *testing.T) {
	svc := newTestService(t, feverCough(t), stubPredictor{})
	h := newTestRouter(t, svc)
	snap := createSession(t, h)
	base := "/api/sessions/" + snap.ID

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"malformed id", http.MethodGet, "/api/sessions/not-a-uuid", "", http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000000", "", http.StatusNotFound},
		{"unknown symptom", http.MethodPut, base + "/symptoms/rash", `{"checked":true}`, http.StatusNotFound},
		{"bad body", http.MethodPut, base + "/symptoms/fever", `{`, http.StatusBadRequest},
		{"empty chat message", http.MethodPost, base + "/assistant/messages", `{"text":" "}`, http.StatusBadRequest},
		{"nothing to report", http.MethodGet, base + "/result.pdf", "", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAPIPredictFailureIsBadGateway(t *testing.T) {
	srv := newPredictorServer(t, http.StatusServiceUnavailable, "")
	client := prediction.NewClient(srv.URL, 0, prediction.DefaultBreakerSettings(), zap.NewNop())
	svc := newTestService(t, feverCough(t), client)
	h := newTestRouter(t, svc)
	snap := createSession(t, h)
	base := "/api/sessions/" + snap.ID

	do(t, h, http.MethodPut, base+"/symptoms/fever", `{"checked":true}`)
	do(t, h, http.MethodPut, base+"/symptoms/cough", `{"checked":true}`)

	rec := do(t, h, http.MethodPost, base+"/predict", `{}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var failed errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	assert.Equal(t, result.FailureMessage, failed.Error)
}

func TestAPIAssistant(t *testing.T) {
	svc := newTestService(t, feverCough(t), stubPredictor{})
	h := newTestRouter(t, svc)
	snap := createSession(t, h)
	base := "/api/sessions/" + snap.ID

	rec := do(t, h, http.MethodPost, base+"/assistant/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"visible":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, base+"/assistant/messages?wait=true", `{"text":"maybe"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var chat AssistantSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.Equal(t, 0, chat.Conversation.Step)
	require.NotEmpty(t, chat.Messages)
	assert.Equal(t, "maybe", chat.Messages[1].Text)
	assert.Equal(t, "Please reply with 'yes' or 'no'.", chat.Messages[2].Text)

	rec = do(t, h, http.MethodPost, base+"/assistant/messages", `{"text":"no"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAPIDeleteSession(t *testing.T) {
	svc := newTestService(t, feverCough(t), stubPredictor{})
	h := newTestRouter(t, svc)
	snap := createSession(t, h)

	rec := do(t, h, http.MethodDelete, "/api/sessions/"+snap.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/sessions/"+snap.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPages(t *testing.T) {
	svc := newTestService(t, feverCough(t), stubPredictor{resp: &prediction.Response{Prediction: "Flu"}})
	h := newTestRouter(t, svc)

	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	page := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(page, "/sessions/"))
	t.Cleanup(func() { do(t, h, http.MethodDelete, "/api"+page, "") })

	rec = do(t, h, http.MethodGet, page, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="fever"`)
	assert.Contains(t, rec.Body.String(), "Chat with assistant")

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, page+"/predict", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec = post(url.Values{"symptom": {"fever"}, "age": {"30"}, "gender": {"M"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please select at least 2 symptoms before predicting.")

	rec = post(url.Values{"symptom": {"fever", "cough"}, "age": {"30"}, "gender": {"M"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Predicted condition: Flu")
	assert.Contains(t, body, `href="/tips/Flu"`)
	assert.Contains(t, body, "See Health Tips")
	assert.Contains(t, body, "Confidence: not reported")

	rec = do(t, h, http.MethodPost, page+"/reset", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	rec = do(t, h, http.MethodGet, page, "")
	assert.NotContains(t, rec.Body.String(), "Predicted condition")
}

func TestPagesUnknownSessionRedirects(t *testing.T) {
	svc := newTestService(t, feverCough(t), stubPredictor{})
	h := newTestRouter(t, svc)

	for _, target := range []string{"/sessions/nope", "/sessions/00000000-0000-0000-0000-000000000000"} {
		rec := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	}
}
