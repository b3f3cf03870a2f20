package prediction_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"symptom-triage/internal/catalog"
	"symptom-triage/internal/form"
	"symptom-triage/internal/prediction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validSelection(t *testing.T, c *catalog.Catalog, ids ...catalog.SymptomID) form.ValidSelection {
	t.Helper()
	sel := form.NewSelection(c)
	for _, id := range ids {
		require.NoError(t, sel.Set(id, true))
	}
	valid, err := form.NewValidator(c).Validate(sel)
	require.NoError(t, err)
	return valid
}

func newClient(url string) *prediction.Client {
	return prediction.NewClient(url, 2*time.Second, prediction.DefaultBreakerSettings(), zap.NewNop())
}

func TestNewRequestIsSparse(t *testing.T) {
	c := catalog.Default()
	req := prediction.NewRequest(validSelection(t, c, "fever", "rash"), prediction.Attributes{Age: "34", Gender: "F"})

	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"symptoms":{"fever":1,"rash":1},"age":"34","gender":"F"}`, string(body))
}

func TestPredictRoundTrip(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prediction":"Flu","confidence":"92%","individual_predictions":{"rf":"Flu"},"voting_method":"majority"}`))
	}))
	defer srv.Close()

	c := catalog.Default()
	req := prediction.NewRequest(validSelection(t, c, "fever", "cough"), prediction.Attributes{Age: "30", Gender: "M"})

	resp, err := newClient(srv.URL + "/").Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Flu", resp.Prediction)
	assert.Equal(t, "92%", resp.Confidence.String())
	assert.True(t, resp.Confidence.Reported())
	assert.Equal(t, map[string]string{"rf": "Flu"}, resp.IndividualPredictions)
	assert.Equal(t, "majority", resp.VotingMethod)
	assert.JSONEq(t, `{"symptoms":{"fever":1,"cough":1},"age":"30","gender":"M"}`, string(gotBody))
}

func TestPredictFailuresMatchErrRequestFailed(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantOp  string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantOp: "status"},
		{name: "not json", status: http.StatusOK, body: "<html>", wantOp: "decode"},
		{name: "no label", status: http.StatusOK, body: `{"confidence":"50%"}`, wantOp: "decode", wantErr: prediction.ErrMissingPrediction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newClient(srv.URL).Predict(context.Background(), prediction.Request{})
			require.Error(t, err)
			assert.ErrorIs(t, err, prediction.ErrRequestFailed)

			var reqErr *prediction.RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.wantOp, reqErr.Op)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPredictTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(url).Predict(context.Background(), prediction.Request{})
	assert.ErrorIs(t, err, prediction.ErrRequestFailed)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	bs := prediction.BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, ConsecutiveFailures: 2}
	client := prediction.NewClient(srv.URL, time.Second, bs, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := client.Predict(context.Background(), prediction.Request{})
		require.Error(t, err)
	}

	_, err := client.Predict(context.Background(), prediction.Request{})
	require.Error(t, err)
	var reqErr *prediction.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "breaker", reqErr.Op)
	assert.ErrorIs(t, err, prediction.ErrRequestFailed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConfidenceDecoding(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		reported bool
	}{
		{name: "string", body: `{"prediction":"Flu","confidence":"92%"}`, want: "92%", reported: true},
		{name: "number", body: `{"prediction":"Flu","confidence":0.92}`, want: "0.92", reported: true},
		{name: "null", body: `{"prediction":"Flu","confidence":null}`},
		{name: "absent", body: `{"prediction":"Flu"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp prediction.Response
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			assert.Equal(t, tt.want, resp.Confidence.String())
			assert.Equal(t, tt.reported, resp.Confidence.Reported())
		})
	}

	var resp prediction.Response
	assert.Error(t, json.Unmarshal([]byte(`{"prediction":"Flu","confidence":true}`), &resp))
}
