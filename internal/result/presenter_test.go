package result_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"symptom-triage/internal/prediction"
	"symptom-triage/internal/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) *prediction.Response {
	t.Helper()
	var resp prediction.Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return &resp
}

func TestPresentFlu(t *testing.T) {
	p := result.NewPresenter("")

	v := p.Present(decode(t, `{"prediction":"Flu","confidence":"92%"}`))

	assert.Equal(t, result.KindPrediction, v.Kind)
	assert.Equal(t, "Flu", v.Disease)
	assert.Equal(t, "92%", v.Confidence)
	assert.True(t, v.ConfidenceReported)
	require.NotNil(t, v.Tips)
	assert.Equal(t, "See Health Tips", v.Tips.Label)
	assert.Equal(t, "/tips/Flu", v.Tips.URL)
}

func TestTipsURLIsEscaped(t *testing.T) {
	p := result.NewPresenter("/tips/")

	assert.Equal(t, "/tips/Urinary%20Tract%20Infection", p.TipsURL("Urinary Tract Infection"))
	assert.Equal(t, "/tips/a%2Fb", p.TipsURL("a/b"))
	assert.Equal(t, "/tips/Flu%20%26%20Cold", p.TipsURL("Flu & Cold"))
	assert.Equal(t, "/tips/C%2B%2B%3D%3Aa%40b", p.TipsURL("C++=:a@b"))
}

func TestPresentWithoutConfidence(t *testing.T) {
	v := result.NewPresenter("").Present(decode(t, `{"prediction":"Dengue"}`))

	assert.False(t, v.ConfidenceReported)
	assert.Equal(t, result.ConfidenceNotReported, v.Confidence)
	assert.Equal(t, "/tips/Dengue", v.Tips.URL)
}

func TestPresentVotesSorted(t *testing.T) {
	v := result.NewPresenter("").Present(decode(t,
		`{"prediction":"Flu","confidence":"66.67%","individual_predictions":{"rf":"Flu","dt":"Flu","lr":"Common Cold"},"voting_method":"majority"}`))

	assert.Equal(t, []result.Vote{
		{Model: "dt", Disease: "Flu"},
		{Model: "lr", Disease: "Common Cold"},
		{Model: "rf", Disease: "Flu"},
	}, v.Votes)
	assert.Equal(t, "majority", v.VotingMethod)
}

func TestWarnAndFail(t *testing.T) {
	p := result.NewPresenter("")

	w := p.Warn("pick more")
	assert.Equal(t, result.KindWarning, w.Kind)
	assert.Equal(t, "pick more", w.Message)
	assert.Nil(t, w.Tips)

	f := p.Fail(errors.New("connection refused"))
	assert.Equal(t, result.KindError, f.Kind)
	assert.Equal(t, result.FailureMessage, f.Message)
	assert.NotContains(t, f.Message, "refused")
}

func TestReportRequiresPrediction(t *testing.T) {
	r := result.NewReport(nil)

	_, err := r.Render(result.ReportData{View: result.NewPresenter("").Warn("x")})
	assert.ErrorIs(t, err, result.ErrNothingToReport)
}

func TestReportMissingFont(t *testing.T) {
	r := result.NewReport([]string{"/nonexistent/font.ttf"})
	v := result.NewPresenter("").Present(decode(t, `{"prediction":"Flu","confidence":"92%"}`))

	_, err := r.Render(result.ReportData{View: v})
	assert.ErrorIs(t, err, result.ErrFontUnavailable)
}

func TestReportRendersPDF(t *testing.T) {
	var font string
	for _, p := range result.DefaultFontPaths {
		if _, err := os.Stat(p); err == nil {
			font = p
			break
		}
	}
	if font == "" {
		t.Skip("DejaVuSans not installed")
	}

	v := result.NewPresenter("").Present(decode(t, `{"prediction":"Flu","confidence":"92%"}`))
	out, err := result.NewReport([]string{font}).Render(result.ReportData{
		View:        v,
		Symptoms:    []string{"fever", "cough"},
		Age:         "30",
		Gender:      "M",
		GeneratedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
