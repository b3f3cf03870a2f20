package result

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signintech/gopdf"
)

const reportFont = "DejaVu"

var (
	ErrNothingToReport = errors.New("no prediction to report")
	ErrFontUnavailable = errors.New("no usable font for PDF report")
)

// DefaultFontPaths are the usual DejaVuSans locations on Debian and Alpine.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

// ReportData is everything printed on a result report.
type ReportData struct {
	View        View
	Symptoms    []string
	Age         string
	Gender      string
	GeneratedAt time.Time
}

// Report renders printable one-page summaries of a prediction.
type Report struct {
	fontPaths []string
}

func NewReport(fontPaths []string) *Report {
	if len(fontPaths) == 0 {
		fontPaths = DefaultFontPaths
	}
	return &Report{fontPaths: fontPaths}
}

func (r *Report) Render(d ReportData) ([]byte, error) {
	if d.View.Kind != KindPrediction {
		return nil, ErrNothingToReport
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	loaded := false
	for _, path := range r.fontPaths {
		if err := pdf.AddTTFFont(reportFont, path); err != nil {
			fontErr = err
			continue
		}
		loaded = true
		break
	}
	if !loaded {
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, fontErr)
	}

	if err := pdf.SetFont(reportFont, "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Symptom triage result")
	pdf.Br(30)

	if err := pdf.SetFont(reportFont, "", 12); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Date: %s", d.GeneratedAt.Format("02.01.2006 15:04")))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Age: %s   Gender: %s", orDash(d.Age), orDash(d.Gender)))
	pdf.Br(25)

	if err := pdf.SetFont(reportFont, "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Predicted disease: %s", d.View.Disease))
	pdf.Br(18)
	pdf.Cell(nil, fmt.Sprintf("Confidence: %s", d.View.Confidence))
	pdf.Br(25)

	if err := pdf.SetFont(reportFont, "", 11); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Reported symptoms:")
	pdf.Br(15)
	lines, _ := pdf.SplitText(strings.Join(d.Symptoms, ", "), 500)
	for _, l := range lines {
		pdf.Cell(nil, l)
		pdf.Br(12)
	}
	pdf.Br(10)

	if len(d.View.Votes) > 0 {
		pdf.Cell(nil, fmt.Sprintf("Model votes (%s):", orDash(d.View.VotingMethod)))
		pdf.Br(15)
		for _, v := range d.View.Votes {
			pdf.Cell(nil, fmt.Sprintf("- %s: %s", v.Model, v.Disease))
			pdf.Br(12)
		}
		pdf.Br(10)
	}

	if d.View.Tips != nil {
		pdf.Cell(nil, fmt.Sprintf("Health tips: %s", d.View.Tips.URL))
		pdf.Br(12)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
