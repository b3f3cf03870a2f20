package result

import (
	"net/url"
	"sort"
	"strings"

	"symptom-triage/internal/prediction"
)

const (
	TipsActionLabel       = "See Health Tips"
	FailureMessage        = "Prediction failed, please try again."
	ConfidenceNotReported = "not reported"
)

// Kind says what a View displays.
type Kind string

const (
	KindPrediction Kind = "prediction"
	KindWarning    Kind = "warning"
	KindError      Kind = "error"
)

// Action is the follow-up navigation offered with a prediction.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Vote is one model's answer inside an ensemble prediction.
type Vote struct {
	Model   string `json:"model"`
	Disease string `json:"disease"`
}

// View is the content of the result region. Each new View replaces the
// previous one entirely.
type View struct {
	Kind               Kind    `json:"kind"`
	Disease            string  `json:"disease,omitempty"`
	Confidence         string  `json:"confidence,omitempty"`
	ConfidenceReported bool    `json:"confidence_reported"`
	Votes              []Vote  `json:"votes,omitempty"`
	VotingMethod       string  `json:"voting_method,omitempty"`
	Tips               *Action `json:"tips,omitempty"`
	Message            string  `json:"message,omitempty"`
}

type Presenter struct {
	tipsBase string
}

// NewPresenter builds a presenter whose tips links live under tipsBase,
// normally "/tips/".
func NewPresenter(tipsBase string) *Presenter {
	if tipsBase == "" {
		tipsBase = "/tips/"
	}
	return &Presenter{tipsBase: tipsBase}
}

// Present renders a prediction. Label and confidence are shown verbatim.
func (p *Presenter) Present(resp *prediction.Response) View {
	v := View{
		Kind:               KindPrediction,
		Disease:            resp.Prediction,
		Confidence:         resp.Confidence.String(),
		ConfidenceReported: resp.Confidence.Reported(),
		VotingMethod:       resp.VotingMethod,
		Tips: &Action{
			Label: TipsActionLabel,
			URL:   p.TipsURL(resp.Prediction),
		},
	}
	if !v.ConfidenceReported {
		v.Confidence = ConfidenceNotReported
	}
	if len(resp.IndividualPredictions) > 0 {
		models := make([]string, 0, len(resp.IndividualPredictions))
		for m := range resp.IndividualPredictions {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			v.Votes = append(v.Votes, Vote{Model: m, Disease: resp.IndividualPredictions[m]})
		}
	}
	return v
}

// TipsURL is the navigation target for a disease label. The label is
// escaped as one URI component; spaces become %20.
func (p *Presenter) TipsURL(disease string) string {
	return p.tipsBase + strings.ReplaceAll(url.QueryEscape(disease), "+", "%20")
}

func (p *Presenter) Warn(message string) View {
	return View{Kind: KindWarning, Message: message}
}

// Fail renders a recoverable failure. The error itself is not shown.
func (p *Presenter) Fail(error) View {
	return View{Kind: KindError, Message: FailureMessage}
}
