package prediction

import (
	"bytes"
	"encoding/json"
	"fmt"

	"symptom-triage/internal/catalog"
	"symptom-triage/internal/form"
)

// Attributes are the demographic fields collected with a submission. They are
// passed through as typed.
type Attributes struct {
	Age    string `json:"age"`
	Gender string `json:"gender"`
}

// Request is the body of POST /api/predict. Only checked symptoms appear in
// Symptoms, each mapped to 1; the predictor keys on presence.
type Request struct {
	Symptoms map[catalog.SymptomID]int `json:"symptoms"`
	Age      string                    `json:"age"`
	Gender   string                    `json:"gender"`
}

func NewRequest(sel form.ValidSelection, attrs Attributes) Request {
	ids := sel.Symptoms()
	symptoms := make(map[catalog.SymptomID]int, len(ids))
	for _, id := range ids {
		symptoms[id] = 1
	}
	return Request{
		Symptoms: symptoms,
		Age:      attrs.Age,
		Gender:   attrs.Gender,
	}
}

// Response is what the predictor answers.
type Response struct {
	Prediction string     `json:"prediction"`
	Confidence Confidence `json:"confidence"`

	// Per-model votes and the voting method, when the predictor is an ensemble.
	IndividualPredictions map[string]string `json:"individual_predictions,omitempty"`
	VotingMethod          string            `json:"voting_method,omitempty"`
}

// Confidence keeps the predictor's confidence exactly as sent, whether it
// was a JSON string ("92%") or a number (0.92).
type Confidence struct {
	raw      string
	numeric  bool
	reported bool
}

func NewConfidence(s string) Confidence {
	return Confidence{raw: s, reported: true}
}

func (c Confidence) String() string {
	return c.raw
}

// Reported is false when the predictor omitted the field or sent null.
func (c Confidence) Reported() bool {
	return c.reported
}

func (c *Confidence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Confidence{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Confidence{raw: s, reported: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("confidence must be a string or number: %w", err)
	}
	*c = Confidence{raw: n.String(), numeric: true, reported: true}
	return nil
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	switch {
	case !c.reported:
		return []byte("null"), nil
	case c.numeric:
		return []byte(c.raw), nil
	default:
		return json.Marshal(c.raw)
	}
}
