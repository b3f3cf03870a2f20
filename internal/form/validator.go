package form

import (
	"errors"
	"fmt"

	"symptom-triage/internal/catalog"

	"github.com/go-playground/validator/v10"
)

// MinSymptoms is the number of checked symptoms needed before a prediction
// may be requested.
const MinSymptoms = 2

// InsufficientSymptomsWarning is shown inline when a submission is rejected.
const InsufficientSymptomsWarning = "Please select at least 2 symptoms before predicting."

var ErrInsufficientSymptoms = errors.New("insufficient symptoms selected")

// ValidSelection is a selection that passed Validate. Only this package can
// construct a non-empty one.
type ValidSelection struct {
	symptoms []catalog.SymptomID
}

func (v ValidSelection) Symptoms() []catalog.SymptomID {
	out := make([]catalog.SymptomID, len(v.symptoms))
	copy(out, v.symptoms)
	return out
}

type selectionInput struct {
	Symptoms []catalog.SymptomID `validate:"min=2,dive,symptom"`
}

// Validator enforces the minimum-selection policy against one catalog.
type Validator struct {
	validate *validator.Validate
}

func NewValidator(c *catalog.Catalog) *Validator {
	v := validator.New()
	_ = v.RegisterValidation("symptom", func(fl validator.FieldLevel) bool {
		return c.Contains(catalog.SymptomID(fl.Field().String()))
	})
	return &Validator{validate: v}
}

// Validate gates a submission. It has no side effects.
func (v *Validator) Validate(sel *Selection) (ValidSelection, error) {
	in := selectionInput{Symptoms: sel.Checked()}
	if err := v.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				switch fe.Tag() {
				case "min":
					return ValidSelection{}, fmt.Errorf("%w: %d checked, need %d", ErrInsufficientSymptoms, len(in.Symptoms), MinSymptoms)
				case "symptom":
					return ValidSelection{}, fmt.Errorf("%w: %v", ErrUnknownSymptom, fe.Value())
				}
			}
		}
		return ValidSelection{}, err
	}
	return ValidSelection{symptoms: in.Symptoms}, nil
}
