package form

import (
	"symptom-triage/internal/catalog"
)

// Control is one checkbox of the symptom list.
type Control struct {
	ID      catalog.SymptomID `json:"id"`
	Label   string            `json:"label"`
	Checked bool              `json:"checked"`
}

// Render builds one control per catalog entry, in catalog order.
func Render(c *catalog.Catalog, sel *Selection) []Control {
	ids := c.IDs()
	controls := make([]Control, 0, len(ids))
	for _, id := range ids {
		controls = append(controls, Control{
			ID:      id,
			Label:   catalog.Label(id),
			Checked: sel != nil && sel.IsChecked(id),
		})
	}
	return controls
}

// Form is the symptom list region of a page together with the selection it
// displays.
type Form struct {
	selection *Selection
	controls  []Control
}

func New(c *catalog.Catalog) *Form {
	return &Form{selection: NewSelection(c)}
}

// Init clears the region and renders it again, so repeated calls never
// duplicate controls.
func (f *Form) Init() {
	f.controls = Render(f.selection.Catalog(), f.selection)
}

func (f *Form) Selection() *Selection {
	return f.selection
}

func (f *Form) Controls() []Control {
	out := make([]Control, len(f.controls))
	copy(out, f.controls)
	return out
}
