package form

import (
	"errors"
	"fmt"

	"symptom-triage/internal/catalog"
)

var ErrUnknownSymptom = errors.New("symptom not in catalog")

// Selection is the checked/unchecked state of every catalog entry. A missing
// key means unchecked.
type Selection struct {
	catalog *catalog.Catalog
	checked map[catalog.SymptomID]bool
}

func NewSelection(c *catalog.Catalog) *Selection {
	return &Selection{
		catalog: c,
		checked: make(map[catalog.SymptomID]bool),
	}
}

func (s *Selection) Catalog() *catalog.Catalog {
	return s.catalog
}

// Set records a user toggling one control.
func (s *Selection) Set(id catalog.SymptomID, checked bool) error {
	if !s.catalog.Contains(id) {
		return fmt.Errorf("%w: %q", ErrUnknownSymptom, id)
	}
	if checked {
		s.checked[id] = true
	} else {
		delete(s.checked, id)
	}
	return nil
}

func (s *Selection) Toggle(id catalog.SymptomID) error {
	return s.Set(id, !s.IsChecked(id))
}

func (s *Selection) IsChecked(id catalog.SymptomID) bool {
	return s.checked[id]
}

// Reset unchecks everything.
func (s *Selection) Reset() {
	s.checked = make(map[catalog.SymptomID]bool)
}

func (s *Selection) Count() int {
	return len(s.checked)
}

// Checked lists the checked symptoms in catalog order.
func (s *Selection) Checked() []catalog.SymptomID {
	out := make([]catalog.SymptomID, 0, len(s.checked))
	for _, id := range s.catalog.IDs() {
		if s.checked[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *Selection) Clone() *Selection {
	cp := NewSelection(s.catalog)
	for id := range s.checked {
		cp.checked[id] = true
	}
	return cp
}
