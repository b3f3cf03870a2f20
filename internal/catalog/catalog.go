package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// SymptomID identifies one entry of the catalog, e.g. "sore_throat".
type SymptomID string

var (
	ErrEmptyCatalog     = errors.New("catalog has no symptoms")
	ErrInvalidSymptomID = errors.New("invalid symptom id")
)

var defaultSymptoms = []SymptomID{
	"fever", "cough", "sore_throat", "nasal_congestion", "headache", "body_pain", "chills",
	"nausea", "vomiting", "diarrhea", "abdominal_pain", "burning_urination",
	"frequent_urination", "fatigue", "rash", "joint_pain", "bleeding_gums", "retro_orbital_pain",
}

// Catalog is the fixed ordered list of recognized symptoms. Order only drives
// rendering; it carries no weight in a prediction.
type Catalog struct {
	ids   []SymptomID
	index map[SymptomID]int
}

// New builds a catalog, rejecting empty or duplicated ids.
func New(ids ...SymptomID) (*Catalog, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		ids:   make([]SymptomID, 0, len(ids)),
		index: make(map[SymptomID]int, len(ids)),
	}
	for _, id := range ids {
		if strings.TrimSpace(string(id)) == "" {
			return nil, fmt.Errorf("%w: empty id at position %d", ErrInvalidSymptomID, len(c.ids))
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate %q", ErrInvalidSymptomID, id)
		}
		c.index[id] = len(c.ids)
		c.ids = append(c.ids, id)
	}
	return c, nil
}

// FromStrings is New for plain strings, as read from a config file.
func FromStrings(names []string) (*Catalog, error) {
	ids := make([]SymptomID, len(names))
	for i, n := range names {
		ids[i] = SymptomID(n)
	}
	return New(ids...)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultSymptoms...)
	if err != nil {
		panic(err)
	}
	return c
}

// IDs returns the symptoms in render order.
func (c *Catalog) IDs() []SymptomID {
	out := make([]SymptomID, len(c.ids))
	copy(out, c.ids)
	return out
}

func (c *Catalog) Len() int {
	return len(c.ids)
}

func (c *Catalog) Contains(id SymptomID) bool {
	_, ok := c.index[id]
	return ok
}

// Label is the human readable form of id.
func (c *Catalog) Label(id SymptomID) string {
	return Label(id)
}

// Label replaces every underscore of id with a space.
func Label(id SymptomID) string {
	return strings.ReplaceAll(string(id), "_", " ")
}
