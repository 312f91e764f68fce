package render

import "weekcal/internal/model"

// ColorTable maps event type labels to swatch colors. Lookup never returns
// an empty string: unknown labels share the fallback, which defaults to the
// color of model.TypeOther.
type ColorTable struct {
	colors   map[string]string
	fallback string
}

// DefaultColorTable returns the built-in palette.
func DefaultColorTable() ColorTable {
	return ColorTable{
		colors: map[string]string{
			model.TypeGeneral:    "#62b7d8",
			model.TypeClass:      "#6fd0db",
			model.TypeExam:       "#e97c9b",
			model.TypeAssignment: "#f4bf68",
			model.TypeMeeting:    "#bd7df5",
			model.TypePersonal:   "#88d288",
			model.TypeOther:      "#c4c3c1",
		},
		fallback: "#c4c3c1",
	}
}

// NewColorTable layers overrides on top of the default palette. Empty
// override values are ignored; an empty fallback means the model.TypeOther color.
func NewColorTable(overrides map[string]string, fallback string) ColorTable {
	t := DefaultColorTable()
	for label, color := range overrides {
		if color == "" {
			continue
		}
		t.colors[label] = color
	}
	if fallback != "" {
		t.fallback = fallback
	} else if other := t.colors[model.TypeOther]; other != "" {
		t.fallback = other
	}
	return t
}

func (t ColorTable) Lookup(label string) string {
	if c, ok := t.colors[label]; ok {
		return c
	}
	return t.fallback
}

func (t ColorTable) Fallback() string { return t.fallback }
