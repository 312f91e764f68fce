package render

import (
	"sort"
	"strings"
	"sync"

	"weekcal/internal/model"
)

// DragRegionClass marks the list as a window drag handle while unlocked.
const DragRegionClass = "drag-region"

// List is the event-list container of the viewer page. It is created once
// when the server starts and holds the cards of the last non-empty render.
type List struct {
	renderer Renderer

	mu      sync.RWMutex
	cards   []Card
	classes map[string]bool
}

func NewList(r Renderer) *List {
	return &List{renderer: r, classes: make(map[string]bool)}
}

// Clear drops every rendered card.
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cards = nil
}

// Render appends one card for ev.
func (l *List) Render(ev model.DisplayEvent) {
	card := l.renderer.Card(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cards = append(l.cards, card)
}

// Cards returns a copy of the rendered cards in display order.
func (l *List) Cards() []Card {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Card, len(l.cards))
	copy(out, l.cards)
	return out
}

// ToggleClass sets or removes a CSS class on the container.
func (l *List) ToggleClass(name string, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if on {
		l.classes[name] = true
	} else {
		delete(l.classes, name)
	}
}

func (l *List) HasClass(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.classes[name]
}

// ClassName renders the container's class attribute.
func (l *List) ClassName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := []string{"event-lists"}
	extra := make([]string, 0, len(l.classes))
	for name := range l.classes {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	return strings.Join(append(names, extra...), " ")
}
