// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"strings"

	"github.com/adiadia/syrphid-receiver/internal/domain"
	"github.com/adiadia/syrphid-receiver/internal/schema"
)

// Taxonomy names the event types with a dedicated handler and the
// interaction sub-kinds that carry a detail record. Its fields match
// config.EventTypes so one converts to the other.
type Taxonomy struct {
	NetworkRequest  string
	NetworkResponse string
	UserInteraction string
	MouseEvents     []string
	KeyEvents       []string
	TouchEvents     []string
	GenericEvents   []string
}

func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		NetworkRequest:  string(domain.EventNetworkRequest),
		NetworkResponse: string(domain.EventNetworkResponse),
		UserInteraction: string(domain.EventUserInteraction),
		MouseEvents:     []string{"click", "dblclick", "mousemove"},
		KeyEvents:       []string{"keydown", "keypress", "keyup"},
		TouchEvents:     []string{"touchstart", "touchmove", "touchend"},
		GenericEvents: []string{
			string(domain.EventNavigation),
			string(domain.EventTabActivated),
			string(domain.EventEnvironment),
			string(domain.EventWindowState),
			string(domain.EventTabState),
			string(domain.EventStorage),
			string(domain.EventError),
		},
	}
}

// withDefaults fills empty fields from DefaultTaxonomy.
func (t Taxonomy) withDefaults() Taxonomy {
	def := DefaultTaxonomy()
	if t.NetworkRequest == "" {
		t.NetworkRequest = def.NetworkRequest
	}
	if t.NetworkResponse == "" {
		t.NetworkResponse = def.NetworkResponse
	}
	if t.UserInteraction == "" {
		t.UserInteraction = def.UserInteraction
	}
	if len(t.MouseEvents) == 0 {
		t.MouseEvents = def.MouseEvents
	}
	if len(t.KeyEvents) == 0 {
		t.KeyEvents = def.KeyEvents
	}
	if len(t.TouchEvents) == 0 {
		t.TouchEvents = def.TouchEvents
	}
	if len(t.GenericEvents) == 0 {
		t.GenericEvents = def.GenericEvents
	}
	return t
}

// subKinds builds the sub-kind table. A sub-kind listed under more than one
// kind keeps the first kind in mouse, key, touch order.
func (t Taxonomy) subKinds() map[string]domain.DetailKind {
	out := make(map[string]domain.DetailKind)
	add := func(kind domain.DetailKind, names []string) {
		for _, name := range names {
			key := subKindKey(name)
			if _, exists := out[key]; !exists && key != "" {
				out[key] = kind
			}
		}
	}
	add(domain.DetailMouse, t.MouseEvents)
	add(domain.DetailKey, t.KeyEvents)
	add(domain.DetailTouch, t.TouchEvents)
	return out
}

func (t Taxonomy) genericTypes() map[domain.EventType]bool {
	out := make(map[domain.EventType]bool, len(t.GenericEvents))
	for _, name := range t.GenericEvents {
		out[schema.CanonicalType(name)] = true
	}
	return out
}

// subKindKey folds "touch_move", "touch-move" and "TouchMove" onto
// "touchmove".
func subKindKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "", "-", "").Replace(name)
}
