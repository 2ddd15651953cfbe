// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adiadia/syrphid-receiver/internal/domain"
)

// Envelope is the root of every message.
type Envelope struct {
	ClientID         json.RawMessage  `json:"id,omitempty"`
	Type             string           `json:"type"`
	Timestamp        *string          `json:"timestamp,omitempty"`
	SessionID        string           `json:"sessionId"`
	SequenceNumber   int64            `json:"sequenceNumber"`
	UserAgent        string           `json:"userAgent"`
	ExtensionVersion string           `json:"extensionVersion"`
	OperatingSystem  string           `json:"operatingSystem"`
	BrowserVersion   *string          `json:"browserVersion,omitempty"`
	ScreenResolution ScreenResolution `json:"screenResolution"`
	TabID            *int64           `json:"tabId,omitempty"`
	URL              *string          `json:"url,omitempty"`
	Initiator        *string          `json:"initiator,omitempty"`
	AdditionalData   json.RawMessage  `json:"additionalData,omitempty"`
	Target           json.RawMessage  `json:"target,omitempty"`

	// EventType is Type canonicalized with CanonicalType.
	EventType domain.EventType `json:"-"`
	// OccurredAt is the parsed timestamp, zero when the client sent none.
	OccurredAt time.Time `json:"-"`
}

func (e *Envelope) normalize() error {
	e.EventType = CanonicalType(e.Type)
	if e.EventType == "" {
		return domain.NewRootValidationError("type: empty")
	}
	e.ClientID = Blob(e.ClientID)
	e.AdditionalData = Blob(e.AdditionalData)
	e.Target = Blob(e.Target)

	if e.Timestamp != nil && *e.Timestamp != "" {
		at, err := ParseTimestamp(*e.Timestamp)
		if err != nil {
			return domain.NewRootValidationError("timestamp: " + err.Error())
		}
		e.OccurredAt = at
	}
	return nil
}

// CanonicalType maps the hyphenated type names used by the extension
// ("network-request") onto the stored names ("network_request").
func CanonicalType(raw string) domain.EventType {
	return domain.EventType(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts ISO-8601 timestamps with or without a zone offset.
// Timestamps without an offset are taken as UTC. The result is always UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if at, err := time.Parse(layout, raw); err == nil {
			return at.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", raw)
}

// Blob returns nil for absent or JSON null values so they are stored as
// NULL rather than the text "null".
func Blob(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}

// ScreenResolution accepts {"width":W,"height":H} and the "WxH" string sent
// by older extension builds.
type ScreenResolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *ScreenResolution) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		w, h, ok := strings.Cut(strings.ToLower(text), "x")
		if !ok {
			return fmt.Errorf("screen resolution %q is not WxH", text)
		}
		width, err := strconv.Atoi(strings.TrimSpace(w))
		if err != nil {
			return fmt.Errorf("screen width: %w", err)
		}
		height, err := strconv.Atoi(strings.TrimSpace(h))
		if err != nil {
			return fmt.Errorf("screen height: %w", err)
		}
		s.Width, s.Height = width, height
		return nil
	}

	var dims struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := json.Unmarshal(data, &dims); err != nil {
		return err
	}
	s.Width = int(math.Round(dims.Width))
	s.Height = int(math.Round(dims.Height))
	return nil
}

type NetworkRequest struct {
	Method    string          `json:"method"`
	RequestID *string         `json:"requestId,omitempty"`
	URL       *string         `json:"url,omitempty"`
	Status    *int            `json:"status,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Stack     *string         `json:"stack,omitempty"`
	Initiator *string         `json:"initiator,omitempty"`
	Headers   json.RawMessage `json:"headers,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	TimeStamp *float64        `json:"timeStamp,omitempty"`
}

type NetworkResponse struct {
	StatusCode int             `json:"statusCode"`
	RequestID  *string         `json:"requestId,omitempty"`
	URL        *string         `json:"url,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Headers    json.RawMessage `json:"headers,omitempty"`
	TimeStamp  *float64        `json:"timeStamp,omitempty"`
}

// UserInteraction carries the sub-kind in Event. The detail payload for the
// sub-kind is AdditionalData.
type UserInteraction struct {
	Event          string            `json:"event"`
	Target         InteractionTarget `json:"target"`
	AdditionalData json.RawMessage   `json:"additionalData"`
}

// InteractionTarget describes the DOM element an interaction hit. Raw keeps
// the element exactly as received.
type InteractionTarget struct {
	TagName      *string         `json:"tagName,omitempty"`
	ID           *string         `json:"id,omitempty"`
	ClassName    *string         `json:"className,omitempty"`
	Name         *string         `json:"name,omitempty"`
	InnerText    *string         `json:"innerText,omitempty"`
	OuterText    *string         `json:"outerText,omitempty"`
	InnerHTML    *string         `json:"innerHTML,omitempty"`
	OuterHTML    *string         `json:"outerHTML,omitempty"`
	BoundingRect json.RawMessage `json:"boundingRect,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (t *InteractionTarget) UnmarshalJSON(data []byte) error {
	type plain InteractionTarget
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = InteractionTarget(p)
	t.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

type MouseEvent struct {
	ClientX   float64  `json:"clientX"`
	ClientY   float64  `json:"clientY"`
	ScreenX   *float64 `json:"screenX,omitempty"`
	ScreenY   *float64 `json:"screenY,omitempty"`
	Button    *int     `json:"button,omitempty"`
	Buttons   *int     `json:"buttons,omitempty"`
	CtrlKey   bool     `json:"ctrlKey"`
	ShiftKey  bool     `json:"shiftKey"`
	AltKey    bool     `json:"altKey"`
	MetaKey   bool     `json:"metaKey"`
	MovementX *float64 `json:"movementX,omitempty"`
	MovementY *float64 `json:"movementY,omitempty"`
}

type KeyEvent struct {
	Key         string `json:"key"`
	Code        string `json:"code"`
	KeyCode     int    `json:"keyCode"`
	CharCode    *int   `json:"charCode,omitempty"`
	Which       int    `json:"which"`
	Location    *int   `json:"location,omitempty"`
	CtrlKey     bool   `json:"ctrlKey"`
	ShiftKey    bool   `json:"shiftKey"`
	AltKey      bool   `json:"altKey"`
	MetaKey     bool   `json:"metaKey"`
	Repeat      bool   `json:"repeat"`
	IsComposing *bool  `json:"isComposing,omitempty"`
}

type TouchEvent struct {
	Touches []TouchPoint `json:"touches"`
}

type TouchPoint struct {
	ClientX       float64         `json:"clientX"`
	ClientY       float64         `json:"clientY"`
	Force         float64         `json:"force"`
	Identifier    int64           `json:"identifier"`
	RadiusX       float64         `json:"radiusX"`
	RadiusY       float64         `json:"radiusY"`
	RotationAngle float64         `json:"rotationAngle"`
	ScreenX       float64         `json:"screenX"`
	ScreenY       float64         `json:"screenY"`
	Target        json.RawMessage `json:"target"`
}
