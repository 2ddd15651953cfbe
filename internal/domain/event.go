// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"
)

type EventType string

// Event types with a dedicated handler. Every other type is stored by the
// generic handler.
const (
	EventNetworkRequest  EventType = "network_request"
	EventNetworkResponse EventType = "network_response"
	EventUserInteraction EventType = "user_interaction"
)

// Event types the extension emits that carry no rich sub-record.
const (
	EventNavigation   EventType = "navigation"
	EventTabActivated EventType = "tab_activated"
	EventEnvironment  EventType = "environment"
	EventWindowState  EventType = "window_state"
	EventTabState     EventType = "tab_state"
	EventStorage      EventType = "storage"
	EventError        EventType = "error"
)

// DetailKind selects the detail record written for a user interaction
// sub-kind (click, keydown, touchstart, ...).
type DetailKind string

const (
	DetailMouse DetailKind = "mouse"
	DetailKey   DetailKind = "key"
	DetailTouch DetailKind = "touch"
)

// EventRecord is one row of the events table.
type EventRecord struct {
	ID               int64           `json:"id"`
	Type             EventType       `json:"type"`
	Timestamp        time.Time       `json:"timestamp"`
	ReceivedAt       time.Time       `json:"received_at"`
	SessionID        string          `json:"session_id"`
	SequenceNumber   int64           `json:"sequence_number"`
	UserAgent        string          `json:"user_agent"`
	ExtensionVersion string          `json:"extension_version"`
	OperatingSystem  string          `json:"operating_system"`
	BrowserVersion   *string         `json:"browser_version,omitempty"`
	ScreenWidth      int             `json:"screen_width"`
	ScreenHeight     int             `json:"screen_height"`
	TabID            *int64          `json:"tab_id,omitempty"`
	URL              *string         `json:"url,omitempty"`
	Initiator        *string         `json:"initiator,omitempty"`
	AdditionalData   json.RawMessage `json:"additional_data,omitempty"`
	Target           json.RawMessage `json:"target,omitempty"`
}

type NetworkRequestRecord struct {
	ID        int64           `json:"id"`
	EventID   int64           `json:"event_id"`
	Method    string          `json:"method"`
	RequestID *string         `json:"request_id,omitempty"`
	URL       *string         `json:"url,omitempty"`
	Status    *int            `json:"status,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Stack     *string         `json:"stack,omitempty"`
	Initiator *string         `json:"initiator,omitempty"`
	Headers   json.RawMessage `json:"headers,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	TimeStamp *float64        `json:"time_stamp,omitempty"`
}

type NetworkResponseRecord struct {
	ID         int64           `json:"id"`
	EventID    int64           `json:"event_id"`
	RequestID  *string         `json:"request_id,omitempty"`
	URL        *string         `json:"url,omitempty"`
	StatusCode int             `json:"status_code"`
	Response   json.RawMessage `json:"response,omitempty"`
	Headers    json.RawMessage `json:"headers,omitempty"`
	TimeStamp  *float64        `json:"time_stamp,omitempty"`
}

type UserInteractionRecord struct {
	ID        int64           `json:"id"`
	EventID   int64           `json:"event_id"`
	EventType string          `json:"event_type"`
	TargetTag *string         `json:"target_tag,omitempty"`
	Target    json.RawMessage `json:"target,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

type MouseEventRecord struct {
	ID            int64    `json:"id"`
	InteractionID int64    `json:"interaction_id"`
	ClientX       float64  `json:"client_x"`
	ClientY       float64  `json:"client_y"`
	ScreenX       *float64 `json:"screen_x,omitempty"`
	ScreenY       *float64 `json:"screen_y,omitempty"`
	Button        *int     `json:"button,omitempty"`
	Buttons       *int     `json:"buttons,omitempty"`
	CtrlKey       bool     `json:"ctrl_key"`
	ShiftKey      bool     `json:"shift_key"`
	AltKey        bool     `json:"alt_key"`
	MetaKey       bool     `json:"meta_key"`
	MovementX     *float64 `json:"movement_x,omitempty"`
	MovementY     *float64 `json:"movement_y,omitempty"`
}

type KeyEventRecord struct {
	ID            int64  `json:"id"`
	InteractionID int64  `json:"interaction_id"`
	Key           string `json:"key"`
	Code          string `json:"code"`
	KeyCode       int    `json:"key_code"`
	CharCode      *int   `json:"char_code,omitempty"`
	Which         int    `json:"which"`
	Location      *int   `json:"location,omitempty"`
	CtrlKey       bool   `json:"ctrl_key"`
	ShiftKey      bool   `json:"shift_key"`
	AltKey        bool   `json:"alt_key"`
	MetaKey       bool   `json:"meta_key"`
	Repeat        bool   `json:"repeat"`
	IsComposing   *bool  `json:"is_composing,omitempty"`
}

// TouchPointRecord is one contact point of a touch interaction. Position
// keeps the order of the point in the inbound touches list.
type TouchPointRecord struct {
	ID            int64           `json:"id"`
	InteractionID int64           `json:"interaction_id"`
	Position      int             `json:"position"`
	ClientX       float64         `json:"client_x"`
	ClientY       float64         `json:"client_y"`
	Force         float64         `json:"force"`
	Identifier    int64           `json:"identifier"`
	RadiusX       float64         `json:"radius_x"`
	RadiusY       float64         `json:"radius_y"`
	RotationAngle float64         `json:"rotation_angle"`
	ScreenX       float64         `json:"screen_x"`
	ScreenY       float64         `json:"screen_y"`
	Target        json.RawMessage `json:"target,omitempty"`
}
